package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `[classifier]
model = "MAJ"
device = 8
channels = ["Cz", "Pz"]
training-class = 2
oversample = true

[epoch]
start = -0.2
end = 0.8

[stream]
enabled = true
port = 9100
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Classifier.Model == nil || *cfg.Classifier.Model != "MAJ" {
		t.Fatalf("unexpected model %v", cfg.Classifier.Model)
	}
	if cfg.Classifier.Device == nil || *cfg.Classifier.Device != 8 {
		t.Fatalf("unexpected device %v", cfg.Classifier.Device)
	}
	if cfg.Classifier.Channels == nil || !reflect.DeepEqual(*cfg.Classifier.Channels, []string{"Cz", "Pz"}) {
		t.Fatalf("unexpected channels %v", cfg.Classifier.Channels)
	}
	if cfg.Classifier.Seed != nil || cfg.Classifier.Scaler != nil {
		t.Fatalf("unset keys must stay nil")
	}
	if cfg.Epoch.Start == nil || *cfg.Epoch.Start != -0.2 || cfg.Epoch.End == nil || *cfg.Epoch.End != 0.8 {
		t.Fatalf("unexpected epoch %+v", cfg.Epoch)
	}
	if cfg.Stream.Enabled == nil || !*cfg.Stream.Enabled || cfg.Stream.Host != nil || *cfg.Stream.Port != 9100 {
		t.Fatalf("unexpected stream %+v", cfg.Stream)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Classifier.Model != nil {
		t.Fatalf("expected empty config")
	}
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(bad, []byte("[classifier\nmodel = "), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadConfig(bad); err == nil {
		t.Fatalf("expected decode error")
	}

	unknown := filepath.Join(dir, "unknown.toml")
	if err := os.WriteFile(unknown, []byte("[classifier]\nmodle = \"LDA\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := LoadConfig(unknown)
	if err == nil || !strings.Contains(err.Error(), "classifier.modle") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestDefaultPaths(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/cfg")
	t.Setenv("XDG_DATA_HOME", "/tmp/data")
	if got := DefaultConfigPath(); got != filepath.Join("/tmp/cfg", "oddball", "config.toml") {
		t.Fatalf("unexpected config path %s", got)
	}
	if got := DefaultDBPath(); got != filepath.Join("/tmp/data", "oddball", "oddball.db") {
		t.Fatalf("unexpected db path %s", got)
	}
}

func TestDefaultPathsFallBackToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")
	if got := XDGConfigHome(); got != filepath.Join(home, ".config") {
		t.Fatalf("unexpected config home %s", got)
	}
	if got := XDGDataHome(); got != filepath.Join(home, ".local", "share") {
		t.Fatalf("unexpected data home %s", got)
	}
}
