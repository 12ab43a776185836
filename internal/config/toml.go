// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Classifier ClassifierConfig `toml:"classifier"`
	Epoch      EpochConfig      `toml:"epoch"`
	Stream     StreamConfig     `toml:"stream"`
}

// ClassifierConfig maps training and prediction settings.
type ClassifierConfig struct {
	Model         *string   `toml:"model"`
	Device        *int      `toml:"device"`
	Channels      *[]string `toml:"channels"`
	TrainingClass *int      `toml:"training-class"`
	CVSplits      *int      `toml:"cv-splits"`
	TestSize      *float64  `toml:"test-size"`
	Seed          *int64    `toml:"seed"`
	Scaler        *string   `toml:"scaler"`
	Oversample    *bool     `toml:"oversample"`
	Rescale       *float64  `toml:"rescale"`
}

// EpochConfig maps the epoch window in seconds.
type EpochConfig struct {
	Start *float64 `toml:"start"`
	End   *float64 `toml:"end"`
}

// StreamConfig maps the OSC decision stream.
type StreamConfig struct {
	Enabled *bool   `toml:"enabled"`
	Host    *string `toml:"host"`
	Port    *int    `toml:"port"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
