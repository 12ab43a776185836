package classifier

import (
	"errors"
	"fmt"

	"github.com/verte-zerg/oddball/internal/layout"
	"github.com/verte-zerg/oddball/internal/learn"
	"github.com/verte-zerg/oddball/internal/model"
)

var (
	// ErrConfiguration reports an invalid classifier configuration.
	ErrConfiguration = errors.New("invalid classifier configuration")
	// ErrModelNotTrained reports evaluation or prediction before a successful Train.
	ErrModelNotTrained = errors.New("model is not trained")
)

// Defaults used by DefaultConfig.
const (
	DefaultModel         = learn.LDAPreset
	DefaultCVSplits      = 10
	DefaultTestSize      = 0.1
	DefaultTrainingClass = 1
	DefaultSeed          = 32
	DefaultRescale       = 1e6
)

// DefaultWindow is the epoch span around each stimulus, in seconds.
var DefaultWindow = model.Window{Start: -0.1, End: 0.7}

// Config holds the in-process parameters of a Classifier.
type Config struct {
	Model         string
	Device        int
	Channels      []string // EEG channel subset by name; empty keeps the full band
	Window        model.Window
	CVSplits      int
	TestSize      float64
	TrainingClass int
	Seed          int64
	Rescale       float64 // raw samples are divided by this before epoching
}

// DefaultConfig returns a configuration for the synthetic board.
func DefaultConfig() Config {
	return Config{
		Model:         DefaultModel,
		Device:        layout.Synthetic,
		Window:        DefaultWindow,
		CVSplits:      DefaultCVSplits,
		TestSize:      DefaultTestSize,
		TrainingClass: DefaultTrainingClass,
		Seed:          DefaultSeed,
		Rescale:       DefaultRescale,
	}
}

// Validate checks cfg and returns errors wrapping ErrConfiguration.
func (cfg Config) Validate() error {
	if _, err := learn.Lookup(cfg.Model); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	l, err := layout.Lookup(cfg.Device)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if _, err := layout.Select(l.Channels, cfg.Channels); err != nil {
		return fmt.Errorf("%w: %s device: %w", ErrConfiguration, l.Name, err)
	}
	if cfg.Window.End <= cfg.Window.Start {
		return fmt.Errorf("%w: window end %.3f must be after start %.3f", ErrConfiguration, cfg.Window.End, cfg.Window.Start)
	}
	if cfg.Window.Start > 0 || cfg.Window.End <= 0 {
		return fmt.Errorf("%w: window %.3f..%.3f must contain the stimulus onset", ErrConfiguration, cfg.Window.Start, cfg.Window.End)
	}
	if cfg.CVSplits < 2 {
		return fmt.Errorf("%w: cv splits must be >= 2, got %d", ErrConfiguration, cfg.CVSplits)
	}
	if cfg.TestSize <= 0 || cfg.TestSize >= 1 {
		return fmt.Errorf("%w: test size must be between 0 and 1, got %v", ErrConfiguration, cfg.TestSize)
	}
	if cfg.TrainingClass <= 0 || cfg.TrainingClass >= model.SentinelCode || cfg.TrainingClass == model.NonTargetCode {
		return fmt.Errorf("%w: training class must be in 1..%d and not %d, got %d",
			ErrConfiguration, model.SentinelCode-1, model.NonTargetCode, cfg.TrainingClass)
	}
	if cfg.Rescale <= 0 {
		return fmt.Errorf("%w: rescale must be > 0, got %v", ErrConfiguration, cfg.Rescale)
	}
	return nil
}
