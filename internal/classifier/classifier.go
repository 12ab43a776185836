// Package classifier trains and applies oddball trial classifiers on
// recordings.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/verte-zerg/oddball/internal/epoch"
	"github.com/verte-zerg/oddball/internal/layout"
	"github.com/verte-zerg/oddball/internal/learn"
	"github.com/verte-zerg/oddball/internal/model"
	"github.com/verte-zerg/oddball/internal/sequence"
)

// Publisher receives grouped decisions.
type Publisher interface {
	Publish(ctx context.Context, d model.Decision) error
}

type trainedModel struct {
	scaler  learn.Scaler
	model   learn.Model
	encoder *learn.LabelEncoder
}

// Classifier owns the learned stimulus sequence and the trained model of one
// session. It is not safe for concurrent use.
type Classifier struct {
	cfg       Config
	layout    layout.Layout
	channels  []int
	factory   learn.Factory
	logger    *slog.Logger
	publisher Publisher
	now       func() time.Time

	mode      model.RunMode
	sequence  []int
	trained   *trainedModel
	preparedX [][]float64
	preparedY []int
}

// New validates cfg and returns an untrained Classifier in Training mode.
// A nil logger discards log output.
func New(cfg Config, logger *slog.Logger) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	factory, err := learn.Lookup(cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	l, err := layout.Lookup(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	var channels []int
	if len(cfg.Channels) > 0 {
		channels, err = layout.Select(l.Channels, cfg.Channels)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg.Channels = append([]string(nil), cfg.Channels...)
	return &Classifier{
		cfg:      cfg,
		layout:   l,
		channels: channels,
		factory:  factory,
		logger:   logger.With(model.ModelKey, cfg.Model, model.DeviceKey, cfg.Device),
		now:      time.Now,
		mode:     model.Training,
	}, nil
}

// Config returns the configuration the classifier was built with.
func (c *Classifier) Config() Config {
	cfg := c.cfg
	cfg.Channels = append([]string(nil), c.cfg.Channels...)
	return cfg
}

// SetPublisher attaches p to receive grouped decisions. A nil p detaches.
func (c *Classifier) SetPublisher(p Publisher) {
	c.publisher = p
}

// SetInferenceMode switches the mode used by Preprocess.
func (c *Classifier) SetInferenceMode(inference bool) {
	if inference {
		c.mode = model.Inference
		return
	}
	c.mode = model.Training
}

// Mode returns the run mode used by Preprocess.
func (c *Classifier) Mode() model.RunMode {
	return c.mode
}

// Sequence returns a copy of the learned stimulus sequence.
func (c *Classifier) Sequence() []int {
	return append([]int(nil), c.sequence...)
}

// Trained reports whether a model is available for evaluation and prediction.
func (c *Classifier) Trained() bool {
	return c.trained != nil
}

// Classes returns the trial labels in the column order of probability rows.
func (c *Classifier) Classes() []int {
	if c.trained == nil {
		return nil
	}
	return c.trained.encoder.Classes()
}

// PreparedData returns the flattened epochs and encoded labels of the last
// successful training pass.
func (c *Classifier) PreparedData() ([][]float64, []int) {
	X := make([][]float64, len(c.preparedX))
	for i, row := range c.preparedX {
		X[i] = append([]float64(nil), row...)
	}
	return X, append([]int(nil), c.preparedY...)
}

// Preprocess extracts epochs in the current run mode. In Training mode the
// learned stimulus sequence replaces the stored one.
func (c *Classifier) Preprocess(rec model.Recording) (epoch.Epochs, error) {
	eps, seq, err := c.extract(rec, c.mode)
	if err != nil {
		return epoch.Epochs{}, err
	}
	if c.mode == model.Training {
		c.sequence = seq
	}
	return eps, nil
}

// extract turns a recording into labeled epochs. It returns the stimulus
// sequence learned (Training) or matched (Inference) along the way.
func (c *Classifier) extract(rec model.Recording, mode model.RunMode) (epoch.Epochs, []int, error) {
	if len(rec.Rows) <= c.layout.EEGEnd || rec.Samples() == 0 {
		return epoch.Epochs{}, nil, fmt.Errorf("%w: recording has %d rows, %s device needs more than %d",
			epoch.ErrEpoching, len(rec.Rows), c.layout.Name, c.layout.EEGEnd)
	}
	names := c.layout.Channels
	eeg := make([][]float64, 0, c.layout.ChannelCount())
	for _, row := range rec.Rows[c.layout.EEGStart:c.layout.EEGEnd] {
		scaled := make([]float64, len(row))
		for i, v := range row {
			scaled[i] = v / c.cfg.Rescale
		}
		eeg = append(eeg, scaled)
	}
	eeg, err := epoch.Rereference(eeg, names, c.layout.Reference)
	if err != nil {
		return epoch.Epochs{}, nil, err
	}
	if c.channels != nil {
		subset := make([][]float64, len(c.channels))
		for i, idx := range c.channels {
			subset[i] = eeg[idx]
		}
		eeg = subset
	}

	events := sequence.Filter(epoch.FindEvents(rec.Trigger()))
	c.logger.Debug("events found", model.PhaseKey, mode.String(), "events", len(events))

	var seq []int
	switch mode {
	case model.Training:
		seq = sequence.Learn(events)
		if len(seq) == 0 {
			return epoch.Epochs{}, nil, fmt.Errorf("%w: no trial events in the trigger channel", epoch.ErrEpoching)
		}
	case model.Inference:
		seq = c.Sequence()
		events, err = sequence.Match(events, seq)
		if err != nil {
			return epoch.Epochs{}, nil, err
		}
	default:
		return epoch.Epochs{}, nil, fmt.Errorf("unknown run mode %d", mode)
	}

	eps, err := epoch.Extract(eeg, sequence.Relabel(events, c.cfg.TrainingClass), epoch.Params{
		SamplingRate: c.layout.SamplingRate,
		Window:       c.cfg.Window,
		Baseline:     c.cfg.Window.Baseline(),
		EventIDs: map[string]int{
			"Target":    c.cfg.TrainingClass,
			"NonTarget": model.NonTargetCode,
		},
	})
	if err != nil {
		return epoch.Epochs{}, nil, err
	}
	if eps.Dropped > 0 {
		c.logger.Warn("epochs outside the recording dropped", model.PhaseKey, mode.String(), "dropped", eps.Dropped)
	}
	if mode == model.Inference && eps.Len() != len(seq) {
		return epoch.Epochs{}, nil, fmt.Errorf("%w: %d of %d matched events have a complete window",
			sequence.ErrInsufficientMatch, eps.Len(), len(seq))
	}
	c.logger.Info("data preprocessed and epochs extracted",
		model.PhaseKey, mode.String(),
		model.SamplesKey, eps.Len(),
		model.ChannelsKey, len(eeg),
		model.SequenceKey, seq,
	)
	return eps, seq, nil
}

func isInsufficientMatch(err error) bool {
	return errors.Is(err, sequence.ErrInsufficientMatch)
}
