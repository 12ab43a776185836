package classifier

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/verte-zerg/oddball/internal/layout"
	"github.com/verte-zerg/oddball/internal/learn"
	"github.com/verte-zerg/oddball/internal/model"
	"github.com/verte-zerg/oddball/internal/synth"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Channels = []string{"Cz", "Pz"}
	return cfg
}

func recording(t *testing.T, seed int64, device int, edit func(*synth.Params)) model.Recording {
	t.Helper()
	p := synth.DefaultParams()
	p.Cycles = 30
	if edit != nil {
		edit(&p)
	}
	rec, err := synth.New(seed).Recording(device, p)
	if err != nil {
		t.Fatalf("recording: %v", err)
	}
	return rec
}

func trained(t *testing.T, cfg Config) (*Classifier, model.TrainingRun) {
	t.Helper()
	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	run, err := c.Train(context.Background(), recording(t, 1, cfg.Device, nil), c.DefaultTrainOptions())
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	return c, run
}

func TestTrainSeparableRecording(t *testing.T) {
	c, run := trained(t, testConfig())
	if run.EvalAccuracy != 1 || run.EvalF1 != 1 {
		t.Fatalf("expected perfect evaluation, got accuracy %v f1 %v", run.EvalAccuracy, run.EvalF1)
	}
	if run.CV == nil || run.CVError != "" {
		t.Fatalf("expected cross-validation summary, got error %q", run.CVError)
	}
	if run.CV.Folds != DefaultCVSplits {
		t.Fatalf("expected %d folds, got %d", DefaultCVSplits, run.CV.Folds)
	}
	if !reflect.DeepEqual(run.Sequence, []int{1, 2, 3, 4}) {
		t.Fatalf("unexpected sequence %v", run.Sequence)
	}
	if run.Samples != 120 {
		t.Fatalf("expected 120 epochs, got %d", run.Samples)
	}
	if run.Features != 2*201 {
		t.Fatalf("expected %d features, got %d", 2*201, run.Features)
	}
	if run.ID == "" || run.EndedAt.Before(run.StartedAt) {
		t.Fatalf("unexpected run bookkeeping %+v", run)
	}
	if !reflect.DeepEqual(c.Classes(), []int{1, model.NonTargetCode}) {
		t.Fatalf("unexpected classes %v", c.Classes())
	}
}

func TestTrainOptionsVariants(t *testing.T) {
	for _, opts := range []TrainOptions{
		{Scaler: learn.MinMaxScaling, Seed: 3},
		{Scaler: learn.NoScaling, Oversample: true, Seed: 4},
	} {
		c, err := New(testConfig(), nil)
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		run, err := c.Train(context.Background(), recording(t, 2, layout.Synthetic, nil), opts)
		if err != nil {
			t.Fatalf("train %+v: %v", opts, err)
		}
		if run.EvalAccuracy < 0.9 {
			t.Fatalf("train %+v: accuracy %v", opts, run.EvalAccuracy)
		}
	}
}

func TestTrainUnknownScaler(t *testing.T) {
	c, _ := New(testConfig(), nil)
	_, err := c.Train(context.Background(), recording(t, 1, layout.Synthetic, nil), TrainOptions{Scaler: "robust"})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if c.Trained() || len(c.Sequence()) != 0 {
		t.Fatalf("failed training must not change state")
	}
}

func TestCrossValidationFailureIsNotFatal(t *testing.T) {
	cfg := testConfig()
	cfg.CVSplits = 50
	_, run := trained(t, cfg)
	if run.CV != nil || run.CVError == "" {
		t.Fatalf("expected recorded cv error, got %+v", run.CV)
	}
}

func TestTrainCancelled(t *testing.T) {
	c, _ := New(testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Train(ctx, recording(t, 1, layout.Synthetic, nil), c.DefaultTrainOptions()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	c, _ := trained(t, testConfig())
	X, y := c.PreparedData()
	acc1, f11, err := c.Evaluate(X, y)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	acc2, f12, err := c.Evaluate(X, y)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if acc1 != acc2 || f11 != f12 {
		t.Fatalf("evaluate not idempotent: %v/%v vs %v/%v", acc1, f11, acc2, f12)
	}
	if acc1 < 0.95 {
		t.Fatalf("expected high accuracy on prepared data, got %v", acc1)
	}
}

func TestUntrained(t *testing.T) {
	c, _ := New(testConfig(), nil)
	if _, _, err := c.Evaluate([][]float64{{1}}, []int{0}); !errors.Is(err, ErrModelNotTrained) {
		t.Fatalf("expected ErrModelNotTrained, got %v", err)
	}
	rec := recording(t, 1, layout.Synthetic, nil)
	if _, err := c.Predict(context.Background(), rec, PredictOptions{}); !errors.Is(err, ErrModelNotTrained) {
		t.Fatalf("expected ErrModelNotTrained, got %v", err)
	}
}

func TestPredictGroupedProbabilities(t *testing.T) {
	c, _ := trained(t, testConfig())
	rec := recording(t, 9, layout.Synthetic, func(p *synth.Params) {
		p.Cycles = 1
		p.Attended = 4
	})
	pred, err := c.Predict(context.Background(), rec, PredictOptions{Probabilities: true, Group: true})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	d := pred.Decision
	if d == nil {
		t.Fatalf("expected a decision")
	}
	if d.Class != 4 || d.Code != 4 {
		t.Fatalf("expected class 4, got %+v", d)
	}
	var sum float64
	best := 0.0
	for _, s := range d.Scores {
		sum += s
		best = math.Max(best, s)
	}
	if math.Abs(sum-1) > 1e-3 {
		t.Fatalf("scores should sum to 1, got %v", sum)
	}
	if d.Scores[d.Code] != best {
		t.Fatalf("class must point at the best score: %+v", d)
	}
}

func TestDefaultModelIsPreset(t *testing.T) {
	if _, err := learn.New(DefaultConfig().Model, DefaultSeed); err != nil {
		t.Fatalf("default model is not a preset: %v", err)
	}
}

func TestPresetsSelectAttendedStimulus(t *testing.T) {
	for _, name := range []string{learn.SVMPreset, learn.LDAPreset} {
		cfg := testConfig()
		cfg.Model = name
		cfg.CVSplits = 3
		c, _ := trained(t, cfg)
		for attended := 1; attended <= 4; attended++ {
			rec := recording(t, int64(10+attended), layout.Synthetic, func(p *synth.Params) {
				p.Cycles = 1
				p.Attended = attended
			})
			pred, err := c.Predict(context.Background(), rec, PredictOptions{Probabilities: true, Group: true})
			if err != nil {
				t.Fatalf("%s: predict: %v", name, err)
			}
			if pred.Decision.Code != attended {
				t.Fatalf("%s: attended %d, decided %+v", name, attended, pred.Decision)
			}
		}
	}
}

func TestPredictGroupedLabels(t *testing.T) {
	c, _ := trained(t, testConfig())
	rec := recording(t, 9, layout.Synthetic, func(p *synth.Params) {
		p.Cycles = 1
		p.Attended = 2
	})
	pred, err := c.Predict(context.Background(), rec, PredictOptions{Group: true})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	want := map[int]float64{1: 0, 2: 1, 3: 0, 4: 0}
	if !reflect.DeepEqual(pred.Decision.Scores, want) {
		t.Fatalf("expected indicator scores %v, got %v", want, pred.Decision.Scores)
	}
	if pred.Decision.Class != 2 {
		t.Fatalf("expected class 2, got %d", pred.Decision.Class)
	}
}

func TestPredictUngrouped(t *testing.T) {
	c, _ := trained(t, testConfig())
	rec := recording(t, 9, layout.Synthetic, func(p *synth.Params) {
		p.Cycles = 1
		p.Attended = 4
	})
	pred, err := c.Predict(context.Background(), rec, PredictOptions{})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if want := []int{3, 3, 3, 1}; !reflect.DeepEqual(pred.Labels, want) {
		t.Fatalf("expected labels %v, got %v", want, pred.Labels)
	}
	if len(pred.Events) != 4 || pred.Events[3].Code != 4 {
		t.Fatalf("unexpected events %+v", pred.Events)
	}

	pred, err = c.Predict(context.Background(), rec, PredictOptions{Probabilities: true})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(pred.Probabilities) != 4 {
		t.Fatalf("expected 4 probability rows, got %d", len(pred.Probabilities))
	}
	for i, row := range pred.Probabilities {
		if len(row) != len(pred.Classes) {
			t.Fatalf("row %d has %d columns, expected %d", i, len(row), len(pred.Classes))
		}
	}
	if pred.Probabilities[3][0] < 0.5 {
		t.Fatalf("attended epoch should favor the target class, got %v", pred.Probabilities[3])
	}
}

func TestPredictInsufficientMatch(t *testing.T) {
	c, _ := trained(t, testConfig())
	rec := recording(t, 9, layout.Synthetic, func(p *synth.Params) {
		p.Sequence = []int{1, 2, 4}
		p.Cycles = 2
	})
	pred, err := c.Predict(context.Background(), rec, PredictOptions{Group: true})
	if err != nil || pred != nil {
		t.Fatalf("expected no result and no error, got %+v, %v", pred, err)
	}
}

func TestModeIsolation(t *testing.T) {
	c, _ := trained(t, testConfig())
	before := c.Sequence()
	rec := recording(t, 9, layout.Synthetic, func(p *synth.Params) { p.Cycles = 1 })
	for i := 0; i < 3; i++ {
		if _, err := c.Predict(context.Background(), rec, PredictOptions{Group: true}); err != nil {
			t.Fatalf("predict: %v", err)
		}
	}
	c.SetInferenceMode(true)
	if c.Mode() != model.Inference {
		t.Fatalf("expected inference mode")
	}
	if _, err := c.Preprocess(rec); err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	if !reflect.DeepEqual(before, c.Sequence()) {
		t.Fatalf("inference changed the sequence: %v -> %v", before, c.Sequence())
	}

	c.SetInferenceMode(false)
	other := recording(t, 9, layout.Synthetic, func(p *synth.Params) {
		p.Sequence = []int{5, 6, 1}
		p.Cycles = 2
	})
	if _, err := c.Preprocess(other); err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	if want := []int{5, 6, 1}; !reflect.DeepEqual(c.Sequence(), want) {
		t.Fatalf("expected training preprocess to learn %v, got %v", want, c.Sequence())
	}
}

func TestPreprocessEpochShape(t *testing.T) {
	c, _ := New(testConfig(), nil)
	rec := recording(t, 1, layout.Synthetic, func(p *synth.Params) {
		p.Cycles = 2
		p.Sentinels = true
	})
	eps, err := c.Preprocess(rec)
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	if eps.Len() != 8 {
		t.Fatalf("expected 8 epochs, got %d", eps.Len())
	}
	for i, ep := range eps.Data {
		if len(ep) != 2 {
			t.Fatalf("epoch %d has %d channels", i, len(ep))
		}
		for _, ch := range ep {
			if len(ch) != 201 {
				t.Fatalf("epoch %d has %d samples", i, len(ch))
			}
		}
	}
	for _, label := range eps.Labels() {
		if label != 1 && label != model.NonTargetCode {
			t.Fatalf("unexpected label %d", label)
		}
	}
	if !reflect.DeepEqual(c.Sequence(), []int{1, 2, 3, 4}) {
		t.Fatalf("sentinels must not enter the sequence, got %v", c.Sequence())
	}
}

func TestEnophoneRereference(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device = layout.Enophone
	c, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	eps, err := c.Preprocess(recording(t, 1, layout.Enophone, func(p *synth.Params) { p.Cycles = 1 }))
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	for _, ep := range eps.Data {
		for s := range ep[1] {
			if math.Abs(ep[1][s]+ep[2][s]) > 1e-12 {
				t.Fatalf("C3 and C4 must cancel after rereferencing, got %v and %v", ep[1][s], ep[2][s])
			}
		}
	}
}

func TestPreprocessShortRecording(t *testing.T) {
	c, _ := New(testConfig(), nil)
	if _, err := c.Preprocess(model.Recording{Rows: [][]float64{{0, 1}}}); err == nil {
		t.Fatalf("expected error for a recording without the eeg band")
	}
}

type recordingPublisher struct {
	decisions []model.Decision
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, d model.Decision) error {
	p.decisions = append(p.decisions, d)
	return p.err
}

func TestPublisherReceivesDecisions(t *testing.T) {
	c, _ := trained(t, testConfig())
	pub := &recordingPublisher{err: errors.New("offline")}
	c.SetPublisher(pub)
	rec := recording(t, 9, layout.Synthetic, func(p *synth.Params) { p.Cycles = 1 })
	if _, err := c.Predict(context.Background(), rec, PredictOptions{Group: true, Probabilities: true}); err != nil {
		t.Fatalf("publish errors must not fail prediction: %v", err)
	}
	if _, err := c.Predict(context.Background(), rec, PredictOptions{}); err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(pub.decisions) != 1 || pub.decisions[0].Class != 1 {
		t.Fatalf("expected one decision for class 1, got %+v", pub.decisions)
	}
}

func TestConfigValidation(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown model":   func(c *Config) { c.Model = "KNN" },
		"empty model":     func(c *Config) { c.Model = "" },
		"unknown device":  func(c *Config) { c.Device = 4242 },
		"unknown channel": func(c *Config) { c.Channels = []string{"T7"} },
		"window order":    func(c *Config) { c.Window = model.Window{Start: 0.5, End: 0.1} },
		"window onset":    func(c *Config) { c.Window = model.Window{Start: 0.1, End: 0.5} },
		"folds":           func(c *Config) { c.CVSplits = 1 },
		"test size":       func(c *Config) { c.TestSize = 1 },
		"non-target":      func(c *Config) { c.TrainingClass = model.NonTargetCode },
		"sentinel":        func(c *Config) { c.TrainingClass = model.SentinelCode },
		"rescale":         func(c *Config) { c.Rescale = 0 },
	}
	for name, edit := range cases {
		cfg := DefaultConfig()
		edit(&cfg)
		if _, err := New(cfg, nil); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("%s: expected ErrConfiguration, got %v", name, err)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
}
