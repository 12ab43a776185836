package classifier

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/verte-zerg/oddball/internal/learn"
	"github.com/verte-zerg/oddball/internal/model"
	"github.com/verte-zerg/oddball/internal/stats"
)

// TrainOptions tunes a single training pass.
type TrainOptions struct {
	Scaler     string // learn.StandardScaling, learn.MinMaxScaling or learn.NoScaling
	Oversample bool   // balance classes of the training split by resampling
	Seed       int64
}

// DefaultTrainOptions returns standard scaling without oversampling, seeded from
// the configuration.
func (c *Classifier) DefaultTrainOptions() TrainOptions {
	return TrainOptions{Scaler: learn.StandardScaling, Seed: c.cfg.Seed}
}

// Train learns the stimulus sequence and fits a fresh model on rec. The
// stored model, sequence and prepared data are replaced only on success.
func (c *Classifier) Train(ctx context.Context, rec model.Recording, opts TrainOptions) (model.TrainingRun, error) {
	started := c.now()
	scaler, err := learn.NewScaler(opts.Scaler)
	if err != nil {
		return model.TrainingRun{}, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	eps, seq, err := c.extract(rec, model.Training)
	if err != nil {
		return model.TrainingRun{}, err
	}
	X := eps.Flatten()
	encoder := &learn.LabelEncoder{}
	y := encoder.FitTransform(eps.Labels())
	if len(encoder.Classes()) != 2 {
		return model.TrainingRun{}, fmt.Errorf("training needs target and non-target epochs, got classes %v", encoder.Classes())
	}
	if err := ctx.Err(); err != nil {
		return model.TrainingRun{}, err
	}

	trainIdx, testIdx, err := learn.TrainTestSplit(len(X), c.cfg.TestSize, opts.Seed)
	if err != nil {
		return model.TrainingRun{}, fmt.Errorf("failed to split dataset: %w", err)
	}
	trainX, trainY := pick(X, y, trainIdx)
	testX, testY := pick(X, y, testIdx)
	if opts.Oversample {
		trainX, trainY = learn.OversampleMinority(trainX, trainY, opts.Seed)
	}
	c.logger.Info("dataset split",
		model.PhaseKey, "split",
		model.SamplesKey, len(trainX),
		model.FeaturesKey, len(X[0]),
		"test_samples", len(testX),
		model.SeedKey, opts.Seed,
	)

	if err := scaler.Fit(trainX); err != nil {
		return model.TrainingRun{}, fmt.Errorf("failed to fit scaler: %w", err)
	}
	scaledX, err := scaler.Transform(trainX)
	if err != nil {
		return model.TrainingRun{}, fmt.Errorf("failed to scale training data: %w", err)
	}

	run := model.TrainingRun{
		ID:            uuid.NewString(),
		StartedAt:     started,
		Model:         c.cfg.Model,
		Device:        c.cfg.Device,
		TrainingClass: c.cfg.TrainingClass,
		Sequence:      append([]int(nil), seq...),
		Samples:       len(X),
		Features:      len(X[0]),
	}
	cv, err := c.CrossValidate(ctx, X, y, opts.Seed)
	if err != nil {
		if ctx.Err() != nil {
			return model.TrainingRun{}, ctx.Err()
		}
		c.logger.Error("cross-validation failed", model.PhaseKey, "cv", model.ErrorKey, err)
		run.CVError = err.Error()
	} else {
		run.CV = &cv
	}

	m := c.factory(opts.Seed)
	if err := m.Fit(scaledX, trainY); err != nil {
		return model.TrainingRun{}, fmt.Errorf("failed to fit %s: %w", c.cfg.Model, err)
	}
	c.logger.Info("model trained", model.PhaseKey, "fit", model.SamplesKey, len(scaledX), model.ClassesKey, encoder.Classes())

	tm := &trainedModel{scaler: scaler, model: m, encoder: encoder}
	acc, f1, err := tm.evaluate(testX, testY)
	if err != nil {
		return model.TrainingRun{}, fmt.Errorf("failed to evaluate %s: %w", c.cfg.Model, err)
	}
	c.logger.Info("model evaluated", model.PhaseKey, "evaluate", model.AccuracyKey, acc, model.F1Key, f1)

	c.trained = tm
	c.sequence = seq
	c.preparedX = X
	c.preparedY = y

	run.EvalAccuracy = acc
	run.EvalF1 = f1
	run.EndedAt = c.now()
	c.logger.Info("training run complete", model.RunIDKey, run.ID, model.SequenceKey, seq)
	return run, nil
}

// CrossValidate scores fresh models on stratified, shuffled folds of X.
func (c *Classifier) CrossValidate(ctx context.Context, X [][]float64, y []int, seed int64) (model.CVSummary, error) {
	folds, err := learn.StratifiedKFold(y, c.cfg.CVSplits, seed)
	if err != nil {
		return model.CVSummary{}, err
	}
	accuracy := make([]float64, 0, len(folds))
	f1 := make([]float64, 0, len(folds))
	for i, fold := range folds {
		if err := ctx.Err(); err != nil {
			return model.CVSummary{}, err
		}
		trainX, trainY := pick(X, y, fold.Train)
		testX, testY := pick(X, y, fold.Test)
		m := c.factory(seed)
		if err := m.Fit(trainX, trainY); err != nil {
			return model.CVSummary{}, fmt.Errorf("fold %d: %w", i, err)
		}
		pred, err := m.Predict(testX)
		if err != nil {
			return model.CVSummary{}, fmt.Errorf("fold %d: %w", i, err)
		}
		accuracy = append(accuracy, stats.Accuracy(testY, pred))
		f1 = append(f1, stats.WeightedF1(testY, pred))
	}
	summary := stats.Summarize(accuracy, f1)
	c.logger.Info("cross-validation complete",
		model.PhaseKey, "cv",
		model.FoldsKey, summary.Folds,
		model.AccuracyKey, summary.AccuracyMean,
		model.StdKey, summary.AccuracyStd,
		model.F1Key, summary.F1Mean,
	)
	return summary, nil
}

// Evaluate scores the trained model on X with encoded labels y. It leaves
// the classifier unchanged.
func (c *Classifier) Evaluate(X [][]float64, y []int) (accuracy, f1 float64, err error) {
	if c.trained == nil {
		return 0, 0, ErrModelNotTrained
	}
	return c.trained.evaluate(X, y)
}

func (t *trainedModel) evaluate(X [][]float64, y []int) (float64, float64, error) {
	if len(X) != len(y) {
		return 0, 0, fmt.Errorf("%w: %d samples but %d labels", learn.ErrShape, len(X), len(y))
	}
	scaled, err := t.scaler.Transform(X)
	if err != nil {
		return 0, 0, err
	}
	pred, err := t.model.Predict(scaled)
	if err != nil {
		return 0, 0, err
	}
	return stats.Accuracy(y, pred), stats.WeightedF1(y, pred), nil
}

func pick(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	outX := make([][]float64, len(idx))
	outY := make([]int, len(idx))
	for i, j := range idx {
		outX[i] = X[j]
		outY[i] = y[j]
	}
	return outX, outY
}
