package classifier

import (
	"context"
	"fmt"

	"github.com/verte-zerg/oddball/internal/model"
	"github.com/verte-zerg/oddball/internal/stats"
)

// scorePlaces is the number of decimals kept in decision scores.
const scorePlaces = 4

// PredictOptions selects the prediction output.
type PredictOptions struct {
	Probabilities bool // class probabilities instead of hard labels
	Group         bool // aggregate the matched sequence into one Decision
}

// Prediction is the output of Predict. Exactly one of Labels, Probabilities
// or Decision is set for ungrouped label, ungrouped probability and grouped
// predictions respectively.
type Prediction struct {
	Events        []model.Event // matched stimulus events in presentation order
	Labels        []int         // decoded trial labels per epoch
	Probabilities [][]float64   // per epoch, columns ordered as Classes
	Classes       []int
	Decision      *model.Decision
}

// Predict classifies the epochs of the learned stimulus sequence found in
// rec. When the sequence cannot be matched Predict logs the failure and
// returns a nil Prediction with a nil error.
func (c *Classifier) Predict(ctx context.Context, rec model.Recording, opts PredictOptions) (*Prediction, error) {
	if c.trained == nil {
		return nil, ErrModelNotTrained
	}
	eps, seq, err := c.extract(rec, model.Inference)
	if err != nil {
		if isInsufficientMatch(err) {
			c.logger.Error("stimulus sequence not found", model.SequenceKey, c.sequence, model.ErrorKey, err)
			return nil, nil
		}
		return nil, err
	}
	X, err := c.trained.scaler.Transform(eps.Flatten())
	if err != nil {
		return nil, fmt.Errorf("failed to scale epochs: %w", err)
	}

	out := &Prediction{Classes: c.trained.encoder.Classes()}
	for i, e := range eps.Events {
		out.Events = append(out.Events, model.Event{Sample: e.Sample, Code: seq[i]})
	}

	if opts.Group {
		d, err := c.group(X, seq, opts.Probabilities)
		if err != nil {
			return nil, err
		}
		out.Decision = &d
		c.logger.Info("decision aggregated", model.DecisionKey, d.Class, model.SequenceKey, d.Sequence, model.ScoresKey, d.Scores)
		c.publish(ctx, d)
		return out, nil
	}

	if opts.Probabilities {
		out.Probabilities, err = c.trained.model.PredictProba(X)
		if err != nil {
			return nil, fmt.Errorf("failed to predict probabilities: %w", err)
		}
		return out, nil
	}
	pred, err := c.trained.model.Predict(X)
	if err != nil {
		return nil, fmt.Errorf("failed to predict: %w", err)
	}
	out.Labels, err = c.trained.encoder.Inverse(pred)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// group scores every stimulus of seq by its target evidence and picks the
// highest scoring one. The evidence is the probability column of the
// TrainingClass label, looked up through the encoder, never a fixed column
// index. Probability scores are softmax-normalized. Without probabilities a
// stimulus scores 1 when predicted as target and 0 otherwise.
func (c *Classifier) group(X [][]float64, seq []int, proba bool) (model.Decision, error) {
	target, ok := c.trained.encoder.Index(c.cfg.TrainingClass)
	if !ok {
		return model.Decision{}, fmt.Errorf("training class %d was not seen during training", c.cfg.TrainingClass)
	}
	scores := make([]float64, len(X))
	if proba {
		p, err := c.trained.model.PredictProba(X)
		if err != nil {
			return model.Decision{}, fmt.Errorf("failed to predict probabilities: %w", err)
		}
		col := -1
		for j, class := range c.trained.model.Classes() {
			if class == target {
				col = j
			}
		}
		if col < 0 {
			return model.Decision{}, fmt.Errorf("model has no column for training class %d", c.cfg.TrainingClass)
		}
		for i, row := range p {
			scores[i] = row[col]
		}
		scores = stats.Softmax(scores)
	} else {
		pred, err := c.trained.model.Predict(X)
		if err != nil {
			return model.Decision{}, fmt.Errorf("failed to predict: %w", err)
		}
		for i, label := range pred {
			if label == target {
				scores[i] = 1
			}
		}
	}

	d := model.Decision{
		Sequence: append([]int(nil), seq...),
		Scores:   make(map[int]float64, len(seq)),
	}
	for i, code := range seq {
		scores[i] = stats.Round(scores[i], scorePlaces)
		d.Scores[code] = scores[i]
	}
	d.Class = stats.Argmax(scores) + 1
	d.Code = seq[d.Class-1]
	return d, nil
}

func (c *Classifier) publish(ctx context.Context, d model.Decision) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, d); err != nil {
		c.logger.Warn("failed to publish decision", model.DecisionKey, d.Class, model.ErrorKey, err)
	}
}
