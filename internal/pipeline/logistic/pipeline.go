// Package logistic scores rows with a linear model squashed through a sigmoid.
package logistic

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/kiranshivaraju/eventpredict/pkg/models"
)

const Name = "logistic"

// checkEvery is how many rows are scored between context checks.
const checkEvery = 1024

// classifier is the decoded model payload.
type classifier struct {
	Intercept float64            `json:"intercept"`
	Weights   map[string]float64 `json:"weights"`
}

// Pipeline implements models.Pipeline for logistic-regression classifiers.
type Pipeline struct{}

func New() *Pipeline {
	return &Pipeline{}
}

func (p *Pipeline) Name() string { return Name }

// Predict returns, for every row, the probability that the target label occurs.
func (p *Pipeline) Predict(ctx context.Context, frame *models.Frame, _ models.ModelConfig, payload []byte) ([]models.RowPrediction, error) {
	var clf classifier
	if err := json.Unmarshal(payload, &clf); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidClassifier, err)
	}
	if len(clf.Weights) == 0 {
		return nil, fmt.Errorf("%w: no weights", models.ErrInvalidClassifier)
	}

	idx := make(map[int]float64, len(clf.Weights))
	for col, w := range clf.Weights {
		i := frame.ColumnIndex(col)
		if i < 0 {
			return nil, fmt.Errorf("%w: %q", models.ErrMissingColumn, col)
		}
		idx[i] = w
	}

	out := make([]models.RowPrediction, frame.Len())
	for r, row := range frame.Rows {
		if r%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		z := clf.Intercept
		for i, w := range idx {
			z += w * row[i]
		}
		out[r] = models.RowPrediction{Time: frame.Times[r], Value: sigmoid(z)}
	}
	return out, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

var _ models.Pipeline = (*Pipeline)(nil)
