// Package threshold flags rows whose rolling mean of one column crosses a limit.
package threshold

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kiranshivaraju/eventpredict/pkg/models"
)

const Name = "threshold"

type classifier struct {
	Column    string  `json:"column"`
	Threshold float64 `json:"threshold"`
	Window    int     `json:"window"`
}

// Pipeline implements models.Pipeline for rule-based threshold classifiers.
// Rows are expected in time order; the window trails each row.
type Pipeline struct{}

func New() *Pipeline {
	return &Pipeline{}
}

func (p *Pipeline) Name() string { return Name }

// Predict emits 1 for rows whose trailing mean is at or above the threshold, else 0.
func (p *Pipeline) Predict(ctx context.Context, frame *models.Frame, _ models.ModelConfig, payload []byte) ([]models.RowPrediction, error) {
	var clf classifier
	if err := json.Unmarshal(payload, &clf); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidClassifier, err)
	}
	if clf.Column == "" {
		return nil, fmt.Errorf("%w: column is required", models.ErrInvalidClassifier)
	}
	if clf.Window <= 0 {
		clf.Window = 1
	}
	col := frame.ColumnIndex(clf.Column)
	if col < 0 {
		return nil, fmt.Errorf("%w: %q", models.ErrMissingColumn, clf.Column)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]models.RowPrediction, frame.Len())
	var sum float64
	for r, row := range frame.Rows {
		sum += row[col]
		n := r + 1
		if r >= clf.Window {
			sum -= frame.Rows[r-clf.Window][col]
			n = clf.Window
		}
		value := 0.0
		if sum/float64(n) >= clf.Threshold {
			value = 1
		}
		out[r] = models.RowPrediction{Time: frame.Times[r], Value: value}
	}
	return out, nil
}

var _ models.Pipeline = (*Pipeline)(nil)
