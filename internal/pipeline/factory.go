// Package pipeline selects the analysis pipeline the execution units run.
package pipeline

import (
	"fmt"

	"github.com/kiranshivaraju/eventpredict/internal/pipeline/logistic"
	"github.com/kiranshivaraju/eventpredict/internal/pipeline/threshold"
	"github.com/kiranshivaraju/eventpredict/pkg/models"
)

// Names lists the pipelines New understands.
var Names = []string{logistic.Name, threshold.Name}

// New constructs the pipeline registered under name.
// Called once per execution unit.
func New(name string) (models.Pipeline, error) {
	switch name {
	case logistic.Name:
		return logistic.New(), nil
	case threshold.Name:
		return threshold.New(), nil
	default:
		return nil, fmt.Errorf("unknown pipeline %q: must be one of %v", name, Names)
	}
}
