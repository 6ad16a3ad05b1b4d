// Package worker implements the body of one execution unit: it runs every model
// of a job through the pipeline and folds the outcome into a final job snapshot.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/eventpredict/pkg/models"
)

// ErrPipeline marks failures raised while decoding or running a model.
var ErrPipeline = errors.New("pipeline failure")

// Run executes job against p and returns the terminal snapshot.
// It never returns an error: any failure is recorded on the job as status
// failed with a reason, and the remaining models are skipped.
func Run(ctx context.Context, job models.Job, p models.Pipeline) (out models.Job) {
	job.Status = models.JobStatusRunning
	job.Result = nil
	job.Reason = nil

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in execution unit", "error", r, "job_id", job.ID)
			reason := fmt.Sprintf("panic: %v", r)
			out = job
			out.Status = models.JobStatusFailed
			out.Result = nil
			out.Reason = &reason
		}
	}()

	result, err := predict(ctx, job, p)
	if err != nil {
		reason := err.Error()
		job.Status = models.JobStatusFailed
		job.Reason = &reason
		slog.Error("job failed", "job_id", job.ID, "error", err)
		return job
	}

	job.Status = models.JobStatusFinished
	job.Result = result
	slog.Info("job finished", "job_id", job.ID, "targets", result.Len())
	return job
}

func predict(ctx context.Context, job models.Job, p models.Pipeline) (*models.ResultSet, error) {
	if job.DataSource == nil {
		return nil, fmt.Errorf("%w: job has no data source", ErrPipeline)
	}
	result := models.NewResultSet()
	for i, m := range job.Models {
		pred, cfg, err := runModel(ctx, *job.DataSource, job.SortedData, m, p)
		if err != nil {
			return nil, fmt.Errorf("%w: model %d (%s): %w", ErrPipeline, i, m.ID, err)
		}
		result.Append(cfg.TargetCol, pred)
	}
	return result, nil
}

func runModel(ctx context.Context, dataSource string, sorted bool, m models.Model, p models.Pipeline) (models.Prediction, models.ModelConfig, error) {
	cfg, err := models.ParseModelConfig(m.Config)
	if err != nil {
		return models.Prediction{}, cfg, err
	}
	clf, err := DecodeClassifier(m.Data)
	if err != nil {
		return models.Prediction{}, cfg, err
	}
	frame, err := LoadFrame(dataSource, m, sorted)
	if err != nil {
		return models.Prediction{}, cfg, err
	}
	if err := ctx.Err(); err != nil {
		return models.Prediction{}, cfg, err
	}

	rows, err := p.Predict(ctx, frame, cfg, clf)
	if err != nil {
		return models.Prediction{}, cfg, fmt.Errorf("%s: %w", p.Name(), err)
	}
	slog.Debug("model scored", "model_id", m.ID, "target", cfg.TargetCol, "rows", len(rows))
	return models.Prediction{Target: cfg.TargetErrorCode, Result: rows}, cfg, nil
}
