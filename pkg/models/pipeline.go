// Package models contains shared data models used across the eventpredict codebase.
package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Pipeline is the single inference entry point every analysis pipeline implements.
// Workers receive it by injection and never name a concrete pipeline.
type Pipeline interface {
	// Predict scores every row of frame with the decoded classifier.
	Predict(ctx context.Context, frame *Frame, cfg ModelConfig, classifier []byte) ([]RowPrediction, error)
	// Name returns the pipeline identifier (e.g., "logistic").
	Name() string
}

// ModelConfig is the part of Model.Config the worker itself understands.
// Pipelines may read more from Raw.
type ModelConfig struct {
	TargetCol       string          `json:"target_col"`
	TargetErrorCode string          `json:"target_errorCode"`
	Raw             json.RawMessage `json:"-"`
}

// ParseModelConfig decodes raw and checks that a target column and label are present.
func ParseModelConfig(raw json.RawMessage) (ModelConfig, error) {
	var cfg ModelConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return ModelConfig{}, fmt.Errorf("decode model config: %w", err)
	}
	if cfg.TargetCol == "" {
		return ModelConfig{}, fmt.Errorf("model config: target_col is required")
	}
	if cfg.TargetErrorCode == "" {
		return ModelConfig{}, fmt.Errorf("model config: target_errorCode is required")
	}
	cfg.Raw = raw
	return cfg, nil
}

// Frame is a loaded tabular data source: one timestamp and one numeric value
// per column for every row.
type Frame struct {
	Columns []string
	Times   []time.Time
	Rows    [][]float64
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// ColumnIndex returns the position of name in Columns, or -1.
func (f *Frame) ColumnIndex(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

var (
	// ErrInvalidClassifier means the decoded classifier payload is not usable by the pipeline.
	ErrInvalidClassifier = errors.New("invalid classifier")
	// ErrMissingColumn means the frame lacks a column the classifier needs.
	ErrMissingColumn = errors.New("missing column")
)
