// Package store archives terminal job outcomes for audit. The archive is
// write-mostly; nothing in it is ever loaded back into the live job table.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Outcome is the archived summary of one job that reached a terminal state.
type Outcome struct {
	ID         uuid.UUID `json:"id"`
	JobID      string    `json:"job_id"`
	Status     string    `json:"status"`
	Reason     *string   `json:"reason,omitempty"`
	ModelCount int       `json:"model_count"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Archive is the data access interface for job outcomes.
type Archive interface {
	Ping(ctx context.Context) error
	RecordOutcome(ctx context.Context, o *Outcome) error
	GetOutcome(ctx context.Context, jobID string) (*Outcome, error)
	ListOutcomes(ctx context.Context, filter OutcomeFilter) ([]*Outcome, error)
}

type OutcomeFilter struct {
	Status string
	Since  time.Time
	Limit  int
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// EffectiveLimit is the row cap ListOutcomes applies.
func (f OutcomeFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	default:
		return f.Limit
	}
}
