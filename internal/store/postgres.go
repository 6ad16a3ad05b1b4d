package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresArchive implements the Archive interface using pgx/v5.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

// NewPostgresArchive creates a new PostgresArchive.
func NewPostgresArchive(pool *pgxpool.Pool) *PostgresArchive {
	return &PostgresArchive{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresArchive) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RecordOutcome inserts o. A second outcome for the same job returns ErrDuplicateKey.
func (s *PostgresArchive) RecordOutcome(ctx context.Context, o *Outcome) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO job_outcomes (id, job_id, status, reason, model_count, created_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.JobID, o.Status, o.Reason, o.ModelCount, o.CreatedAt, o.FinishedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("record outcome: %w", err)
	}
	return nil
}

func (s *PostgresArchive) GetOutcome(ctx context.Context, jobID string) (*Outcome, error) {
	var o Outcome
	err := s.pool.QueryRow(ctx,
		`SELECT id, job_id, status, reason, model_count, created_at, finished_at
		 FROM job_outcomes WHERE job_id = $1`, jobID,
	).Scan(&o.ID, &o.JobID, &o.Status, &o.Reason, &o.ModelCount, &o.CreatedAt, &o.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get outcome: %w", err)
	}
	return &o, nil
}

// ListOutcomes returns the newest outcomes first.
func (s *PostgresArchive) ListOutcomes(ctx context.Context, filter OutcomeFilter) ([]*Outcome, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		conds = append(conds, fmt.Sprintf("finished_at >= $%d", len(args)))
	}

	query := `SELECT id, job_id, status, reason, model_count, created_at, finished_at FROM job_outcomes`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, filter.EffectiveLimit())
	query += fmt.Sprintf(" ORDER BY finished_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var out []*Outcome
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.ID, &o.JobID, &o.Status, &o.Reason, &o.ModelCount, &o.CreatedAt, &o.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Archive = (*PostgresArchive)(nil)
