package store_test

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/eventpredict/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir returns the absolute path to the migrations directory.
func migrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("eventpredict_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	err = store.RunMigrations(connStr, migrationsDir())
	require.NoError(t, err)

	// Running twice is a no-op.
	require.NoError(t, store.RunMigrations(connStr, migrationsDir()))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func newOutcome(jobID, status string, finished time.Time) *store.Outcome {
	return &store.Outcome{
		ID:         uuid.New(),
		JobID:      jobID,
		Status:     status,
		ModelCount: 2,
		CreatedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}
}

func TestOutcome_RecordAndGet(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresArchive(setupTestDB(t))
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	reason := "execution unit crashed"
	o := newOutcome("job-a", "failed", now)
	o.Reason = &reason

	require.NoError(t, s.RecordOutcome(ctx, o))

	got, err := s.GetOutcome(ctx, "job-a")
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, "failed", got.Status)
	require.NotNil(t, got.Reason)
	assert.Equal(t, reason, *got.Reason)
	assert.Equal(t, 2, got.ModelCount)
	assert.True(t, now.Equal(got.FinishedAt))
}

func TestOutcome_DuplicateJob(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresArchive(setupTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.RecordOutcome(ctx, newOutcome("job-dup", "finished", now)))
	err := s.RecordOutcome(ctx, newOutcome("job-dup", "failed", now))
	assert.ErrorIs(t, err, store.ErrDuplicateKey)
}

func TestOutcome_GetNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresArchive(setupTestDB(t))

	_, err := s.GetOutcome(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOutcome_ListFiltersAndOrders(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := store.NewPostgresArchive(setupTestDB(t))
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, s.RecordOutcome(ctx, newOutcome("j1", "finished", base.Add(-3*time.Hour))))
	require.NoError(t, s.RecordOutcome(ctx, newOutcome("j2", "failed", base.Add(-2*time.Hour))))
	require.NoError(t, s.RecordOutcome(ctx, newOutcome("j3", "finished", base.Add(-1*time.Hour))))

	all, err := s.ListOutcomes(ctx, store.OutcomeFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "j3", all[0].JobID)
	assert.Equal(t, "j1", all[2].JobID)

	finished, err := s.ListOutcomes(ctx, store.OutcomeFilter{Status: "finished"})
	require.NoError(t, err)
	require.Len(t, finished, 2)

	recent, err := s.ListOutcomes(ctx, store.OutcomeFilter{Since: base.Add(-150 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, recent, 2)

	limited, err := s.ListOutcomes(ctx, store.OutcomeFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "j3", limited[0].JobID)
}

func TestNopArchive(t *testing.T) {
	var a store.Archive = store.NopArchive{}
	ctx := context.Background()

	assert.NoError(t, a.Ping(ctx))
	assert.NoError(t, a.RecordOutcome(ctx, newOutcome("x", "finished", time.Now())))
	_, err := a.GetOutcome(ctx, "x")
	assert.ErrorIs(t, err, store.ErrNotFound)
	list, err := a.ListOutcomes(ctx, store.OutcomeFilter{})
	assert.NoError(t, err)
	assert.Empty(t, list)
}
