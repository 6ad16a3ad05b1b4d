package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kiranshivaraju/eventpredict/internal/cache"
	"github.com/kiranshivaraju/eventpredict/internal/config"
	"github.com/kiranshivaraju/eventpredict/internal/jobs"
	"github.com/kiranshivaraju/eventpredict/internal/store"
	"github.com/kiranshivaraju/eventpredict/internal/worker"
	"github.com/kiranshivaraju/eventpredict/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── mocks ───────────────────────────────────────────────────────────────────

type testArchive struct {
	store.NopArchive
	pingErr error
}

func (a *testArchive) Ping(_ context.Context) error { return a.pingErr }

type testCache struct {
	cache.NopCache
	pingErr error
}

func (c *testCache) Ping(_ context.Context) error { return c.pingErr }

type fixedStats jobs.Stats

func (s fixedStats) Stats() jobs.Stats { return jobs.Stats(s) }

func sampleStats() fixedStats {
	return fixedStats{
		Queued:  1,
		Active:  2,
		MaxJobs: 2,
		Jobs:    map[models.JobStatus]int{models.JobStatusRunning: 2, models.JobStatusPending: 1},
	}
}

// ─── health ──────────────────────────────────────────────────────────────────

func TestHealthHandler_AllOK(t *testing.T) {
	h := healthHandler(sampleStats(), &testArchive{}, &testCache{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Status   string            `json:"status"`
			Services map[string]string `json:"services"`
			Jobs     struct {
				Queued int            `json:"queued"`
				Active int            `json:"active"`
				Jobs   map[string]int `json:"jobs"`
			} `json:"jobs"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Data.Status)
	assert.Equal(t, "ok", body.Data.Services["archive"])
	assert.Equal(t, "ok", body.Data.Services["cache"])
	assert.Equal(t, 1, body.Data.Jobs.Queued)
	assert.Equal(t, 2, body.Data.Jobs.Active)
	assert.Equal(t, 2, body.Data.Jobs.Jobs["running"])
}

func TestHealthHandler_Disabled(t *testing.T) {
	h := healthHandler(sampleStats(), store.NopArchive{}, cache.NopCache{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	services := body["data"].(map[string]any)["services"].(map[string]any)
	assert.Equal(t, "disabled", services["archive"])
	assert.Equal(t, "disabled", services["cache"])
}

func TestHealthHandler_Degraded(t *testing.T) {
	tests := []struct {
		name    string
		archive store.Archive
		cache   cache.Cache
		failing string
	}{
		{"archive down", &testArchive{pingErr: errors.New("connection refused")}, &testCache{}, "archive"},
		{"cache down", &testArchive{}, &testCache{pingErr: errors.New("connection refused")}, "cache"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := healthHandler(sampleStats(), tt.archive, tt.cache)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

			assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "DEGRADED", errObj["code"])
			details := errObj["details"].(map[string]any)
			assert.Equal(t, "degraded", details[tt.failing])
		})
	}
}

// ─── logging ─────────────────────────────────────────────────────────────────

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

// ─── commands ────────────────────────────────────────────────────────────────

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	unit, _, err := root.Find([]string{"unit"})
	require.NoError(t, err)
	assert.True(t, unit.Hidden)
	flag := unit.Flags().Lookup("pipeline")
	require.NotNil(t, flag)
	assert.Equal(t, "logistic", flag.DefValue)

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", serve.Name())

	submit, _, err := root.Find([]string{"submit"})
	require.NoError(t, err)
	assert.NotNil(t, submit.Flags().Lookup("models"))
	assert.NotNil(t, submit.Flags().Lookup("data"))
}

func TestRunUnit_ProducesTerminalSnapshot(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(csvPath,
		[]byte("time,temp\n2024-01-01T00:00:00Z,20\n2024-01-01T00:01:00Z,25\n"), 0o600))

	clf, err := worker.EncodeClassifier([]byte(`{"intercept":0,"weights":{"temp":0}}`))
	require.NoError(t, err)
	job := models.Job{
		ID:         "0123456789abcdef0123456789abcdef",
		Created:    time.Now().UTC().Format(models.CreatedLayout),
		Status:     models.JobStatusRunning,
		DataSource: &csvPath,
		Models: []models.Model{{
			ID:     "m1",
			Config: json.RawMessage(`{"target_col":"temp","target_errorCode":"E1"}`),
			Data:   clf,
		}},
	}
	in, err := json.Marshal(job)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, runUnit(context.Background(), "logistic", bytes.NewReader(in), &out))

	var final models.Job
	require.NoError(t, json.Unmarshal(out.Bytes(), &final))
	assert.Equal(t, job.ID, final.ID)
	assert.Equal(t, models.JobStatusFinished, final.Status)
	require.NotNil(t, final.Result)
	preds := final.Result.Get("temp")
	require.Len(t, preds, 1)
	assert.Equal(t, "E1", preds[0].Target)
	assert.Len(t, preds[0].Result, 2)
}

func TestRunUnit_UnknownPipeline(t *testing.T) {
	err := runUnit(context.Background(), "xgboost", strings.NewReader("{}"), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown pipeline")
}

func TestRunUnit_BadInput(t *testing.T) {
	var out bytes.Buffer
	err := runUnit(context.Background(), "logistic", strings.NewReader("not json"), &out)
	require.Error(t, err)
	assert.Empty(t, out.String())
}

func TestOpenBackends_DisabledWithoutURLs(t *testing.T) {
	a, closeArchive, err := openArchive(context.Background(), config.DatabaseConfig{})
	require.NoError(t, err)
	defer closeArchive()
	assert.Equal(t, store.NopArchive{}, a)

	c, err := openCache(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Equal(t, cache.NopCache{}, c)
}

func TestOpenCache_InvalidURL(t *testing.T) {
	_, err := openCache(context.Background(), config.RedisConfig{URL: "redis://:@localhost:notaport"})
	require.Error(t, err)
}
