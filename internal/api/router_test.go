package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/eventpredict/internal/api"
	mw "github.com/kiranshivaraju/eventpredict/internal/api/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(deps api.Dependencies) http.Handler {
	if deps.HealthHandler == nil {
		deps.HealthHandler = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		}
	}
	return api.NewRouter(deps)
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)["code"].(string)
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router := newTestRouter(api.Dependencies{})

	req := httptest.NewRequest("GET", "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(mw.RequestIDHeader))
}

func TestRouter_UnwiredEndpoints_NotImplemented(t *testing.T) {
	router := newTestRouter(api.Dependencies{})

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/jobs"},
		{"POST", "/api/v1/jobs/abc"},
		{"GET", "/api/v1/jobs/abc"},
		{"GET", "/api/v1/outcomes"},
		{"GET", "/api/v1/outcomes/abc"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusNotImplemented, w.Code)
			assert.Equal(t, "NOT_IMPLEMENTED", errorCode(t, w))
		})
	}
}

func TestRouter_PassesJobIDParam(t *testing.T) {
	var got string
	router := newTestRouter(api.Dependencies{
		GetJobHandler: func(w http.ResponseWriter, r *http.Request) {
			got = chi.URLParam(r, "jobID")
			w.WriteHeader(http.StatusOK)
		},
	})

	req := httptest.NewRequest("GET", "/api/v1/jobs/0123456789abcdef0123456789abcdef", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", got)
}

func TestRouter_RateLimitAppliesToJobRoutes(t *testing.T) {
	router := newTestRouter(api.Dependencies{
		RateLimit: mw.NewRateLimit(nil, 1),
		GetJobHandler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/jobs/a", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/jobs/a", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Health is never limited.
	for i := 0; i < 3; i++ {
		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestRouter(api.Dependencies{})

	req := httptest.NewRequest("GET", "/api/v1/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	router := newTestRouter(api.Dependencies{})

	req := httptest.NewRequest("DELETE", "/api/v1/jobs/abc", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
