// Package handler implements the HTTP endpoints of the prediction service.
package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/eventpredict/internal/api/response"
	"github.com/kiranshivaraju/eventpredict/internal/jobs"
	"github.com/kiranshivaraju/eventpredict/pkg/models"
)

// JobService is the part of the dispatcher the job endpoints need.
type JobService interface {
	Create(ctx context.Context, req models.CreateJobRequest) (string, error)
	AddDataSource(ctx context.Context, id, path string) error
	GetJob(ctx context.Context, id string) (models.JobView, error)
}

// ArtifactStore persists uploaded data sources.
type ArtifactStore interface {
	Save(ctx context.Context, r io.Reader) (string, error)
	Remove(path string) error
}

type createJobResponse struct {
	ID string `json:"id"`
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewCreateJobHandler(svc JobService, maxBodyBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.CreateJobRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large", nil)
				return
			}
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		id, err := svc.Create(r.Context(), req)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.Created(w, createJobResponse{ID: id})
	}
}

// NewAddDataSourceHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}.
// The raw request body is the job's CSV data source.
func NewAddDataSourceHandler(svc JobService, artifacts ArtifactStore, maxUploadBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobID")

		// Reject early so unwanted uploads are never written to disk.
		view, err := svc.GetJob(r.Context(), id)
		if err != nil {
			writeJobError(w, err)
			return
		}
		if view.Status != models.JobStatusNoData {
			response.Error(w, http.StatusConflict, "CONFLICT", "Job already has a data source", nil)
			return
		}
		// Peek so chunked uploads with no content are caught as well.
		body := bufio.NewReader(http.MaxBytesReader(w, r.Body, maxUploadBytes))
		if _, err := body.Peek(1); err != nil {
			if errors.Is(err, io.EOF) {
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Request body is empty", nil)
				return
			}
			writeUploadError(w, id, err)
			return
		}

		path, err := artifacts.Save(r.Context(), body)
		if err != nil {
			writeUploadError(w, id, err)
			return
		}
		if err := svc.AddDataSource(r.Context(), id, path); err != nil {
			if rmErr := artifacts.Remove(path); rmErr != nil {
				slog.Error("remove rejected data source", "job_id", id, "path", path, "error", rmErr)
			}
			writeJobError(w, err)
			return
		}

		view, err = svc.GetJob(r.Context(), id)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.Accepted(w, view)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.GetJob(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, view)
	}
}

func writeUploadError(w http.ResponseWriter, id string, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		response.Error(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Data source too large", nil)
		return
	}
	slog.Error("save data source", "job_id", id, "error", err)
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
}

func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrValidation):
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, jobs.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Job not found", nil)
	case errors.Is(err, jobs.ErrConflict):
		response.Error(w, http.StatusConflict, "CONFLICT", "Job already has a data source", nil)
	default:
		slog.Error("job request failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}
