package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/eventpredict/internal/api/response"
	"github.com/kiranshivaraju/eventpredict/internal/store"
	"github.com/kiranshivaraju/eventpredict/pkg/models"
)

// NewListOutcomesHandler returns an http.HandlerFunc for GET /api/v1/outcomes.
// Query parameters: status (finished|failed), since (RFC3339), limit.
func NewListOutcomesHandler(archive store.Archive) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.OutcomeFilter{Status: q.Get("status")}

		if filter.Status != "" && !models.JobStatus(filter.Status).Terminal() {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "status must be a terminal job status", nil)
			return
		}
		if s := q.Get("since"); s != "" {
			since, err := time.Parse(time.RFC3339, s)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "since must be a valid RFC3339 timestamp", nil)
				return
			}
			filter.Since = since
		}
		if s := q.Get("limit"); s != "" {
			limit, err := strconv.Atoi(s)
			if err != nil || limit < 1 {
				response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer", nil)
				return
			}
			filter.Limit = limit
		}

		outcomes, err := archive.ListOutcomes(r.Context(), filter)
		if err != nil {
			slog.Error("list outcomes", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}
		if outcomes == nil {
			outcomes = []*store.Outcome{}
		}
		limit := filter.EffectiveLimit()
		response.List(w, outcomes, response.ListMeta{
			Limit:   limit,
			Count:   len(outcomes),
			HasMore: len(outcomes) == limit,
		})
	}
}

// NewGetOutcomeHandler returns an http.HandlerFunc for GET /api/v1/outcomes/{jobID}.
func NewGetOutcomeHandler(archive store.Archive) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		outcome, err := archive.GetOutcome(r.Context(), chi.URLParam(r, "jobID"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Outcome not found", nil)
				return
			}
			slog.Error("get outcome", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
			return
		}
		response.JSON(w, outcome)
	}
}
