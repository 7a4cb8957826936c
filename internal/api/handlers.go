package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/eventscout/eventscout/internal/ratelimit"
	"github.com/eventscout/eventscout/internal/scout"
	"github.com/eventscout/eventscout/internal/search"
)

type jobStatusResponse struct {
	Status string        `json:"status"`
	Events []scout.Event `json:"events,omitempty"`
	Total  *int          `json:"total,omitempty"`
	Error  string        `json:"error,omitempty"`
}

func (s *Server) submitSearch(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	identity := ratelimit.ClientIdentity(r)
	resp, verdict, err := s.orch.Search(r.Context(), identity, req)
	s.setRateHeaders(w, verdict)
	if err != nil {
		s.writeSearchError(w, err)
		return
	}

	if resp.JobID != "" {
		writeJSON(w, http.StatusAccepted, map[string]string{
			"job_id": resp.JobID,
			"status": string(resp.Status),
		})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := scout.SearchFilters{
		City:       q.Get("city"),
		EventType:  q.Get("event_type"),
		PriceTier:  q.Get("price_tier"),
		DateBucket: q.Get("date_bucket"),
	}
	if raw := q.Get("platforms"); raw != "" {
		filters.Platforms = strings.Split(raw, ",")
	}
	page := intParam(q.Get("page"), 1)
	limit := intParam(q.Get("limit"), 20)

	identity := ratelimit.ClientIdentity(r)
	result, verdict, err := s.orch.List(r.Context(), identity, filters, page, limit)
	s.setRateHeaders(w, verdict)
	if err != nil {
		s.writeSearchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, scout.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("load job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := jobStatusResponse{Status: string(job.Status)}
	switch job.Status {
	case scout.JobStatusCompleted:
		events, err := s.events.Search(r.Context(), scout.SearchFilters{
			Query: job.Query,
			City:  job.City,
			Limit: s.cfg.ResultCap,
		})
		if err != nil {
			s.logger.Error("load job results failed", zap.String("job_id", jobID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		resp.Events = events
		total := job.EventsScraped
		resp.Total = &total
	case scout.JobStatusFailed:
		resp.Error = job.ErrorText
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeSearchError maps orchestrator errors to responses, leaking no
// internal detail on unexpected failures.
func (s *Server) writeSearchError(w http.ResponseWriter, err error) {
	var limited *search.RateLimitedError
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "query must not be empty")
	case errors.As(err, &limited):
		retryAfter := limited.Result.RetryAfter(s.clock.Now())
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":       "rate limit exceeded",
			"retry_after": retryAfter,
		})
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// setRateHeaders stamps the limiter verdict on the response. A zero verdict
// means the limiter never ran (validation failure) and sets nothing.
func (s *Server) setRateHeaders(w http.ResponseWriter, verdict ratelimit.Result) {
	if verdict.Limit == 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(verdict.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(verdict.Remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", verdict.Reset.Unix()))
}

func intParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}
