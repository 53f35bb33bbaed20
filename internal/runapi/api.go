// Package runapi exposes pipeline runs over HTTP.
package runapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/raven/internal/cfg"
	"github.com/linnemanlabs/raven/internal/pipeline"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// RunService defines the business operations runapi needs.
type RunService interface {
	Submit(ctx context.Context, req pipeline.RunRequest) (*pipeline.SubmitResult, error)
	Get(ctx context.Context, id string) (*pipeline.Run, bool, error)
	List(ctx context.Context, limit int) ([]*pipeline.Run, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    RunService
}

// New creates a new API handler.
func New(logger log.Logger, svc RunService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("run service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/runs", a.handleSubmitRun)
		r.Get("/runs", a.handleListRuns)
		r.Get("/runs/{id}", a.handleGetRun)
	})
}

type submitResponse struct {
	ID      string `json:"id"`
	Skipped bool   `json:"skipped,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// runSummary is the list view of a run, without the item lists.
type runSummary struct {
	ID          string              `json:"id"`
	Status      pipeline.RunStatus  `json:"status"`
	Request     pipeline.RunRequest `json:"request"`
	Summary     *pipeline.Summary   `json:"summary,omitempty"`
	Error       string              `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	CompletedAt time.Time           `json:"completed_at,omitempty"`
}

func (a *API) handleSubmitRun(w http.ResponseWriter, r *http.Request) {
	var req pipeline.RunRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validateRequest(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sr, err := a.svc.Submit(r.Context(), req)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to submit run")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("raven.run.id", sr.ID),
		attribute.Bool("raven.run.skipped", sr.Skipped),
	)

	status := http.StatusAccepted
	if sr.Skipped {
		status = http.StatusConflict
	}
	writeJSON(w, status, submitResponse{ID: sr.ID, Skipped: sr.Skipped, Reason: sr.Reason})
}

func (a *API) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("raven.run.id", id))

	run, ok, err := a.svc.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get run", "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	span.SetAttributes(attribute.String("raven.run.status", string(run.Status)))
	writeJSON(w, http.StatusOK, run)
}

func (a *API) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	runs, err := a.svc.List(r.Context(), limit)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to list runs")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]runSummary, 0, len(runs))
	for _, run := range runs {
		s := runSummary{
			ID:          run.ID,
			Status:      run.Status,
			Request:     run.Request,
			Error:       run.Error,
			CreatedAt:   run.CreatedAt,
			CompletedAt: run.CompletedAt,
		}
		if run.Report != nil {
			sum := run.Report.Summary
			s.Summary = &sum
		}
		out = append(out, s)
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func validateRequest(req pipeline.RunRequest) error {
	if req.MaxAgeDays < 0 || req.MaxAgeDays > cfg.MaxAgeDaysLimit {
		return fmt.Errorf("max_age_days must be between 1 and %d", cfg.MaxAgeDaysLimit)
	}
	if t := req.RelevanceThreshold; t != nil && (*t < 0 || *t > 1) {
		return errors.New("relevance_threshold must be between 0 and 1")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
