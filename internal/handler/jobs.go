package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"restopos-backend/internal/apperr"
	"restopos-backend/internal/ports"
)

// JobsHandler runs scheduled jobs on demand, for Cloud Scheduler style
// callers and operators.
type JobsHandler struct {
	Runner ports.JobRunner
	Logger *slog.Logger
}

func (h JobsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/jobs", h.list)
	r.Post("/jobs/{name}", h.run)
}

func (h JobsHandler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Runner.Jobs())
}

func (h JobsHandler) run(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	started := time.Now()
	err := h.Runner.RunJob(r.Context(), name)
	switch {
	case errors.Is(err, ports.ErrUnknownJob):
		writeError(w, apperr.NotFound, "unknown job "+name)
		return
	case err != nil:
		h.Logger.Error("on-demand job failed", "job", name, "err", err)
		writeError(w, apperr.Internal, "job "+name+" failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job":        name,
		"durationMs": time.Since(started).Milliseconds(),
	})
}
