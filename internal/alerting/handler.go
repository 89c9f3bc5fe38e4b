package alerting

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stackalert/stackalert/internal/pkg/ctxlog"
	"github.com/stackalert/stackalert/internal/pkg/httputil"
	"github.com/stackalert/stackalert/internal/statuspage"
)

// PassRunner runs one full poll pass. Implemented by Pipeline; an
// interface so the handler can be tested without the real pipeline.
type PassRunner interface {
	Run(ctx context.Context, services []statuspage.Service) (*RunSummary, error)
}

// Handler exposes the poll trigger endpoint consumed by an external
// scheduler.
type Handler struct {
	runner   PassRunner
	services []statuspage.Service
}

// NewHandler creates the trigger handler.
func NewHandler(runner PassRunner, services []statuspage.Service) *Handler {
	return &Handler{runner: runner, services: services}
}

// RegisterRoutes registers trigger routes. The caller wraps them in the
// shared-secret auth middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/poll", h.TriggerPoll)
}

// TriggerPoll handles POST /poll: runs one pass over all configured
// services and returns the best-effort summary. Per-service failures are
// counted in the summary, not turned into a 500; only a failure before any
// processing begins is an internal error.
func (h *Handler) TriggerPoll(w http.ResponseWriter, r *http.Request) {
	summary, err := h.runner.Run(r.Context(), h.services)
	if err != nil {
		ctxlog.FromContext(r.Context()).Error("poll pass failed", "error", err)
		httputil.JSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	if summary.DetectedEvents == nil {
		summary.DetectedEvents = []EventSummary{}
	}
	httputil.JSON(w, http.StatusOK, summary)
}
