// Package handler serves the operational endpoints: liveness, metrics and
// dependency status.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sovren/internal/ops/status"
	"sovren/internal/platform/metrics"
	"sovren/pkg/platform/httputil"
)

// StatusChecker probes dependencies for /status.
type StatusChecker interface {
	Check(ctx context.Context) status.Report
}

type Handler struct {
	metrics *metrics.Metrics
	checker StatusChecker
}

func New(m *metrics.Metrics, checker StatusChecker) *Handler {
	return &Handler{metrics: m, checker: checker}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	r.Get("/status", h.HandleStatus)
}

type healthResponse struct {
	OK bool `json:"ok"`
}

// HandleHealth always answers {ok:true} and counts the call.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	h.metrics.IncrementRequests()
	httputil.WriteJSON(w, http.StatusOK, healthResponse{OK: true})
}

// HandleStatus reports every dependency; 200 when all are up, 500 otherwise.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	report := h.checker.Check(r.Context())
	code := http.StatusOK
	if !report.OK {
		code = http.StatusInternalServerError
	}
	httputil.WriteJSON(w, code, report)
}
