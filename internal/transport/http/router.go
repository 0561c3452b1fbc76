package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sovren/internal/platform/metrics"
	"sovren/internal/platform/middleware"
	"sovren/pkg/platform/httputil"
	"sovren/pkg/platform/middleware/metadata"
	"sovren/pkg/platform/middleware/requesttime"
)

// TelephonyPrefix is where the telephony routes are mounted a second time.
const TelephonyPrefix = "/telephony"

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter wires the shared middleware chain, the operational routes at the
// root, and the telephony routes at both the root and TelephonyPrefix. The
// router holds no business logic.
func NewRouter(logger *slog.Logger, m *metrics.Metrics, ops, telephony Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Latency(m))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteFailure(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteFailure(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	ops.Register(r)
	telephony.Register(r)
	r.Route(TelephonyPrefix, telephony.Register)

	return r
}
