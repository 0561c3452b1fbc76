package httptransport

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	opshandler "sovren/internal/ops/handler"
	"sovren/internal/ops/status"
	"sovren/internal/platform/metrics"
	"sovren/internal/platform/middleware"
	telhandler "sovren/internal/telephony/handler"
	"sovren/internal/telephony/models"
	"sovren/internal/telephony/service"
	"sovren/internal/telephony/store/mapping"
	"sovren/internal/telephony/token"
	reqtestutil "sovren/pkg/testutil"
)

func newTestRouter(t *testing.T) (http.Handler, *metrics.Metrics) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New()
	store := mapping.NewInMemoryWith(models.Mapping{DID: "15306885012", Persona: "CFO", CNAM: "COVREN CFO"})
	signer := token.NewSigner("test-secret", "HS256", 5*time.Minute, "")

	resolver, err := service.NewResolver(store, signer, service.WithLogger(logger), service.WithMetrics(m))
	require.NoError(t, err)
	admin, err := service.NewAdmin(store, service.WithLogger(logger), service.WithMetrics(m))
	require.NoError(t, err)

	router := NewRouter(logger, m,
		opshandler.New(m, status.NewChecker()),
		telhandler.New(resolver, admin, "admin-secret", logger),
	)
	return router, m
}

func TestTelephonyRoutesAreMountedTwice(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, prefix := range []string{"", TelephonyPrefix} {
		t.Run("prefix "+prefix, func(t *testing.T) {
			rr := reqtestutil.DoRequest(router, reqtestutil.NewQueryRequest(t, http.MethodGet, prefix+"/resolve", map[string]string{"did": "15306885012"}))
			reqtestutil.AssertStatus(t, rr, http.StatusOK)

			rr = reqtestutil.DoRequest(router, reqtestutil.NewQueryRequest(t, http.MethodGet, prefix+"/resolve", map[string]string{"did": "19999999999"}))
			reqtestutil.AssertFailure(t, rr, http.StatusNotFound, "DID not mapped")

			rr = reqtestutil.DoRequest(router, reqtestutil.NewQueryRequest(t, http.MethodPost, prefix+"/admin/map", map[string]string{"did": "1"}))
			reqtestutil.AssertFailure(t, rr, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func TestOpsRoutesStayAtRoot(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := reqtestutil.DoRequest(router, reqtestutil.NewRequest(t, http.MethodGet, "/health"))
	reqtestutil.AssertStatus(t, rr, http.StatusOK)

	rr = reqtestutil.DoRequest(router, reqtestutil.NewRequest(t, http.MethodGet, "/status"))
	reqtestutil.AssertStatus(t, rr, http.StatusOK)

	rr = reqtestutil.DoRequest(router, reqtestutil.NewRequest(t, http.MethodGet, TelephonyPrefix+"/health"))
	reqtestutil.AssertFailure(t, rr, http.StatusNotFound, "not found")
}

func TestUnknownRouteAndMethod(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := reqtestutil.DoRequest(router, reqtestutil.NewRequest(t, http.MethodGet, "/nope"))
	reqtestutil.AssertFailure(t, rr, http.StatusNotFound, "not found")

	rr = reqtestutil.DoRequest(router, reqtestutil.NewRequest(t, http.MethodPut, "/resolve"))
	reqtestutil.AssertFailure(t, rr, http.StatusMethodNotAllowed, "method not allowed")
}

func TestRequestIDIsEchoed(t *testing.T) {
	router, _ := newTestRouter(t)

	req := reqtestutil.NewRequest(t, http.MethodGet, "/health")
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	rr := reqtestutil.DoRequest(router, req)
	assert.Equal(t, "abc-123", rr.Header().Get(middleware.RequestIDHeader))

	rr = reqtestutil.DoRequest(router, reqtestutil.NewRequest(t, http.MethodGet, "/health"))
	assert.NotEmpty(t, rr.Header().Get(middleware.RequestIDHeader))
}

func TestResolveOutcomesAreCounted(t *testing.T) {
	router, m := newTestRouter(t)

	reqtestutil.DoRequest(router, reqtestutil.NewQueryRequest(t, http.MethodGet, "/resolve", map[string]string{"did": "15306885012"}))
	reqtestutil.DoRequest(router, reqtestutil.NewQueryRequest(t, http.MethodGet, "/telephony/resolve", map[string]string{"did": "19999999999"}))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Resolutions.WithLabelValues(metrics.OutcomeResolved)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Resolutions.WithLabelValues(metrics.OutcomeNotMapped)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.RequestDuration), "one series per route pattern")
}
