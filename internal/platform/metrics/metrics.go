package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Resolve outcomes.
const (
	OutcomeResolved      = "resolved"
	OutcomeNotMapped     = "not_mapped"
	OutcomeSigningFailed = "signing_failed"
	OutcomeError         = "error"
)

// Metrics holds all Prometheus metrics for the application. Each instance owns
// its registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	Requests        prometheus.Counter
	Resolutions     *prometheus.CounterVec
	AdminMutations  *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	ProbeDuration   *prometheus.HistogramVec
	RequestDuration *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Requests: factory.NewCounter(prometheus.CounterOpts{
			Name: "sovren_requests_total",
			Help: "Total number of requests to Sovren backend",
		}),
		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sovren_resolve_total",
			Help: "DID resolutions by outcome",
		}, []string{"outcome"}),
		AdminMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sovren_admin_mutations_total",
			Help: "Admin mapping mutations by operation and result",
		}, []string{"op", "result"}),
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sovren_mapping_cache_lookups_total",
			Help: "Mapping cache lookups by result (hit, miss, error, bypass)",
		}, []string{"result"}),
		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "sovren_mapping_events_dropped_total",
			Help: "Mapping change events dropped because the publish queue was full",
		}),
		ProbeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sovren_status_probe_duration_seconds",
			Help:    "Duration of /status dependency probes",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}, []string{"service", "ok"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sovren_http_request_duration_seconds",
			Help:    "HTTP request latency by route, method and status",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"route", "method", "status"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// IncrementRequests counts a liveness request.
func (m *Metrics) IncrementRequests() {
	m.Requests.Inc()
}

// IncrementResolution records a resolve outcome.
func (m *Metrics) IncrementResolution(outcome string) {
	m.Resolutions.WithLabelValues(outcome).Inc()
}

// IncrementAdminMutation records an admin upsert or delete.
func (m *Metrics) IncrementAdminMutation(op, result string) {
	m.AdminMutations.WithLabelValues(op, result).Inc()
}

// IncrementCacheLookup records the result of one mapping cache lookup.
func (m *Metrics) IncrementCacheLookup(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}

// IncrementEventsDropped counts a change event lost to back-pressure.
func (m *Metrics) IncrementEventsDropped() {
	m.EventsDropped.Inc()
}

// ObserveProbe records the duration of one status probe.
// Call with time.Now() at the start of the probe.
func (m *Metrics) ObserveProbe(service string, ok bool, start time.Time) {
	label := "false"
	if ok {
		label = "true"
	}
	m.ProbeDuration.WithLabelValues(service, label).Observe(time.Since(start).Seconds())
}

// ObserveRequest records the duration of one HTTP request.
func (m *Metrics) ObserveRequest(route, method, status string, d time.Duration) {
	m.RequestDuration.WithLabelValues(route, method, status).Observe(d.Seconds())
}
