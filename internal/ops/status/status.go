// Package status runs the dependency probes behind GET /status.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"sovren/internal/platform/metrics"
)

const defaultTimeout = 2 * time.Second

// CheckFunc reports a dependency's health. A nil error means reachable.
type CheckFunc func(ctx context.Context) error

// ServiceStatus is one dependency's entry in the report.
type ServiceStatus struct {
	OK        bool   `json:"ok"`
	LatencyMS *int64 `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Report is the /status body. OK is true only when every probe succeeded.
type Report struct {
	OK       bool                     `json:"ok"`
	Services map[string]ServiceStatus `json:"services"`
}

type probe struct {
	name  string
	check CheckFunc
}

// Checker probes every registered dependency concurrently, each under its own
// timeout. One failing probe never stops the others.
type Checker struct {
	mu      sync.RWMutex
	probes  []probe
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Checker)

func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Checker) { c.metrics = m }
}

func NewChecker(opts ...Option) *Checker {
	c := &Checker{timeout: defaultTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a probe. Registering a name twice replaces the earlier probe.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.probes {
		if c.probes[i].name == name {
			c.probes[i].check = check
			return
		}
	}
	c.probes = append(c.probes, probe{name: name, check: check})
}

// Names lists registered probes in sorted order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.probes))
	for _, p := range c.probes {
		names = append(names, p.name)
	}
	sort.Strings(names)
	return names
}

// Check runs all probes and assembles the report.
func (c *Checker) Check(ctx context.Context) Report {
	c.mu.RLock()
	probes := make([]probe, len(c.probes))
	copy(probes, c.probes)
	c.mu.RUnlock()

	results := make([]ServiceStatus, len(probes))
	var g errgroup.Group
	for i, p := range probes {
		g.Go(func() error {
			results[i] = c.run(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{OK: true, Services: make(map[string]ServiceStatus, len(probes))}
	for i, p := range probes {
		report.Services[p.name] = results[i]
		if !results[i].OK {
			report.OK = false
		}
	}
	return report
}

func (c *Checker) run(ctx context.Context, p probe) (st ServiceStatus) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			st = ServiceStatus{OK: false, Error: fmt.Sprintf("probe panicked: %v", r)}
		}
		if c.metrics != nil {
			c.metrics.ObserveProbe(p.name, st.OK, start)
		}
	}()

	if err := p.check(ctx); err != nil {
		c.logger.WarnContext(ctx, "status probe failed", "service", p.name, "error", err)
		return ServiceStatus{OK: false, Error: probeError(err)}
	}
	latency := time.Since(start).Milliseconds()
	return ServiceStatus{OK: true, LatencyMS: &latency}
}

func probeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return err.Error()
}

// HTTPCheck returns a probe that GETs url and expects a 2xx answer.
func HTTPCheck(client *http.Client, url string) CheckFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return nil
	}
}
