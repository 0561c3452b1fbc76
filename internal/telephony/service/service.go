package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"sovren/internal/audit"
	"sovren/internal/platform/metrics"
	"sovren/internal/telephony/models"
	"sovren/internal/telephony/token"
)

// MappingStore is the mapping repository. FindByDID returns
// sentinel.ErrNotFound for an unknown DID.
type MappingStore interface {
	FindByDID(ctx context.Context, did string) (models.Mapping, error)
	Upsert(ctx context.Context, did, persona, cnam string) (models.Mapping, error)
	Delete(ctx context.Context, did string) (bool, error)
}

// TokenSigner mints the assertion for a resolved mapping.
type TokenSigner interface {
	Sign(m models.Mapping, now time.Time) (token.Issued, error)
}

// UnitOfWork runs fn inside a single transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// AuditPublisher receives mapping change events after they commit.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

const tracerName = "sovren/telephony"

type options struct {
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	tx             UnitOfWork
	auditPublisher AuditPublisher
}

// Option configures a Resolver or Admin service.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithUnitOfWork wraps every mutation in a transaction.
func WithUnitOfWork(tx UnitOfWork) Option {
	return func(o *options) { o.tx = tx }
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(o *options) { o.auditPublisher = p }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(tracerName)
	}
	if o.tx == nil {
		o.tx = directTx{}
	}
	return o
}

// directTx runs fn without a transaction, for stores that commit per call.
type directTx struct{}

func (directTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
