package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sovren/internal/platform/metrics"
	"sovren/internal/telephony/models"
	dErrors "sovren/pkg/domain-errors"
	"sovren/pkg/platform/sentinel"
	"sovren/pkg/requestcontext"
)

// Resolver turns a DID into a signed assertion.
//
// An unknown DID and a signing failure are outcomes, not errors: both come back
// as *models.Unresolved. The error return is reserved for storage faults.
type Resolver struct {
	store   MappingStore
	signer  TokenSigner
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func NewResolver(store MappingStore, signer TokenSigner, opts ...Option) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("mapping store is required")
	}
	if signer == nil {
		return nil, errors.New("token signer is required")
	}
	o := buildOptions(opts)
	return &Resolver{
		store:   store,
		signer:  signer,
		logger:  o.logger,
		metrics: o.metrics,
		tracer:  o.tracer,
	}, nil
}

// Resolve looks up did and, when mapped, signs {did, persona, cnam, iat, exp}
// with iat taken from the request clock.
func (r *Resolver) Resolve(ctx context.Context, did string) (models.Resolution, error) {
	ctx, span := r.tracer.Start(ctx, "telephony.Resolve")
	defer span.End()

	if did == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "did is required")
	}

	mapping, err := r.store.FindByDID(ctx, did)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			r.observe(span, metrics.OutcomeNotMapped)
			return models.NewNotMapped(), nil
		}
		r.observe(span, metrics.OutcomeError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up did")
	}

	issued, err := r.signer.Sign(mapping, requestcontext.Now(ctx))
	if err != nil {
		r.logger.ErrorContext(ctx, "token signing failed",
			"did", did,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		r.observe(span, metrics.OutcomeSigningFailed)
		span.RecordError(err)
		return models.NewSigningFailed(err), nil
	}

	r.observe(span, metrics.OutcomeResolved)
	return &models.Resolved{
		DID:       mapping.DID,
		Persona:   mapping.Persona,
		CNAM:      mapping.CNAM,
		Token:     issued.Token,
		IssuedAt:  issued.IssuedAt,
		ExpiresAt: issued.ExpiresAt,
	}, nil
}

func (r *Resolver) observe(span trace.Span, outcome string) {
	span.SetAttributes(attribute.String("resolve.outcome", outcome))
	if r.metrics != nil {
		r.metrics.IncrementResolution(outcome)
	}
}
