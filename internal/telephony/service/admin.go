package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sovren/internal/audit"
	"sovren/internal/platform/metrics"
	"sovren/internal/telephony/models"
	dErrors "sovren/pkg/domain-errors"
	"sovren/pkg/requestcontext"
)

const (
	opUpsert = "upsert"
	opDelete = "delete"

	resultOK       = "ok"
	resultNotFound = "not_found"
	resultInvalid  = "invalid"
	resultError    = "error"
)

// Admin applies authorized mapping mutations. Authorization happens in the
// transport layer; by the time a call reaches Admin the caller is trusted.
type Admin struct {
	store          MappingStore
	tx             UnitOfWork
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	auditPublisher AuditPublisher
}

func NewAdmin(store MappingStore, opts ...Option) (*Admin, error) {
	if store == nil {
		return nil, errors.New("mapping store is required")
	}
	o := buildOptions(opts)
	return &Admin{
		store:          store,
		tx:             o.tx,
		logger:         o.logger,
		metrics:        o.metrics,
		tracer:         o.tracer,
		auditPublisher: o.auditPublisher,
	}, nil
}

// UpsertMapping creates the mapping for did or overwrites its persona and
// cnam, returning the stored row. Concurrent upserts of one DID are last
// writer wins.
func (a *Admin) UpsertMapping(ctx context.Context, did, persona, cnam string) (models.Mapping, error) {
	ctx, span := a.tracer.Start(ctx, "telephony.UpsertMapping", trace.WithAttributes(attribute.String("did", did)))
	defer span.End()

	if err := validateMapping(did, persona, cnam); err != nil {
		a.record(span, opUpsert, resultInvalid, err)
		return models.Mapping{}, err
	}

	var saved models.Mapping
	err := a.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		saved, err = a.store.Upsert(txCtx, did, persona, cnam)
		return err
	})
	if err != nil {
		a.record(span, opUpsert, resultError, err)
		return models.Mapping{}, storeError(err, "failed to save mapping")
	}

	a.record(span, opUpsert, resultOK, nil)
	a.emit(ctx, audit.Event{
		Action:  audit.ActionMappingUpserted,
		DID:     saved.DID,
		Persona: saved.Persona,
		CNAM:    saved.CNAM,
	})
	return saved, nil
}

// DeleteMapping removes the mapping for did. Deleting an unknown DID reports
// false without error.
func (a *Admin) DeleteMapping(ctx context.Context, did string) (bool, error) {
	ctx, span := a.tracer.Start(ctx, "telephony.DeleteMapping", trace.WithAttributes(attribute.String("did", did)))
	defer span.End()

	if did == "" {
		err := dErrors.New(dErrors.CodeBadRequest, "did is required")
		a.record(span, opDelete, resultInvalid, err)
		return false, err
	}

	var deleted bool
	err := a.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		deleted, err = a.store.Delete(txCtx, did)
		return err
	})
	if err != nil {
		a.record(span, opDelete, resultError, err)
		return false, storeError(err, "failed to delete mapping")
	}

	if !deleted {
		a.record(span, opDelete, resultNotFound, nil)
		return false, nil
	}
	a.record(span, opDelete, resultOK, nil)
	a.emit(ctx, audit.Event{Action: audit.ActionMappingDeleted, DID: did})
	return true, nil
}

func (a *Admin) record(span trace.Span, op, result string, err error) {
	span.SetAttributes(attribute.String("admin.result", result))
	if err != nil && result == resultError {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
	}
	if a.metrics != nil {
		a.metrics.IncrementAdminMutation(op, result)
	}
}

// emit publishes a committed change. Failures are logged only: the mutation
// has already been applied.
func (a *Admin) emit(ctx context.Context, event audit.Event) {
	if a.auditPublisher == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	event.ClientIP = requestcontext.ClientIP(ctx)
	event.UserAgent = requestcontext.UserAgent(ctx)
	event.Timestamp = requestcontext.Now(ctx)
	if err := a.auditPublisher.Emit(ctx, event); err != nil {
		a.logger.WarnContext(ctx, "failed to publish mapping change",
			"action", string(event.Action),
			"did", event.DID,
			"error", err,
		)
	}
}

func validateMapping(did, persona, cnam string) error {
	switch {
	case did == "":
		return dErrors.New(dErrors.CodeBadRequest, "did is required")
	case persona == "":
		return dErrors.New(dErrors.CodeBadRequest, "persona is required")
	case cnam == "":
		return dErrors.New(dErrors.CodeBadRequest, "cnam is required")
	}
	if err := checkLength("did", did, models.MaxDIDLength); err != nil {
		return err
	}
	if err := checkLength("persona", persona, models.MaxPersonaLength); err != nil {
		return err
	}
	return checkLength("cnam", cnam, models.MaxCNAMLength)
}

func checkLength(field, value string, limit int) error {
	if utf8.RuneCountInString(value) > limit {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s must be at most %d characters", field, limit))
	}
	return nil
}

// storeError keeps codes a store already attached (e.g. validation from a
// column overflow) and marks everything else internal.
func storeError(err error, msg string) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
