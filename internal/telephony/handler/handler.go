package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sovren/internal/telephony/models"
	dErrors "sovren/pkg/domain-errors"
	"sovren/pkg/platform/httputil"
	adminmw "sovren/pkg/platform/middleware/admin"
	"sovren/pkg/requestcontext"
)

// Resolver resolves a DID to a signed assertion.
type Resolver interface {
	Resolve(ctx context.Context, did string) (models.Resolution, error)
}

// Admin applies mapping mutations.
type Admin interface {
	UpsertMapping(ctx context.Context, did, persona, cnam string) (models.Mapping, error)
	DeleteMapping(ctx context.Context, did string) (bool, error)
}

// Handler serves /resolve and /admin/map. It only translates between HTTP and
// the services: status codes are chosen here and nowhere else.
type Handler struct {
	resolver   Resolver
	admin      Admin
	adminToken string
	logger     *slog.Logger
}

// New creates the telephony handler. An empty adminToken disables /admin/map.
func New(resolver Resolver, admin Admin, adminToken string, logger *slog.Logger) *Handler {
	return &Handler{
		resolver:   resolver,
		admin:      admin,
		adminToken: adminToken,
		logger:     logger,
	}
}

// Register mounts the telephony routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/resolve", h.HandleResolve)

	r.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdminBearer(h.adminToken, h.logger))
		r.Post("/admin/map", h.HandleUpsertMapping)
		r.Delete("/admin/map", h.HandleDeleteMapping)
	})
}

type resolveResponse struct {
	OK      bool   `json:"ok"`
	Persona string `json:"persona"`
	CNAM    string `json:"cnam"`
	Token   string `json:"token"`
}

type mappingResponse struct {
	OK      bool   `json:"ok"`
	ID      int64  `json:"id"`
	DID     string `json:"did"`
	Persona string `json:"persona"`
	CNAM    string `json:"cnam"`
}

type deleteResponse struct {
	OK bool `json:"ok"`
}

// HandleResolve answers GET /resolve?did=X.
//
// 200 with the token when mapped, 404 "DID not mapped" when not, 500 with the
// signer's detail when signing fails, 400 when did is missing.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did := r.URL.Query().Get("did")

	res, err := h.resolver.Resolve(ctx, did)
	if err != nil {
		h.logFailure(ctx, "resolve failed", did, err)
		httputil.WriteError(w, err)
		return
	}

	switch res := res.(type) {
	case *models.Resolved:
		httputil.WriteJSON(w, http.StatusOK, resolveResponse{
			OK:      true,
			Persona: res.Persona,
			CNAM:    res.CNAM,
			Token:   res.Token,
		})
	case *models.Unresolved:
		status := http.StatusNotFound
		if res.Kind == models.SigningFailed {
			status = http.StatusInternalServerError
		}
		httputil.WriteFailure(w, status, res.Message)
	default:
		h.logger.ErrorContext(ctx, "unexpected resolution type",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "unexpected resolution"))
	}
}

// HandleUpsertMapping answers POST /admin/map?did&persona&cnam.
func (h *Handler) HandleUpsertMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	did := q.Get("did")

	m, err := h.admin.UpsertMapping(ctx, did, q.Get("persona"), q.Get("cnam"))
	if err != nil {
		h.logFailure(ctx, "upsert mapping failed", did, err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "mapping upserted",
		"request_id", requestcontext.RequestID(ctx),
		"did", m.DID,
		"id", m.ID,
	)
	httputil.WriteJSON(w, http.StatusOK, mappingResponse{
		OK:      true,
		ID:      m.ID,
		DID:     m.DID,
		Persona: m.Persona,
		CNAM:    m.CNAM,
	})
}

// HandleDeleteMapping answers DELETE /admin/map?did. ok reports whether a
// mapping was removed.
func (h *Handler) HandleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	did := r.URL.Query().Get("did")

	deleted, err := h.admin.DeleteMapping(ctx, did)
	if err != nil {
		h.logFailure(ctx, "delete mapping failed", did, err)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "mapping delete handled",
		"request_id", requestcontext.RequestID(ctx),
		"did", did,
		"deleted", deleted,
	)
	httputil.WriteJSON(w, http.StatusOK, deleteResponse{OK: deleted})
}

func (h *Handler) logFailure(ctx context.Context, msg, did string, err error) {
	level := slog.LevelWarn
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"did", did,
		"error", err.Error(),
	)
}
