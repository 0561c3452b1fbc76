package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"sovren/internal/audit"
	"sovren/internal/platform/metrics"
	"sovren/internal/telephony/models"
	"sovren/internal/telephony/service/mocks"
	dErrors "sovren/pkg/domain-errors"
	"sovren/pkg/requestcontext"
)

// =============================================================================
// Admin Service Test Suite
// =============================================================================
// Justification for unit tests: the admin service validates input, runs each
// mutation in a unit of work and publishes a change event only after commit.
// Ordering and the no-event-on-failure rule are hard to observe end to end.

type AdminSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	mockStore *mocks.MockMappingStore
	mockTx    *mocks.MockUnitOfWork
	mockAudit *mocks.MockAuditPublisher
	metrics   *metrics.Metrics
	service   *Admin
	now       time.Time
	ctx       context.Context
}

func TestAdminSuite(t *testing.T) {
	suite.Run(t, new(AdminSuite))
}

func (s *AdminSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.mockStore = mocks.NewMockMappingStore(s.ctrl)
	s.mockTx = mocks.NewMockUnitOfWork(s.ctrl)
	s.mockAudit = mocks.NewMockAuditPublisher(s.ctrl)
	s.metrics = metrics.New()
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	ctx := requestcontext.WithTime(context.Background(), s.now)
	ctx = requestcontext.WithRequestID(ctx, "req-42")
	s.ctx = requestcontext.WithClientMetadata(ctx, "10.0.0.1", "curl/8")

	var err error
	s.service, err = NewAdmin(
		s.mockStore,
		WithUnitOfWork(s.mockTx),
		WithAuditPublisher(s.mockAudit),
		WithMetrics(s.metrics),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
}

func (s *AdminSuite) TearDownTest() {
	s.ctrl.Finish()
}

// passThroughTx makes the mocked unit of work run the callback.
func (s *AdminSuite) passThroughTx() *gomock.Call {
	return s.mockTx.EXPECT().RunInTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		})
}

func (s *AdminSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := NewAdmin(nil)
		s.ErrorContains(err, "mapping store is required")
	})

	s.Run("options are applied", func() {
		svc, err := NewAdmin(s.mockStore, WithAuditPublisher(s.mockAudit), WithUnitOfWork(s.mockTx))
		s.Require().NoError(err)
		s.Equal(s.mockAudit, svc.auditPublisher)
		s.Equal(s.mockTx, svc.tx)
	})

	s.Run("defaults to running without a transaction", func() {
		svc, err := NewAdmin(s.mockStore)
		s.Require().NoError(err)
		s.IsType(directTx{}, svc.tx)
	})
}

func (s *AdminSuite) TestUpsertMapping() {
	s.Run("saves inside the unit of work and publishes after commit", func() {
		saved := models.Mapping{ID: 9, DID: "15550001111", Persona: "CTO", CNAM: "COVREN CTO"}
		gomock.InOrder(
			s.passThroughTx(),
			s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, e audit.Event) error {
					s.Equal(audit.ActionMappingUpserted, e.Action)
					s.Equal("15550001111", e.DID)
					s.Equal("CTO", e.Persona)
					s.Equal("COVREN CTO", e.CNAM)
					s.Equal("req-42", e.RequestID)
					s.Equal("10.0.0.1", e.ClientIP)
					s.Equal("curl/8", e.UserAgent)
					s.Equal(s.now, e.Timestamp)
					return nil
				}),
		)
		s.mockStore.EXPECT().Upsert(gomock.Any(), "15550001111", "CTO", "COVREN CTO").Return(saved, nil)

		got, err := s.service.UpsertMapping(s.ctx, "15550001111", "CTO", "COVREN CTO")
		s.Require().NoError(err)
		s.Equal(saved, got)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.AdminMutations.WithLabelValues("upsert", "ok")))
	})

	s.Run("store failure is internal and publishes nothing", func() {
		s.passThroughTx()
		s.mockStore.EXPECT().Upsert(gomock.Any(), "15550001111", "CTO", "COVREN CTO").
			Return(models.Mapping{}, errors.New("deadlock detected"))

		_, err := s.service.UpsertMapping(s.ctx, "15550001111", "CTO", "COVREN CTO")
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.AdminMutations.WithLabelValues("upsert", "error")))
	})

	s.Run("coded store errors pass through", func() {
		s.passThroughTx()
		s.mockStore.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(models.Mapping{}, dErrors.New(dErrors.CodeValidation, "value too long"))

		_, err := s.service.UpsertMapping(s.ctx, "15550001111", "CTO", "COVREN CTO")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("publish failure does not fail the mutation", func() {
		saved := models.Mapping{ID: 9, DID: "15550001111", Persona: "CTO", CNAM: "COVREN CTO"}
		s.passThroughTx()
		s.mockStore.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(saved, nil)
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(audit.ErrBufferFull)

		got, err := s.service.UpsertMapping(s.ctx, "15550001111", "CTO", "COVREN CTO")
		s.Require().NoError(err)
		s.Equal(saved, got)
	})

	s.Run("validation rejects before touching the store", func() {
		cases := []struct {
			name    string
			did     string
			persona string
			cnam    string
			code    dErrors.Code
		}{
			{"missing did", "", "CFO", "COVREN CFO", dErrors.CodeBadRequest},
			{"missing persona", "15306885012", "", "COVREN CFO", dErrors.CodeBadRequest},
			{"missing cnam", "15306885012", "CFO", "", dErrors.CodeBadRequest},
			{"did too long", strings.Repeat("1", models.MaxDIDLength+1), "CFO", "COVREN CFO", dErrors.CodeValidation},
			{"persona too long", "15306885012", strings.Repeat("p", models.MaxPersonaLength+1), "COVREN CFO", dErrors.CodeValidation},
			{"cnam too long", "15306885012", "CFO", strings.Repeat("c", models.MaxCNAMLength+1), dErrors.CodeValidation},
		}
		for _, tc := range cases {
			s.Run(tc.name, func() {
				_, err := s.service.UpsertMapping(s.ctx, tc.did, tc.persona, tc.cnam)
				s.True(dErrors.HasCode(err, tc.code), "got %v", err)
			})
		}
	})

	s.Run("values at the column limit are accepted", func() {
		did := strings.Repeat("1", models.MaxDIDLength)
		persona := strings.Repeat("é", models.MaxPersonaLength)
		s.passThroughTx()
		s.mockStore.EXPECT().Upsert(gomock.Any(), did, persona, "X").
			Return(models.Mapping{ID: 1, DID: did, Persona: persona, CNAM: "X"}, nil)
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

		_, err := s.service.UpsertMapping(s.ctx, did, persona, "X")
		s.NoError(err)
	})
}

func (s *AdminSuite) TestDeleteMapping() {
	s.Run("removed mapping reports true and publishes", func() {
		s.passThroughTx()
		s.mockStore.EXPECT().Delete(gomock.Any(), "15306885012").Return(true, nil)
		s.mockAudit.EXPECT().Emit(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, e audit.Event) error {
				s.Equal(audit.ActionMappingDeleted, e.Action)
				s.Equal("15306885012", e.DID)
				return nil
			})

		deleted, err := s.service.DeleteMapping(s.ctx, "15306885012")
		s.Require().NoError(err)
		s.True(deleted)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.AdminMutations.WithLabelValues("delete", "ok")))
	})

	s.Run("absent mapping reports false without error or event", func() {
		s.passThroughTx()
		s.mockStore.EXPECT().Delete(gomock.Any(), "19999999999").Return(false, nil)

		deleted, err := s.service.DeleteMapping(s.ctx, "19999999999")
		s.Require().NoError(err)
		s.False(deleted)
		s.Equal(float64(1), testutil.ToFloat64(s.metrics.AdminMutations.WithLabelValues("delete", "not_found")))
	})

	s.Run("missing did is a bad request", func() {
		_, err := s.service.DeleteMapping(s.ctx, "")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("transaction failure is internal", func() {
		s.mockTx.EXPECT().RunInTx(gomock.Any(), gomock.Any()).Return(errors.New("begin tx: conn closed"))

		_, err := s.service.DeleteMapping(s.ctx, "15306885012")
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}
