//go:build integration

package mapping_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"sovren/internal/platform/postgres"
	"sovren/internal/telephony/store/mapping"
	dErrors "sovren/pkg/domain-errors"
	"sovren/pkg/platform/sentinel"
	"sovren/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *mapping.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = mapping.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "executive_did_map")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestUpsertAndFind() {
	ctx := context.Background()

	created, err := s.store.Upsert(ctx, "15306885012", "CFO", "COVREN CFO")
	s.Require().NoError(err)
	s.NotZero(created.ID)

	found, err := s.store.FindByDID(ctx, "15306885012")
	s.Require().NoError(err)
	s.Equal(created, found)

	_, err = s.store.FindByDID(ctx, "19999999999")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestUpsertIsIdempotentOnIdentity verifies a second upsert updates in place.
func (s *PostgresStoreSuite) TestUpsertIsIdempotentOnIdentity() {
	ctx := context.Background()

	first, err := s.store.Upsert(ctx, "15550001111", "CTO", "COVREN CTO")
	s.Require().NoError(err)
	second, err := s.store.Upsert(ctx, "15550001111", "CIO", "COVREN CIO")
	s.Require().NoError(err)

	s.Equal(first.ID, second.ID)
	s.Equal("CIO", second.Persona)
	s.Equal("COVREN CIO", second.CNAM)

	var count int
	err = s.postgres.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM executive_did_map WHERE did = $1`, "15550001111").Scan(&count)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *PostgresStoreSuite) TestDelete() {
	ctx := context.Background()

	deleted, err := s.store.Delete(ctx, "19999999999")
	s.Require().NoError(err)
	s.False(deleted)

	_, err = s.store.Upsert(ctx, "15306885012", "CFO", "COVREN CFO")
	s.Require().NoError(err)

	deleted, err = s.store.Delete(ctx, "15306885012")
	s.Require().NoError(err)
	s.True(deleted)

	_, err = s.store.FindByDID(ctx, "15306885012")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestOverlongValueIsValidationError() {
	_, err := s.store.Upsert(context.Background(), strings.Repeat("1", 21), "CFO", "COVREN CFO")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
}

// TestConcurrentUpsertsSameDID verifies concurrent writers never surface a
// unique violation and leave exactly one row.
func (s *PostgresStoreSuite) TestConcurrentUpsertsSameDID() {
	ctx := context.Background()
	const goroutines = 30

	var wg sync.WaitGroup
	errs := make(chan error, goroutines)
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Upsert(ctx, "15550003333", fmt.Sprintf("P%d", i), "CNAM")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	var count int
	err := s.postgres.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM executive_did_map WHERE did = $1`, "15550003333").Scan(&count)
	s.Require().NoError(err)
	s.Equal(1, count)
}

// TestUnitOfWorkRollsBack verifies statements join the transaction in ctx.
func (s *PostgresStoreSuite) TestUnitOfWorkRollsBack() {
	ctx := context.Background()
	uow := postgres.NewUnitOfWork(s.postgres.DB)

	err := uow.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.store.Upsert(txCtx, "15550004444", "CEO", "COVREN CEO"); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	s.Require().Error(err)

	_, err = s.store.FindByDID(ctx, "15550004444")
	s.ErrorIs(err, sentinel.ErrNotFound)

	err = uow.RunInTx(ctx, func(txCtx context.Context) error {
		_, err := s.store.Upsert(txCtx, "15550004444", "CEO", "COVREN CEO")
		return err
	})
	s.Require().NoError(err)

	found, err := s.store.FindByDID(ctx, "15550004444")
	s.Require().NoError(err)
	s.Equal("CEO", found.Persona)
}
