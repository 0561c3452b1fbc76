package mapping

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"sovren/internal/telephony/models"
	dErrors "sovren/pkg/domain-errors"
	"sovren/pkg/platform/sentinel"
	txcontext "sovren/pkg/platform/tx"
)

// pgStringTooLong is SQLSTATE string_data_right_truncation.
const pgStringTooLong = "22001"

// PostgresStore persists mappings in executive_did_map. Statements run on the
// transaction carried by ctx when there is one.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByDID(ctx context.Context, did string) (models.Mapping, error) {
	query := `SELECT id, did, persona, cnam FROM executive_did_map WHERE did = $1`
	var m models.Mapping
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, did).Scan(&m.ID, &m.DID, &m.Persona, &m.CNAM)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Mapping{}, sentinel.ErrNotFound
		}
		return models.Mapping{}, fmt.Errorf("find mapping by did: %w", err)
	}
	return m, nil
}

// Upsert writes in one statement, so concurrent calls for the same DID never
// race into a unique violation; the last to commit wins.
func (s *PostgresStore) Upsert(ctx context.Context, did, persona, cnam string) (models.Mapping, error) {
	query := `
		INSERT INTO executive_did_map (did, persona, cnam)
		VALUES ($1, $2, $3)
		ON CONFLICT (did) DO UPDATE SET
			persona = EXCLUDED.persona,
			cnam = EXCLUDED.cnam
		RETURNING id, did, persona, cnam
	`
	var m models.Mapping
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, query, did, persona, cnam).Scan(&m.ID, &m.DID, &m.Persona, &m.CNAM)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgStringTooLong {
			return models.Mapping{}, dErrors.Wrap(err, dErrors.CodeValidation, "mapping value exceeds column length")
		}
		return models.Mapping{}, fmt.Errorf("upsert mapping: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) Delete(ctx context.Context, did string) (bool, error) {
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `DELETE FROM executive_did_map WHERE did = $1`, did)
	if err != nil {
		return false, fmt.Errorf("delete mapping: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check delete result: %w", err)
	}
	return rows > 0, nil
}
