// Package pgmigrate applies embedded SQL migrations to PostgreSQL.
//
// Each migration is one .sql file with "-- +migrate Up" and "-- +migrate Down"
// sections. Files apply in lexical order, each in its own transaction, and are
// recorded in schema_migrations so reruns are no-ops. A session advisory lock
// serialises concurrent runners.
package pgmigrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"
)

const (
	migrationTable = "schema_migrations"
	upMarker       = "-- +migrate Up"
	downMarker     = "-- +migrate Down"
	// advisoryLockID is an arbitrary constant shared by all runners.
	advisoryLockID = 0x5057_4e00
)

// Migration is one parsed migration file.
type Migration struct {
	Name string
	Up   string
	Down string
}

// Status reports whether a migration has been applied.
type Status struct {
	Name      string
	Applied   bool
	AppliedAt time.Time
}

// Load reads and parses every .sql file under root, sorted by name.
func Load(fsys fs.FS, root string) ([]Migration, error) {
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	migrations := make([]Migration, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(fsys, path.Join(root, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		up, down := Split(string(content))
		migrations = append(migrations, Migration{
			Name: strings.TrimSuffix(name, ".sql"),
			Up:   up,
			Down: down,
		})
	}
	return migrations, nil
}

// Split returns the Up and Down sections of a migration file. A file without
// markers is treated as all Up.
func Split(content string) (up, down string) {
	upIdx := strings.Index(content, upMarker)
	downIdx := strings.Index(content, downMarker)
	switch {
	case upIdx == -1 && downIdx == -1:
		return strings.TrimSpace(content), ""
	case upIdx == -1:
		return strings.TrimSpace(content[:downIdx]), strings.TrimSpace(content[downIdx+len(downMarker):])
	case downIdx == -1:
		return strings.TrimSpace(content[upIdx+len(upMarker):]), ""
	case downIdx < upIdx:
		return strings.TrimSpace(content[upIdx+len(upMarker):]), strings.TrimSpace(content[downIdx+len(downMarker) : upIdx])
	default:
		return strings.TrimSpace(content[upIdx+len(upMarker) : downIdx]), strings.TrimSpace(content[downIdx+len(downMarker):])
	}
}

// Up applies every pending migration and returns the names it applied.
func Up(ctx context.Context, db *sql.DB, fsys fs.FS, root string) ([]string, error) {
	migrations, err := Load(fsys, root)
	if err != nil {
		return nil, err
	}

	var applied []string
	err = withLock(ctx, db, func(conn *sql.Conn) error {
		done, err := appliedSet(ctx, conn)
		if err != nil {
			return err
		}
		for _, m := range migrations {
			if _, ok := done[m.Name]; ok {
				continue
			}
			insert := fmt.Sprintf("INSERT INTO %s (name, applied_at) VALUES ($1, $2)", pq.QuoteIdentifier(migrationTable))
			if err := runTx(ctx, conn, m.Up, insert, m.Name, time.Now().UTC()); err != nil {
				return fmt.Errorf("apply %s: %w", m.Name, err)
			}
			applied = append(applied, m.Name)
		}
		return nil
	})
	return applied, err
}

// Down reverts the last steps applied migrations, newest first.
func Down(ctx context.Context, db *sql.DB, fsys fs.FS, root string, steps int) ([]string, error) {
	if steps <= 0 {
		return nil, errors.New("steps must be positive")
	}
	migrations, err := Load(fsys, root)
	if err != nil {
		return nil, err
	}

	var reverted []string
	err = withLock(ctx, db, func(conn *sql.Conn) error {
		done, err := appliedSet(ctx, conn)
		if err != nil {
			return err
		}
		for i := len(migrations) - 1; i >= 0 && len(reverted) < steps; i-- {
			m := migrations[i]
			if _, ok := done[m.Name]; !ok {
				continue
			}
			if m.Down == "" {
				return fmt.Errorf("migration %s has no down section", m.Name)
			}
			del := fmt.Sprintf("DELETE FROM %s WHERE name = $1", pq.QuoteIdentifier(migrationTable))
			if err := runTx(ctx, conn, m.Down, del, m.Name); err != nil {
				return fmt.Errorf("revert %s: %w", m.Name, err)
			}
			reverted = append(reverted, m.Name)
		}
		return nil
	})
	return reverted, err
}

// List reports every known migration and whether it has been applied.
func List(ctx context.Context, db *sql.DB, fsys fs.FS, root string) ([]Status, error) {
	migrations, err := Load(fsys, root)
	if err != nil {
		return nil, err
	}

	var statuses []Status
	err = withLock(ctx, db, func(conn *sql.Conn) error {
		done, err := appliedSet(ctx, conn)
		if err != nil {
			return err
		}
		for _, m := range migrations {
			at, ok := done[m.Name]
			statuses = append(statuses, Status{Name: m.Name, Applied: ok, AppliedAt: at})
		}
		return nil
	})
	return statuses, err
}

func withLock(ctx context.Context, db *sql.DB, fn func(conn *sql.Conn) error) error {
	if db == nil {
		return errors.New("sql db is required")
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", advisoryLockID)
	}()

	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    name TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL
)`, pq.QuoteIdentifier(migrationTable))
	if _, err := conn.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return fn(conn)
}

func appliedSet(ctx context.Context, conn *sql.Conn) (map[string]time.Time, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf("SELECT name, applied_at FROM %s", pq.QuoteIdentifier(migrationTable)))
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]time.Time)
	for rows.Next() {
		var name string
		var at time.Time
		if err := rows.Scan(&name, &at); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		done[name] = at
	}
	return done, rows.Err()
}

func runTx(ctx context.Context, conn *sql.Conn, body, record string, args ...any) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if strings.TrimSpace(body) != "" {
		if _, err := tx.ExecContext(ctx, body); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}
