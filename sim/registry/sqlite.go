package registry

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	_ "modernc.org/sqlite"
)

const seedsSchema = `CREATE TABLE IF NOT EXISTS id_seeds (
	name  TEXT PRIMARY KEY,
	value INTEGER NOT NULL
)`

// SQLiteBackend stores seeds in a SQLite table. Upserts never lower a
// stored value.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path. ":memory:" is accepted.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", seedsSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initialising %s: %w", path, err)
		}
	}
	return &SQLiteBackend{db: db}, nil
}

// Load implements Backend.
func (b *SQLiteBackend) Load(ctx context.Context) (Seeds, error) {
	return loadSeeds(ctx, b.db)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadSeeds(ctx context.Context, q querier) (Seeds, error) {
	rows, err := q.QueryContext(ctx, `SELECT name, value FROM id_seeds`)
	if err != nil {
		return nil, fmt.Errorf("query id_seeds: %w", err)
	}
	defer rows.Close()
	s := make(Seeds)
	for rows.Next() {
		var name string
		var value int64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan id_seeds: %w", err)
		}
		s[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(s) == 0 {
		return DefaultSeeds(), nil
	}
	return s, nil
}

// Update implements Backend.
func (b *SQLiteBackend) Update(ctx context.Context, fn func(Seeds) (Seeds, error)) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stored, err := loadSeeds(ctx, tx)
	if err != nil {
		return err
	}
	next, err := fn(stored)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(next))
	for k := range next {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO id_seeds (name, value) VALUES (?, ?)
			 ON CONFLICT(name) DO UPDATE SET value = MAX(value, excluded.value)`,
			k, next[k])
		if err != nil {
			return fmt.Errorf("upsert %s: %w", k, err)
		}
	}
	return tx.Commit()
}

// Close implements Backend.
func (b *SQLiteBackend) Close() error { return b.db.Close() }
