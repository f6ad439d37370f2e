// Package sqlite provides a file-local destination store, useful for
// development and for embedding the engine in tests and single-node tools.
// It registers itself with the driver registry on import.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/fieldsync/fieldsync/internal/driver"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for SQLite destinations.
type Driver struct{}

func (d *Driver) Name() string            { return "sqlite" }
func (d *Driver) Aliases() []string       { return []string{"sqlite3"} }
func (d *Driver) Dialect() driver.Dialect { return &Dialect{} }

// Open opens the SQLite file at dsn (":memory:" works).
func (d *Driver) Open(dsn string, _ int) (driver.Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite destination: %w", err)
	}
	// Single writer; avoids SQLITE_BUSY under concurrent batches.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite destination: %w", err)
	}
	return &Store{db: db, dialect: &Dialect{}}, nil
}

// Store implements driver.Store over database/sql.
type Store struct {
	db      *sql.DB
	dialect *Dialect
}

func (s *Store) Dialect() driver.Dialect        { return s.dialect }
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *Store) Close() error                   { return s.db.Close() }

// ListColumns reads the table's columns via pragma_table_info. A missing
// table yields an empty slice.
func (s *Store) ListColumns(ctx context.Context, table string) ([]driver.SchemaColumn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, type, "notnull" FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("introspecting %s: %w", table, err)
	}
	defer rows.Close()

	var cols []driver.SchemaColumn
	for rows.Next() {
		var c driver.SchemaColumn
		var notNull int
		if err := rows.Scan(&c.Name, &c.DataType, &notNull); err != nil {
			return nil, fmt.Errorf("scanning column of %s: %w", table, err)
		}
		c.Nullable = notNull == 0
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// Exec runs one statement.
func (s *Store) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, normalizeArgs(args)...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExecBatch runs the statement per argument set inside one transaction with a
// prepared statement.
func (s *Store) ExecBatch(ctx context.Context, query string, argSets [][]any) (int64, error) {
	if len(argSets) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("preparing batch statement: %w", err)
	}
	defer stmt.Close()

	var affected int64
	for _, args := range argSets {
		res, err := stmt.ExecContext(ctx, normalizeArgs(args)...)
		if err != nil {
			return affected, err
		}
		n, _ := res.RowsAffected()
		affected += n
	}
	if err := tx.Commit(); err != nil {
		return affected, fmt.Errorf("committing batch: %w", err)
	}
	return affected, nil
}

// normalizeArgs renders values database/sql cannot bind directly (JSON
// objects and arrays) as JSON text.
func normalizeArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		switch a.(type) {
		case map[string]any, []any:
			b, err := json.Marshal(a)
			if err != nil {
				out[i] = fmt.Sprintf("%v", a)
				continue
			}
			out[i] = string(b)
		default:
			out[i] = a
		}
	}
	return out
}
