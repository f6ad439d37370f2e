// Package mssql provides the SQL Server destination store.
// It registers itself with the driver registry on import.
package mssql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" database/sql driver

	"github.com/fieldsync/fieldsync/internal/driver"
	"github.com/fieldsync/fieldsync/internal/logging"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for SQL Server destinations.
type Driver struct{}

func (d *Driver) Name() string            { return "mssql" }
func (d *Driver) Aliases() []string       { return []string{"sqlserver"} }
func (d *Driver) Dialect() driver.Dialect { return &Dialect{} }

// Open connects to the destination identified by a sqlserver:// DSN.
func (d *Driver) Open(dsn string, maxConns int) (driver.Store, error) {
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening mssql destination: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging mssql destination: %w", err)
	}
	logging.Debug("connected to mssql destination")
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

// ListColumns reads the table's columns from INFORMATION_SCHEMA in ordinal
// order. A missing table yields an empty slice.
func (s *Store) ListColumns(ctx context.Context, table string) ([]driver.SchemaColumn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_NAME = @p1 AND TABLE_SCHEMA = SCHEMA_NAME()
		ORDER BY ORDINAL_POSITION`, table)
	if err != nil {
		return nil, fmt.Errorf("introspecting %s: %w", table, err)
	}
	defer rows.Close()

	var cols []driver.SchemaColumn
	for rows.Next() {
		var c driver.SchemaColumn
		var nullable string
		if err := rows.Scan(&c.Name, &c.DataType, &nullable); err != nil {
			return nil, fmt.Errorf("scanning column of %s: %w", table, err)
		}
		c.Nullable = nullable == "YES"
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

// ExecBatch runs the statement per argument set inside one transaction.
func (s *Store) ExecBatch(ctx context.Context, query string, argSets [][]any) (int64, error) {
	if len(argSets) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning batch: %w", err)
	}
	defer tx.Rollback()

	var affected int64
	for _, args := range argSets {
		res, err := tx.ExecContext(ctx, query, normalizeArgs(args)...)
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

// normalizeArgs renders JSON objects and arrays as text; SQL Server stores
// them in NVARCHAR(MAX) columns.
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
