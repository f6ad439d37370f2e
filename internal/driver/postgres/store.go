// Package postgres provides the PostgreSQL destination store.
// It registers itself with the driver registry on import.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fieldsync/fieldsync/internal/driver"
	"github.com/fieldsync/fieldsync/internal/logging"
)

func init() {
	driver.Register(&Driver{})
}

// Driver implements driver.Driver for PostgreSQL destinations.
type Driver struct{}

func (d *Driver) Name() string            { return "postgres" }
func (d *Driver) Aliases() []string       { return []string{"postgresql", "pg"} }
func (d *Driver) Dialect() driver.Dialect { return &Dialect{} }

// Open connects a pgx pool to the destination.
func (d *Driver) Open(dsn string, maxConns int) (driver.Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	logging.Debug("connected to postgres destination %s", cfg.ConnConfig.Host)
	return &Store{pool: pool, dialect: &Dialect{}}, nil
}

// Store implements driver.Store over a pgx pool.
type Store struct {
	pool    *pgxpool.Pool
	dialect *Dialect
}

func (s *Store) Dialect() driver.Dialect { return s.dialect }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ListColumns reads the table's columns from information_schema in ordinal
// order. A missing table yields an empty slice, not an error.
func (s *Store) ListColumns(ctx context.Context, table string) ([]driver.SchemaColumn, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, table)
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
func (s *Store) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ExecBatch pipelines the statement once per argument set in a single
// round-trip batch.
func (s *Store) ExecBatch(ctx context.Context, sql string, argSets [][]any) (int64, error) {
	if len(argSets) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, args := range argSets {
		batch.Queue(sql, args...)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	var affected int64
	for range argSets {
		tag, err := results.Exec()
		if err != nil {
			return affected, err
		}
		affected += tag.RowsAffected()
	}
	return affected, nil
}
