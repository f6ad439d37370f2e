// Package driver provides pluggable destination store abstractions.
// Each destination (PostgreSQL, SQL Server, SQLite) implements the Driver
// interface to provide its dialect and store in one cohesive unit.
package driver

import (
	"context"
	"fmt"
	"strings"

	"github.com/fieldsync/fieldsync/internal/mapping"
)

// SchemaColumn is one column as reported by destination introspection.
// The core never mutates these.
type SchemaColumn struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Nullable bool   `json:"nullable"`
}

// Store is the destination store surface the engine depends on: column
// introspection plus statement execution. The engine produces SQL text and
// parameter sets; the store executes them.
type Store interface {
	// ListColumns returns the columns of a table in ordinal order. An empty
	// result signals "table does not exist" by convention; a missing table is
	// the normal create signal, never an error.
	ListColumns(ctx context.Context, table string) ([]SchemaColumn, error)

	// Exec runs one statement and returns the affected row count.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// ExecBatch runs the same statement once per argument set, as a single
	// batch where the store supports it, and returns the total affected rows.
	ExecBatch(ctx context.Context, sql string, argSets [][]any) (int64, error)

	// Dialect returns the SQL dialect of this store.
	Dialect() Dialect

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases all connections.
	Close() error
}

// Dialect abstracts the destination's SQL surface. Everything
// dialect-sensitive in generated DDL/DML (quoting, IF NOT EXISTS, upsert
// syntax, trigger DDL, placeholder style, type names) lives here so the
// generators stay store-agnostic.
type Dialect interface {
	// Name returns the dialect name ("postgres", "mssql", "sqlite").
	Name() string

	// QuoteIdentifier quotes a column or table name, escaping embedded quotes.
	QuoteIdentifier(name string) string

	// Placeholder returns the 1-indexed parameter placeholder.
	Placeholder(i int) string

	// SQLType translates a semantic field type to this dialect's column type.
	// Unrecognized kinds fall back to the dialect's TEXT equivalent.
	SQLType(t mapping.FieldType) string

	// AutoIDColumn returns the column definition fragment for the synthetic
	// auto-incrementing primary key.
	AutoIDColumn() string

	// TimestampColumn returns the type-and-default fragment for the
	// engine-managed audit timestamp columns.
	TimestampColumn() string

	// CreateTableDDL composes an idempotent create-table statement from
	// pre-rendered column definitions.
	CreateTableDDL(table string, columnDefs []string) string

	// AddColumnDDL composes an idempotent add-column statement for the given
	// pre-rendered definition of columnName.
	AddColumnDDL(table, columnDef, columnName string) string

	// CreateIndexDDL composes an idempotent index creation statement.
	CreateIndexDDL(table, column string, unique bool) string

	// UpdatedAtTriggerDDL returns the statements that make the updated-at
	// column refresh on every row update, regardless of which columns
	// changed. Dialects that refresh updated-at inside the upsert itself
	// return nil.
	UpdatedAtTriggerDDL(table, column string) []string

	// UpsertStatement composes the parameterized idempotent upsert for the
	// given insert columns and conflict key. With an empty conflict key it
	// composes a plain insert.
	UpsertStatement(table string, columns []string, conflictKey string) string
}

// Driver ties a dialect to its store constructor.
//
// To add a new destination:
//  1. Create a package under internal/driver/<name>/
//  2. Implement the Driver interface
//  3. Register via init(): driver.Register(&MyDriver{})
type Driver interface {
	// Name returns the primary driver name.
	Name() string

	// Aliases returns alternative names for this driver.
	Aliases() []string

	// Dialect returns the SQL dialect for this destination.
	Dialect() Dialect

	// Open connects to the destination identified by dsn.
	Open(dsn string, maxConns int) (Store, error)
}

var registry = map[string]Driver{}

// Register adds a driver under its name and aliases. Called from driver
// package init functions.
func Register(d Driver) {
	registry[d.Name()] = d
	for _, alias := range d.Aliases() {
		registry[alias] = d
	}
}

// Get looks up a driver by name or alias.
func Get(name string) (Driver, error) {
	d, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown destination driver %q", name)
	}
	return d, nil
}

// GetDialect returns the dialect for a driver name, or nil if unregistered.
func GetDialect(name string) Dialect {
	d, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil
	}
	return d.Dialect()
}

// Open is a convenience wrapper around Get plus Driver.Open.
func Open(name, dsn string, maxConns int) (Store, error) {
	d, err := Get(name)
	if err != nil {
		return nil, err
	}
	return d.Open(dsn, maxConns)
}
