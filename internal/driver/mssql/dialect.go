package mssql

import (
	"fmt"
	"strings"

	"github.com/fieldsync/fieldsync/internal/driver"
	"github.com/fieldsync/fieldsync/internal/mapping"
)

// Dialect implements driver.Dialect for SQL Server. SQL Server has neither
// CREATE TABLE IF NOT EXISTS nor ON CONFLICT, so every idempotent form is
// rebuilt from OBJECT_ID/COL_LENGTH guards and MERGE.
type Dialect struct{}

var _ driver.Dialect = (*Dialect)(nil)

func (d *Dialect) Name() string { return "mssql" }

func (d *Dialect) QuoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (d *Dialect) Placeholder(i int) string {
	return fmt.Sprintf("@p%d", i)
}

func (d *Dialect) SQLType(t mapping.FieldType) string {
	switch t.Kind {
	case mapping.KindInteger:
		return "INT"
	case mapping.KindBigint:
		return "BIGINT"
	case mapping.KindNumeric:
		if t.Precision > 0 {
			return fmt.Sprintf("DECIMAL(%d,%d)", t.Precision, t.Scale)
		}
		return "FLOAT"
	case mapping.KindBoolean:
		return "BIT"
	case mapping.KindDate:
		return "DATE"
	case mapping.KindTimestamp:
		return "DATETIMEOFFSET"
	case mapping.KindJSON:
		return "NVARCHAR(MAX)"
	default:
		return "NVARCHAR(MAX)"
	}
}

func (d *Dialect) AutoIDColumn() string {
	return "BIGINT IDENTITY(1,1) PRIMARY KEY"
}

func (d *Dialect) TimestampColumn() string {
	return "DATETIMEOFFSET NOT NULL DEFAULT SYSDATETIMEOFFSET()"
}

func (d *Dialect) CreateTableDDL(table string, columnDefs []string) string {
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL\nCREATE TABLE %s (\n    %s\n)",
		table, d.QuoteIdentifier(table), strings.Join(columnDefs, ",\n    "))
}

func (d *Dialect) AddColumnDDL(table, columnDef, columnName string) string {
	return fmt.Sprintf("IF COL_LENGTH(N'%s', N'%s') IS NULL ALTER TABLE %s ADD %s",
		table, columnName, d.QuoteIdentifier(table), columnDef)
}

func (d *Dialect) CreateIndexDDL(table, column string, unique bool) string {
	name := fmt.Sprintf("ix_%s_%s", table, column)
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf(
		"IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'%s' AND object_id = OBJECT_ID(N'%s')) CREATE %s %s ON %s (%s)",
		name, table, kind, d.QuoteIdentifier(name), d.QuoteIdentifier(table), d.QuoteIdentifier(column))
}

// UpdatedAtTriggerDDL returns nil: the MERGE upsert refreshes updated_at in
// its UPDATE branch, so no trigger is needed.
func (d *Dialect) UpdatedAtTriggerDDL(string, string) []string { return nil }

// UpsertStatement composes a MERGE over a single VALUES row. Every non-key
// column is overwritten from the source row and updated_at is refreshed in
// the matched branch.
func (d *Dialect) UpsertStatement(table string, columns []string, conflictKey string) string {
	quoted := make([]string, len(columns))
	params := make([]string, len(columns))
	srcCols := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdentifier(c)
		params[i] = d.Placeholder(i + 1)
		srcCols[i] = "src." + d.QuoteIdentifier(c)
	}

	if conflictKey == "" {
		return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			d.QuoteIdentifier(table), strings.Join(quoted, ", "), strings.Join(params, ", "))
	}

	var sets []string
	for _, c := range columns {
		if c == conflictKey {
			continue
		}
		sets = append(sets, fmt.Sprintf("target.%s = src.%s", d.QuoteIdentifier(c), d.QuoteIdentifier(c)))
	}
	sets = append(sets, fmt.Sprintf("target.%s = SYSDATETIMEOFFSET()", d.QuoteIdentifier(driver.ColUpdatedAt)))

	var sb strings.Builder
	fmt.Fprintf(&sb, "MERGE INTO %s AS target\n", d.QuoteIdentifier(table))
	fmt.Fprintf(&sb, "USING (VALUES (%s)) AS src (%s)\n", strings.Join(params, ", "), strings.Join(quoted, ", "))
	fmt.Fprintf(&sb, "ON target.%s = src.%s\n", d.QuoteIdentifier(conflictKey), d.QuoteIdentifier(conflictKey))
	fmt.Fprintf(&sb, "WHEN MATCHED THEN UPDATE SET %s\n", strings.Join(sets, ", "))
	fmt.Fprintf(&sb, "WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);",
		strings.Join(quoted, ", "), strings.Join(srcCols, ", "))
	return sb.String()
}
