package postgres

import (
	"fmt"
	"strings"

	"github.com/fieldsync/fieldsync/internal/driver"
	"github.com/fieldsync/fieldsync/internal/mapping"
)

// Dialect implements driver.Dialect for PostgreSQL.
type Dialect struct{}

var _ driver.Dialect = (*Dialect)(nil)

func (d *Dialect) Name() string { return "postgres" }

func (d *Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *Dialect) Placeholder(i int) string {
	return fmt.Sprintf("$%d", i)
}

// SQLType translates a semantic field type to a PostgreSQL column type.
// The table is the single source of truth for both the create and evolve
// branches; unrecognized kinds fall back to TEXT.
func (d *Dialect) SQLType(t mapping.FieldType) string {
	switch t.Kind {
	case mapping.KindInteger:
		return "INTEGER"
	case mapping.KindBigint:
		return "BIGINT"
	case mapping.KindNumeric:
		if t.Precision > 0 {
			return fmt.Sprintf("NUMERIC(%d,%d)", t.Precision, t.Scale)
		}
		return "NUMERIC"
	case mapping.KindBoolean:
		return "BOOLEAN"
	case mapping.KindDate:
		return "DATE"
	case mapping.KindTimestamp:
		return "TIMESTAMPTZ"
	case mapping.KindJSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}

func (d *Dialect) AutoIDColumn() string {
	return "BIGSERIAL PRIMARY KEY"
}

func (d *Dialect) TimestampColumn() string {
	return "TIMESTAMPTZ NOT NULL DEFAULT now()"
}

func (d *Dialect) CreateTableDDL(table string, columnDefs []string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)",
		d.QuoteIdentifier(table), strings.Join(columnDefs, ",\n    "))
}

func (d *Dialect) AddColumnDDL(table, columnDef, _ string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s",
		d.QuoteIdentifier(table), columnDef)
}

func (d *Dialect) CreateIndexDDL(table, column string, unique bool) string {
	kind := "INDEX"
	if unique {
		kind = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
		kind,
		d.QuoteIdentifier(fmt.Sprintf("ix_%s_%s", table, column)),
		d.QuoteIdentifier(table),
		d.QuoteIdentifier(column))
}

// UpdatedAtTriggerDDL emits the shared refresh function plus a per-table
// trigger. The trigger fires on every UPDATE regardless of which columns
// changed.
func (d *Dialect) UpdatedAtTriggerDDL(table, column string) []string {
	fn := fmt.Sprintf(`CREATE OR REPLACE FUNCTION fieldsync_touch_%s() RETURNS trigger AS $$
BEGIN
    NEW.%s = now();
    RETURN NEW;
END;
$$ LANGUAGE plpgsql`, column, d.QuoteIdentifier(column))

	trigger := fmt.Sprintf("trg_%s_%s", table, column)
	drop := fmt.Sprintf("DROP TRIGGER IF EXISTS %s ON %s",
		d.QuoteIdentifier(trigger), d.QuoteIdentifier(table))
	create := fmt.Sprintf("CREATE TRIGGER %s BEFORE UPDATE ON %s FOR EACH ROW EXECUTE FUNCTION fieldsync_touch_%s()",
		d.QuoteIdentifier(trigger), d.QuoteIdentifier(table), column)

	return []string{fn, drop, create}
}

// UpsertStatement composes INSERT ... ON CONFLICT DO UPDATE. Every non-key
// column is overwritten from EXCLUDED so redelivery of the same source row is
// a no-op beyond the timestamp refresh.
func (d *Dialect) UpsertStatement(table string, columns []string, conflictKey string) string {
	quoted := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdentifier(c)
		params[i] = d.Placeholder(i + 1)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteIdentifier(table), strings.Join(quoted, ", "), strings.Join(params, ", "))

	if conflictKey == "" {
		return sb.String()
	}

	var sets []string
	for _, c := range columns {
		if c == conflictKey {
			continue
		}
		q := d.QuoteIdentifier(c)
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
	}
	fmt.Fprintf(&sb, " ON CONFLICT (%s) DO UPDATE SET %s",
		d.QuoteIdentifier(conflictKey), strings.Join(sets, ", "))
	return sb.String()
}
