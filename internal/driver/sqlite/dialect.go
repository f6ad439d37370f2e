package sqlite

import (
	"fmt"
	"strings"

	"github.com/fieldsync/fieldsync/internal/driver"
	"github.com/fieldsync/fieldsync/internal/mapping"
)

// Dialect implements driver.Dialect for SQLite.
type Dialect struct{}

var _ driver.Dialect = (*Dialect)(nil)

func (d *Dialect) Name() string { return "sqlite" }

func (d *Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *Dialect) Placeholder(int) string { return "?" }

// SQLType maps semantic types onto SQLite's affinity names. SQLite stores
// temporal and JSON values as TEXT.
func (d *Dialect) SQLType(t mapping.FieldType) string {
	switch t.Kind {
	case mapping.KindInteger, mapping.KindBigint:
		return "INTEGER"
	case mapping.KindNumeric:
		if t.Precision > 0 {
			return fmt.Sprintf("NUMERIC(%d,%d)", t.Precision, t.Scale)
		}
		return "NUMERIC"
	case mapping.KindBoolean:
		return "BOOLEAN"
	case mapping.KindDate, mapping.KindTimestamp, mapping.KindJSON:
		return "TEXT"
	default:
		return "TEXT"
	}
}

func (d *Dialect) AutoIDColumn() string {
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (d *Dialect) TimestampColumn() string {
	return "TEXT NOT NULL DEFAULT (datetime('now'))"
}

func (d *Dialect) CreateTableDDL(table string, columnDefs []string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n)",
		d.QuoteIdentifier(table), strings.Join(columnDefs, ",\n    "))
}

// AddColumnDDL has no IF NOT EXISTS form in SQLite; the evolve branch only
// emits it for columns the introspection diff proved absent.
func (d *Dialect) AddColumnDDL(table, columnDef, _ string) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.QuoteIdentifier(table), columnDef)
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

func (d *Dialect) UpdatedAtTriggerDDL(table, column string) []string {
	trigger := fmt.Sprintf("trg_%s_%s", table, column)
	return []string{fmt.Sprintf(`CREATE TRIGGER IF NOT EXISTS %s AFTER UPDATE ON %s
FOR EACH ROW
BEGIN
    UPDATE %s SET %s = datetime('now') WHERE rowid = NEW.rowid;
END`,
		d.QuoteIdentifier(trigger), d.QuoteIdentifier(table),
		d.QuoteIdentifier(table), d.QuoteIdentifier(column))}
}

func (d *Dialect) UpsertStatement(table string, columns []string, conflictKey string) string {
	quoted := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdentifier(c)
		params[i] = "?"
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
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", q, q))
	}
	fmt.Fprintf(&sb, " ON CONFLICT (%s) DO UPDATE SET %s",
		d.QuoteIdentifier(conflictKey), strings.Join(sets, ", "))
	return sb.String()
}
