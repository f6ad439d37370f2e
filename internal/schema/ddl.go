// Package schema generates the DDL and DML that keep a destination table in
// step with its mapping set. Generators emit SQL text only; execution belongs
// to the destination store.
package schema

import (
	"fmt"
	"strings"

	"github.com/fieldsync/fieldsync/internal/driver"
	"github.com/fieldsync/fieldsync/internal/mapping"
)

// Mode says which branch the generator took.
type Mode string

const (
	// ModeCreate emits a full CREATE TABLE: the table was absent.
	ModeCreate Mode = "create"

	// ModeEvolve emits additive ALTER statements only; possibly none when
	// the table already matches the mapping set.
	ModeEvolve Mode = "evolve"
)

// Plan is the generated schema work for one table.
type Plan struct {
	Mode       Mode     `json:"mode"`
	Table      string   `json:"table"`
	Statements []string `json:"statements"`
}

// SQL joins the plan's statements for display.
func (p *Plan) SQL() string {
	return strings.Join(p.Statements, ";\n")
}

// BuildPlan chooses the create or evolve branch from the introspection
// result. An empty introspection set means the table is absent, by the
// introspector's convention.
func BuildPlan(d driver.Dialect, tm mapping.TableMapping, fields []mapping.FieldMapping, existing []driver.SchemaColumn) (*Plan, error) {
	if err := validate(tm, fields); err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		stmts := buildCreate(d, tm, fields)
		return &Plan{Mode: ModeCreate, Table: tm.TableName, Statements: stmts}, nil
	}
	stmts := buildEvolve(d, tm.TableName, fields, existing)
	return &Plan{Mode: ModeEvolve, Table: tm.TableName, Statements: stmts}, nil
}

func validate(tm mapping.TableMapping, fields []mapping.FieldMapping) error {
	if err := driver.ValidateIdentifier(tm.TableName); err != nil {
		return fmt.Errorf("table name: %w", err)
	}
	conflictSeen := tm.ConflictKey == ""
	for _, f := range fields {
		if err := driver.ValidateIdentifier(f.DestColumn); err != nil {
			return fmt.Errorf("mapping %s: %w", f.SourceField, err)
		}
		if driver.ReservedColumn(f.DestColumn) {
			return fmt.Errorf("mapping %s: destination column %q is engine-managed", f.SourceField, f.DestColumn)
		}
		if f.DestColumn == tm.ConflictKey {
			conflictSeen = true
		}
	}
	if !conflictSeen {
		return fmt.Errorf("conflict key %q is not a mapped destination column", tm.ConflictKey)
	}
	return nil
}

// buildCreate emits the full create branch: table with the four synthetic
// columns first, then every mapped column in mapping order, followed by the
// conflict-key unique index, the sync-timestamp index for retention scans,
// and the updated-at refresh trigger.
func buildCreate(d driver.Dialect, tm mapping.TableMapping, fields []mapping.FieldMapping) []string {
	defs := []string{
		fmt.Sprintf("%s %s", d.QuoteIdentifier(driver.ColID), d.AutoIDColumn()),
		fmt.Sprintf("%s %s", d.QuoteIdentifier(driver.ColCreatedAt), d.TimestampColumn()),
		fmt.Sprintf("%s %s", d.QuoteIdentifier(driver.ColUpdatedAt), d.TimestampColumn()),
		fmt.Sprintf("%s %s", d.QuoteIdentifier(driver.ColSyncedAt), d.TimestampColumn()),
	}
	for _, f := range fields {
		defs = append(defs, columnDef(d, f))
	}

	stmts := []string{d.CreateTableDDL(tm.TableName, defs)}
	if tm.ConflictKey != "" {
		stmts = append(stmts, d.CreateIndexDDL(tm.TableName, tm.ConflictKey, true))
	}
	stmts = append(stmts, d.CreateIndexDDL(tm.TableName, driver.ColSyncedAt, false))
	stmts = append(stmts, d.UpdatedAtTriggerDDL(tm.TableName, driver.ColUpdatedAt)...)
	return stmts
}

// buildEvolve diffs mapped columns against the introspected set by name and
// emits one additive statement per missing column. Columns present in the
// store but absent from the mapping set are left untouched; the engine never
// drops or retypes.
func buildEvolve(d driver.Dialect, table string, fields []mapping.FieldMapping, existing []driver.SchemaColumn) []string {
	have := make(map[string]struct{}, len(existing))
	for _, c := range existing {
		have[strings.ToLower(c.Name)] = struct{}{}
	}

	var stmts []string
	for _, f := range fields {
		if _, ok := have[strings.ToLower(f.DestColumn)]; ok {
			continue
		}
		stmts = append(stmts, d.AddColumnDDL(table, columnDef(d, f), f.DestColumn))
	}
	return stmts
}

func columnDef(d driver.Dialect, f mapping.FieldMapping) string {
	def := fmt.Sprintf("%s %s", d.QuoteIdentifier(f.DestColumn), d.SQLType(f.Type))
	if f.IsRequired {
		def += " NOT NULL"
	}
	return def
}
