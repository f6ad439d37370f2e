package mapping

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// SQLiteRegistry is the persistent Registry backed by a local SQLite file.
type SQLiteRegistry struct {
	db *sql.DB
}

var _ Registry = (*SQLiteRegistry)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS field_mappings (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	mapping_key  TEXT NOT NULL,
	source_field TEXT NOT NULL,
	dest_column  TEXT NOT NULL,
	dest_type    TEXT NOT NULL DEFAULT 'text',
	rule_kind    TEXT NOT NULL DEFAULT 'direct',
	rule_params  TEXT NOT NULL DEFAULT '{}',
	is_custom    INTEGER NOT NULL DEFAULT 0,
	is_active    INTEGER NOT NULL DEFAULT 1,
	is_required  INTEGER NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_field_mappings_dest
	ON field_mappings(mapping_key, dest_column) WHERE is_active = 1;
CREATE TABLE IF NOT EXISTS table_mappings (
	mapping_key  TEXT PRIMARY KEY,
	table_name   TEXT NOT NULL,
	conflict_key TEXT NOT NULL DEFAULT ''
);
`

// OpenSQLiteRegistry opens (and bootstraps) a SQLite-backed registry at path.
// Use ":memory:" for an ephemeral registry.
func OpenSQLiteRegistry(path string) (*SQLiteRegistry, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening registry db: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY on concurrent registry edits.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrapping registry schema: %w", err)
	}
	return &SQLiteRegistry{db: db}, nil
}

// Close closes the underlying database.
func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

// GetActiveMappings implements Registry.
func (r *SQLiteRegistry) GetActiveMappings(ctx context.Context, mappingKey string) ([]FieldMapping, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, mapping_key, source_field, dest_column, dest_type,
		       rule_kind, rule_params, is_custom, is_active, is_required
		FROM field_mappings
		WHERE mapping_key = ? AND is_active = 1
		ORDER BY dest_column`, mappingKey)
	if err != nil {
		return nil, fmt.Errorf("querying mappings for %q: %w", mappingKey, err)
	}
	defer rows.Close()

	var out []FieldMapping
	for rows.Next() {
		fm, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fm)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMapping(row rowScanner) (FieldMapping, error) {
	var (
		fm                            FieldMapping
		destType, ruleKind, ruleParam string
		custom, active, required      int
	)
	if err := row.Scan(&fm.ID, &fm.MappingKey, &fm.SourceField, &fm.DestColumn,
		&destType, &ruleKind, &ruleParam, &custom, &active, &required); err != nil {
		return FieldMapping{}, fmt.Errorf("scanning mapping: %w", err)
	}
	fm.Type = ParseFieldType(destType)
	var params RuleParams
	if err := json.Unmarshal([]byte(ruleParam), &params); err != nil {
		params = RuleParams{}
	}
	rule, err := DecodeRule(RuleKind(ruleKind), params)
	if err != nil {
		return FieldMapping{}, err
	}
	fm.Rule = rule
	fm.IsCustom = custom != 0
	fm.IsActive = active != 0
	fm.IsRequired = required != 0
	return fm, nil
}

// AddMapping implements Registry.
func (r *SQLiteRegistry) AddMapping(ctx context.Context, fm FieldMapping) (FieldMapping, error) {
	if fm.MappingKey == "" || fm.SourceField == "" || fm.DestColumn == "" {
		return FieldMapping{}, fmt.Errorf("mapping requires key, source field and destination column")
	}
	if fm.Rule == nil {
		fm.Rule = DirectRule{}
	}
	kind, params := EncodeRule(fm.Rule)
	paramJSON, _ := json.Marshal(params)

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO field_mappings
			(mapping_key, source_field, dest_column, dest_type, rule_kind, rule_params,
			 is_custom, is_active, is_required)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fm.MappingKey, fm.SourceField, fm.DestColumn, fm.Type.String(),
		string(kind), string(paramJSON), b2i(fm.IsCustom), b2i(fm.IsActive), b2i(fm.IsRequired))
	if err != nil {
		if isUniqueViolation(err) {
			return FieldMapping{}, fmt.Errorf("%w: %s.%s", ErrDuplicateMapping, fm.MappingKey, fm.DestColumn)
		}
		return FieldMapping{}, fmt.Errorf("inserting mapping: %w", err)
	}
	fm.ID, _ = res.LastInsertId()
	return fm, nil
}

// UpdateMapping implements Registry. Only the allow-listed fields can change;
// mapping key and source field are immutable by construction of MappingUpdate.
func (r *SQLiteRegistry) UpdateMapping(ctx context.Context, id int64, upd MappingUpdate) (FieldMapping, error) {
	var (
		sets []string
		args []any
	)
	if upd.DestColumn != nil {
		sets = append(sets, "dest_column = ?")
		args = append(args, *upd.DestColumn)
	}
	if upd.Type != nil {
		sets = append(sets, "dest_type = ?")
		args = append(args, upd.Type.String())
	}
	if upd.Rule != nil {
		kind, params := EncodeRule(upd.Rule)
		paramJSON, _ := json.Marshal(params)
		sets = append(sets, "rule_kind = ?", "rule_params = ?")
		args = append(args, string(kind), string(paramJSON))
	}
	if upd.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, b2i(*upd.IsActive))
	}
	if upd.IsRequired != nil {
		sets = append(sets, "is_required = ?")
		args = append(args, b2i(*upd.IsRequired))
	}
	if len(sets) > 0 {
		args = append(args, id)
		res, err := r.db.ExecContext(ctx,
			"UPDATE field_mappings SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
		if err != nil {
			if isUniqueViolation(err) {
				return FieldMapping{}, fmt.Errorf("%w: id %d", ErrDuplicateMapping, id)
			}
			return FieldMapping{}, fmt.Errorf("updating mapping %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return FieldMapping{}, fmt.Errorf("%w: id %d", ErrMappingNotFound, id)
		}
	}

	row := r.db.QueryRowContext(ctx, `
		SELECT id, mapping_key, source_field, dest_column, dest_type,
		       rule_kind, rule_params, is_custom, is_active, is_required
		FROM field_mappings WHERE id = ?`, id)
	fm, err := scanMapping(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FieldMapping{}, fmt.Errorf("%w: id %d", ErrMappingNotFound, id)
		}
		return FieldMapping{}, err
	}
	return fm, nil
}

// GetTableMapping implements Registry.
func (r *SQLiteRegistry) GetTableMapping(ctx context.Context, mappingKey string) (TableMapping, error) {
	var tm TableMapping
	err := r.db.QueryRowContext(ctx, `
		SELECT mapping_key, table_name, conflict_key
		FROM table_mappings WHERE mapping_key = ?`, mappingKey).
		Scan(&tm.MappingKey, &tm.TableName, &tm.ConflictKey)
	if err == sql.ErrNoRows {
		return TableMapping{}, fmt.Errorf("%w: %s", ErrTableMappingNotFound, mappingKey)
	}
	if err != nil {
		return TableMapping{}, fmt.Errorf("querying table mapping %q: %w", mappingKey, err)
	}
	return tm, nil
}

// PutTableMapping implements Registry.
func (r *SQLiteRegistry) PutTableMapping(ctx context.Context, tm TableMapping) error {
	if tm.MappingKey == "" || tm.TableName == "" {
		return fmt.Errorf("table mapping requires key and table name")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO table_mappings (mapping_key, table_name, conflict_key)
		VALUES (?, ?, ?)
		ON CONFLICT (mapping_key) DO UPDATE SET
			table_name = excluded.table_name,
			conflict_key = excluded.conflict_key`,
		tm.MappingKey, tm.TableName, tm.ConflictKey)
	if err != nil {
		return fmt.Errorf("saving table mapping %q: %w", tm.MappingKey, err)
	}
	return nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
