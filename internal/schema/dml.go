package schema

import (
	"fmt"

	"github.com/fieldsync/fieldsync/internal/driver"
)

// Upsert is a parameterized load statement plus the column order its
// argument sets must follow.
type Upsert struct {
	SQL     string
	Columns []string
}

// BuildUpsert produces the idempotent load statement for a set of mapped
// columns. The sync-timestamp column is always inserted in addition to the
// mapped columns. With a conflict key the statement overwrites every non-key
// column on redelivery; without one it is a plain insert and idempotence is
// the caller's responsibility.
func BuildUpsert(d driver.Dialect, table string, mappedColumns []string, conflictKey string) (*Upsert, error) {
	if err := driver.ValidateIdentifier(table); err != nil {
		return nil, fmt.Errorf("table name: %w", err)
	}
	if len(mappedColumns) == 0 {
		return nil, fmt.Errorf("upsert requires at least one mapped column")
	}

	columns := make([]string, 0, len(mappedColumns)+1)
	columns = append(columns, driver.ColSyncedAt)
	conflictSeen := conflictKey == ""
	for _, c := range mappedColumns {
		if err := driver.ValidateIdentifier(c); err != nil {
			return nil, fmt.Errorf("column: %w", err)
		}
		if c == conflictKey {
			conflictSeen = true
		}
		columns = append(columns, c)
	}
	if !conflictSeen {
		return nil, fmt.Errorf("conflict key %q is not among the mapped columns", conflictKey)
	}

	return &Upsert{
		SQL:     d.UpsertStatement(table, columns, conflictKey),
		Columns: columns,
	}, nil
}
