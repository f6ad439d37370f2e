package driver

import "strings"

// Engine-managed column names, shared by the DDL/DML generators and by
// dialects that need to reference them inside generated statements.
const (
	// ColID is the synthetic auto-incrementing primary key. The name stays
	// clear of common source column names ("id" in particular) so mapped
	// columns never collide with it.
	ColID = "sync_row_id"

	// ColCreatedAt records first insertion.
	ColCreatedAt = "created_at"

	// ColUpdatedAt refreshes on every row update.
	ColUpdatedAt = "updated_at"

	// ColSyncedAt is the sync timestamp stamped on every delivered record;
	// retention scans filter on it.
	ColSyncedAt = "synced_at"
)

// ReservedColumn reports whether a destination column name collides with an
// engine-managed column. The check is case-insensitive to match how the
// schema diff compares column names.
func ReservedColumn(name string) bool {
	switch strings.ToLower(name) {
	case ColID, ColCreatedAt, ColUpdatedAt, ColSyncedAt:
		return true
	}
	return false
}
