package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fieldsync/fieldsync/internal/driver"
)

func openTestStore(t *testing.T) driver.Store {
	t.Helper()
	store, err := (&Driver{}).Open(filepath.Join(t.TempDir(), "dest.db"), 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestListColumnsMissingTable(t *testing.T) {
	store := openTestStore(t)
	cols, err := store.ListColumns(context.Background(), "does_not_exist")
	if err != nil {
		t.Fatalf("ListColumns: %v", err)
	}
	// Absence reads as an empty set, never an error.
	if len(cols) != 0 {
		t.Errorf("got %d columns, want 0", len(cols))
	}
}

func TestExecAndListColumns(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.Exec(ctx, `CREATE TABLE items (sku TEXT NOT NULL, qty INTEGER)`)
	if err != nil {
		t.Fatalf("Exec(create): %v", err)
	}
	cols, err := store.ListColumns(ctx, "items")
	if err != nil {
		t.Fatalf("ListColumns: %v", err)
	}
	if len(cols) != 2 {
		t.Fatalf("got %d columns, want 2", len(cols))
	}
	if cols[0].Name != "sku" || cols[0].Nullable {
		t.Errorf("column 0 = %+v", cols[0])
	}
	if cols[1].Name != "qty" || !cols[1].Nullable {
		t.Errorf("column 1 = %+v", cols[1])
	}
}

func TestExecBatch(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if _, err := store.Exec(ctx, `CREATE TABLE items (sku TEXT, attrs TEXT)`); err != nil {
		t.Fatalf("Exec(create): %v", err)
	}

	n, err := store.ExecBatch(ctx, `INSERT INTO items (sku, attrs) VALUES (?, ?)`, [][]any{
		{"A-1", map[string]any{"color": "red"}},
		{"A-2", []any{"x", "y"}},
		{"A-3", nil},
	})
	if err != nil {
		t.Fatalf("ExecBatch: %v", err)
	}
	if n != 3 {
		t.Errorf("affected = %d, want 3", n)
	}

	// JSON arguments land as serialized text.
	row := store.(*Store).db.QueryRow(`SELECT attrs FROM items WHERE sku = 'A-1'`)
	var attrs string
	if err := row.Scan(&attrs); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if attrs != `{"color":"red"}` {
		t.Errorf("attrs = %s", attrs)
	}

	if n, err := store.ExecBatch(ctx, `INSERT INTO items (sku) VALUES (?)`, nil); err != nil || n != 0 {
		t.Errorf("empty batch: n=%d err=%v", n, err)
	}
}
