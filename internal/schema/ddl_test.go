package schema

import (
	"strings"
	"testing"

	"github.com/fieldsync/fieldsync/internal/driver"
	"github.com/fieldsync/fieldsync/internal/driver/mssql"
	"github.com/fieldsync/fieldsync/internal/driver/postgres"
	"github.com/fieldsync/fieldsync/internal/driver/sqlite"
	"github.com/fieldsync/fieldsync/internal/mapping"
)

func field(src, dest string, kind mapping.FieldKind) mapping.FieldMapping {
	return mapping.FieldMapping{
		SourceField: src,
		DestColumn:  dest,
		Type:        mapping.FieldType{Kind: kind},
		IsActive:    true,
	}
}

func customerFields() []mapping.FieldMapping {
	return []mapping.FieldMapping{
		field("Country", "country", mapping.KindText),
		field("CustomerNo", "customer_no", mapping.KindText),
		field("Name", "name", mapping.KindText),
	}
}

func customerTable() mapping.TableMapping {
	return mapping.TableMapping{
		MappingKey:  "customers",
		TableName:   "erp_customers",
		ConflictKey: "customer_no",
	}
}

func TestBuildPlanCreateBranch(t *testing.T) {
	plan, err := BuildPlan(&postgres.Dialect{}, customerTable(), customerFields(), nil)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if plan.Mode != ModeCreate {
		t.Fatalf("mode = %s, want create", plan.Mode)
	}

	sql := plan.SQL()
	create := plan.Statements[0]
	if !strings.HasPrefix(create, `CREATE TABLE IF NOT EXISTS "erp_customers"`) {
		t.Errorf("unexpected create statement:\n%s", create)
	}
	// Synthetic columns come first, mapped columns follow in mapping order.
	wantOrder := []string{`"sync_row_id"`, `"created_at"`, `"updated_at"`, `"synced_at"`, `"country"`, `"customer_no"`, `"name"`}
	pos := -1
	for _, col := range wantOrder {
		next := strings.Index(create, col)
		if next < 0 {
			t.Fatalf("create missing column %s:\n%s", col, create)
		}
		if next < pos {
			t.Errorf("column %s out of order", col)
		}
		pos = next
	}
	if !strings.Contains(sql, `CREATE UNIQUE INDEX IF NOT EXISTS "ix_erp_customers_customer_no"`) {
		t.Errorf("missing unique conflict-key index:\n%s", sql)
	}
	if !strings.Contains(sql, `CREATE INDEX IF NOT EXISTS "ix_erp_customers_synced_at"`) {
		t.Errorf("missing synced_at index:\n%s", sql)
	}
	if !strings.Contains(sql, "CREATE TRIGGER") {
		t.Errorf("missing updated_at trigger:\n%s", sql)
	}
}

func TestBuildPlanEvolveBranch(t *testing.T) {
	existing := []driver.SchemaColumn{
		{Name: "sync_row_id", DataType: "bigint"},
		{Name: "created_at", DataType: "timestamptz"},
		{Name: "updated_at", DataType: "timestamptz"},
		{Name: "synced_at", DataType: "timestamptz"},
		{Name: "customer_no", DataType: "text"},
		{Name: "name", DataType: "text"},
	}
	fields := append(customerFields(),
		field("CreditLimit", "credit_limit", mapping.KindNumeric))

	plan, err := BuildPlan(&postgres.Dialect{}, customerTable(), fields, existing)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if plan.Mode != ModeEvolve {
		t.Fatalf("mode = %s, want evolve", plan.Mode)
	}
	// Only the two genuinely missing columns appear.
	if len(plan.Statements) != 2 {
		t.Fatalf("got %d statements, want 2:\n%s", len(plan.Statements), plan.SQL())
	}
	if !strings.Contains(plan.Statements[0], `ADD COLUMN IF NOT EXISTS "country" TEXT`) {
		t.Errorf("statement 0: %s", plan.Statements[0])
	}
	if !strings.Contains(plan.Statements[1], `ADD COLUMN IF NOT EXISTS "credit_limit" NUMERIC`) {
		t.Errorf("statement 1: %s", plan.Statements[1])
	}
}

func TestBuildPlanEvolveNoChanges(t *testing.T) {
	existing := []driver.SchemaColumn{
		{Name: "sync_row_id"}, {Name: "created_at"}, {Name: "updated_at"}, {Name: "synced_at"},
		{Name: "COUNTRY"}, {Name: "Customer_No"}, {Name: "name"},
	}
	plan, err := BuildPlan(&postgres.Dialect{}, customerTable(), customerFields(), existing)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	// Name matching is case-insensitive; nothing to add.
	if len(plan.Statements) != 0 {
		t.Errorf("expected empty plan, got:\n%s", plan.SQL())
	}
}

func TestBuildPlanValidation(t *testing.T) {
	tests := []struct {
		name   string
		tm     mapping.TableMapping
		fields []mapping.FieldMapping
	}{
		{
			name:   "bad table name",
			tm:     mapping.TableMapping{MappingKey: "x", TableName: "drop table; --"},
			fields: customerFields(),
		},
		{
			name:   "bad column name",
			tm:     mapping.TableMapping{MappingKey: "x", TableName: "t"},
			fields: []mapping.FieldMapping{field("A", "bad-name", mapping.KindText)},
		},
		{
			name:   "reserved column",
			tm:     mapping.TableMapping{MappingKey: "x", TableName: "t"},
			fields: []mapping.FieldMapping{field("A", "synced_at", mapping.KindText)},
		},
		{
			name:   "conflict key not mapped",
			tm:     mapping.TableMapping{MappingKey: "x", TableName: "t", ConflictKey: "nope"},
			fields: customerFields(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildPlan(&postgres.Dialect{}, tt.tm, tt.fields, nil); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestBuildPlanRequiredColumns(t *testing.T) {
	f := field("Name", "name", mapping.KindText)
	f.IsRequired = true
	tm := mapping.TableMapping{MappingKey: "x", TableName: "t"}

	plan, err := BuildPlan(&sqlite.Dialect{}, tm, []mapping.FieldMapping{f}, nil)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if !strings.Contains(plan.Statements[0], `"name" TEXT NOT NULL`) {
		t.Errorf("required column lacks NOT NULL:\n%s", plan.Statements[0])
	}
}

func TestBuildPlanMSSQLGuards(t *testing.T) {
	plan, err := BuildPlan(&mssql.Dialect{}, customerTable(), customerFields(), nil)
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	sql := plan.SQL()
	if !strings.Contains(sql, "IF OBJECT_ID(N'erp_customers', N'U') IS NULL") {
		t.Errorf("create lacks existence guard:\n%s", sql)
	}
	if !strings.Contains(sql, "sys.indexes") {
		t.Errorf("index lacks existence guard:\n%s", sql)
	}
	// updated_at refresh happens inside MERGE; no trigger statements.
	if strings.Contains(sql, "TRIGGER") {
		t.Errorf("unexpected trigger DDL:\n%s", sql)
	}

	evolve, err := BuildPlan(&mssql.Dialect{}, customerTable(), customerFields(),
		[]driver.SchemaColumn{{Name: "customer_no"}, {Name: "name"}})
	if err != nil {
		t.Fatalf("BuildPlan(evolve): %v", err)
	}
	if len(evolve.Statements) != 1 || !strings.Contains(evolve.Statements[0], "IF COL_LENGTH(N'erp_customers', N'country') IS NULL") {
		t.Errorf("evolve statements:\n%s", evolve.SQL())
	}
}
