package schema

import (
	"strings"
	"testing"

	"github.com/fieldsync/fieldsync/internal/driver/mssql"
	"github.com/fieldsync/fieldsync/internal/driver/postgres"
	"github.com/fieldsync/fieldsync/internal/driver/sqlite"
)

func TestBuildUpsertPostgres(t *testing.T) {
	up, err := BuildUpsert(&postgres.Dialect{}, "erp_customers",
		[]string{"customer_no", "name", "country"}, "customer_no")
	if err != nil {
		t.Fatalf("BuildUpsert: %v", err)
	}

	// synced_at always travels with the mapped columns.
	wantCols := []string{"synced_at", "customer_no", "name", "country"}
	if len(up.Columns) != len(wantCols) {
		t.Fatalf("columns = %v, want %v", up.Columns, wantCols)
	}
	for i, c := range wantCols {
		if up.Columns[i] != c {
			t.Errorf("column %d = %s, want %s", i, up.Columns[i], c)
		}
	}

	if !strings.HasPrefix(up.SQL, `INSERT INTO "erp_customers" ("synced_at", "customer_no", "name", "country") VALUES ($1, $2, $3, $4)`) {
		t.Errorf("unexpected insert:\n%s", up.SQL)
	}
	if !strings.Contains(up.SQL, `ON CONFLICT ("customer_no") DO UPDATE SET`) {
		t.Errorf("missing conflict clause:\n%s", up.SQL)
	}
	// The conflict key itself is never overwritten.
	if strings.Contains(up.SQL, `"customer_no" = EXCLUDED."customer_no"`) {
		t.Errorf("conflict key present in update set:\n%s", up.SQL)
	}
	if !strings.Contains(up.SQL, `"name" = EXCLUDED."name"`) {
		t.Errorf("missing excluded assignment:\n%s", up.SQL)
	}
}

func TestBuildUpsertSQLite(t *testing.T) {
	up, err := BuildUpsert(&sqlite.Dialect{}, "erp_customers", []string{"customer_no", "name"}, "customer_no")
	if err != nil {
		t.Fatalf("BuildUpsert: %v", err)
	}
	if !strings.Contains(up.SQL, "VALUES (?, ?, ?)") {
		t.Errorf("placeholders:\n%s", up.SQL)
	}
	if !strings.Contains(up.SQL, `"name" = excluded."name"`) {
		t.Errorf("missing excluded assignment:\n%s", up.SQL)
	}
}

func TestBuildUpsertMSSQLMerge(t *testing.T) {
	up, err := BuildUpsert(&mssql.Dialect{}, "erp_customers", []string{"customer_no", "name"}, "customer_no")
	if err != nil {
		t.Fatalf("BuildUpsert: %v", err)
	}
	sql := up.SQL
	for _, want := range []string{
		"MERGE INTO [erp_customers] AS target",
		"USING (VALUES (@p1, @p2, @p3)) AS src ([synced_at], [customer_no], [name])",
		"ON target.[customer_no] = src.[customer_no]",
		"WHEN MATCHED THEN UPDATE SET",
		"target.[updated_at] = SYSDATETIMEOFFSET()",
		"WHEN NOT MATCHED THEN INSERT",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("missing %q:\n%s", want, sql)
		}
	}
	if !strings.HasSuffix(sql, ";") {
		t.Errorf("MERGE must end with a semicolon:\n%s", sql)
	}
}

func TestBuildUpsertPlainInsert(t *testing.T) {
	up, err := BuildUpsert(&postgres.Dialect{}, "audit_rows", []string{"event"}, "")
	if err != nil {
		t.Fatalf("BuildUpsert: %v", err)
	}
	if strings.Contains(up.SQL, "ON CONFLICT") {
		t.Errorf("plain insert got a conflict clause:\n%s", up.SQL)
	}
}

func TestBuildUpsertValidation(t *testing.T) {
	d := &postgres.Dialect{}
	if _, err := BuildUpsert(d, "t", nil, ""); err == nil {
		t.Error("no columns accepted")
	}
	if _, err := BuildUpsert(d, "t", []string{"a"}, "missing_key"); err == nil {
		t.Error("unmapped conflict key accepted")
	}
	if _, err := BuildUpsert(d, "t", []string{"bad column"}, ""); err == nil {
		t.Error("invalid column name accepted")
	}
}
