package transform

import (
	"errors"
	"testing"
	"time"

	"github.com/fieldsync/fieldsync/internal/driver"
	"github.com/fieldsync/fieldsync/internal/mapping"
)

var syncedAt = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func testFields() []mapping.FieldMapping {
	return []mapping.FieldMapping{
		{SourceField: "CustomerNo", DestColumn: "customer_no", Type: mapping.FieldType{Kind: mapping.KindText}, IsRequired: true},
		{SourceField: "Name", DestColumn: "name", Type: mapping.FieldType{Kind: mapping.KindText}},
		{SourceField: "CreditLimit", DestColumn: "credit_limit", Type: mapping.FieldType{Kind: mapping.KindNumeric}},
	}
}

func TestRowBasic(t *testing.T) {
	rec, err := Row(map[string]any{
		"CustomerNo":  "C-100",
		"Name":        "Acme",
		"CreditLimit": "2500.50",
	}, testFields(), syncedAt)
	if err != nil {
		t.Fatalf("Row: %v", err)
	}
	if rec["customer_no"] != "C-100" || rec["name"] != "Acme" || rec["credit_limit"] != 2500.50 {
		t.Errorf("record = %v", rec)
	}
	if rec[driver.ColSyncedAt] != "2024-03-15T12:00:00Z" {
		t.Errorf("synced_at = %v", rec[driver.ColSyncedAt])
	}
}

func TestRowAbsentVersusNull(t *testing.T) {
	// "Name" absent entirely; "CreditLimit" present but null.
	rec, err := Row(map[string]any{
		"CustomerNo":  "C-100",
		"CreditLimit": nil,
	}, testFields(), syncedAt)
	if err != nil {
		t.Fatalf("Row: %v", err)
	}

	if _, ok := rec["name"]; ok {
		t.Error("absent source field must be omitted, not set")
	}
	v, ok := rec["credit_limit"]
	if !ok {
		t.Fatal("present-null source field must produce a typed null")
	}
	if v != nil {
		t.Errorf("credit_limit = %v, want nil", v)
	}
}

func TestRowDefaultAppliesWhenAbsent(t *testing.T) {
	fields := []mapping.FieldMapping{
		{SourceField: "Region", DestColumn: "region", Type: mapping.FieldType{Kind: mapping.KindText},
			Rule: mapping.DefaultRule{Value: "EMEA"}},
	}
	rec, err := Row(map[string]any{}, fields, syncedAt)
	if err != nil {
		t.Fatalf("Row: %v", err)
	}
	if rec["region"] != "EMEA" {
		t.Errorf("region = %v, want default EMEA", rec["region"])
	}
}

func TestRowRequiredFailures(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, err := Row(map[string]any{"Name": "Acme"}, testFields(), syncedAt)
		var fe *FieldError
		if !errors.As(err, &fe) || fe.Column != "customer_no" {
			t.Fatalf("err = %v", err)
		}
	})
	t.Run("null after transform", func(t *testing.T) {
		fields := []mapping.FieldMapping{
			{SourceField: "Qty", DestColumn: "qty", Type: mapping.FieldType{Kind: mapping.KindInteger}, IsRequired: true},
		}
		// Unparseable integer degrades to null, which a required column rejects.
		_, err := Row(map[string]any{"Qty": "many"}, fields, syncedAt)
		var fe *FieldError
		if !errors.As(err, &fe) || fe.Column != "qty" {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestRecordColumns(t *testing.T) {
	fields := testFields()
	rec, err := Row(map[string]any{"CustomerNo": "C-1", "CreditLimit": "10"}, fields, syncedAt)
	if err != nil {
		t.Fatalf("Row: %v", err)
	}
	cols := rec.Columns(fields)
	// Mapping order is preserved; the omitted column and engine timestamps
	// are excluded.
	want := []string{"customer_no", "credit_limit"}
	if len(cols) != len(want) {
		t.Fatalf("columns = %v, want %v", cols, want)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Errorf("columns = %v, want %v", cols, want)
		}
	}
}
