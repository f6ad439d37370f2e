package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/fieldsync/fieldsync/internal/driver"
	_ "github.com/fieldsync/fieldsync/internal/driver/sqlite"
	"github.com/fieldsync/fieldsync/internal/etl"
	"github.com/fieldsync/fieldsync/internal/mapping"
)

func testServer(t *testing.T) (*httptest.Server, mapping.Registry) {
	t.Helper()
	reg := mapping.NewMemoryRegistry()
	store, err := driver.Open("sqlite", filepath.Join(t.TempDir(), "dest.db"), 1)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	ts := httptest.NewServer(NewServer(reg, etl.New(reg, store)).Router())
	t.Cleanup(ts.Close)
	return ts, reg
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestCreateAndListMappings(t *testing.T) {
	ts, _ := testServer(t)

	resp := postJSON(t, ts.URL+"/api/mappings", map[string]any{
		"mapping_key":  "customers",
		"source_field": "CustomerNo",
		"dest_column":  "customer_no",
		"type":         "text",
		"is_active":    true,
		"is_required":  true,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	created := decodeJSON[mappingJSON](t, resp)
	if created.ID == 0 || created.RuleKind != mapping.RuleDirect {
		t.Errorf("created = %+v", created)
	}

	resp, err := http.Get(ts.URL + "/api/mappings/customers")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	list := decodeJSON[[]mappingJSON](t, resp)
	if len(list) != 1 || list[0].DestColumn != "customer_no" {
		t.Errorf("list = %+v", list)
	}
}

func TestCreateMappingValidation(t *testing.T) {
	ts, _ := testServer(t)

	resp := postJSON(t, ts.URL+"/api/mappings", map[string]any{"mapping_key": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing fields: status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Duplicate destination column conflicts.
	body := map[string]any{
		"mapping_key":  "customers",
		"source_field": "A",
		"dest_column":  "email",
		"is_active":    true,
	}
	resp = postJSON(t, ts.URL+"/api/mappings", body)
	resp.Body.Close()
	resp = postJSON(t, ts.URL+"/api/mappings", body)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate: status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestUpdateMappingImmutableFields(t *testing.T) {
	ts, reg := testServer(t)
	created, err := reg.AddMapping(context.Background(), mapping.FieldMapping{
		MappingKey: "customers", SourceField: "Name", DestColumn: "name",
		Type: mapping.FieldType{Kind: mapping.KindText}, IsActive: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	req, _ := http.NewRequest(http.MethodPut,
		ts.URL+"/api/mappings/"+itoa(created.ID),
		bytes.NewReader([]byte(`{"source_field": "Renamed"}`)))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("immutable field change: status = %d", resp.StatusCode)
	}

	// An allowed update goes through.
	req, _ = http.NewRequest(http.MethodPut,
		ts.URL+"/api/mappings/"+itoa(created.ID),
		bytes.NewReader([]byte(`{"type": "timestamp", "is_required": true}`)))
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp2.StatusCode)
	}
	updated := decodeJSON[mappingJSON](t, resp2)
	if updated.Type != "timestamp" || !updated.IsRequired {
		t.Errorf("updated = %+v", updated)
	}

	// Unknown id is not found.
	req, _ = http.NewRequest(http.MethodPut, ts.URL+"/api/mappings/99999",
		bytes.NewReader([]byte(`{"is_active": false}`)))
	resp3, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusNotFound {
		t.Errorf("missing id: status = %d", resp3.StatusCode)
	}
}

func TestGenerateSchemaAndRun(t *testing.T) {
	ts, reg := testServer(t)
	ctx := context.Background()

	if err := reg.PutTableMapping(ctx, mapping.TableMapping{
		MappingKey: "customers", TableName: "erp_customers", ConflictKey: "customer_no",
	}); err != nil {
		t.Fatal(err)
	}
	for _, f := range []mapping.FieldMapping{
		{MappingKey: "customers", SourceField: "CustomerNo", DestColumn: "customer_no",
			Type: mapping.FieldType{Kind: mapping.KindText}, IsActive: true, IsRequired: true},
		{MappingKey: "customers", SourceField: "Name", DestColumn: "name",
			Type: mapping.FieldType{Kind: mapping.KindText}, IsActive: true},
	} {
		if _, err := reg.AddMapping(ctx, f); err != nil {
			t.Fatal(err)
		}
	}

	resp := postJSON(t, ts.URL+"/api/schema/generate", map[string]any{"mapping_key": "customers"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("generate status = %d", resp.StatusCode)
	}
	gen := decodeJSON[map[string]any](t, resp)
	if gen["mode"] != "create" || gen["sql"] == "" {
		t.Errorf("generate = %v", gen)
	}

	resp = postJSON(t, ts.URL+"/api/etl/run", map[string]any{
		"mapping_key": "customers",
		"rows": []map[string]any{
			{"CustomerNo": "C-1", "Name": "Acme"},
			{"Name": "missing key"},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("run status = %d", resp.StatusCode)
	}
	rep := decodeJSON[etl.Report](t, resp)
	if rep.Loaded != 1 || rep.Failed != 1 {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.Failures) != 1 || rep.Failures[0].Index != 1 {
		t.Errorf("failures = %+v", rep.Failures)
	}
}

func TestRunUnknownKey(t *testing.T) {
	ts, _ := testServer(t)
	resp := postJSON(t, ts.URL+"/api/etl/run", map[string]any{"mapping_key": "ghost"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
