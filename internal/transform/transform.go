// Package transform applies a mapping set's coercion rules across one source
// row, producing a destination-shaped record.
package transform

import (
	"fmt"
	"time"

	"github.com/fieldsync/fieldsync/internal/coerce"
	"github.com/fieldsync/fieldsync/internal/driver"
	"github.com/fieldsync/fieldsync/internal/mapping"
)

// Record is one destination-shaped row: destination column name to
// destination-typed value. It always carries the engine-injected sync
// timestamp in addition to the mapped columns; the created-at and updated-at
// columns are maintained by the destination itself.
type Record map[string]any

// FieldError reports a per-row validation failure.
type FieldError struct {
	Column string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("column %s: %s", e.Column, e.Reason)
}

// Row transforms one source row under the given mappings, in mapping order.
//
// A source field absent from the row is distinct from one present with a null
// value: an absent field without a default rule is omitted from the record
// entirely, never written as null. That distinction is what makes partial
// upserts possible downstream.
func Row(row map[string]any, fields []mapping.FieldMapping, syncedAt time.Time) (Record, error) {
	rec := Record{
		driver.ColSyncedAt: syncedAt.UTC().Format(time.RFC3339),
	}

	for _, f := range fields {
		raw, present := row[f.SourceField]
		if !present {
			// DefaultValue still applies when the field is missing outright.
			if f.Rule != nil && f.Rule.Kind() == mapping.RuleDefault {
				raw = nil
			} else {
				if f.IsRequired {
					return nil, &FieldError{Column: f.DestColumn, Reason: "required field missing from source row"}
				}
				continue
			}
		}

		val, err := coerce.Coerce(raw, f.Type, f.Rule)
		if err != nil {
			return nil, &FieldError{Column: f.DestColumn, Reason: err.Error()}
		}
		if f.IsRequired && val == nil {
			return nil, &FieldError{Column: f.DestColumn, Reason: "required value is null after transform"}
		}
		rec[f.DestColumn] = val
	}
	return rec, nil
}

// Columns returns the destination columns the record carries for the given
// mapping order, excluding engine-injected timestamps and omitted fields.
func (r Record) Columns(fields []mapping.FieldMapping) []string {
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := r[f.DestColumn]; ok {
			cols = append(cols, f.DestColumn)
		}
	}
	return cols
}
