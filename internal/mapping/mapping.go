// Package mapping defines field mappings between source system fields and
// destination columns, and the registry that stores them.
package mapping

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// FieldKind is the closed set of semantic destination types.
type FieldKind string

const (
	KindText      FieldKind = "text"
	KindInteger   FieldKind = "integer"
	KindBigint    FieldKind = "bigint"
	KindNumeric   FieldKind = "numeric"
	KindBoolean   FieldKind = "boolean"
	KindDate      FieldKind = "date"
	KindTimestamp FieldKind = "timestamp"
	KindJSON      FieldKind = "json"
)

// FieldType is a semantic destination type, with precision/scale for numeric.
type FieldType struct {
	Kind      FieldKind `json:"kind" yaml:"kind"`
	Precision int       `json:"precision,omitempty" yaml:"precision,omitempty"`
	Scale     int       `json:"scale,omitempty" yaml:"scale,omitempty"`
}

// String renders the type back to its declaration form, e.g. "numeric(12,2)".
func (t FieldType) String() string {
	if t.Kind == KindNumeric && t.Precision > 0 {
		return fmt.Sprintf("numeric(%d,%d)", t.Precision, t.Scale)
	}
	return string(t.Kind)
}

var numericRe = regexp.MustCompile(`^numeric\s*\(\s*(\d+)\s*,\s*(\d+)\s*\)$`)

// ParseFieldType parses a type declaration such as "integer" or "numeric(12,2)".
// Unrecognized names map to text, mirroring the generator's TEXT fallback.
func ParseFieldType(s string) FieldType {
	s = strings.ToLower(strings.TrimSpace(s))
	if m := numericRe.FindStringSubmatch(s); m != nil {
		p, _ := strconv.Atoi(m[1])
		sc, _ := strconv.Atoi(m[2])
		return FieldType{Kind: KindNumeric, Precision: p, Scale: sc}
	}
	switch FieldKind(s) {
	case KindText, KindInteger, KindBigint, KindNumeric, KindBoolean, KindDate, KindTimestamp, KindJSON:
		return FieldType{Kind: FieldKind(s)}
	}
	return FieldType{Kind: KindText}
}

// FieldMapping is one declared correspondence between a source field and a
// destination column.
type FieldMapping struct {
	ID          int64     `json:"id"`
	MappingKey  string    `json:"mapping_key"`
	SourceField string    `json:"source_field"`
	DestColumn  string    `json:"dest_column"`
	Type        FieldType `json:"type"`
	Rule        Rule      `json:"-"`
	IsCustom    bool      `json:"is_custom"`
	IsActive    bool      `json:"is_active"`
	IsRequired  bool      `json:"is_required"`
}

// TableMapping groups the field mappings for one logical destination table.
type TableMapping struct {
	MappingKey  string `json:"mapping_key" yaml:"key"`
	TableName   string `json:"table_name" yaml:"table"`
	ConflictKey string `json:"conflict_key,omitempty" yaml:"conflict_key,omitempty"`
}

// MappingUpdate carries the fields that may be changed on an existing mapping.
// MappingKey and SourceField are deliberately absent: renaming either would
// break referential stability with already-generated schema.
type MappingUpdate struct {
	DestColumn *string
	Type       *FieldType
	Rule       Rule
	IsActive   *bool
	IsRequired *bool
}
