// Package coerce converts arbitrarily typed source values into
// destination-typed values according to a declared field type and an optional
// transformation rule.
//
// The engine is deliberately lenient: source data from ERP exports is
// frequently malformed, and a parse failure degrades to a typed null rather
// than failing the row. Downstream upserts are idempotent, so a null that
// later parses cleanly simply overwrites itself on the next sync.
package coerce

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fieldsync/fieldsync/internal/mapping"
)

// truthyTokens is the fixed set of strings that coerce to boolean true.
var truthyTokens = map[string]struct{}{
	"true": {}, "t": {}, "1": {}, "yes": {}, "y": {},
}

// Coerce converts a source value to the destination type under the given
// rule. A nil result is a typed null. Coerce never fails on malformed input;
// the error return covers internal programming errors only (nil type kind and
// the like), preserving coercion totality.
func Coerce(v any, ft mapping.FieldType, rule mapping.Rule) (any, error) {
	if rule == nil {
		rule = mapping.DirectRule{}
	}

	switch r := rule.(type) {
	case mapping.DirectRule:
		// cast only
	case mapping.DefaultRule:
		if isEmpty(v) {
			return convert(r.Value, ft), nil
		}
	case mapping.ExpressionRule:
		if !isEmpty(v) {
			v = evalExpression(r.Expr, v)
		}
	case mapping.LookupRule, mapping.AggregateRule:
		// Not implemented: contract is pass-through of the raw value.
		return v, nil
	default:
		return nil, fmt.Errorf("unhandled rule kind %q", rule.Kind())
	}

	if isEmpty(v) {
		return nil, nil
	}
	return convert(v, ft), nil
}

// isEmpty reports whether the source value counts as absent: nil or the
// empty string.
func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

// convert casts a non-empty value to the destination type. Parse failures on
// numeric and temporal kinds return nil (typed null), not an error.
func convert(v any, ft mapping.FieldType) any {
	switch ft.Kind {
	case mapping.KindInteger, mapping.KindBigint:
		return toInteger(v)
	case mapping.KindNumeric:
		return toNumeric(v)
	case mapping.KindBoolean:
		return toBoolean(v)
	case mapping.KindDate:
		return toDate(v, false)
	case mapping.KindTimestamp:
		return toDate(v, true)
	case mapping.KindJSON:
		return toJSON(v)
	default:
		// text and anything unrecognized
		return Stringify(v)
	}
}

func toInteger(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float32:
		return int64(math.Trunc(float64(n)))
	case float64:
		return int64(math.Trunc(n))
	case json.Number:
		return toInteger(n.String())
	case bool:
		if n {
			return int64(1)
		}
		return int64(0)
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		// "12.7" style input truncates toward zero, matching the source
		// system's integer parse.
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(math.Trunc(f))
		}
		return nil
	default:
		return toInteger(Stringify(v))
	}
}

func toNumeric(v any) any {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		return toNumeric(n.String())
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
		return nil
	default:
		return toNumeric(Stringify(v))
	}
}

func toBoolean(v any) any {
	if b, ok := v.(bool); ok {
		return b
	}
	_, ok := truthyTokens[strings.ToLower(strings.TrimSpace(Stringify(v)))]
	return ok
}

// toDate parses a temporal value and normalizes it to an ISO-8601 string:
// RFC 3339 for timestamps, YYYY-MM-DD for date-only.
func toDate(v any, withTime bool) any {
	var t time.Time
	switch d := v.(type) {
	case time.Time:
		t = d
	case string:
		parsed, ok := ParseDate(d)
		if !ok {
			return nil
		}
		t = parsed
	default:
		parsed, ok := ParseDate(Stringify(v))
		if !ok {
			return nil
		}
		t = parsed
	}
	if withTime {
		return t.UTC().Format(time.RFC3339)
	}
	return t.Format("2006-01-02")
}

// toJSON passes objects and arrays through, parses JSON strings, and falls
// back to the raw string when the parse fails.
func toJSON(v any) any {
	switch j := v.(type) {
	case map[string]any, []any:
		return v
	case string:
		var out any
		if err := json.Unmarshal([]byte(j), &out); err != nil {
			return j
		}
		return out
	default:
		return v
	}
}

// Stringify renders a value using its natural string representation.
// Floats avoid exponent notation so identifiers exported as numbers survive.
func Stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case json.Number:
		return s.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
