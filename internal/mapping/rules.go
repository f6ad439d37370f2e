package mapping

import (
	"encoding/json"
	"fmt"
)

// RuleKind identifies a transformation rule variant.
type RuleKind string

const (
	RuleDirect     RuleKind = "direct"
	RuleDefault    RuleKind = "default"
	RuleExpression RuleKind = "expression"
	RuleLookup     RuleKind = "lookup"
	RuleAggregate  RuleKind = "aggregate"
)

// Rule is the closed set of per-field transformation rules. The interface is
// sealed so a switch over the variants is exhaustive; adding a rule kind
// without handling it everywhere is a compile-time visible change, not a
// silent fall-through to direct semantics.
type Rule interface {
	Kind() RuleKind
	isRule()
}

// DirectRule casts the source value to the destination type with no other
// transformation.
type DirectRule struct{}

func (DirectRule) Kind() RuleKind { return RuleDirect }
func (DirectRule) isRule()        {}

// DefaultRule substitutes a default when the source value is null or empty.
type DefaultRule struct {
	Value string
}

func (DefaultRule) Kind() RuleKind { return RuleDefault }
func (DefaultRule) isRule()        {}

// ExpressionRule derives the value from the source value via a restricted
// arithmetic/string expression over a single "value" parameter.
type ExpressionRule struct {
	Expr string
}

func (ExpressionRule) Kind() RuleKind { return RuleExpression }
func (ExpressionRule) isRule()        {}

// LookupRule resolves the value against another source table. Not yet
// implemented: the engine passes the raw value through unchanged.
type LookupRule struct {
	SourceTable string
	Key         string
}

func (LookupRule) Kind() RuleKind { return RuleLookup }
func (LookupRule) isRule()        {}

// AggregateRule computes the value from multiple source rows. Not yet
// implemented: the engine passes the raw value through unchanged.
type AggregateRule struct {
	Function string
	Field    string
}

func (AggregateRule) Kind() RuleKind { return RuleAggregate }
func (AggregateRule) isRule()        {}

// RuleParams is the serialized parameter set for a rule, stored alongside its
// kind in the registry and on the wire.
type RuleParams map[string]string

// EncodeRule splits a rule into its kind and parameter map.
func EncodeRule(r Rule) (RuleKind, RuleParams) {
	switch v := r.(type) {
	case nil:
		return RuleDirect, RuleParams{}
	case DirectRule:
		return RuleDirect, RuleParams{}
	case DefaultRule:
		return RuleDefault, RuleParams{"value": v.Value}
	case ExpressionRule:
		return RuleExpression, RuleParams{"expr": v.Expr}
	case LookupRule:
		return RuleLookup, RuleParams{"source_table": v.SourceTable, "key": v.Key}
	case AggregateRule:
		return RuleAggregate, RuleParams{"function": v.Function, "field": v.Field}
	}
	return RuleDirect, RuleParams{}
}

// DecodeRule reconstructs a rule from its kind and parameter map. An empty
// kind decodes to DirectRule.
func DecodeRule(kind RuleKind, params RuleParams) (Rule, error) {
	switch kind {
	case "", RuleDirect:
		return DirectRule{}, nil
	case RuleDefault:
		return DefaultRule{Value: params["value"]}, nil
	case RuleExpression:
		return ExpressionRule{Expr: params["expr"]}, nil
	case RuleLookup:
		return LookupRule{SourceTable: params["source_table"], Key: params["key"]}, nil
	case RuleAggregate:
		return AggregateRule{Function: params["function"], Field: params["field"]}, nil
	}
	return nil, fmt.Errorf("unknown rule kind %q", kind)
}

// ruleJSON is the wire shape of a rule.
type ruleJSON struct {
	Kind   RuleKind   `json:"kind"`
	Params RuleParams `json:"params,omitempty"`
}

// MarshalRule renders a rule as JSON.
func MarshalRule(r Rule) ([]byte, error) {
	kind, params := EncodeRule(r)
	return json.Marshal(ruleJSON{Kind: kind, Params: params})
}

// UnmarshalRule parses a rule from JSON. Empty input decodes to DirectRule.
func UnmarshalRule(data []byte) (Rule, error) {
	if len(data) == 0 {
		return DirectRule{}, nil
	}
	var rj ruleJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return nil, fmt.Errorf("parsing rule: %w", err)
	}
	return DecodeRule(rj.Kind, rj.Params)
}
