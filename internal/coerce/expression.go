package coerce

import (
	"github.com/Knetic/govaluate"
)

// evalExpression evaluates a restricted arithmetic/string expression over a
// single "value" parameter holding the source value. Evaluation is fail-open:
// any parse or evaluation error returns the original value unchanged. That is
// a deliberate policy carried over from the source system, where a broken
// expression must degrade a derived column rather than stall a sync.
func evalExpression(expr string, v any) any {
	e, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return v
	}
	result, err := e.Evaluate(map[string]any{"value": normalizeParam(v)})
	if err != nil {
		return v
	}
	return result
}

// normalizeParam flattens numeric inputs to float64, which is the only
// numeric type the evaluator operates on.
func normalizeParam(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}
