package expr

import (
	"github.com/marklange/marksheet/internal/ir"
)

// Evaluate executes a compiled expression against a value tree.
//
// Evaluation is pure: the input is never mutated and the same
// (root, expression) pair always yields the same result, which is what
// makes idempotent retries meaningful.
//
// Missing fields are tolerated - a path that dead-ends yields Null for
// that element without aborting the rest. Shape mismatches are not: a
// wildcard or filter applied to a non-array value returns an
// *EvalError with ErrCodeShapeMismatch.
func Evaluate(root ir.Value, e Expr) (ir.Value, error) {
	switch x := e.(type) {
	case Path:
		v, ok := lookup(root, x.Steps)
		if !ok {
			return ir.Null{}, nil
		}
		return v, nil

	case Wildcard:
		arr, ok := root.(ir.Array)
		if !ok {
			return nil, newShapeError("wildcard applied to %s, want array", typeName(root))
		}
		out := make(ir.Array, len(arr))
		for i, el := range arr {
			v, err := Evaluate(el, x.Of)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case Filter:
		arr, ok := root.(ir.Array)
		if !ok {
			return nil, newShapeError("filter applied to %s, want array", typeName(root))
		}
		out := make(ir.Array, 0, len(arr))
		for _, el := range arr {
			if !evalPredicate(el, x.Pred) {
				continue
			}
			v, err := Evaluate(el, x.Of)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	case Projection:
		out := make(ir.OrderedObject, 0, len(x.Fields))
		for _, f := range x.Fields {
			v, ok := lookup(root, f.Source.Steps)
			if !ok {
				v = ir.Null{}
			}
			out = append(out, ir.Field{Key: f.Name, Val: v})
		}
		return out, nil

	default:
		return nil, newShapeError("unknown expression type %T", e)
	}
}

// lookup walks a dotted path. Returns (nil, false) when any
// intermediate node is absent or not an object; callers decide whether
// that means Null (projection) or exclusion (filter).
func lookup(v ir.Value, steps []string) (ir.Value, bool) {
	cur := v
	for _, step := range steps {
		switch node := cur.(type) {
		case ir.Object:
			next, ok := node[step]
			if !ok {
				return nil, false
			}
			cur = next
		case ir.OrderedObject:
			next, ok := node.Get(step)
			if !ok {
				return nil, false
			}
			cur = next
		default:
			return nil, false
		}
	}
	return cur, true
}

// evalPredicate evaluates a predicate against one array element.
// Predicates never error: a comparison that cannot be carried out
// (absent field, operand type mismatch, ordering on non-numbers) is
// false for that element.
func evalPredicate(el ir.Value, p Predicate) bool {
	switch pred := p.(type) {
	case Compare:
		return evalCompare(el, pred)
	case And:
		// Evaluate both sides; predicates have no side effects, so
		// short-circuiting is unobservable either way.
		l := evalPredicate(el, pred.Left)
		r := evalPredicate(el, pred.Right)
		return l && r
	case Or:
		l := evalPredicate(el, pred.Left)
		r := evalPredicate(el, pred.Right)
		return l || r
	default:
		return false
	}
}

func evalCompare(el ir.Value, c Compare) bool {
	v, ok := lookup(el, c.Field.Steps)
	if !ok {
		return false
	}

	switch lit := c.Lit.(type) {
	case ir.Num:
		n, ok := v.(ir.Num)
		if !ok {
			return false
		}
		return compareNum(float64(n), c.Op, float64(lit))
	case ir.Str:
		s, ok := v.(ir.Str)
		if !ok {
			return false
		}
		// Text literals compare by exact equality only; ordering a
		// string against a string is false, matching the
		// absent-field rule.
		switch c.Op {
		case OpEq:
			return string(s) == string(lit)
		case OpNe:
			return string(s) != string(lit)
		default:
			return false
		}
	case ir.Bool:
		b, ok := v.(ir.Bool)
		if !ok {
			return false
		}
		switch c.Op {
		case OpEq:
			return bool(b) == bool(lit)
		case OpNe:
			return bool(b) != bool(lit)
		default:
			return false
		}
	default:
		return false
	}
}

func compareNum(a float64, op CompareOp, b float64) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpGt:
		return a > b
	case OpLt:
		return a < b
	case OpGe:
		return a >= b
	case OpLe:
		return a <= b
	default:
		return false
	}
}

// typeName names a value's kind for shape error messages.
func typeName(v ir.Value) string {
	switch v.(type) {
	case ir.Null:
		return "null"
	case ir.Str:
		return "string"
	case ir.Num:
		return "number"
	case ir.Bool:
		return "bool"
	case ir.Array:
		return "array"
	case ir.Object, ir.OrderedObject:
		return "object"
	default:
		return "unknown"
	}
}
