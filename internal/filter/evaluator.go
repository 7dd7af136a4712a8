package filter

import (
	"strings"

	"github.com/matthewbaird/eavdb/internal/types"
)

// Evaluator evaluates filter expressions against a single entity's field
// values, satisfying executor.Evaluator. It holds no state: each call
// parses expr fresh.
type Evaluator struct{}

// NewEvaluator returns the filter-expression Evaluator; passing it to
// executor.New lets FIND/FIND_PAGE accept non-empty filter strings.
func NewEvaluator() *Evaluator { return &Evaluator{} }

// Evaluate parses expr and runs it against lookup, which resolves a field
// name to its current value on the candidate entity. An empty expr always
// matches.
func (e *Evaluator) Evaluate(expr string, lookup func(fieldName string) (types.Value, bool)) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	ast, err := Parse(expr)
	if err != nil {
		return false, types.NewErrorf(types.ErrInvalidArguments, "filter: %v", err)
	}
	if ast == nil {
		return true, nil
	}
	return eval(ast, lookup)
}

func eval(expr Expr, lookup func(string) (types.Value, bool)) (bool, error) {
	switch n := expr.(type) {
	case *BinaryExpr:
		left, err := eval(n.Left, lookup)
		if err != nil {
			return false, err
		}
		switch n.Op {
		case TokenAnd:
			if !left {
				return false, nil
			}
		case TokenOr:
			if left {
				return true, nil
			}
		}
		return eval(n.Right, lookup)
	case *NotExpr:
		inner, err := eval(n.Operand, lookup)
		if err != nil {
			return false, err
		}
		return !inner, nil
	case *CompareExpr:
		return evalCompare(n, lookup)
	case *InExpr:
		return evalIn(n, lookup)
	default:
		return false, types.NewErrorf(types.ErrInvalidArguments, "filter: unknown expression node")
	}
}

func evalCompare(c *CompareExpr, lookup func(string) (types.Value, bool)) (bool, error) {
	v, ok := lookup(c.Field)
	if !ok {
		return false, nil
	}

	if c.Op == TokenLike {
		if v.Variant() != types.VariantString {
			return false, nil
		}
		return likeMatch(v.String(), c.Value.Str), nil
	}

	cmp, comparable := compareToLiteral(v, c.Value)
	if !comparable {
		if c.Op == TokenEQ {
			return false, nil
		}
		if c.Op == TokenNEQ {
			return true, nil
		}
		return false, nil
	}
	switch c.Op {
	case TokenEQ:
		return cmp == 0, nil
	case TokenNEQ:
		return cmp != 0, nil
	case TokenGT:
		return cmp > 0, nil
	case TokenLT:
		return cmp < 0, nil
	case TokenGTE:
		return cmp >= 0, nil
	case TokenLTE:
		return cmp <= 0, nil
	default:
		return false, types.NewErrorf(types.ErrInvalidArguments, "filter: unsupported operator")
	}
}

func evalIn(n *InExpr, lookup func(string) (types.Value, bool)) (bool, error) {
	v, ok := lookup(n.Field)
	if !ok {
		return false, nil
	}
	for _, lit := range n.Values {
		if cmp, ok := compareToLiteral(v, lit); ok && cmp == 0 {
			return true, nil
		}
	}
	return false, nil
}

// compareToLiteral returns (<0|0|>0, true) when v and lit are of
// compatible kinds, or (0, false) when they cannot be ordered/compared.
func compareToLiteral(v types.Value, lit Literal) (int, bool) {
	switch v.Variant() {
	case types.VariantInt:
		if lit.Kind == LiteralInt {
			return cmpInt64(v.Int(), lit.Int), true
		}
		if lit.Kind == LiteralFloat {
			return cmpFloat64(float64(v.Int()), lit.Flt), true
		}
		return 0, false
	case types.VariantFloat:
		if lit.Kind == LiteralFloat {
			return cmpFloat64(v.Float(), lit.Flt), true
		}
		if lit.Kind == LiteralInt {
			return cmpFloat64(v.Float(), float64(lit.Int)), true
		}
		return 0, false
	case types.VariantString:
		if lit.Kind == LiteralString {
			return strings.Compare(v.String(), lit.Str), true
		}
		return 0, false
	case types.VariantChoice:
		if lit.Kind == LiteralString {
			return strings.Compare(v.Choice(), lit.Str), true
		}
		return 0, false
	case types.VariantBool:
		if lit.Kind == LiteralBool {
			if v.Bool() == lit.Bool {
				return 0, true
			}
			return 1, true
		}
		return 0, false
	case types.VariantTimestamp:
		if lit.Kind == LiteralInt {
			return cmpInt64(v.TimestampNanos(), lit.Int), true
		}
		return 0, false
	case types.VariantEntityReference:
		ref, has := v.Reference()
		if lit.Kind == LiteralNull {
			if !has {
				return 0, true
			}
			return 1, true
		}
		if lit.Kind == LiteralInt && has {
			return cmpInt64(int64(ref), lit.Int), true
		}
		return 0, false
	default:
		return 0, false
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// likeMatch implements a minimal SQL-style LIKE: '%' matches any run of
// characters, '_' matches exactly one. Matching is case-sensitive.
func likeMatch(s, pattern string) bool {
	return likeMatchRunes([]rune(s), []rune(pattern))
}

func likeMatchRunes(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	if p[0] == '%' {
		if likeMatchRunes(s, p[1:]) {
			return true
		}
		for len(s) > 0 {
			s = s[1:]
			if likeMatchRunes(s, p[1:]) {
				return true
			}
		}
		return false
	}
	if len(s) == 0 {
		return false
	}
	if p[0] == '_' || p[0] == s[0] {
		return likeMatchRunes(s[1:], p[1:])
	}
	return false
}
