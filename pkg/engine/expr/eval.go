// Package expr implements the safe, AST-gated expression evaluator used by
// condition and path nodes to decide branches. It never grants access to
// host names, calls, attributes or subscripts — the grammar simply has no
// production for them, so there is nothing to sandbox after parsing.
package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/saclot/flowengine/pkg/engine/errs"
)

func parseNumber(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// Evaluate parses and evaluates expression, returning its boolean result.
// The case-insensitive literal strings "true"/"false" are fast-pathed
// before any parsing happens, and an empty expression is false. Direct
// booleans never reach here: the condition and path executors use a
// boolean config value as the result without evaluating it.
func Evaluate(expression string) (bool, error) {
	trimmed := strings.TrimSpace(expression)
	switch strings.ToLower(trimmed) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "":
		return false, nil
	}

	n, err := parseExpression(trimmed)
	if err != nil {
		if unsafe, ok := err.(*unsafeSyntax); ok {
			return false, &errs.UnsafeExpression{Expression: expression, Reason: unsafe.reason}
		}
		return false, &errs.ExpressionError{Expression: expression, Cause: fmt.Errorf("invalid expression: %w", err)}
	}

	v, err := evalNode(n)
	if err != nil {
		if unsafe, ok := err.(*unsafeSyntax); ok {
			return false, &errs.UnsafeExpression{Expression: expression, Reason: unsafe.reason}
		}
		return false, &errs.ExpressionError{Expression: expression, Cause: err}
	}
	return truthy(v), nil
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	default:
		return true
	}
}

func evalNode(n node) (any, error) {
	switch t := n.(type) {
	case literalNode:
		return t.value, nil
	case listNode:
		vals := make([]any, 0, len(t.elems))
		for _, el := range t.elems {
			v, err := evalNode(el)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		}
		return vals, nil
	case unaryNode:
		v, err := evalNode(t.operand)
		if err != nil {
			return nil, err
		}
		switch t.op {
		case "not":
			return !truthy(v), nil
		case "-":
			f, err := toFloat(v)
			if err != nil {
				return nil, err
			}
			return -f, nil
		case "+":
			return toFloat(v)
		}
		return nil, fmt.Errorf("unsupported unary operator %q", t.op)
	case binaryNode:
		left, err := evalNode(t.left)
		if err != nil {
			return nil, err
		}
		right, err := evalNode(t.right)
		if err != nil {
			return nil, err
		}
		return evalBinary(t.op, left, right)
	case boolOpNode:
		// True short-circuit: stop evaluating as soon as the outcome is
		// determined, unlike a naive eager evaluate-then-combine.
		var last any = false
		for _, v := range t.values {
			val, err := evalNode(v)
			if err != nil {
				return nil, err
			}
			last = val
			if t.op == "and" && !truthy(val) {
				return false, nil
			}
			if t.op == "or" && truthy(val) {
				return true, nil
			}
		}
		if t.op == "and" {
			return true, nil
		}
		return truthy(last), nil
	case compareNode:
		left, err := evalNode(t.first)
		if err != nil {
			return nil, err
		}
		for i, op := range t.ops {
			right, err := evalNode(t.rest[i])
			if err != nil {
				return nil, err
			}
			ok, err := compare(op, left, right)
			if err != nil {
				return nil, err
			}
			if !ok {
				return false, nil
			}
			left = right
		}
		return true, nil
	default:
		return nil, fmt.Errorf("unsupported expression node")
	}
}

func compare(op string, left, right any) (bool, error) {
	switch op {
	case "in", "not in":
		list, ok := right.([]any)
		if !ok {
			return false, fmt.Errorf("right-hand side of %q must be a list", op)
		}
		found := false
		for _, v := range list {
			if valuesEqual(left, v) {
				found = true
				break
			}
		}
		if op == "not in" {
			return !found, nil
		}
		return found, nil
	case "==":
		return valuesEqual(left, right), nil
	case "!=":
		return !valuesEqual(left, right), nil
	case "<", "<=", ">", ">=":
		lf, err := toFloat(left)
		if err != nil {
			ls, lok := left.(string)
			rs, rok := right.(string)
			if lok && rok {
				return compareStrings(op, ls, rs), nil
			}
			return false, err
		}
		rf, err := toFloat(right)
		if err != nil {
			return false, err
		}
		switch op {
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		default:
			return lf >= rf, nil
		}
	default:
		return false, fmt.Errorf("unsupported comparison operator %q", op)
	}
}

func compareStrings(op, a, b string) bool {
	switch op {
	case "<":
		return a < b
	case "<=":
		return a <= b
	case ">":
		return a > b
	default:
		return a >= b
	}
}

func valuesEqual(a, b any) bool {
	af, aerr := toFloat(a)
	bf, berr := toFloat(b)
	if aerr == nil && berr == nil {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func evalBinary(op string, left, right any) (any, error) {
	lf, err := toFloat(left)
	if err != nil {
		if op == "+" {
			ls, lok := left.(string)
			rs, rok := right.(string)
			if lok && rok {
				return ls + rs, nil
			}
		}
		return nil, err
	}
	rf, err := toFloat(right)
	if err != nil {
		return nil, err
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, fmt.Errorf("modulo by zero")
		}
		return float64(int64(lf) % int64(rf)), nil
	}
	return nil, fmt.Errorf("unsupported binary operator %q", op)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("value %v is not numeric", v)
	}
}
