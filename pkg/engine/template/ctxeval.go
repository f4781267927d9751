package template

import "fmt"

func evalExprNode(n exprNode, ctx map[string]any) (any, error) {
	switch t := n.(type) {
	case litNode:
		return t.value, nil
	case pathRefNode:
		return Lookup(t.raw, ctx)
	case listLit:
		vals := make([]any, 0, len(t.elems))
		for _, e := range t.elems {
			v, err := evalExprNode(e, ctx)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		}
		return vals, nil
	case unaryExprNode:
		v, err := evalExprNode(t.x, ctx)
		if err != nil {
			return nil, err
		}
		switch t.op {
		case "not":
			return !exprTruthy(v), nil
		case "-":
			f, _ := exprToFloat(v)
			return -f, nil
		case "+":
			f, _ := exprToFloat(v)
			return f, nil
		}
		return nil, fmt.Errorf("unsupported unary operator %q", t.op)
	case binExprNode:
		l, err := evalExprNode(t.l, ctx)
		if err != nil {
			return nil, err
		}
		r, err := evalExprNode(t.r, ctx)
		if err != nil {
			return nil, err
		}
		return evalExprBinary(t.op, l, r)
	case boolExprNode:
		var last any = false
		for _, v := range t.values {
			val, err := evalExprNode(v, ctx)
			if err != nil {
				return nil, err
			}
			last = val
			if t.op == "and" && !exprTruthy(val) {
				return false, nil
			}
			if t.op == "or" && exprTruthy(val) {
				return true, nil
			}
		}
		if t.op == "and" {
			return true, nil
		}
		return exprTruthy(last), nil
	case compareExprNode:
		left, err := evalExprNode(t.first, ctx)
		if err != nil {
			return nil, err
		}
		for i, op := range t.ops {
			right, err := evalExprNode(t.rest[i], ctx)
			if err != nil {
				return nil, err
			}
			ok, err := exprCompare(op, left, right)
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

func exprTruthy(v any) bool {
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
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

func exprToFloat(v any) (float64, bool) {
	return toFloatLoose(v)
}

func exprCompare(op string, left, right any) (bool, error) {
	switch op {
	case "in":
		list, ok := right.([]any)
		if !ok {
			return false, fmt.Errorf("right-hand side of in must be a list")
		}
		for _, v := range list {
			if exprEqual(left, v) {
				return true, nil
			}
		}
		return false, nil
	case "==":
		return exprEqual(left, right), nil
	case "!=":
		return !exprEqual(left, right), nil
	case "<", "<=", ">", ">=":
		lf, lok := exprToFloat(left)
		rf, rok := exprToFloat(right)
		if lok && rok {
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
		}
		ls, lsok := left.(string)
		rs, rsok := right.(string)
		if lsok && rsok {
			switch op {
			case "<":
				return ls < rs, nil
			case "<=":
				return ls <= rs, nil
			case ">":
				return ls > rs, nil
			default:
				return ls >= rs, nil
			}
		}
		return false, fmt.Errorf("cannot compare %v and %v", left, right)
	default:
		return false, fmt.Errorf("unsupported operator %q", op)
	}
}

func exprEqual(a, b any) bool {
	if af, aok := exprToFloat(a); aok {
		if bf, bok := exprToFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func evalExprBinary(op string, l, r any) (any, error) {
	if op == "+" {
		if ls, ok := l.(string); ok {
			if rs, ok := r.(string); ok {
				return ls + rs, nil
			}
		}
	}
	lf, lok := exprToFloat(l)
	rf, rok := exprToFloat(r)
	if !lok || !rok {
		return nil, fmt.Errorf("operator %q requires numeric operands", op)
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
	return nil, fmt.Errorf("unsupported operator %q", op)
}
