package template

import (
	"fmt"
	"html"
	"strings"
)

// Engine renders templates against a context. Autoescape is on by default,
// matching the design's "HTML/XML autoescape is on by default".
type Engine struct {
	Autoescape bool
}

// New returns an Engine with autoescape enabled.
func New() *Engine {
	return &Engine{Autoescape: true}
}

// Render renders tmpl against ctx. Undefined names fail immediately rather
// than degrading to an empty string.
func (e *Engine) Render(tmpl string, ctx map[string]any) (string, error) {
	nodes, err := parseTemplate(tmpl)
	if err != nil {
		return "", fmt.Errorf("template rendering error: %w", err)
	}
	var sb strings.Builder
	if err := e.renderNodes(nodes, ctx, &sb); err != nil {
		return "", fmt.Errorf("template rendering error: %w", err)
	}
	return sb.String(), nil
}

func (e *Engine) renderNodes(nodes []blockNode, ctx map[string]any, sb *strings.Builder) error {
	for _, n := range nodes {
		switch b := n.(type) {
		case textBlock:
			sb.WriteString(b.text)
		case printBlock:
			v, err := evalExprNode(b.expr.value, ctx)
			if err != nil {
				return err
			}
			for _, f := range b.expr.filters {
				fn, ok := filters[f.name]
				if !ok {
					return fmt.Errorf("unknown filter %q", f.name)
				}
				args := make([]any, 0, len(f.args))
				for _, a := range f.args {
					av, err := evalExprNode(a, ctx)
					if err != nil {
						return err
					}
					args = append(args, av)
				}
				v, err = fn(v, args)
				if err != nil {
					return err
				}
			}
			s := stringify(v)
			if e.Autoescape {
				s = html.EscapeString(s)
			}
			sb.WriteString(s)
		case ifBlock:
			for _, branch := range b.branches {
				if branch.cond == nil {
					if err := e.renderNodes(branch.body, ctx, sb); err != nil {
						return err
					}
					break
				}
				v, err := evalExprNode(branch.cond, ctx)
				if err != nil {
					return err
				}
				if exprTruthy(v) {
					if err := e.renderNodes(branch.body, ctx, sb); err != nil {
						return err
					}
					break
				}
			}
		case forBlock:
			iterable, err := evalExprNode(b.iterExpr, ctx)
			if err != nil {
				return err
			}
			items, ok := iterable.([]any)
			if !ok {
				return fmt.Errorf("for loop target is not a list")
			}
			for _, item := range items {
				loopCtx := make(map[string]any, len(ctx)+1)
				for k, v := range ctx {
					loopCtx[k] = v
				}
				loopCtx[b.varName] = item
				if err := e.renderNodes(b.body, loopCtx, sb); err != nil {
					return err
				}
			}
		default:
			return fmt.Errorf("unsupported block node")
		}
	}
	return nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%v", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// RenderDataStructure recursively walks data (map, slice, string, scalar),
// rendering every string through Render with ctx as the environment.
// Scalars pass through unchanged; maps and slices are rebuilt with
// rendered children, so a value containing no {{ }} is structurally equal
// to its input.
func (e *Engine) RenderDataStructure(data any, ctx map[string]any) (any, error) {
	switch v := data.(type) {
	case string:
		if !strings.Contains(v, "{{") && !strings.Contains(v, "{%") {
			return v, nil
		}
		return e.Render(v, ctx)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			rv, err := e.RenderDataStructure(val, ctx)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			rv, err := e.RenderDataStructure(val, ctx)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}
