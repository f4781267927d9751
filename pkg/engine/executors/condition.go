package executors

import (
	"context"
	"errors"
	"fmt"

	"github.com/saclot/flowengine/pkg/engine/errs"
	"github.com/saclot/flowengine/pkg/engine/expr"
	"github.com/saclot/flowengine/pkg/engine/model"
)

// conditionExecutor evaluates a boolean expression and, in post-execution,
// marks the non-taken branch of its typed condition edges as skipped.
type conditionExecutor struct{}

func init() {
	Register("condition", func(model.Node) (Executor, error) { return conditionExecutor{}, nil })
}

func (conditionExecutor) Execute(in Inputs) (Outputs, error) {
	cfg, _ := in["config"].(map[string]any)
	nodeID, _ := in["node_id"].(string)

	if direct, ok := cfg["expression"].(bool); ok {
		return Outputs{"result": direct}, nil
	}
	expression, _ := cfg["expression"].(string)
	result, err := expr.Evaluate(expression)
	if err != nil {
		var unsafe *errs.UnsafeExpression
		var evalErr *errs.ExpressionError
		switch {
		case errors.As(err, &unsafe):
			return nil, unsafe
		case errors.As(err, &evalErr):
			return nil, evalErr
		default:
			return nil, &errs.NodeExecutionFailed{NodeID: nodeID, Cause: fmt.Errorf("condition evaluation failed: %w", err)}
		}
	}
	return Outputs{"result": result}, nil
}

func (conditionExecutor) PostExecution(_ context.Context, rt *Runtime, node model.Node, out Outputs) error {
	result, _ := out["result"].(bool)
	for _, e := range rt.Def.EdgesFrom(node.ID) {
		if e.Type != model.EdgeCondition {
			continue
		}
		want, _ := e.Condition.(bool)
		if want != result {
			rt.Coordinator.MarkNodeSkipped(e.Target, "condition_not_met", map[string]any{"source": node.ID})
		}
	}
	return nil
}
