package executors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/saclot/flowengine/pkg/engine/errs"
	"github.com/saclot/flowengine/pkg/engine/expr"
	"github.com/saclot/flowengine/pkg/engine/graph"
	"github.com/saclot/flowengine/pkg/engine/model"
)

const (
	pathPoolCap         = 10
	defaultLevelTimeout = 12 * time.Hour
)

// pathExecutor guards a branch of a fork. If its condition is false, it
// marks everything downstream (not crossing fork-branch edges, so it never
// reaches into a sibling branch) as skipped. If true, it drives that
// downstream subgraph itself, level by level, inline.
type pathExecutor struct{}

func init() {
	Register("path", func(model.Node) (Executor, error) { return pathExecutor{}, nil })
}

func (pathExecutor) Execute(in Inputs) (Outputs, error) {
	cfg, _ := in["config"].(map[string]any)
	nodeID, _ := in["node_id"].(string)

	if direct, ok := cfg["condition"].(bool); ok {
		return Outputs{"condition_met": direct, "condition": direct}, nil
	}
	condition, _ := cfg["condition"].(string)
	met, err := expr.Evaluate(condition)
	if err != nil {
		var unsafe *errs.UnsafeExpression
		var evalErr *errs.ExpressionError
		switch {
		case errors.As(err, &unsafe):
			return nil, unsafe
		case errors.As(err, &evalErr):
			return nil, evalErr
		default:
			return nil, &errs.NodeExecutionFailed{NodeID: nodeID, Cause: fmt.Errorf("path evaluation failed: %w", err)}
		}
	}
	return Outputs{"condition_met": met, "condition": condition}, nil
}

func (pathExecutor) PostExecution(ctx context.Context, rt *Runtime, node model.Node, out Outputs) error {
	met, _ := out["condition_met"].(bool)

	// Never cross a fork-branch edge, so the walk can't reach into a
	// sibling path's subgraph.
	downstream := graph.DownstreamBFS(toGraphEdges(rt.Def.Edges), node.ID, nil)

	if !met {
		for id := range downstream {
			rt.Coordinator.MarkNodeSkipped(id, "path_condition_not_met", map[string]any{"source": node.ID})
		}
		return nil
	}

	if len(downstream) == 0 {
		return nil
	}

	var subEdges []model.Edge
	inSet := func(id string) bool { return downstream[id] }
	for _, e := range rt.Def.Edges {
		if inSet(e.Source) && inSet(e.Target) {
			subEdges = append(subEdges, e)
		}
	}

	levelTimeout := defaultLevelTimeout
	if lt, ok := configFloat(node, "level_timeout"); ok {
		levelTimeout = time.Duration(lt * float64(time.Second))
	}

	// Re-level over the subgraph excluding this path node itself, which has
	// already run.
	subset := make([]string, 0, len(downstream))
	for id := range downstream {
		subset = append(subset, id)
	}

	_, err := rt.RunLevels(ctx, subset, subEdges, pathPoolCap, levelTimeout, "path:"+node.ID)
	return err
}

func toGraphEdges(edges []model.Edge) []graph.Edge {
	out := make([]graph.Edge, 0, len(edges))
	for _, e := range edges {
		if e.Type == model.EdgeForkBranch {
			continue
		}
		out = append(out, graph.Edge{Source: e.Source, Target: e.Target})
	}
	return out
}

func configFloat(node model.Node, key string) (float64, bool) {
	if node.Config == nil {
		return 0, false
	}
	v, ok := node.Config[key].(float64)
	return v, ok
}
