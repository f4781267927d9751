package executors

import (
	"context"

	"github.com/saclot/flowengine/pkg/engine/model"
)

// loopExecutor iterates config.items, running its declared child node
// configs sequentially once per item with a loop frame installed in the
// context. Child nodes are inline config objects under config.nodes, not
// ids into the top-level graph — the validator and scheduler never see
// them, so they carry no edges and need no start-reachability of their
// own. An empty or missing items list is valid and produces zero
// iterations with no error.
type loopExecutor struct{}

func init() {
	Register("loop", func(model.Node) (Executor, error) { return loopExecutor{}, nil })
}

func (loopExecutor) Execute(in Inputs) (Outputs, error) {
	cfg, _ := in["config"].(map[string]any)
	rtAny := in["__runtime__"]
	rt, _ := rtAny.(*Runtime)

	itemsAny, _ := cfg["items"].([]any)
	alias, _ := cfg["alias"].(string)
	if alias == "" {
		alias = "item"
	}
	childConfigsAny, _ := cfg["nodes"].([]any)
	childNodes := make([]model.Node, 0, len(childConfigsAny))
	for _, c := range childConfigsAny {
		if raw, ok := c.(map[string]any); ok {
			childNodes = append(childNodes, inlineNodeFromConfig(raw))
		}
	}

	results := make([]any, 0, len(itemsAny))
	if rt == nil {
		return Outputs{"results": results, "total_iterations": 0}, nil
	}

	ctx := context.Background()
	for i, item := range itemsAny {
		frame := map[string]any{
			"item":     item,
			alias:      item,
			"index":    i,
			"len":      len(itemsAny),
			"is_first": i == 0,
			"is_last":  i == len(itemsAny)-1,
		}
		rt.Coordinator.Context().SetLoopFrame(frame)

		childOutputs := map[string]any{}
		for _, child := range childNodes {
			if err := rt.RunInlineNode(ctx, child); err != nil {
				childOutputs[child.ID] = map[string]any{"error": err.Error()}
				continue
			}
			out, _ := rt.Coordinator.GetNodeOutput(child.ID)
			childOutputs[child.ID] = out
		}

		results = append(results, map[string]any{
			"index":   i,
			"item":    item,
			"outputs": childOutputs,
		})
	}
	rt.Coordinator.Context().ClearLoop()

	return Outputs{"results": results, "total_iterations": len(itemsAny)}, nil
}

func (loopExecutor) AdditionalInputs(rt *Runtime, _ model.Node) map[string]any {
	return map[string]any{"__runtime__": rt}
}

// inlineNodeFromConfig builds a model.Node from a raw {id, type, name,
// config} map the way a loop body's child declarations are shaped — these
// never come through JSON unmarshaling into model.Node directly because
// they live inside another node's own config map.
func inlineNodeFromConfig(raw map[string]any) model.Node {
	n := model.Node{}
	if id, ok := raw["id"].(string); ok {
		n.ID = id
	}
	if typ, ok := raw["type"].(string); ok {
		n.Type = typ
	}
	if name, ok := raw["name"].(string); ok {
		n.Name = name
	}
	if cfg, ok := raw["config"].(map[string]any); ok {
		n.Config = cfg
	}
	return n
}
