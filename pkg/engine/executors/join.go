package executors

import (
	"log/slog"
	"sort"

	"github.com/saclot/flowengine/pkg/engine/model"
)

// joinExecutor synchronizes and aggregates the outputs of a prior fork or
// parallel node.
type joinExecutor struct{}

func init() {
	Register("join", func(model.Node) (Executor, error) { return joinExecutor{}, nil })
}

func (joinExecutor) Execute(in Inputs) (Outputs, error) {
	cfg, _ := in["config"].(map[string]any)
	rtAny := in["__runtime__"]
	rt, _ := rtAny.(*Runtime)
	if rt == nil {
		return Outputs{"status": "error"}, nil
	}

	source, _ := cfg["source"].(string)
	strategy, _ := cfg["strategy"].(string)
	if strategy == "" {
		strategy = "merge"
	}
	filter, _ := cfg["filter"].(string)

	sourceOut, _ := rt.Coordinator.GetNodeOutput(source)
	records := extractRecords(sourceOut)
	records = applyJoinFilter(records, filter)

	aggregated, count := aggregate(strategy, records)

	return Outputs{
		"source":     source,
		"strategy":   strategy,
		"aggregated": aggregated,
		"count":      count,
		"status":     "completed",
	}, nil
}

func (joinExecutor) AdditionalInputs(rt *Runtime, _ model.Node) map[string]any {
	return map[string]any{"__runtime__": rt}
}

type joinRecord struct {
	id     string
	status string
	output map[string]any
}

// extractRecords reads a fork or parallel aggregate's recorded output into
// a flat per-node record list. If source refers to a node whose output is
// neither shape, the single output is wrapped as a one-element list with a
// logged warning, preserving the source's own fallback behavior.
func extractRecords(sourceOut map[string]any) []joinRecord {
	if sourceOut == nil {
		return nil
	}

	if typ, _ := sourceOut["type"].(string); typ == "fork" {
		paths, _ := sourceOut["paths"].(map[string]any)
		ids := make([]string, 0, len(paths))
		for id := range paths {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		var out []joinRecord
		for _, pathID := range ids {
			p, _ := paths[pathID].(map[string]any)
			nodes, _ := p["nodes"].(map[string]any)
			nodeIDs := make([]string, 0, len(nodes))
			for id := range nodes {
				nodeIDs = append(nodeIDs, id)
			}
			sort.Strings(nodeIDs)
			for _, nid := range nodeIDs {
				rec, _ := nodes[nid].(map[string]any)
				status, _ := rec["status"].(string)
				output, _ := rec["output"].(map[string]any)
				out = append(out, joinRecord{id: nid, status: status, output: output})
			}
		}
		return out
	}

	if typ, _ := sourceOut["type"].(string); typ == "parallel" {
		statuses, _ := sourceOut["nodes"].(map[string]any)
		ids := make([]string, 0, len(statuses))
		for id := range statuses {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		var out []joinRecord
		for _, id := range ids {
			status, _ := statuses[id].(string)
			out = append(out, joinRecord{id: id, status: status})
		}
		return out
	}

	slog.Warn("join: source is neither a fork nor a parallel aggregate, wrapping single output")
	return []joinRecord{{id: "", status: "completed", output: sourceOut}}
}

func applyJoinFilter(records []joinRecord, filter string) []joinRecord {
	if filter == "" {
		return records
	}
	want := "completed"
	if filter == "failed" {
		want = "failed"
	}
	var out []joinRecord
	for _, r := range records {
		isFailed := len(r.status) >= 6 && r.status[:6] == "failed"
		if want == "failed" && isFailed {
			out = append(out, r)
		} else if want == "completed" && !isFailed {
			out = append(out, r)
		}
	}
	return out
}

func aggregate(strategy string, records []joinRecord) (any, int) {
	switch strategy {
	case "merge":
		out := map[string]any{}
		for _, r := range records {
			if r.id != "" {
				out[r.id] = r.output
			}
		}
		return out, len(records)
	case "list":
		out := make([]any, 0, len(records))
		for _, r := range records {
			out = append(out, map[string]any{"id": r.id, "status": r.status, "output": r.output})
		}
		return out, len(records)
	case "first":
		if len(records) == 0 {
			return nil, 0
		}
		r := records[0]
		return map[string]any{"id": r.id, "status": r.status, "output": r.output}, len(records)
	case "count":
		return len(records), len(records)
	case "outputs":
		out := make([]any, 0, len(records))
		for _, r := range records {
			if r.id != "" {
				out = append(out, map[string]any{r.id: r.output})
			}
		}
		return out, len(records)
	default:
		slog.Warn("join: unknown strategy", "strategy", strategy)
		return nil, len(records)
	}
}
