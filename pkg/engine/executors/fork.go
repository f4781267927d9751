package executors

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saclot/flowengine/pkg/engine/errs"
	"github.com/saclot/flowengine/pkg/engine/graph"
	"github.com/saclot/flowengine/pkg/engine/model"
)

const (
	forkPoolCap          = 10
	defaultMaxPerPath    = 50
	defaultMaxTotalNodes = 200
)

// forkExecutor is the entry to N parallel branches, one per outgoing
// fork-branch edge into a child path node.
type forkExecutor struct{}

func init() {
	Register("fork", func(model.Node) (Executor, error) { return forkExecutor{}, nil })
}

func (forkExecutor) Execute(Inputs) (Outputs, error) {
	return Outputs{}, nil
}

func (forkExecutor) PostExecution(ctx context.Context, rt *Runtime, node model.Node, _ Outputs) error {
	var pathIDs []string
	for _, e := range rt.Def.EdgesFrom(node.ID) {
		if e.Type == model.EdgeForkBranch {
			pathIDs = append(pathIDs, e.Target)
		}
	}
	sort.Strings(pathIDs)

	maxPerPath := defaultMaxPerPath
	if v, ok := configFloat(node, "max_nodes_per_path"); ok {
		maxPerPath = int(v)
	}
	maxTotal := defaultMaxTotalNodes
	if v, ok := configFloat(node, "max_total_nodes"); ok {
		maxTotal = int(v)
	}

	totalNodes := 0
	graphEdges := toGraphEdges(rt.Def.Edges)
	pathDownstream := make(map[string]map[string]bool, len(pathIDs))
	for _, pid := range pathIDs {
		downstream := graph.DownstreamBFS(graphEdges, pid, nil)
		pathDownstream[pid] = downstream
		count := len(downstream) + 1
		if count > maxPerPath {
			return &errs.ForkLimitExceeded{PathID: pid, Limit: maxPerPath, Actual: count}
		}
		totalNodes += count
	}
	if totalNodes > maxTotal {
		return &errs.ForkLimitExceeded{Limit: maxTotal, Actual: totalNodes}
	}

	waitForCompletion := true
	if cfg := node.Config; cfg != nil {
		if v, ok := cfg["wait_for_completion"].(bool); ok {
			waitForCompletion = v
		}
	}

	if !waitForCompletion {
		for _, pid := range pathIDs {
			pid := pid
			go func() {
				_ = rt.RunNode(context.Background(), pid)
			}()
		}
		rt.Coordinator.SetNodeOutput(node.ID, map[string]any{
			"type": "fork", "total_paths": len(pathIDs), "status": "started_in_background",
		})
		return nil
	}

	maxWorkers := forkPoolCap
	if v, ok := configFloat(node, "max_workers"); ok && v > 0 {
		maxWorkers = int(v)
	}
	levelTimeout := defaultLevelTimeout
	if v, ok := configFloat(node, "level_timeout"); ok {
		levelTimeout = time.Duration(v * float64(time.Second))
	}

	forkCtx, cancel := context.WithTimeout(ctx, levelTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(forkCtx)
	cap := maxWorkers
	if cap > len(pathIDs) {
		cap = len(pathIDs)
	}
	if cap < 1 {
		cap = 1
	}
	g.SetLimit(cap)

	var mu sync.Mutex
	paths := map[string]any{}
	pathsExecuted := 0

	for _, pid := range pathIDs {
		pid := pid
		g.Go(func() error {
			err := rt.RunNode(gctx, pid)

			conditionMet := false
			status := "completed"
			if err != nil {
				status = fmt.Sprintf("failed: %v", err)
			} else if out, ok := rt.Coordinator.GetNodeOutput(pid); ok {
				conditionMet, _ = out["condition_met"].(bool)
			}

			nodes := map[string]any{}
			for id := range pathDownstream[pid] {
				nodeOut, _ := rt.Coordinator.GetNodeOutput(id)
				nodeState, _ := rt.Coordinator.GetNodeState(id)
				nodes[id] = map[string]any{"status": string(nodeState), "output": nodeOut}
			}

			mu.Lock()
			paths[pid] = map[string]any{"condition_met": conditionMet, "status": status, "nodes": nodes}
			pathsExecuted++
			mu.Unlock()

			if err != nil {
				slog.Warn("fork path failed", "fork", node.ID, "path", pid, "error", err)
			}
			return nil
		})
	}

	waitErr := g.Wait()
	if waitErr == nil && forkCtx.Err() == context.DeadlineExceeded {
		return &errs.LevelTimeout{Scope: "fork:" + node.ID, Timeout: levelTimeout.String()}
	}
	if waitErr != nil {
		return waitErr
	}

	rt.Coordinator.SetNodeOutput(node.ID, map[string]any{
		"type": "fork", "total_paths": len(pathIDs), "paths_executed": pathsExecuted, "paths": paths,
	})
	return nil
}
