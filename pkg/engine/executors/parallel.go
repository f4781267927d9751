package executors

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saclot/flowengine/pkg/engine/errs"
	"github.com/saclot/flowengine/pkg/engine/model"
)

const maxParallelDownstream = 20

// parallelExecutor is a synchronization marker: its post-execution step
// drives its direct downstream nodes concurrently (or fires them off in
// the background), unlike fork which drives nested path subgraphs.
type parallelExecutor struct{}

func init() {
	Register("parallel", func(model.Node) (Executor, error) { return parallelExecutor{}, nil })
}

func (parallelExecutor) Execute(Inputs) (Outputs, error) {
	return Outputs{}, nil
}

func (parallelExecutor) PostExecution(ctx context.Context, rt *Runtime, node model.Node, _ Outputs) error {
	var downstream []string
	for _, e := range rt.Def.EdgesFrom(node.ID) {
		downstream = append(downstream, e.Target)
	}
	sort.Strings(downstream)

	if len(downstream) > maxParallelDownstream {
		return &errs.ForkLimitExceeded{Limit: maxParallelDownstream, Actual: len(downstream)}
	}
	if len(downstream) == 0 {
		rt.Coordinator.SetNodeOutput(node.ID, map[string]any{"type": "parallel", "status": "completed"})
		return nil
	}

	waitForCompletion := true
	if cfg := node.Config; cfg != nil {
		if v, ok := cfg["wait_for_completion"].(bool); ok {
			waitForCompletion = v
		}
	}

	if !waitForCompletion {
		for _, id := range downstream {
			id := id
			go func() {
				_ = rt.RunNode(context.Background(), id)
			}()
		}
		rt.Coordinator.SetNodeOutput(node.ID, map[string]any{
			"type": "parallel", "status": "started_in_background",
		})
		return nil
	}

	cap := maxParallelDownstream
	if cap > len(downstream) {
		cap = len(downstream)
	}
	levelTimeout := defaultLevelTimeout
	if v, ok := configFloat(node, "level_timeout"); ok {
		levelTimeout = time.Duration(v * float64(time.Second))
	}

	parallelCtx, cancel := context.WithTimeout(ctx, levelTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(parallelCtx)
	g.SetLimit(cap)

	var mu sync.Mutex
	statuses := map[string]any{}

	for _, id := range downstream {
		id := id
		g.Go(func() error {
			err := rt.RunNode(gctx, id)
			mu.Lock()
			switch {
			case err == context.Canceled || err == context.DeadlineExceeded:
				statuses[id] = "cancelled"
			case err != nil:
				statuses[id] = fmt.Sprintf("failed: %v", err)
			default:
				statuses[id] = "completed"
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if parallelCtx.Err() == context.DeadlineExceeded {
		return &errs.LevelTimeout{Scope: "parallel:" + node.ID, Timeout: levelTimeout.String()}
	}

	rt.Coordinator.SetNodeOutput(node.ID, map[string]any{
		"type": "parallel", "status": "completed", "nodes": statuses,
	})
	return nil
}
