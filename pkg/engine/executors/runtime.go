package executors

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saclot/flowengine/pkg/engine/coordinator"
	"github.com/saclot/flowengine/pkg/engine/errs"
	"github.com/saclot/flowengine/pkg/engine/graph"
	"github.com/saclot/flowengine/pkg/engine/model"
)

// Runtime is the shared state every executor's lifecycle and every
// control-flow executor's subgraph re-entry needs: the full definition,
// the coordinator, and a node-by-id index built once per run.
type Runtime struct {
	Def         *model.Definition
	Coordinator *coordinator.Coordinator

	nodesByID map[string]model.Node
}

// NewRuntime builds a Runtime over def, bound to coord.
func NewRuntime(def *model.Definition, coord *coordinator.Coordinator) *Runtime {
	return &Runtime{
		Def:         def,
		Coordinator: coord,
		nodesByID:   def.NodeByID(),
	}
}

func (rt *Runtime) node(id string) (model.Node, bool) {
	n, ok := rt.nodesByID[id]
	return n, ok
}

// PostExecutor lets a node contribute post-execution scheduling side
// effects: skip marks, nested subgraph runs, loop frame installation.
type PostExecutor interface {
	PostExecution(ctx context.Context, rt *Runtime, node model.Node, out Outputs) error
}

// AdditionalInputsProvider lets a node contribute extra keys to its own
// Inputs beyond the base's node fields and evaluated config.
type AdditionalInputsProvider interface {
	AdditionalInputs(rt *Runtime, node model.Node) map[string]any
}

// RunNode executes the full lifecycle state machine for a single node id:
// start event, skip check, input preparation, execute-with-retry, success
// recording, the post-execution hook and edge routing.
func (rt *Runtime) RunNode(ctx context.Context, nodeID string) error {
	node, ok := rt.node(nodeID)
	if !ok {
		return &errs.UnknownNodeType{Type: "<missing node " + nodeID + ">"}
	}

	rt.Coordinator.RecordEvent("node_started", nodeID, nil)
	rt.Coordinator.SetNodeState(nodeID, coordinator.StateRunning)

	if skipped, entry := rt.Coordinator.IsNodeSkipped(nodeID); skipped {
		rt.Coordinator.RecordEvent("node_skipped", nodeID, map[string]any{"reason": entry.Reason})
		rt.Coordinator.SetNodeState(nodeID, coordinator.StateSuccess)
		rt.Coordinator.SetNodeOutput(nodeID, map[string]any{"skipped": true, "reason": entry.Reason})
		return nil
	}

	exec, err := Create(node)
	if err != nil {
		rt.Coordinator.RecordEvent("node_failed", nodeID, map[string]any{"error": err.Error()})
		rt.Coordinator.SetNodeState(nodeID, coordinator.StateFailed)
		return err
	}

	inputs, err := rt.prepareInputs(node, exec)
	if err != nil {
		rt.Coordinator.RecordEvent("node_failed", nodeID, map[string]any{"error": err.Error()})
		rt.Coordinator.SetNodeState(nodeID, coordinator.StateFailed)
		return err
	}
	rt.Coordinator.SetNodeInput(nodeID, inputs)

	start := time.Now()
	out, execErr := rt.executeWithRetry(ctx, node, exec, inputs)
	if execErr != nil {
		return rt.handleFailure(ctx, node, execErr)
	}
	elapsed := time.Since(start)

	rt.Coordinator.SetNodeOutput(nodeID, out)
	rt.Coordinator.SetNodeState(nodeID, coordinator.StateSuccess)
	rt.Coordinator.RecordEvent("node_completed", nodeID, map[string]any{"duration_ms": elapsed.Milliseconds()})

	if hook, ok := exec.(PostExecutor); ok {
		if err := hook.PostExecution(ctx, rt, node, out); err != nil {
			return rt.handleFailure(ctx, node, err)
		}
	}

	return rt.routeEdges(node, true, nil)
}

// RunInlineNode executes a node that exists only for the duration of its
// parent's own execution (a loop body's child configs, for instance) and
// is never part of the top-level graph: no id lookup, no edge routing, no
// skip-registry participation. A failure propagates straight to the
// caller, matching the plain exception-propagation shape of a nested
// executor invocation.
func (rt *Runtime) RunInlineNode(ctx context.Context, node model.Node) error {
	rt.Coordinator.RecordEvent("node_started", node.ID, nil)
	rt.Coordinator.SetNodeState(node.ID, coordinator.StateRunning)

	exec, err := Create(node)
	if err != nil {
		rt.Coordinator.RecordEvent("node_failed", node.ID, map[string]any{"error": err.Error()})
		rt.Coordinator.SetNodeState(node.ID, coordinator.StateFailed)
		return err
	}

	inputs, err := rt.prepareInputs(node, exec)
	if err != nil {
		rt.Coordinator.RecordEvent("node_failed", node.ID, map[string]any{"error": err.Error()})
		rt.Coordinator.SetNodeState(node.ID, coordinator.StateFailed)
		return err
	}
	rt.Coordinator.SetNodeInput(node.ID, inputs)

	start := time.Now()
	out, execErr := rt.executeWithRetry(ctx, node, exec, inputs)
	if execErr != nil {
		rt.Coordinator.SetNodeState(node.ID, coordinator.StateFailed)
		rt.Coordinator.RecordEvent("node_failed", node.ID, map[string]any{"error": execErr.Error()})
		return execErr
	}
	elapsed := time.Since(start)

	rt.Coordinator.SetNodeOutput(node.ID, out)
	rt.Coordinator.SetNodeState(node.ID, coordinator.StateSuccess)
	rt.Coordinator.RecordEvent("node_completed", node.ID, map[string]any{"duration_ms": elapsed.Milliseconds()})

	if hook, ok := exec.(PostExecutor); ok {
		return hook.PostExecution(ctx, rt, node, out)
	}
	return nil
}

func (rt *Runtime) prepareInputs(node model.Node, exec Executor) (Inputs, error) {
	evaluated, err := rt.Coordinator.Context().EvaluateExpression(map[string]any(node.Config))
	if err != nil {
		return nil, err
	}
	cfg, _ := evaluated.(map[string]any)
	if cfg == nil {
		cfg = map[string]any{}
	}

	in := Inputs{
		"node_id":   node.ID,
		"node_type": node.Type,
		"name":      node.Name,
		"config":    cfg,
	}
	if provider, ok := exec.(AdditionalInputsProvider); ok {
		for k, v := range provider.AdditionalInputs(rt, node) {
			in[k] = v
		}
	}
	return in, nil
}

func (rt *Runtime) executeWithRetry(ctx context.Context, node model.Node, exec Executor, in Inputs) (Outputs, error) {
	maxRetries := 0
	delay := 0.0
	if node.Retry != nil {
		maxRetries = node.Retry.MaxRetries
		delay = node.Retry.DelaySeconds
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		out, err := exec.Execute(in)
		if err == nil {
			return out, nil
		}
		lastErr = err
		var unsafe *errs.UnsafeExpression
		var evalErr *errs.ExpressionError
		if errors.As(err, &unsafe) || errors.As(err, &evalErr) {
			break
		}
		if attempt < maxRetries {
			rt.Coordinator.RecordEvent("node_retry_failed", node.ID, map[string]any{
				"attempt": attempt + 1, "error": err.Error(),
			})
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(delay * float64(time.Second))):
			}
		}
	}
	return nil, &errs.NodeExecutionFailed{NodeID: node.ID, Cause: lastErr}
}

func (rt *Runtime) handleFailure(_ context.Context, node model.Node, execErr error) error {
	hasSuccess, hasError := false, false
	for _, e := range rt.Def.EdgesFrom(node.ID) {
		switch e.Type {
		case model.EdgeSuccess:
			hasSuccess = true
		case model.EdgeError:
			hasError = true
		}
	}

	if hasSuccess || hasError {
		rt.Coordinator.SetNodeOutput(node.ID, map[string]any{"error": execErr.Error()})
		rt.Coordinator.SetNodeState(node.ID, coordinator.StateFailed)
		rt.Coordinator.RecordEvent("node_failed", node.ID, map[string]any{"error": execErr.Error(), "routed": true})
		return rt.routeEdges(node, false, execErr)
	}

	rt.Coordinator.SetNodeState(node.ID, coordinator.StateFailed)
	rt.Coordinator.RecordEvent("node_failed", node.ID, map[string]any{"error": execErr.Error()})

	if node.ErrorHandling != nil && node.ErrorHandling.ContinueOnError {
		slog.Warn("node failed, continuing", "node_id", node.ID, "error", execErr)
		return nil
	}
	return execErr
}

// routeEdges marks the non-taken branch's targets as skipped when the node
// carries typed success/error edges.
func (rt *Runtime) routeEdges(node model.Node, succeeded bool, _ error) error {
	var skipType string
	if succeeded {
		skipType = model.EdgeError
	} else {
		skipType = model.EdgeSuccess
	}
	for _, e := range rt.Def.EdgesFrom(node.ID) {
		if e.Type != skipType {
			continue
		}
		reason := "success_edge_not_taken"
		if succeeded {
			reason = "error_edge_not_taken"
		}
		rt.Coordinator.MarkNodeSkipped(e.Target, reason, map[string]any{"source": node.ID})
	}
	return nil
}

// RunLevels recomputes dependency levels over the given node/edge subset
// and runs each level through a bounded pool, honoring skip marks and
// halting between levels when the coordinator says to. Used by the
// orchestrator for the whole graph and by path/fork for subgraphs.
func (rt *Runtime) RunLevels(ctx context.Context, nodeIDs []string, edges []model.Edge, poolCap int, levelTimeout time.Duration, scope string) (executed []string, err error) {
	graphEdges := make([]graph.Edge, 0, len(edges))
	for _, e := range edges {
		graphEdges = append(graphEdges, graph.Edge{Source: e.Source, Target: e.Target})
	}
	levels := graph.GroupByLevel(graph.DependencyLevels(nodeIDs, graphEdges))

	for _, level := range levels {
		if halt, reason := rt.Coordinator.ShouldHalt(); halt {
			return executed, &errs.WorkflowHalted{Reason: reason}
		}

		runnable := make([]string, 0, len(level))
		for _, id := range level {
			if skipped, _ := rt.Coordinator.IsNodeSkipped(id); skipped {
				continue
			}
			// Already driven by a control-flow node's own subgraph takeover
			// (fork/path/parallel): don't run it again here.
			if _, already := rt.Coordinator.GetNodeState(id); already {
				continue
			}
			runnable = append(runnable, id)
		}
		sort.Strings(runnable)

		if len(runnable) == 0 {
			executed = append(executed, level...)
			continue
		}

		levelCtx, cancel := context.WithTimeout(ctx, levelTimeout)
		g, gctx := errgroup.WithContext(levelCtx)
		cap := poolCap
		if cap > len(runnable) {
			cap = len(runnable)
		}
		if cap < 1 {
			cap = 1
		}
		g.SetLimit(cap)

		for _, id := range runnable {
			id := id
			g.Go(func() error {
				return rt.RunNode(gctx, id)
			})
		}

		waitErr := g.Wait()
		timedOut := levelCtx.Err() == context.DeadlineExceeded
		cancel()
		executed = append(executed, level...)

		if timedOut {
			return executed, &errs.LevelTimeout{Scope: scope, Timeout: levelTimeout.String()}
		}
		if waitErr != nil {
			return executed, waitErr
		}
	}
	return executed, nil
}
