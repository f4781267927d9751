// Package orchestrator drives a validated workflow definition to
// completion, level by level, with a bounded worker pool per level.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/saclot/flowengine/pkg/engine/coordinator"
	engcontext "github.com/saclot/flowengine/pkg/engine/context"
	"github.com/saclot/flowengine/pkg/engine/errs"
	"github.com/saclot/flowengine/pkg/engine/executors"
	"github.com/saclot/flowengine/pkg/engine/model"
	"github.com/saclot/flowengine/pkg/engine/validate"
)

const (
	orchestratorPoolCap    = 10
	defaultRunLevelTimeout = 24 * time.Hour
)

// RunError is the structured failure object embedded in a failed RunResult.
type RunError struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	NodeID    string `json:"node_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// RunResult is what Execute always returns on success or run-time failure;
// Execute's own error return is reserved for programmer-error conditions
// like a nil definition, never for run-time failures.
type RunResult struct {
	Status         string    `json:"status"`
	ExecutionOrder []string  `json:"execution_order,omitempty"`
	CompletedNodes []string  `json:"completed_nodes,omitempty"`
	Error          *RunError `json:"error,omitempty"`
}

// Execute validates def, then drives it to completion. It never panics or
// returns a non-nil error for a run-time failure — those are reflected in
// the returned RunResult's Status/Error fields.
func Execute(ctx context.Context, def *model.Definition) (*RunResult, error) {
	if def == nil {
		return nil, errors.New("orchestrator: nil workflow definition")
	}

	if ok, verr := validate.IsValid(def); !ok {
		return &RunResult{
			Status: "failed",
			Error: &RunError{
				Type:      "ValidationFailed",
				Message:   verr.Error(),
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			},
		}, nil
	}

	ctxMgr := engcontext.New()
	ctxMgr.SetVariables(def.Variables)

	runID := uuid.NewString()
	ctxMgr.SetSection("system", map[string]any{
		"run_id":            runID,
		"uuid":              uuid.NewString(),
		"workflow_id":       def.ID,
		"workflow_name":     def.Name,
		"workflow_version":  def.Version,
		"started_at":        time.Now().UTC().Format(time.RFC3339),
		"total_nodes":       len(def.Nodes),
		"total_edges":       len(def.Edges),
	})

	coord := coordinator.New(runID, ctxMgr)
	rt := executors.NewRuntime(def, coord)

	nodeIDs := make([]string, 0, len(def.Nodes))
	for _, n := range def.Nodes {
		nodeIDs = append(nodeIDs, n.ID)
	}

	levelTimeout := defaultRunLevelTimeout
	if def.Config.LevelTimeout != nil && *def.Config.LevelTimeout > 0 {
		levelTimeout = time.Duration(*def.Config.LevelTimeout * float64(time.Second))
	}

	executed, runErr := rt.RunLevels(ctx, nodeIDs, def.Edges, orchestratorPoolCap, levelTimeout, "orchestrator")

	completed := completedNodeIDs(coord, executed)

	if runErr != nil {
		return &RunResult{
			Status:         "failed",
			Error:          classifyRunError(coord, runErr),
			ExecutionOrder: executed,
			CompletedNodes: completed,
		}, nil
	}

	return &RunResult{
		Status:         "completed",
		ExecutionOrder: executed,
	}, nil
}

func completedNodeIDs(coord *coordinator.Coordinator, executed []string) []string {
	var out []string
	for _, id := range executed {
		if state, ok := coord.GetNodeState(id); ok && state == coordinator.StateSuccess {
			out = append(out, id)
		}
	}
	return out
}

func classifyRunError(coord *coordinator.Coordinator, err error) *RunError {
	now := time.Now().UTC().Format(time.RFC3339)

	var nodeFailed *errs.NodeExecutionFailed
	if errors.As(err, &nodeFailed) {
		return &RunError{Type: "NodeExecutionFailed", Message: nodeFailed.Error(), NodeID: nodeFailed.NodeID, Timestamp: now}
	}
	var levelTimeout *errs.LevelTimeout
	if errors.As(err, &levelTimeout) {
		return &RunError{Type: "LevelTimeout", Message: levelTimeout.Error(), Timestamp: now}
	}
	var forkLimit *errs.ForkLimitExceeded
	if errors.As(err, &forkLimit) {
		return &RunError{Type: "ForkLimitExceeded", Message: forkLimit.Error(), NodeID: forkLimit.PathID, Timestamp: now}
	}
	var halted *errs.WorkflowHalted
	if errors.As(err, &halted) {
		return &RunError{Type: "WorkflowHalted", Message: halted.Error(), Timestamp: now}
	}
	var unsafeExpr *errs.UnsafeExpression
	if errors.As(err, &unsafeExpr) {
		return &RunError{Type: "UnsafeExpression", Message: unsafeExpr.Error(), Timestamp: now}
	}
	var exprErr *errs.ExpressionError
	if errors.As(err, &exprErr) {
		return &RunError{Type: "ExpressionError", Message: exprErr.Error(), Timestamp: now}
	}

	nodeID, _ := coord.LastFailedNodeEvent()
	return &RunError{Type: "NodeExecutionFailed", Message: err.Error(), NodeID: nodeID, Timestamp: now}
}
