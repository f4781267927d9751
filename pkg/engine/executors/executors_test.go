package executors_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tcontext "github.com/saclot/flowengine/pkg/engine/context"
	"github.com/saclot/flowengine/pkg/engine/coordinator"
	"github.com/saclot/flowengine/pkg/engine/executors"
	"github.com/saclot/flowengine/pkg/engine/model"
)

func TestCreate_UnknownType(t *testing.T) {
	t.Parallel()
	_, err := executors.Create(model.Node{ID: "x", Type: "not-a-real-type"})
	require.Error(t, err)
}

func TestCreate_KnownTypesRegistered(t *testing.T) {
	t.Parallel()
	for _, typ := range []string{"start", "end", "trigger", "condition", "path", "fork", "join", "parallel", "loop", "http_request", "human_task"} {
		assert.True(t, executors.IsRegistered(typ), "expected %s to be registered", typ)
	}
}

func TestRunNode_ConditionSkipsNonTakenBranch(t *testing.T) {
	t.Parallel()
	def := &model.Definition{
		Nodes: []model.Node{
			{ID: "a", Type: "condition", Config: map[string]any{"expression": "1==2"}},
			{ID: "onTrue", Type: "end"},
			{ID: "onFalse", Type: "end"},
		},
		Edges: []model.Edge{
			{Source: "a", Target: "onTrue", Type: model.EdgeCondition, Condition: true},
			{Source: "a", Target: "onFalse", Type: model.EdgeCondition, Condition: false},
		},
	}
	mgr := tcontext.New()
	coord := coordinator.New("run-1", mgr)
	rt := executors.NewRuntime(def, coord)

	require.NoError(t, rt.RunNode(context.Background(), "a"))

	skipped, entry := coord.IsNodeSkipped("onTrue")
	assert.True(t, skipped)
	assert.Equal(t, "condition_not_met", entry.Reason)

	skipped, _ = coord.IsNodeSkipped("onFalse")
	assert.False(t, skipped)
}

func TestRunNode_Sentinel(t *testing.T) {
	t.Parallel()
	def := &model.Definition{Nodes: []model.Node{{ID: "s", Type: "start"}}}
	mgr := tcontext.New()
	coord := coordinator.New("run-2", mgr)
	rt := executors.NewRuntime(def, coord)

	require.NoError(t, rt.RunNode(context.Background(), "s"))
	state, ok := coord.GetNodeState("s")
	require.True(t, ok)
	assert.Equal(t, coordinator.StateSuccess, state)
}

func TestRunNode_SkippedNodeNeverExecutes(t *testing.T) {
	t.Parallel()
	def := &model.Definition{Nodes: []model.Node{{ID: "s", Type: "start"}}}
	mgr := tcontext.New()
	coord := coordinator.New("run-3", mgr)
	coord.MarkNodeSkipped("s", "manual", nil)
	rt := executors.NewRuntime(def, coord)

	require.NoError(t, rt.RunNode(context.Background(), "s"))
	out, ok := coord.GetNodeOutput("s")
	require.True(t, ok)
	assert.Equal(t, true, out["skipped"])
}
