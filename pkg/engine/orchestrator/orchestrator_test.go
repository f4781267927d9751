package orchestrator_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saclot/flowengine/pkg/engine/model"
	"github.com/saclot/flowengine/pkg/engine/orchestrator"
)

func TestExecute_Linear(t *testing.T) {
	t.Parallel()
	def := &model.Definition{
		ID:   "wf-linear",
		Name: "linear",
		Nodes: []model.Node{
			{ID: "s", Type: "start"},
			{ID: "a", Type: "condition", Config: map[string]any{"expression": "1==1"}},
			{ID: "e", Type: "end"},
		},
		Edges: []model.Edge{
			{Source: "s", Target: "a"},
			{Source: "a", Target: "e", Type: model.EdgeCondition, Condition: true},
		},
	}

	result, err := orchestrator.Execute(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, []string{"s", "a", "e"}, result.ExecutionOrder)
}

func TestExecute_Diamond(t *testing.T) {
	t.Parallel()
	def := &model.Definition{
		ID:   "wf-diamond",
		Name: "diamond",
		Nodes: []model.Node{
			{ID: "s", Type: "start"},
			{ID: "L", Type: "condition", Config: map[string]any{"expression": "2>1"}},
			{ID: "R", Type: "condition", Config: map[string]any{"expression": "2<1"}},
			{ID: "j", Type: "end"},
		},
		Edges: []model.Edge{
			{Source: "s", Target: "L"},
			{Source: "s", Target: "R"},
			{Source: "L", Target: "j", Type: model.EdgeCondition, Condition: true},
			{Source: "R", Target: "j", Type: model.EdgeCondition, Condition: true},
		},
	}

	result, err := orchestrator.Execute(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, "completed", result.Status)
}

func TestExecute_Cycle(t *testing.T) {
	t.Parallel()
	def := &model.Definition{
		ID:   "wf-cycle",
		Name: "cyclic",
		Nodes: []model.Node{
			{ID: "a", Type: "start"},
			{ID: "b", Type: "action"},
			{ID: "c", Type: "action"},
		},
		Edges: []model.Edge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "c"},
			{Source: "c", Target: "a"},
		},
	}

	result, err := orchestrator.Execute(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, "failed", result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, "ValidationFailed", result.Error.Type)
	assert.Empty(t, result.ExecutionOrder)
}

func TestExecute_Loop(t *testing.T) {
	t.Parallel()
	def := &model.Definition{
		ID:   "wf-loop",
		Name: "loop",
		Nodes: []model.Node{
			{ID: "s", Type: "start"},
			{ID: "lp", Type: "loop", Config: map[string]any{
				"items": []any{"x", "y", "z"},
				"alias": "item",
				"nodes": []any{
					map[string]any{
						"id":     "chk",
						"type":   "condition",
						"config": map[string]any{"expression": "'{{loop.item}}' == 'y'"},
					},
				},
			}},
			{ID: "e", Type: "end"},
		},
		Edges: []model.Edge{
			{Source: "s", Target: "lp"},
			{Source: "lp", Target: "e"},
		},
	}

	result, err := orchestrator.Execute(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, "completed", result.Status)
}

func TestExecute_ErrorRouting(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	def := &model.Definition{
		ID:   "wf-error-routing",
		Name: "error-routing",
		Nodes: []model.Node{
			{ID: "s", Type: "start"},
			{ID: "A", Type: "http_request", Config: map[string]any{"method": "GET", "url": server.URL}},
			{ID: "B", Type: "end"},
			{ID: "C", Type: "end"},
		},
		Edges: []model.Edge{
			{Source: "s", Target: "A"},
			{Source: "A", Target: "B", Type: model.EdgeError},
			{Source: "A", Target: "C", Type: model.EdgeSuccess},
		},
	}

	result, err := orchestrator.Execute(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, "completed", result.Status)
}

func TestExecute_ForkJoin(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	def := &model.Definition{
		ID:   "wf-fork-join",
		Name: "fork-join",
		Nodes: []model.Node{
			{ID: "s", Type: "start"},
			{ID: "f", Type: "fork"},
			{ID: "p1", Type: "path", Config: map[string]any{"condition": "true"}},
			{ID: "p2", Type: "path", Config: map[string]any{"condition": "true"}},
			{ID: "p3", Type: "path", Config: map[string]any{"condition": "true"}},
			{ID: "h1", Type: "http_request", Config: map[string]any{"method": "GET", "url": server.URL}},
			{ID: "h2", Type: "http_request", Config: map[string]any{"method": "GET", "url": server.URL}},
			{ID: "h3", Type: "http_request", Config: map[string]any{"method": "GET", "url": server.URL}},
			{ID: "j", Type: "join", Config: map[string]any{"source": "f", "strategy": "merge"}},
		},
		Edges: []model.Edge{
			{Source: "s", Target: "f"},
			{Source: "f", Target: "p1", Type: model.EdgeForkBranch},
			{Source: "f", Target: "p2", Type: model.EdgeForkBranch},
			{Source: "f", Target: "p3", Type: model.EdgeForkBranch},
			{Source: "p1", Target: "h1"},
			{Source: "p2", Target: "h2"},
			{Source: "p3", Target: "h3"},
			{Source: "f", Target: "j"},
		},
	}

	result, err := orchestrator.Execute(context.Background(), def)
	require.NoError(t, err)
	assert.Equal(t, "completed", result.Status)
}
