package validate_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saclot/flowengine/pkg/engine/model"
	"github.com/saclot/flowengine/pkg/engine/validate"
)

func linearDefinition() *model.Definition {
	return &model.Definition{
		ID:   "wf-1",
		Name: "linear",
		Nodes: []model.Node{
			{ID: "s", Type: "start", Name: "start"},
			{ID: "a", Type: "condition", Name: "a", Config: map[string]any{"expression": "1==1"}},
			{ID: "e", Type: "end", Name: "end"},
		},
		Edges: []model.Edge{
			{Source: "s", Target: "a"},
			{Source: "a", Target: "e", Type: model.EdgeCondition, Condition: true},
		},
	}
}

func TestValidate_HappyPath(t *testing.T) {
	t.Parallel()
	ok, err := validate.IsValid(linearDefinition())
	require.True(t, ok)
	assert.Nil(t, err)
}

func TestValidate_EmptyNodeList(t *testing.T) {
	t.Parallel()
	def := &model.Definition{ID: "wf", Name: "empty"}
	ok, err := validate.IsValid(def)
	require.False(t, ok)
	require.NotNil(t, err)
}

func TestValidate_DuplicateNodeID(t *testing.T) {
	t.Parallel()
	def := linearDefinition()
	def.Nodes = append(def.Nodes, model.Node{ID: "s", Type: "end", Name: "dup"})
	ok, err := validate.IsValid(def)
	require.False(t, ok)
	found := false
	for _, e := range err.Errors {
		if e == "duplicate node id: s" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_SelfLoop(t *testing.T) {
	t.Parallel()
	def := linearDefinition()
	def.Edges = append(def.Edges, model.Edge{Source: "a", Target: "a"})
	ok, _ := validate.IsValid(def)
	assert.False(t, ok)
}

func TestValidate_Cycle(t *testing.T) {
	t.Parallel()
	def := &model.Definition{
		ID:   "wf",
		Name: "cyclic",
		Nodes: []model.Node{
			{ID: "a", Type: "start", Name: "a"},
			{ID: "b", Type: "action", Name: "b"},
			{ID: "c", Type: "action", Name: "c"},
		},
		Edges: []model.Edge{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "c"},
			{Source: "c", Target: "a"},
		},
	}
	ok, err := validate.IsValid(def)
	require.False(t, ok)
	containsCycle := false
	for _, e := range err.Errors {
		if strings.Contains(e, "cycle") {
			containsCycle = true
		}
	}
	assert.True(t, containsCycle)
}

func TestValidate_MissingConfigIsWarningNotError(t *testing.T) {
	t.Parallel()
	def := linearDefinition()
	def.Nodes[1].Config = nil
	ok, err := validate.IsValid(def)
	assert.True(t, ok)
	assert.Nil(t, err)
	r := validate.Validate(def)
	assert.NotEmpty(t, r.Warnings)
}

func TestValidate_StartHasNoIncomingEdges(t *testing.T) {
	t.Parallel()
	def := linearDefinition()
	def.Edges = append(def.Edges, model.Edge{Source: "a", Target: "s"})
	ok, _ := validate.IsValid(def)
	assert.False(t, ok)
}
