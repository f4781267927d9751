package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saclot/flowengine/pkg/engine/graph"
)

func TestTopologicalOrder_Linear(t *testing.T) {
	t.Parallel()

	nodes := []string{"s", "a", "e"}
	edges := []graph.Edge{{Source: "s", Target: "a"}, {Source: "a", Target: "e"}}

	order, err := graph.TopologicalOrder(nodes, edges)
	require.NoError(t, err)
	assert.Equal(t, []string{"s", "a", "e"}, order)
}

func TestTopologicalOrder_Diamond(t *testing.T) {
	t.Parallel()

	nodes := []string{"s", "l", "r", "j"}
	edges := []graph.Edge{
		{Source: "s", Target: "l"},
		{Source: "s", Target: "r"},
		{Source: "l", Target: "j"},
		{Source: "r", Target: "j"},
	}

	order, err := graph.TopologicalOrder(nodes, edges)
	require.NoError(t, err)

	index := make(map[string]int, len(order))
	for i, id := range order {
		index[id] = i
	}
	for _, e := range edges {
		assert.Less(t, index[e.Source], index[e.Target], "edge %s->%s out of order", e.Source, e.Target)
	}
}

func TestTopologicalOrder_Cycle(t *testing.T) {
	t.Parallel()

	nodes := []string{"a", "b", "c"}
	edges := []graph.Edge{
		{Source: "a", Target: "b"},
		{Source: "b", Target: "c"},
		{Source: "c", Target: "a"},
	}

	_, err := graph.TopologicalOrder(nodes, edges)
	require.Error(t, err)

	var cycleErr *graph.CycleError
	require.ErrorAs(t, err, &cycleErr)
	require.NotEmpty(t, cycleErr.Path)
	assert.Equal(t, cycleErr.Path[0], cycleErr.Path[len(cycleErr.Path)-1])
}

func TestDependencyLevels(t *testing.T) {
	t.Parallel()

	nodes := []string{"s", "l", "r", "j"}
	edges := []graph.Edge{
		{Source: "s", Target: "l"},
		{Source: "s", Target: "r"},
		{Source: "l", Target: "j"},
		{Source: "r", Target: "j"},
	}

	levels := graph.DependencyLevels(nodes, edges)
	assert.Equal(t, 0, levels["s"])
	assert.Equal(t, 1, levels["l"])
	assert.Equal(t, 1, levels["r"])
	assert.Equal(t, 2, levels["j"])
}

func TestDependencyLevels_LongestPathWins(t *testing.T) {
	t.Parallel()

	// a -> b -> d, a -> c -> x -> d : d should sit at level 3, not 2.
	nodes := []string{"a", "b", "c", "x", "d"}
	edges := []graph.Edge{
		{Source: "a", Target: "b"},
		{Source: "b", Target: "d"},
		{Source: "a", Target: "c"},
		{Source: "c", Target: "x"},
		{Source: "x", Target: "d"},
	}

	levels := graph.DependencyLevels(nodes, edges)
	assert.Equal(t, 3, levels["d"])
}

func TestGroupByLevel(t *testing.T) {
	t.Parallel()

	levels := map[string]int{"a": 0, "b": 1, "c": 1, "d": 2}
	groups := graph.GroupByLevel(levels)
	require.Len(t, groups, 3)
	assert.Equal(t, []string{"a"}, groups[0])
	assert.Equal(t, []string{"b", "c"}, groups[1])
	assert.Equal(t, []string{"d"}, groups[2])
}

func TestReachability(t *testing.T) {
	t.Parallel()

	nodes := []string{"s", "a", "b", "isolated"}
	edges := []graph.Edge{{Source: "s", Target: "a"}, {Source: "a", Target: "b"}}

	reachable := graph.ReachableFrom(nodes, edges, "s")
	assert.True(t, reachable["a"])
	assert.True(t, reachable["b"])
	assert.False(t, reachable["isolated"])

	unreachable := graph.UnreachableFrom(nodes, edges, "s")
	assert.Equal(t, []string{"isolated"}, unreachable)

	reaching := graph.NodesReaching(nodes, edges, "b")
	assert.True(t, reaching["a"])
	assert.True(t, reaching["s"])
	assert.False(t, reaching["b"])
}

func TestShortestPath(t *testing.T) {
	t.Parallel()

	nodes := []string{"a", "b", "c", "d"}
	edges := []graph.Edge{
		{Source: "a", Target: "b"},
		{Source: "b", Target: "d"},
		{Source: "a", Target: "c"},
		{Source: "c", Target: "d"},
	}

	path, ok := graph.ShortestPath(nodes, edges, "a", "d")
	require.True(t, ok)
	assert.Len(t, path, 3)
	assert.Equal(t, "a", path[0])
	assert.Equal(t, "d", path[len(path)-1])

	_, ok = graph.ShortestPath(nodes, edges, "d", "a")
	assert.False(t, ok)
}

func TestDownstreamBFS_SkipsForkBranchEdges(t *testing.T) {
	t.Parallel()

	edges := []graph.Edge{
		{Source: "fork", Target: "p1"},
		{Source: "fork", Target: "p2"},
		{Source: "p1", Target: "a"},
	}

	down := graph.DownstreamBFS(edges, "fork", func(e graph.Edge) bool {
		return e.Source == "fork"
	})
	assert.Empty(t, down)
}
