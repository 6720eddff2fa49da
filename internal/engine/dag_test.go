package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh/flowmesh/pkg/schema"
)

// --- helpers ---

func libNode(id string) schema.Node {
	return schema.Node{ID: id, Type: "core.log"}
}

func edges(pairs ...[2]string) []schema.Edge {
	out := make([]schema.Edge, len(pairs))
	for i, p := range pairs {
		out[i] = schema.Edge{Source: p[0], Target: p[1]}
	}
	return out
}

func TestBuildDAG_EmptyWorkflow(t *testing.T) {
	_, err := BuildDAG(nil, nil)
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeEmptyWorkflow, fe.Code)
}

func TestBuildDAG_DuplicateNodeID(t *testing.T) {
	_, err := BuildDAG([]schema.Node{libNode("a"), libNode("a")}, nil)
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
}

func TestBuildDAG_UnknownEdgeEndpoint(t *testing.T) {
	_, err := BuildDAG([]schema.Node{libNode("a")}, edges([2]string{"a", "ghost"}))
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeValidation, fe.Code)
	assert.Contains(t, fe.Message, "ghost")
}

func TestBuildDAG_SelfLoop(t *testing.T) {
	_, err := BuildDAG([]schema.Node{libNode("a")}, edges([2]string{"a", "a"}))
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeCycleDetected, fe.Code)
}

func TestBuildDAG_CycleDetected(t *testing.T) {
	nodes := []schema.Node{libNode("a"), libNode("b"), libNode("c")}
	_, err := BuildDAG(nodes, edges(
		[2]string{"a", "b"},
		[2]string{"b", "c"},
		[2]string{"c", "a"},
	))
	require.Error(t, err)
	var fe *schema.FlowError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, schema.ErrCodeCycleDetected, fe.Code)
}

func TestBuildDAG_TopologicalInvariant(t *testing.T) {
	nodes := []schema.Node{libNode("d"), libNode("b"), libNode("a"), libNode("c")}
	es := edges(
		[2]string{"a", "b"},
		[2]string{"a", "c"},
		[2]string{"b", "d"},
		[2]string{"c", "d"},
	)
	dag, err := BuildDAG(nodes, es)
	require.NoError(t, err)
	require.Len(t, dag.Sorted, 4)

	pos := make(map[string]int, len(dag.Sorted))
	for i, id := range dag.Sorted {
		pos[id] = i
	}
	for _, e := range es {
		assert.Less(t, pos[e.Source], pos[e.Target],
			"edge %s->%s violates order %s", e.Source, e.Target, describeOrder(dag.Sorted))
	}
}

func TestBuildDAG_DeterministicRootOrder(t *testing.T) {
	nodes := []schema.Node{libNode("z"), libNode("m"), libNode("a")}
	for i := 0; i < 10; i++ {
		dag, err := BuildDAG(nodes, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "m", "z"}, dag.Sorted)
	}
}

func TestBuildDAG_Levels(t *testing.T) {
	nodes := []schema.Node{libNode("a"), libNode("b"), libNode("c"), libNode("d")}
	dag, err := BuildDAG(nodes, edges(
		[2]string{"a", "b"},
		[2]string{"a", "c"},
		[2]string{"b", "d"},
		[2]string{"c", "d"},
	))
	require.NoError(t, err)

	require.Len(t, dag.Levels, 3)
	assert.Equal(t, []string{"a"}, dag.Levels[0])
	assert.ElementsMatch(t, []string{"b", "c"}, dag.Levels[1])
	assert.Equal(t, []string{"d"}, dag.Levels[2])
}

func TestBuildDAG_PredsKeepEdgeDeclarationOrder(t *testing.T) {
	nodes := []schema.Node{libNode("p2"), libNode("p1"), libNode("n")}
	dag, err := BuildDAG(nodes, edges(
		[2]string{"p1", "n"},
		[2]string{"p2", "n"},
	))
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, dag.Preds["n"])
}

func TestDAG_Terminals(t *testing.T) {
	nodes := []schema.Node{libNode("a"), libNode("b"), libNode("c")}
	dag, err := BuildDAG(nodes, edges(
		[2]string{"a", "b"},
		[2]string{"a", "c"},
	))
	require.NoError(t, err)

	executed := map[string]bool{"a": true, "b": true, "c": true}
	assert.ElementsMatch(t, []string{"b", "c"}, dag.Terminals(executed))

	// With c unexecuted, only b is terminal.
	executed = map[string]bool{"a": true, "b": true}
	assert.Equal(t, []string{"b"}, dag.Terminals(executed))
}

func TestBuildDAG_KindDefaulting(t *testing.T) {
	nodes := []schema.Node{
		{ID: "lib", Type: "core.log"},
		{ID: "custom", CustomCode: "return 1;"},
	}
	dag, err := BuildDAG(nodes, nil)
	require.NoError(t, err)
	assert.Equal(t, schema.NodeKindLibrary, dag.Nodes["lib"].Kind)
	assert.Equal(t, schema.NodeKindCustom, dag.Nodes["custom"].Kind)
}
