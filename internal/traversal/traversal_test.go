package traversal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/metrigraph/internal/graph"
)

func addNode(t *testing.T, g *graph.Graph, id uint32, typ graph.NodeType, name string) {
	t.Helper()
	require.NoError(t, g.AddNode(graph.Node{ID: id, Type: typ, Attrs: graph.Attributes{
		graph.AttrName: graph.StringValue(name),
	}}))
}

func addEdge(t *testing.T, g *graph.Graph, id uint32, kind graph.EdgeKind, from, to, pos uint32) {
	t.Helper()
	require.NoError(t, g.AddEdge(graph.Edge{ID: id, Kind: kind, From: from, To: to, Position: pos}))
}

// diamondGraph builds a logical tree where node 4 is reachable through both
// 2 and 3, plus a physical edge that the logical walk must ignore.
//
//	1 -> 3 (pos 1), 1 -> 2 (pos 0)
//	2 -> 4, 3 -> 4, 3 -> 5
func diamondGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.NewGraph(0)
	addNode(t, g, 1, graph.NodeTypeRoot, LogicalRootName)
	addNode(t, g, 2, graph.NodeTypePackage, "pkg")
	addNode(t, g, 3, graph.NodeTypeModule, "mod")
	addNode(t, g, 4, graph.NodeTypeClass, "Shared")
	addNode(t, g, 5, graph.NodeTypeFunction, "run")
	addNode(t, g, 6, graph.NodeTypeFile, "a.py")

	addEdge(t, g, 1, graph.EdgeKindLogicalTree, 1, 3, 1)
	addEdge(t, g, 2, graph.EdgeKindLogicalTree, 1, 2, 0)
	addEdge(t, g, 3, graph.EdgeKindLogicalTree, 2, 4, 0)
	addEdge(t, g, 4, graph.EdgeKindLogicalTree, 3, 4, 0)
	addEdge(t, g, 5, graph.EdgeKindLogicalTree, 3, 5, 1)
	addEdge(t, g, 6, graph.EdgeKindPhysicalTree, 1, 6, 0)
	return g
}

type recorder struct {
	steps []Step
}

func (r *recorder) VisitNode(step Step) error {
	r.steps = append(r.steps, step)
	return nil
}

func (r *recorder) ids() []uint32 {
	ids := make([]uint32, len(r.steps))
	for i, s := range r.steps {
		ids[i] = s.Node.ID
	}
	return ids
}

func TestWalk_PreorderExactlyOnce(t *testing.T) {
	t.Parallel()

	g := diamondGraph(t)
	root := FindRootByName(g, LogicalRootName)
	require.NotNil(t, root)

	var rec recorder
	require.NoError(t, Walk(context.Background(), g, root, graph.EdgeKindLogicalTree, &rec, nil))

	assert.Equal(t, []uint32{1, 2, 4, 3, 5}, rec.ids())

	shared := rec.steps[2]
	assert.Equal(t, uint32(2), shared.Parent.ID)
	assert.Equal(t, 2, shared.Depth)
	assert.Equal(t, 2, shared.Ordinal)
	assert.Nil(t, rec.steps[0].Parent)
}

func TestWalk_Deterministic(t *testing.T) {
	t.Parallel()

	g := diamondGraph(t)
	root := FindRootByName(g, LogicalRootName)

	var first recorder
	require.NoError(t, Walk(context.Background(), g, root, graph.EdgeKindLogicalTree, &first, nil))

	for i := 0; i < 5; i++ {
		var again recorder
		require.NoError(t, Walk(context.Background(), g, root, graph.EdgeKindLogicalTree, &again, nil))
		assert.Equal(t, first.ids(), again.ids())
	}
}

func TestCountReachable_MatchesVisits(t *testing.T) {
	t.Parallel()

	g := diamondGraph(t)
	root := FindRootByName(g, LogicalRootName)

	for _, kind := range []graph.EdgeKind{graph.EdgeKindLogicalTree, graph.EdgeKindPhysicalTree, graph.EdgeKindCloneTree} {
		var rec recorder
		require.NoError(t, Walk(context.Background(), g, root, kind, &rec, nil))
		assert.Equal(t, len(rec.steps), CountReachable(g, root, kind), kind.String())
	}
	assert.Equal(t, 0, CountReachable(g, nil, graph.EdgeKindLogicalTree))
}

func TestWalk_Cycle(t *testing.T) {
	t.Parallel()

	g := graph.NewGraph(0)
	addNode(t, g, 1, graph.NodeTypeRoot, "r")
	addNode(t, g, 2, graph.NodeTypeDirectory, "d")
	addEdge(t, g, 1, graph.EdgeKindPhysicalTree, 1, 2, 0)
	addEdge(t, g, 2, graph.EdgeKindPhysicalTree, 2, 1, 0)

	var rec recorder
	require.NoError(t, Walk(context.Background(), g, g.Node(1), graph.EdgeKindPhysicalTree, &rec, nil))

	assert.Equal(t, []uint32{1, 2}, rec.ids())
}

func TestWalk_VisitorError(t *testing.T) {
	t.Parallel()

	g := diamondGraph(t)
	root := FindRootByName(g, LogicalRootName)
	cause := errors.New("boom")

	visited := 0
	err := Walk(context.Background(), g, root, graph.EdgeKindLogicalTree, VisitorFunc(func(step Step) error {
		visited++
		if step.Node.ID == 4 {
			return cause
		}
		return nil
	}), nil)

	var te *TraversalError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, uint32(4), te.NodeID)
	assert.Equal(t, graph.EdgeKindLogicalTree, te.Kind)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, visited)
}

func TestWalk_Progress(t *testing.T) {
	t.Parallel()

	g := diamondGraph(t)
	root := FindRootByName(g, LogicalRootName)

	var reported []int
	err := Walk(context.Background(), g, root, graph.EdgeKindLogicalTree, &NodeCounter{}, func(visited int) {
		reported = append(reported, visited)
	})

	require.NoError(t, err)
	assert.Equal(t, []int{5}, reported)
}

func TestWalk_NilRoot(t *testing.T) {
	t.Parallel()

	var rec recorder
	err := Walk(context.Background(), graph.NewGraph(0), nil, graph.EdgeKindLogicalTree, &rec, nil)

	assert.NoError(t, err)
	assert.Empty(t, rec.steps)
}

func TestFindViewRoot(t *testing.T) {
	t.Parallel()

	g := graph.NewGraph(0)
	addNode(t, g, 1, graph.NodeTypeComponent, "core")
	addNode(t, g, 2, graph.NodeTypeRoot, PhysicalRootName)
	addNode(t, g, 3, graph.NodeTypeRoot, CloneRootName)

	t.Run("ComponentRootAbsent", func(t *testing.T) {
		assert.Nil(t, FindViewRoot(g, graph.EdgeKindComponentTree))
		assert.Nil(t, FindComponentRoot(g))
	})

	t.Run("NamedRoots", func(t *testing.T) {
		require.NotNil(t, FindViewRoot(g, graph.EdgeKindPhysicalTree))
		assert.Equal(t, uint32(2), FindViewRoot(g, graph.EdgeKindPhysicalTree).ID)
		assert.Equal(t, uint32(3), FindViewRoot(g, graph.EdgeKindCloneTree).ID)
		assert.Nil(t, FindViewRoot(g, graph.EdgeKindLogicalTree))
		assert.Nil(t, FindViewRoot(g, graph.EdgeKindOther))
	})

	t.Run("SystemComponent", func(t *testing.T) {
		g := graph.NewGraph(0)
		addNode(t, g, 1, graph.NodeTypeRoot, SystemRootName)
		addNode(t, g, 2, graph.NodeTypeComponent, SystemRootName)

		root := FindComponentRoot(g)
		require.NotNil(t, root)
		assert.Equal(t, uint32(2), root.ID)
	})

	t.Run("Predicate", func(t *testing.T) {
		n := FindRoot(g, func(n *graph.Node) bool { return n.Type == graph.NodeTypeRoot })
		require.NotNil(t, n)
		assert.Equal(t, uint32(2), n.ID)
	})
}
