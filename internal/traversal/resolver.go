// Package traversal locates view roots in an analysis graph and walks the
// subtree below them along one tree edge kind.
package traversal

import (
	"github.com/Benny93/metrigraph/internal/graph"
)

// Well-known root names written by the analyzer.
const (
	SystemRootName   = "<System>"
	LogicalRootName  = "__LogicalRoot__"
	PhysicalRootName = "__PhysicalRoot__"
	CloneRootName    = "__CloneRoot__"
)

// Predicate selects nodes during root lookup.
type Predicate func(n *graph.Node) bool

// FindRoot returns the first node in arena order satisfying pred, or nil.
// A nil result is a lookup miss, not an error.
func FindRoot(g *graph.Graph, pred Predicate) *graph.Node {
	for _, n := range g.Nodes() {
		if pred(n) {
			return n
		}
	}
	return nil
}

// FindRootByName returns the first node whose name attribute equals name.
func FindRootByName(g *graph.Graph, name string) *graph.Node {
	return FindRoot(g, func(n *graph.Node) bool {
		return n.Name() == name
	})
}

// FindComponentRoot returns the Component node named "<System>". It is
// absent when component analysis was not requested.
func FindComponentRoot(g *graph.Graph) *graph.Node {
	for _, n := range g.FindNodes(graph.NodeTypeComponent) {
		if n.Name() == SystemRootName {
			return n
		}
	}
	return nil
}

// FindViewRoot returns the root node of the tree carried by kind.
func FindViewRoot(g *graph.Graph, kind graph.EdgeKind) *graph.Node {
	switch kind {
	case graph.EdgeKindComponentTree:
		return FindComponentRoot(g)
	case graph.EdgeKindLogicalTree:
		return FindRootByName(g, LogicalRootName)
	case graph.EdgeKindPhysicalTree:
		return FindRootByName(g, PhysicalRootName)
	case graph.EdgeKindCloneTree:
		return FindRootByName(g, CloneRootName)
	default:
		return nil
	}
}

// NodeCounter is a Visitor that only counts visits.
type NodeCounter struct {
	Count int
}

// VisitNode implements Visitor.
func (c *NodeCounter) VisitNode(Step) error {
	c.Count++
	return nil
}

// CountReachable returns the number of nodes reachable from root along kind
// edges, root included. It walks the same order as Walk, so the result
// equals the number of VisitNode calls Walk makes for the same root and kind.
// It has no side effects and records no telemetry.
func CountReachable(g *graph.Graph, root *graph.Node, kind graph.EdgeKind) int {
	if root == nil {
		return 0
	}
	var counter NodeCounter
	// NodeCounter never fails.
	_ = walk(g, root, kind, &counter, nil)
	return counter.Count
}
