package traversal

import (
	"context"
	"fmt"
	"time"

	"github.com/Benny93/metrigraph/internal/graph"
)

// progressInterval is how many visits pass between progress callbacks.
const progressInterval = 1000

// Step describes one node visit.
type Step struct {
	// Node is the visited node.
	Node *graph.Node

	// Parent is the node the walk reached Node from, nil for the root.
	Parent *graph.Node

	// Depth is the distance from the root (root = 0).
	Depth int

	// Ordinal is the zero-based visit index within this walk.
	Ordinal int
}

// Visitor receives every node of a walk exactly once. Implementations
// dispatch on Step.Node.Type.
type Visitor interface {
	VisitNode(step Step) error
}

// VisitorFunc adapts a function to the Visitor interface.
type VisitorFunc func(step Step) error

// VisitNode implements Visitor.
func (f VisitorFunc) VisitNode(step Step) error {
	return f(step)
}

// ProgressFunc is called with the number of nodes visited so far.
type ProgressFunc func(visited int)

// TraversalError reports a visitor failure. The walk of that view stops
// at the failing node.
type TraversalError struct {
	Kind   graph.EdgeKind
	NodeID uint32
	Err    error
}

func (e *TraversalError) Error() string {
	return fmt.Sprintf("traversing %s at node %d: %v", e.Kind, e.NodeID, e.Err)
}

// Unwrap returns the visitor's error.
func (e *TraversalError) Unwrap() error {
	return e.Err
}

// Walk visits the subtree below root along kind edges in depth-first
// preorder. Siblings are visited in ascending edge position and every
// reachable node is visited exactly once, even when several paths lead to
// it. A visitor error stops the walk and is returned as *TraversalError.
//
// The context carries the tracing span only; a walk is not cancellable.
func Walk(ctx context.Context, g *graph.Graph, root *graph.Node, kind graph.EdgeKind, v Visitor, progress ProgressFunc) error {
	if root == nil {
		return nil
	}

	_, span := startWalkSpan(ctx, kind, root.ID)
	defer span.End()

	start := time.Now()
	visited := 0
	err := walk(g, root, kind, v, func(n int) {
		visited = n
		if progress != nil && n%progressInterval == 0 {
			progress(n)
		}
	})
	if progress != nil && visited > 0 && visited%progressInterval != 0 {
		progress(visited)
	}

	setWalkSpanResult(span, visited, err)
	recordWalkMetrics(ctx, kind, time.Since(start), visited, err == nil)
	return err
}

type frame struct {
	node   *graph.Node
	parent *graph.Node
	depth  int
}

// walk is the iterative preorder shared by Walk and CountReachable.
// onVisit receives the running visit count after each successful visit.
func walk(g *graph.Graph, root *graph.Node, kind graph.EdgeKind, v Visitor, onVisit func(int)) error {
	visited := make(map[uint32]struct{})
	stack := []frame{{node: root}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, seen := visited[f.node.ID]; seen {
			continue
		}
		visited[f.node.ID] = struct{}{}

		step := Step{Node: f.node, Parent: f.parent, Depth: f.depth, Ordinal: len(visited) - 1}
		if err := v.VisitNode(step); err != nil {
			return &TraversalError{Kind: kind, NodeID: f.node.ID, Err: err}
		}
		if onVisit != nil {
			onVisit(len(visited))
		}

		// Push in reverse so the lowest position is popped first.
		children := g.Children(f.node.ID, kind)
		for i := len(children) - 1; i >= 0; i-- {
			child := children[i]
			if _, seen := visited[child.ID]; seen {
				continue
			}
			stack = append(stack, frame{node: child, parent: f.node, depth: f.depth + 1})
		}
	}
	return nil
}
