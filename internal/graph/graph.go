package graph

import (
	"fmt"
	"sort"
)

// Graph is an in-memory analysis result graph.
//
// Nodes live in one contiguous arena; the arena index is the internal handle
// and node ids from the artifact are mapped onto it. Each tree edge kind has
// its own adjacency list, so overlapping views share nodes without any
// parent/child pointers between them.
//
// Graph is not safe for concurrent use. It is built once by the decoder and
// then only read by a single run. Node pointers returned by lookups stay valid
// until the next AddNode call or Release.
type Graph struct {
	nodes []Node
	index map[uint32]int

	edges   []Edge
	edgeIDs map[uint32]struct{}

	// Secondary indexes, kept in sync by AddNode/AddEdge.
	byType    map[NodeType][]int
	adjacency map[EdgeKind]map[int][]int
	unsorted  map[EdgeKind]bool

	header   map[string]string
	released bool
}

// NewGraph creates an empty graph. capacityHint pre-sizes the node arena and
// may be zero when the node count is not known in advance.
func NewGraph(capacityHint int) *Graph {
	if capacityHint < 0 {
		capacityHint = 0
	}
	return &Graph{
		nodes:     make([]Node, 0, capacityHint),
		index:     make(map[uint32]int, capacityHint),
		edgeIDs:   make(map[uint32]struct{}),
		byType:    make(map[NodeType][]int),
		adjacency: make(map[EdgeKind]map[int][]int),
		unsorted:  make(map[EdgeKind]bool),
		header:    make(map[string]string),
	}
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// AddNode appends a node to the arena.
func (g *Graph) AddNode(n Node) error {
	if g.released {
		return ErrReleased
	}
	if _, exists := g.index[n.ID]; exists {
		return fmt.Errorf("adding node %d: %w", n.ID, ErrDuplicateNode)
	}
	if n.TypeName == "" {
		n.TypeName = n.Type.String()
	}
	if n.Attrs == nil {
		n.Attrs = Attributes{}
	}

	idx := len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.index[n.ID] = idx
	g.byType[n.Type] = append(g.byType[n.Type], idx)
	return nil
}

// AddEdge adds an edge between two existing nodes.
func (g *Graph) AddEdge(e Edge) error {
	if g.released {
		return ErrReleased
	}
	if _, exists := g.edgeIDs[e.ID]; exists {
		return fmt.Errorf("adding edge %d: %w", e.ID, ErrDuplicateEdge)
	}
	from, ok := g.index[e.From]
	if !ok {
		return fmt.Errorf("edge %d source %d: %w", e.ID, e.From, ErrNodeNotFound)
	}
	if _, ok := g.index[e.To]; !ok {
		return fmt.Errorf("edge %d target %d: %w", e.ID, e.To, ErrNodeNotFound)
	}
	if e.KindName == "" {
		e.KindName = e.Kind.String()
	}

	idx := len(g.edges)
	g.edges = append(g.edges, e)
	g.edgeIDs[e.ID] = struct{}{}

	adj := g.adjacency[e.Kind]
	if adj == nil {
		adj = make(map[int][]int)
		g.adjacency[e.Kind] = adj
	}
	adj[from] = append(adj[from], idx)
	g.unsorted[e.Kind] = true
	return nil
}

// Node returns the node with the given id, or nil if it does not exist.
func (g *Graph) Node(id uint32) *Node {
	idx, ok := g.index[id]
	if !ok {
		return nil
	}
	return &g.nodes[idx]
}

// Nodes returns all nodes in arena (insertion) order.
func (g *Graph) Nodes() []*Node {
	result := make([]*Node, len(g.nodes))
	for i := range g.nodes {
		result[i] = &g.nodes[i]
	}
	return result
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge {
	result := make([]Edge, len(g.edges))
	copy(result, g.edges)
	return result
}

// FindNodes returns all nodes of the given type in arena order.
func (g *Graph) FindNodes(t NodeType) []*Node {
	indexes := g.byType[t]
	result := make([]*Node, 0, len(indexes))
	for _, idx := range indexes {
		result = append(result, &g.nodes[idx])
	}
	return result
}

// FindByName returns all nodes whose name attribute equals name, in arena order.
func (g *Graph) FindByName(name string) []*Node {
	var result []*Node
	for i := range g.nodes {
		if g.nodes[i].Name() == name {
			result = append(result, &g.nodes[i])
		}
	}
	return result
}

// Children returns the targets of the node's outgoing edges of the given
// kind, ordered by ascending edge position. Edges with equal positions keep
// their insertion order.
func (g *Graph) Children(id uint32, kind EdgeKind) []*Node {
	from, ok := g.index[id]
	if !ok {
		return nil
	}
	g.sortAdjacency(kind)

	edgeIdxs := g.adjacency[kind][from]
	result := make([]*Node, 0, len(edgeIdxs))
	for _, ei := range edgeIdxs {
		result = append(result, &g.nodes[g.index[g.edges[ei].To]])
	}
	return result
}

// CountEdgesByKind returns the number of edges of the given kind.
func (g *Graph) CountEdgesByKind(kind EdgeKind) int {
	count := 0
	for _, idxs := range g.adjacency[kind] {
		count += len(idxs)
	}
	return count
}

// CountNodesByType returns the number of nodes of the given type.
func (g *Graph) CountNodesByType(t NodeType) int {
	return len(g.byType[t])
}

// SetHeader records an artifact header entry (analyzer name, version, ...).
func (g *Graph) SetHeader(key, value string) {
	if g.released {
		return
	}
	g.header[key] = value
}

// Header returns a copy of the artifact header entries.
func (g *Graph) Header() map[string]string {
	result := make(map[string]string, len(g.header))
	for k, v := range g.header {
		result[k] = v
	}
	return result
}

// Released reports whether Release has been called.
func (g *Graph) Released() bool {
	return g.released
}

// Release drops the arena and all indexes so their memory can be reclaimed.
// The graph is empty and read-only afterwards.
func (g *Graph) Release() {
	g.nodes = nil
	g.index = map[uint32]int{}
	g.edges = nil
	g.edgeIDs = map[uint32]struct{}{}
	g.byType = map[NodeType][]int{}
	g.adjacency = map[EdgeKind]map[int][]int{}
	g.unsorted = map[EdgeKind]bool{}
	g.header = map[string]string{}
	g.released = true
}

// Stats returns a summary of graph size.
func (g *Graph) Stats() map[string]int {
	return map[string]int{
		"nodes": len(g.nodes),
		"edges": len(g.edges),
	}
}

// sortAdjacency orders every adjacency list of kind by edge position.
func (g *Graph) sortAdjacency(kind EdgeKind) {
	if !g.unsorted[kind] {
		return
	}
	for _, idxs := range g.adjacency[kind] {
		sort.SliceStable(idxs, func(i, j int) bool {
			return g.edges[idxs[i]].Position < g.edges[idxs[j]].Position
		})
	}
	g.unsorted[kind] = false
}
