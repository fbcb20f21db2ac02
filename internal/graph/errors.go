package graph

import "errors"

// Sentinel errors for graph construction.
var (
	// ErrNodeNotFound is returned when an edge references a node id that has
	// not been added.
	ErrNodeNotFound = errors.New("node not found")

	// ErrDuplicateNode is returned when a node id is added twice.
	ErrDuplicateNode = errors.New("duplicate node id")

	// ErrDuplicateEdge is returned when an edge id is added twice.
	ErrDuplicateEdge = errors.New("duplicate edge id")

	// ErrReleased is returned when a released graph is modified.
	ErrReleased = errors.New("graph has been released")
)
