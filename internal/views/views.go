// Package views rebuilds the component, logical, physical and clone trees
// from an analysis graph. Each view has its own accumulator: a traversal
// visitor that maps graph nodes to host resources, picks up the metric
// values carried as node attributes and, for the clone view, groups clone
// classes per file.
//
// Accumulators hold disjoint state. A node whose type is not relevant to a
// view creates no resource; its descendants attach to the nearest ancestor
// that did.
package views

import (
	"fmt"
	"log/slog"

	"github.com/Benny93/metrigraph/internal/host"
	"github.com/Benny93/metrigraph/internal/metrics"
	"github.com/Benny93/metrigraph/internal/resource"
	"github.com/Benny93/metrigraph/internal/traversal"
)

// ReasonUnmappedPath is the Skip reason for paths the file system does not
// know.
const ReasonUnmappedPath = "unmapped path"

// Config is shared by all accumulators.
type Config struct {
	// Project is the host project key.
	Project string

	// Registry decides which numeric attributes are metrics. Nil publishes
	// no measures.
	Registry *metrics.Registry

	// FileSystem reconciles analyzer paths. Required by the physical and
	// clone views.
	FileSystem host.FileSystem

	// Incremental suppresses findings and disables the clone view.
	Incremental bool

	// Capacity pre-sizes accumulator state, usually the node count of the
	// view's subtree.
	Capacity int

	// Logger receives diagnostics. Nil uses slog.Default().
	Logger *slog.Logger
}

// Accumulator collects one view while the traversal engine walks it.
type Accumulator interface {
	traversal.Visitor

	// View names the tree the accumulator builds.
	View() resource.View

	// Finish hands over the accumulated result. It may be called once,
	// after the walk has completed.
	Finish() (*Result, error)
}

// Skip records a node that was deliberately left out of a view.
type Skip struct {
	NodeID uint32
	Path   string
	Reason string
}

// Result is what an accumulator hands to the host.
type Result struct {
	View     resource.View
	Tree     *resource.Tree
	Measures []resource.Measure
	Findings []resource.Finding
	Skipped  []Skip

	// UnknownNodes counts visited nodes of a type the importer does not know.
	UnknownNodes int

	// Duplications is set by the clone view only.
	Duplications *DuplicationRecords
}

// New returns the accumulator for view.
func New(view resource.View, cfg Config) (Accumulator, error) {
	switch view {
	case resource.ViewComponent:
		return NewComponent(cfg), nil
	case resource.ViewLogical:
		return NewLogical(cfg), nil
	case resource.ViewPhysical:
		return NewPhysical(cfg)
	case resource.ViewClone:
		return NewClone(cfg)
	default:
		return nil, fmt.Errorf("creating accumulator %q: %w", view, ErrUnknownView)
	}
}
