package views

import (
	"fmt"
	"log/slog"

	"github.com/Benny93/metrigraph/internal/graph"
	"github.com/Benny93/metrigraph/internal/resource"
	"github.com/Benny93/metrigraph/internal/traversal"
)

// ReasonOrphanInstance is the Skip reason for a clone instance that is not
// below any clone class.
const ReasonOrphanInstance = "clone instance outside clone class"

// Clone groups clone classes per file. Each CloneInstance below a
// CloneClass adds the class id to the record of the file the instance is
// located in. The clone view builds no resources.
type Clone struct {
	base

	records *DuplicationRecords

	// classes maps visited nodes to the id of the enclosing clone class.
	classes map[uint32]string
}

// NewClone creates the clone view accumulator. It cannot be created in
// incremental mode.
func NewClone(cfg Config) (*Clone, error) {
	if cfg.Incremental {
		return nil, fmt.Errorf("creating clone view: %w", ErrViewDisabled)
	}
	if cfg.FileSystem == nil {
		return nil, fmt.Errorf("creating clone view: %w", ErrNoFileSystem)
	}
	return &Clone{
		base:    newBase(resource.ViewClone, cfg),
		records: NewDuplicationRecords(),
		classes: make(map[uint32]string),
	}, nil
}

// VisitNode implements traversal.Visitor.
func (c *Clone) VisitNode(step traversal.Step) error {
	if err := c.visitable(); err != nil {
		return err
	}

	n := step.Node
	enclosing := ""
	if step.Parent != nil {
		enclosing = c.classes[step.Parent.ID]
	}

	switch n.Type {
	case graph.NodeTypeCloneClass:
		id := n.StringAttr(graph.AttrUID)
		if id == "" {
			id = n.Name()
		}
		if id == "" {
			return missing(n, graph.AttrUID)
		}
		c.classes[n.ID] = id

	case graph.NodeTypeCloneInstance:
		c.classes[n.ID] = enclosing
		if enclosing == "" {
			c.skipped = append(c.skipped, Skip{NodeID: n.ID, Path: n.StringAttr(graph.AttrPath), Reason: ReasonOrphanInstance})
			return nil
		}

		reported := n.StringAttr(graph.AttrPath)
		if reported == "" {
			return missing(n, graph.AttrPath)
		}
		rel, ok := c.cfg.FileSystem.Relative(reported)
		if !ok {
			c.skipped = append(c.skipped, Skip{NodeID: n.ID, Path: reported, Reason: ReasonUnmappedPath})
			c.logger.Debug("skipping unmapped clone instance",
				slog.Uint64("node", uint64(n.ID)),
				slog.String("path", reported),
			)
			return nil
		}
		c.records.Add(resource.PhysicalKey(c.cfg.Project, rel), enclosing)

	case graph.NodeTypeUnknown:
		c.unknown++
		c.logger.Debug("skipping node of unknown type",
			slog.Uint64("node", uint64(n.ID)),
			slog.String("type", n.TypeName),
		)
		c.classes[n.ID] = enclosing

	default:
		c.classes[n.ID] = enclosing
	}
	return nil
}

// Finish implements Accumulator. The result owns the duplication records.
func (c *Clone) Finish() (*Result, error) {
	result, err := c.finish()
	if err != nil {
		return nil, err
	}
	result.Duplications = c.records
	c.records = nil
	c.classes = nil
	return result, nil
}
