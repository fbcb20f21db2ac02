package views

import (
	"fmt"
	"log/slog"
	"path"

	"github.com/Benny93/metrigraph/internal/graph"
	"github.com/Benny93/metrigraph/internal/resource"
	"github.com/Benny93/metrigraph/internal/traversal"
)

// Physical builds the directory/file hierarchy. Paths reported by the
// analyzer are reconciled against the project file system; paths it does
// not know are recorded as skips and their subtree attaches to the nearest
// known directory.
type Physical struct {
	base
}

// NewPhysical creates the physical view accumulator.
func NewPhysical(cfg Config) (*Physical, error) {
	if cfg.FileSystem == nil {
		return nil, fmt.Errorf("creating physical view: %w", ErrNoFileSystem)
	}
	return &Physical{base: newBase(resource.ViewPhysical, cfg)}, nil
}

// VisitNode implements traversal.Visitor.
func (p *Physical) VisitNode(step traversal.Step) error {
	if err := p.visitable(); err != nil {
		return err
	}

	n := step.Node
	if step.Parent == nil {
		p.add(step, p.projectResource())
		return nil
	}

	var q resource.Qualifier
	switch n.Type {
	case graph.NodeTypeDirectory:
		q = resource.QualifierDirectory
	case graph.NodeTypeFile:
		q = resource.QualifierFile
	case graph.NodeTypeUnknown:
		p.skipUnknown(step)
		return nil
	default:
		p.inherit(step)
		return nil
	}

	reported := n.StringAttr(graph.AttrPath)
	if reported == "" {
		return missing(n, graph.AttrPath)
	}

	rel, ok := p.cfg.FileSystem.Relative(reported)
	if !ok {
		p.skipped = append(p.skipped, Skip{NodeID: n.ID, Path: reported, Reason: ReasonUnmappedPath})
		p.logger.Debug("skipping unmapped path",
			slog.Uint64("node", uint64(n.ID)),
			slog.String("path", reported),
		)
		p.inherit(step)
		return nil
	}
	if rel == "" {
		// The base directory is the project itself.
		p.mapTo(step, resource.ProjectKey(p.cfg.Project))
		return nil
	}

	name := n.Name()
	if name == "" {
		name = path.Base(rel)
	}
	r := &resource.Resource{
		Key:       resource.PhysicalKey(p.cfg.Project, rel),
		Qualifier: q,
		Name:      name,
		Path:      rel,
	}
	if p.add(step, r) {
		p.collect(n, r.Key)
	}
	return nil
}

// Finish implements Accumulator.
func (p *Physical) Finish() (*Result, error) {
	return p.finish()
}
