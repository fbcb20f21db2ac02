package views

import (
	"github.com/Benny93/metrigraph/internal/graph"
	"github.com/Benny93/metrigraph/internal/resource"
	"github.com/Benny93/metrigraph/internal/traversal"
)

// Component builds the component hierarchy below "<System>". The system
// node becomes the project; every other Component node becomes a BRC
// resource carrying its metrics.
type Component struct {
	base
}

// NewComponent creates the component view accumulator.
func NewComponent(cfg Config) *Component {
	return &Component{base: newBase(resource.ViewComponent, cfg)}
}

// VisitNode implements traversal.Visitor.
func (c *Component) VisitNode(step traversal.Step) error {
	if err := c.visitable(); err != nil {
		return err
	}

	n := step.Node
	switch n.Type {
	case graph.NodeTypeComponent:
		name := n.Name()
		if name == "" {
			return missing(n, graph.AttrName)
		}
		// System level metrics are published by the logical view.
		if step.Parent == nil || name == traversal.SystemRootName {
			c.add(step, c.projectResource())
			return nil
		}

		r := &resource.Resource{
			Key:       resource.ComponentKey(c.cfg.Project, name),
			Qualifier: resource.QualifierComponent,
			Name:      name,
			LongName:  n.StringAttr(graph.AttrLongName),
		}
		if c.add(step, r) {
			c.collect(n, r.Key)
		}
	case graph.NodeTypeUnknown:
		c.skipUnknown(step)
	default:
		c.inherit(step)
	}
	return nil
}

// Finish implements Accumulator.
func (c *Component) Finish() (*Result, error) {
	return c.finish()
}
