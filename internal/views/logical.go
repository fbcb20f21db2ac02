package views

import (
	"strings"

	"github.com/Benny93/metrigraph/internal/graph"
	"github.com/Benny93/metrigraph/internal/resource"
	"github.com/Benny93/metrigraph/internal/traversal"
)

var logicalQualifiers = map[graph.NodeType]resource.Qualifier{
	graph.NodeTypePackage:  resource.QualifierPackage,
	graph.NodeTypeModule:   resource.QualifierModule,
	graph.NodeTypeClass:    resource.QualifierClass,
	graph.NodeTypeMethod:   resource.QualifierMethod,
	graph.NodeTypeFunction: resource.QualifierMethod,
}

// Logical builds the package/module/class/method hierarchy and attaches
// the metrics and findings carried by each node. The walk root becomes the
// project and carries the system level metrics.
type Logical struct {
	base
}

// NewLogical creates the logical view accumulator.
func NewLogical(cfg Config) *Logical {
	return &Logical{base: newBase(resource.ViewLogical, cfg)}
}

// VisitNode implements traversal.Visitor.
func (l *Logical) VisitNode(step traversal.Step) error {
	if err := l.visitable(); err != nil {
		return err
	}

	n := step.Node
	if step.Parent == nil {
		project := l.projectResource()
		if l.add(step, project) {
			l.collect(n, project.Key)
		}
		return nil
	}

	if q, ok := logicalQualifiers[n.Type]; ok {
		name := n.Name()
		longName := n.StringAttr(graph.AttrLongName)
		if longName == "" {
			longName = name
		}
		if longName == "" {
			return missing(n, graph.AttrName)
		}
		if name == "" {
			name = lastSegment(longName)
		}

		r := &resource.Resource{
			Key:       resource.LogicalKey(l.cfg.Project, q, longName),
			Qualifier: q,
			Name:      name,
			LongName:  longName,
		}
		if l.add(step, r) {
			l.collect(n, r.Key)
		}
		return nil
	}

	switch n.Type {
	case graph.NodeTypeUnknown:
		l.skipUnknown(step)
	default:
		// Attributes and nodes of other trees create no logical resource.
		l.inherit(step)
	}
	return nil
}

// Finish implements Accumulator.
func (l *Logical) Finish() (*Result, error) {
	return l.finish()
}

func lastSegment(qualified string) string {
	if i := strings.LastIndex(qualified, "."); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}
