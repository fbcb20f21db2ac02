package views

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/Benny93/metrigraph/internal/graph"
	"github.com/Benny93/metrigraph/internal/resource"
	"github.com/Benny93/metrigraph/internal/traversal"
)

// base holds the state every accumulator shares: the tree being built, the
// node to resource mapping used to find parents, and the collected
// measures and findings.
type base struct {
	cfg    Config
	view   resource.View
	logger *slog.Logger

	tree     *resource.Tree
	measures []resource.Measure
	findings []resource.Finding
	skipped  []Skip
	unknown  int

	// nodeKeys maps every visited node to the key of the resource it or its
	// nearest mapped ancestor produced ("" above the first resource).
	nodeKeys map[uint32]string

	finished bool
}

func newBase(view resource.View, cfg Config) base {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return base{
		cfg:      cfg,
		view:     view,
		logger:   logger.With(slog.String("view", string(view))),
		tree:     resource.NewTree(view, cfg.Capacity),
		nodeKeys: make(map[uint32]string, cfg.Capacity),
	}
}

// View implements Accumulator.
func (b *base) View() resource.View {
	return b.view
}

// visitable rejects visits after Finish.
func (b *base) visitable() error {
	if b.finished {
		return fmt.Errorf("visiting %s view: %w", b.view, ErrAlreadyFinished)
	}
	return nil
}

func (b *base) parentKey(step traversal.Step) string {
	if step.Parent == nil {
		return ""
	}
	return b.nodeKeys[step.Parent.ID]
}

// inherit maps the node onto its parent's resource.
func (b *base) inherit(step traversal.Step) {
	b.nodeKeys[step.Node.ID] = b.parentKey(step)
}

// skipUnknown counts and inherits a node of an unknown type.
func (b *base) skipUnknown(step traversal.Step) {
	b.unknown++
	b.logger.Debug("skipping node of unknown type",
		slog.Uint64("node", uint64(step.Node.ID)),
		slog.String("type", step.Node.TypeName),
	)
	b.inherit(step)
}

// mapTo maps the node onto an existing resource key.
func (b *base) mapTo(step traversal.Step, key string) {
	b.nodeKeys[step.Node.ID] = key
}

// add inserts r below the parent's resource and maps the node onto it. It
// returns false when the key already exists; the node then maps onto the
// existing resource.
func (b *base) add(step traversal.Step, r *resource.Resource) bool {
	r.NodeID = step.Node.ID
	if parent := b.parentKey(step); parent != r.Key {
		r.ParentKey = parent
	}
	b.nodeKeys[step.Node.ID] = r.Key
	if !b.tree.Add(r) {
		b.logger.Debug("resource already exists",
			slog.String("key", r.Key),
			slog.Uint64("node", uint64(step.Node.ID)),
		)
		return false
	}
	return true
}

// collect turns numeric metric attributes into measures and warning
// attributes into findings. Attributes are read in name order.
func (b *base) collect(n *graph.Node, key string) {
	names := make([]string, 0, len(n.Attrs))
	for name := range n.Attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := n.Attrs[name]

		if rule, ok := strings.CutPrefix(name, graph.WarningAttrPrefix); ok {
			if b.cfg.Incremental || rule == "" {
				continue
			}
			b.findings = append(b.findings, resource.Finding{
				ResourceKey: key,
				Rule:        rule,
				Message:     v.String(),
			})
			continue
		}

		if b.cfg.Registry == nil {
			continue
		}
		value, ok := v.Number()
		if !ok {
			continue
		}
		m, ok := b.cfg.Registry.ForAttribute(name)
		if !ok {
			continue
		}
		b.measures = append(b.measures, resource.Measure{
			ResourceKey: key,
			MetricKey:   m.Key,
			Value:       value,
		})
	}
}

// finish builds the result and drops the accumulator's references to it.
func (b *base) finish() (*Result, error) {
	if b.finished {
		return nil, fmt.Errorf("finishing %s view: %w", b.view, ErrAlreadyFinished)
	}
	b.finished = true

	result := &Result{
		View:         b.view,
		Tree:         b.tree,
		Measures:     b.measures,
		Findings:     b.findings,
		Skipped:      b.skipped,
		UnknownNodes: b.unknown,
	}
	b.tree = nil
	b.measures = nil
	b.findings = nil
	b.skipped = nil
	b.nodeKeys = nil
	return result, nil
}

func missing(n *graph.Node, attr string) error {
	return fmt.Errorf("%s node %d has no %q: %w", n.TypeName, n.ID, attr, ErrMissingAttribute)
}

// projectResource is the project itself, the root of every view tree.
func (b *base) projectResource() *resource.Resource {
	return &resource.Resource{
		Key:       resource.ProjectKey(b.cfg.Project),
		Qualifier: resource.QualifierProject,
		Name:      b.cfg.Project,
	}
}
