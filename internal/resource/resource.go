// Package resource defines the host-facing results of an import: resources
// arranged in one tree per view, the measures attached to them and the
// findings raised from metric thresholds.
package resource

import (
	"path"
	"sort"
	"strings"
)

// Qualifier classifies a resource the way the host platform does.
type Qualifier string

const (
	QualifierProject   Qualifier = "PRJ"
	QualifierComponent Qualifier = "BRC"
	QualifierDirectory Qualifier = "DIR"
	QualifierFile      Qualifier = "FIL"
	QualifierPackage   Qualifier = "PAC"
	QualifierModule    Qualifier = "MOD"
	QualifierClass     Qualifier = "CLA"
	QualifierMethod    Qualifier = "MET"
)

// View names one of the trees rebuilt from the graph.
type View string

const (
	ViewComponent View = "component"
	ViewLogical   View = "logical"
	ViewPhysical  View = "physical"
	ViewClone     View = "clone"
)

// AllViews lists the views in processing order.
var AllViews = []View{ViewComponent, ViewLogical, ViewPhysical, ViewClone}

// Resource is one entity published to the host.
type Resource struct {
	// Key identifies the resource within the project.
	Key string `json:"key"`

	// Qualifier is the resource kind.
	Qualifier Qualifier `json:"qualifier"`

	// Name is the short display name.
	Name string `json:"name"`

	// LongName is the fully qualified name, if the analyzer provided one.
	LongName string `json:"long_name,omitempty"`

	// Path is the project relative path for physical resources.
	Path string `json:"path,omitempty"`

	// ParentKey is the key of the enclosing resource, "" for the root.
	ParentKey string `json:"parent_key,omitempty"`

	// NodeID is the graph node the resource was built from.
	NodeID uint32 `json:"node_id"`

	// View is the tree the resource belongs to.
	View View `json:"view"`
}

// Measure is a metric value attached to a resource. Numeric metrics use
// Value, data metrics use Data.
type Measure struct {
	ResourceKey string  `json:"resource_key"`
	MetricKey   string  `json:"metric_key"`
	Value       float64 `json:"value"`
	Data        string  `json:"data,omitempty"`
}

// Finding is a metric threshold violation reported by the analyzer.
type Finding struct {
	ResourceKey string `json:"resource_key"`

	// Rule is the attribute suffix after "warning." (usually a metric name).
	Rule string `json:"rule"`

	Message string `json:"message"`
}

// Tree is a view's resources in creation (preorder) order.
type Tree struct {
	View      View
	resources []*Resource
	byKey     map[string]*Resource
	children  map[string][]string
}

// NewTree creates an empty tree. capacity pre-sizes the resource list.
func NewTree(view View, capacity int) *Tree {
	if capacity < 0 {
		capacity = 0
	}
	return &Tree{
		View:      view,
		resources: make([]*Resource, 0, capacity),
		byKey:     make(map[string]*Resource, capacity),
		children:  make(map[string][]string),
	}
}

// Add inserts r. It returns false when a resource with the same key exists.
func (t *Tree) Add(r *Resource) bool {
	if _, exists := t.byKey[r.Key]; exists {
		return false
	}
	r.View = t.View
	t.resources = append(t.resources, r)
	t.byKey[r.Key] = r
	if r.ParentKey != "" {
		t.children[r.ParentKey] = append(t.children[r.ParentKey], r.Key)
	}
	return true
}

// Get returns the resource with key, or nil.
func (t *Tree) Get(key string) *Resource {
	return t.byKey[key]
}

// Resources returns all resources in insertion order.
func (t *Tree) Resources() []*Resource {
	result := make([]*Resource, len(t.resources))
	copy(result, t.resources)
	return result
}

// Children returns the keys of the direct children of key.
func (t *Tree) Children(key string) []string {
	return append([]string(nil), t.children[key]...)
}

// Len returns the number of resources.
func (t *Tree) Len() int {
	return len(t.resources)
}

// CountByQualifier returns the number of resources per qualifier.
func (t *Tree) CountByQualifier() map[Qualifier]int {
	counts := make(map[Qualifier]int)
	for _, r := range t.resources {
		counts[r.Qualifier]++
	}
	return counts
}

// Qualifiers returns the qualifiers present in the tree, sorted.
func (t *Tree) Qualifiers() []Qualifier {
	counts := t.CountByQualifier()
	result := make([]Qualifier, 0, len(counts))
	for q := range counts {
		result = append(result, q)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// ProjectKey returns the host key of the project resource. The analyzer's
// project identifier may contain ':' separators and is used verbatim.
func ProjectKey(project string) string {
	return project
}

// ComponentKey returns the key of a component resource.
func ComponentKey(project, name string) string {
	return project + ":" + string(QualifierComponent) + ":" + name
}

// LogicalKey returns the key of a package, module, class or method resource
// identified by its qualified name.
func LogicalKey(project string, q Qualifier, longName string) string {
	return project + ":" + string(q) + ":" + longName
}

// PhysicalKey returns the key of a directory or file given its project
// relative path. The project root directory is the project itself.
func PhysicalKey(project, rel string) string {
	rel = CleanRelative(rel)
	if rel == "" {
		return project
	}
	return project + ":" + rel
}

// CleanRelative normalizes a relative path to forward slashes without a
// leading "./" or trailing slash. The root is "".
func CleanRelative(rel string) string {
	rel = strings.ReplaceAll(rel, "\\", "/")
	rel = path.Clean("/" + rel)
	return strings.TrimPrefix(rel, "/")
}
