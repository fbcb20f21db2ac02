// Package graph provides the analysis result graph model for metrigraph.
//
// It defines the node types and tree edge kinds produced by the external
// analyzer, the typed attribute values carried on nodes, and the edges that
// thread several logical trees (component, logical, physical, clone) through
// one shared node set.
package graph

import (
	"fmt"
	"strconv"
)

// NodeType is the closed set of node kinds the binary format produces.
type NodeType int

const (
	// NodeTypeUnknown is the catch-all for type names this module does not know.
	NodeTypeUnknown NodeType = iota
	NodeTypeRoot
	NodeTypeComponent
	NodeTypePackage
	NodeTypeModule
	NodeTypeClass
	NodeTypeMethod
	NodeTypeFunction
	NodeTypeAttribute
	NodeTypeDirectory
	NodeTypeFile
	NodeTypeCloneClass
	NodeTypeCloneInstance
	NodeTypeMetric
)

var nodeTypeNames = map[NodeType]string{
	NodeTypeUnknown:       "Unknown",
	NodeTypeRoot:          "Root",
	NodeTypeComponent:     "Component",
	NodeTypePackage:       "Package",
	NodeTypeModule:        "Module",
	NodeTypeClass:         "Class",
	NodeTypeMethod:        "Method",
	NodeTypeFunction:      "Function",
	NodeTypeAttribute:     "Attribute",
	NodeTypeDirectory:     "Directory",
	NodeTypeFile:          "File",
	NodeTypeCloneClass:    "CloneClass",
	NodeTypeCloneInstance: "CloneInstance",
	NodeTypeMetric:        "Metric",
}

var nodeTypesByName = func() map[string]NodeType {
	m := make(map[string]NodeType, len(nodeTypeNames))
	for t, name := range nodeTypeNames {
		if t != NodeTypeUnknown {
			m[name] = t
		}
	}
	return m
}()

// String returns the wire name of the node type.
func (t NodeType) String() string {
	if name, ok := nodeTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// ParseNodeType maps a wire type name to a NodeType.
// Names outside the known set map to NodeTypeUnknown.
func ParseNodeType(name string) NodeType {
	if t, ok := nodeTypesByName[name]; ok {
		return t
	}
	return NodeTypeUnknown
}

// EdgeKind identifies which logical tree an edge belongs to.
type EdgeKind int

const (
	// EdgeKindOther is used for edge kinds no view walks over.
	EdgeKindOther EdgeKind = iota
	EdgeKindComponentTree
	EdgeKindLogicalTree
	EdgeKindPhysicalTree
	EdgeKindCloneTree
)

var edgeKindNames = map[EdgeKind]string{
	EdgeKindOther:         "Other",
	EdgeKindComponentTree: "ComponentTree",
	EdgeKindLogicalTree:   "LogicalTree",
	EdgeKindPhysicalTree:  "PhysicalTree",
	EdgeKindCloneTree:     "CloneTree",
}

// String returns the wire name of the edge kind.
func (k EdgeKind) String() string {
	if name, ok := edgeKindNames[k]; ok {
		return name
	}
	return "Other"
}

// ParseEdgeKind maps a wire kind name to an EdgeKind.
func ParseEdgeKind(name string) EdgeKind {
	for k, n := range edgeKindNames {
		if n == name && k != EdgeKindOther {
			return k
		}
	}
	return EdgeKindOther
}

// ValueKind is the type tag of an attribute value.
type ValueKind uint8

const (
	ValueString ValueKind = iota + 1
	ValueInt
	ValueFloat
	ValueBool
)

// Value is a typed attribute value.
type Value struct {
	kind ValueKind
	s    string
	i    int64
	f    float64
	b    bool
}

// StringValue returns a string attribute value.
func StringValue(s string) Value { return Value{kind: ValueString, s: s} }

// IntValue returns an integer attribute value.
func IntValue(i int64) Value { return Value{kind: ValueInt, i: i} }

// FloatValue returns a floating point attribute value.
func FloatValue(f float64) Value { return Value{kind: ValueFloat, f: f} }

// BoolValue returns a boolean attribute value.
func BoolValue(b bool) Value { return Value{kind: ValueBool, b: b} }

// Kind returns the value's type tag.
func (v Value) Kind() ValueKind { return v.kind }

// Str returns the string payload and whether the value is a string.
func (v Value) Str() (string, bool) { return v.s, v.kind == ValueString }

// Int returns the integer payload and whether the value is an integer.
func (v Value) Int() (int64, bool) { return v.i, v.kind == ValueInt }

// Bool returns the boolean payload and whether the value is a boolean.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == ValueBool }

// Number returns the value as float64 for int and float values.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case ValueInt:
		return float64(v.i), true
	case ValueFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// String formats the value for display.
func (v Value) String() string {
	switch v.kind {
	case ValueString:
		return v.s
	case ValueInt:
		return strconv.FormatInt(v.i, 10)
	case ValueFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case ValueBool:
		return strconv.FormatBool(v.b)
	default:
		return fmt.Sprintf("<invalid value kind %d>", v.kind)
	}
}

// Attributes maps attribute names to typed values.
type Attributes map[string]Value

// Well-known attribute names.
const (
	AttrName     = "name"
	AttrLongName = "longName"
	AttrPath     = "path"
	AttrUID      = "uid"

	// WarningAttrPrefix marks string attributes holding metric threshold warnings.
	WarningAttrPrefix = "warning."
)

// Node is a single analyzer entity.
type Node struct {
	// ID is unique within the graph.
	ID uint32

	// Type is the decoded node kind.
	Type NodeType

	// TypeName is the type name as written in the artifact. It differs from
	// Type.String() only for unknown types.
	TypeName string

	// Attrs holds the node attributes, including precomputed metrics.
	Attrs Attributes
}

// Name returns the "name" attribute, or "" when absent or not a string.
func (n *Node) Name() string {
	return n.StringAttr(AttrName)
}

// StringAttr returns a string attribute, or "" when absent or not a string.
func (n *Node) StringAttr(name string) string {
	if v, ok := n.Attrs[name]; ok {
		if s, ok := v.Str(); ok {
			return s
		}
	}
	return ""
}

// Edge connects two nodes inside one tree.
type Edge struct {
	ID   uint32
	Kind EdgeKind

	// KindName is the kind name as written in the artifact.
	KindName string

	From uint32
	To   uint32

	// Position orders siblings during traversal.
	Position uint32
}
