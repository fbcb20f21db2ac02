package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNodeType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected NodeType
	}{
		{"Component", "Component", NodeTypeComponent},
		{"Class", "Class", NodeTypeClass},
		{"File", "File", NodeTypeFile},
		{"CloneInstance", "CloneInstance", NodeTypeCloneInstance},
		{"Unknown", "Lambda", NodeTypeUnknown},
		{"UnknownLiteral", "Unknown", NodeTypeUnknown},
		{"CaseSensitive", "file", NodeTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, ParseNodeType(tt.input))
		})
	}
}

func TestNodeTypeString_RoundTrip(t *testing.T) {
	t.Parallel()

	for typ, name := range nodeTypeNames {
		if typ == NodeTypeUnknown {
			continue
		}
		assert.Equal(t, typ, ParseNodeType(name))
		assert.Equal(t, name, typ.String())
	}
	assert.Equal(t, "Unknown", NodeType(999).String())
}

func TestParseEdgeKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, EdgeKindComponentTree, ParseEdgeKind("ComponentTree"))
	assert.Equal(t, EdgeKindLogicalTree, ParseEdgeKind("LogicalTree"))
	assert.Equal(t, EdgeKindPhysicalTree, ParseEdgeKind("PhysicalTree"))
	assert.Equal(t, EdgeKindCloneTree, ParseEdgeKind("CloneTree"))
	assert.Equal(t, EdgeKindOther, ParseEdgeKind("CallTree"))
	assert.Equal(t, EdgeKindOther, ParseEdgeKind("Other"))
}

func TestValue(t *testing.T) {
	t.Parallel()

	t.Run("String", func(t *testing.T) {
		t.Parallel()
		v := StringValue("foo")
		s, ok := v.Str()
		assert.True(t, ok)
		assert.Equal(t, "foo", s)
		_, ok = v.Number()
		assert.False(t, ok)
	})

	t.Run("IntIsNumeric", func(t *testing.T) {
		t.Parallel()
		v := IntValue(42)
		n, ok := v.Number()
		assert.True(t, ok)
		assert.Equal(t, 42.0, n)
		assert.Equal(t, "42", v.String())
	})

	t.Run("FloatIsNumeric", func(t *testing.T) {
		t.Parallel()
		v := FloatValue(0.5)
		n, ok := v.Number()
		assert.True(t, ok)
		assert.Equal(t, 0.5, n)
	})

	t.Run("BoolIsNotNumeric", func(t *testing.T) {
		t.Parallel()
		v := BoolValue(true)
		_, ok := v.Number()
		assert.False(t, ok)
		b, ok := v.Bool()
		assert.True(t, ok)
		assert.True(t, b)
	})
}

func TestNode_Name(t *testing.T) {
	t.Parallel()

	n := &Node{ID: 1, Type: NodeTypeClass, Attrs: Attributes{
		AttrName: StringValue("Foo"),
		"LOC":    IntValue(10),
	}}
	assert.Equal(t, "Foo", n.Name())
	assert.Equal(t, "", n.StringAttr("LOC"))
	assert.Equal(t, "", n.StringAttr("missing"))
}
