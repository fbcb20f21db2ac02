// Package graphdoc reads graphs written as YAML documents.
//
// Documents are a readable stand-in for binary artifacts: test fixtures and
// the encode command build graphs from them.
//
//	header:
//	  MetricHunter: "7.2"
//	nodes:
//	  - {id: 1, type: Root, attrs: {name: __LogicalRoot__}}
//	  - {id: 2, type: Class, attrs: {name: Cart, longName: shop.Cart, LOC: 120}}
//	edges:
//	  - {kind: LogicalTree, from: 1, to: 2}
package graphdoc

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Benny93/metrigraph/internal/graph"
)

// ErrInvalidDocument is wrapped by every content error.
var ErrInvalidDocument = errors.New("invalid graph document")

// Document is the YAML form of a graph.
type Document struct {
	Header map[string]string `yaml:"header"`
	Nodes  []NodeDoc         `yaml:"nodes"`
	Edges  []EdgeDoc         `yaml:"edges"`
}

// NodeDoc is one node. Attribute values may be strings, integers, floats
// or booleans.
type NodeDoc struct {
	ID    uint32         `yaml:"id"`
	Type  string         `yaml:"type"`
	Attrs map[string]any `yaml:"attrs"`
}

// EdgeDoc is one edge. A zero ID is replaced by the edge's 1-based position
// in the document.
type EdgeDoc struct {
	ID       uint32 `yaml:"id"`
	Kind     string `yaml:"kind"`
	From     uint32 `yaml:"from"`
	To       uint32 `yaml:"to"`
	Position uint32 `yaml:"position"`
}

// LoadFile reads and converts the document at path.
func LoadFile(path string) (*graph.Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading graph document: %w", err)
	}
	g, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Parse converts YAML bytes into a graph.
func Parse(data []byte) (*graph.Graph, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, err
	}
	return doc.Graph()
}

// ParseDocument reads YAML bytes without building the graph, so callers
// can adjust the document first.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing graph document: %w", err)
	}
	return &doc, nil
}

// Graph builds the graph the document describes.
func (d *Document) Graph() (*graph.Graph, error) {
	g := graph.NewGraph(len(d.Nodes))

	keys := make([]string, 0, len(d.Header))
	for k := range d.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		g.SetHeader(k, d.Header[k])
	}

	for i, nd := range d.Nodes {
		if nd.Type == "" {
			return nil, fmt.Errorf("%w: node #%d has no type", ErrInvalidDocument, i)
		}
		attrs, err := convertAttributes(nd.Attrs)
		if err != nil {
			return nil, fmt.Errorf("%w: node %d: %v", ErrInvalidDocument, nd.ID, err)
		}
		err = g.AddNode(graph.Node{
			ID:       nd.ID,
			Type:     graph.ParseNodeType(nd.Type),
			TypeName: nd.Type,
			Attrs:    attrs,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
	}

	for i, ed := range d.Edges {
		id := ed.ID
		if id == 0 {
			id = uint32(i + 1)
		}
		kind := ed.Kind
		if kind == "" {
			return nil, fmt.Errorf("%w: edge #%d has no kind", ErrInvalidDocument, i)
		}
		err := g.AddEdge(graph.Edge{
			ID:       id,
			Kind:     graph.ParseEdgeKind(kind),
			KindName: kind,
			From:     ed.From,
			To:       ed.To,
			Position: ed.Position,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
	}
	return g, nil
}

func convertAttributes(in map[string]any) (graph.Attributes, error) {
	attrs := make(graph.Attributes, len(in))
	for name, raw := range in {
		v, err := convertValue(raw)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		attrs[name] = v
	}
	return attrs, nil
}

func convertValue(raw any) (graph.Value, error) {
	switch v := raw.(type) {
	case string:
		return graph.StringValue(v), nil
	case bool:
		return graph.BoolValue(v), nil
	case int:
		return graph.IntValue(int64(v)), nil
	case int64:
		return graph.IntValue(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return graph.Value{}, fmt.Errorf("integer %d out of range", v)
		}
		return graph.IntValue(int64(v)), nil
	case float64:
		return graph.FloatValue(v), nil
	default:
		return graph.Value{}, fmt.Errorf("unsupported value %v (%T)", raw, raw)
	}
}
