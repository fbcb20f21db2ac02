package graphbin

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/tinylib/msgp/msgp"

	"github.com/Benny93/metrigraph/internal/graph"
)

// LoadFile decodes the artifact at path. The file is only read.
func LoadFile(path string) (*graph.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening graph artifact: %w", err)
	}
	defer f.Close()

	g, err := Decode(f)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// DecodeBytes decodes an in-memory artifact.
func DecodeBytes(data []byte) (*graph.Graph, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads a complete artifact from r. Any structural problem is
// reported as a *FormatError.
func Decode(r io.Reader) (*graph.Graph, error) {
	br := bufio.NewReader(r)

	if head, err := br.Peek(len(zstdMagic)); err == nil && bytes.Equal(head, zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, formatErr(0, err, "opening zstd stream")
		}
		defer zr.Close()
		return newDecoder(bufio.NewReader(zr)).decode()
	}

	return newDecoder(br).decode()
}

// decoder builds a graph from a record stream, tracking the byte offset
// for error reporting.
type decoder struct {
	r      *bufio.Reader
	offset int64
	g      *graph.Graph
}

func newDecoder(r *bufio.Reader) *decoder {
	return &decoder{r: r, g: graph.NewGraph(0)}
}

// ReadByte implements io.ByteReader for binary.ReadUvarint.
func (d *decoder) ReadByte() (byte, error) {
	b, err := d.r.ReadByte()
	if err == nil {
		d.offset++
	}
	return b, err
}

func (d *decoder) readFull(p []byte) error {
	n, err := io.ReadFull(d.r, p)
	d.offset += int64(n)
	return err
}

func (d *decoder) decode() (*graph.Graph, error) {
	if err := d.readPreamble(); err != nil {
		return nil, err
	}

	for {
		start := d.offset

		tag, err := d.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, formatErr(start, io.ErrUnexpectedEOF, "missing end record")
			}
			return nil, formatErr(start, err, "reading record tag")
		}

		length, err := binary.ReadUvarint(d)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, formatErr(start, err, "reading length of record 0x%02x", tag)
		}
		if length > MaxRecordSize {
			return nil, formatErr(start, nil, "record length %d exceeds limit %d", length, MaxRecordSize)
		}

		if tag == tagEnd {
			if length != 0 {
				return nil, formatErr(start, nil, "end record with %d byte payload", length)
			}
			return d.finish()
		}

		payload := make([]byte, length)
		if err := d.readFull(payload); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, formatErr(start, err, "truncated record 0x%02x", tag)
		}

		var rest []byte
		switch tag {
		case tagHeader:
			rest, err = d.readHeader(payload)
		case tagNode:
			rest, err = d.readNode(payload)
		case tagEdge:
			rest, err = d.readEdge(payload)
		default:
			return nil, formatErr(start, nil, "unknown record tag 0x%02x", tag)
		}
		if err != nil {
			return nil, formatErr(start, err, "decoding record 0x%02x", tag)
		}
		if len(rest) != 0 {
			return nil, formatErr(start, nil, "record 0x%02x has %d unconsumed payload bytes", tag, len(rest))
		}
	}
}

func (d *decoder) readPreamble() error {
	var pre [len(Magic) + 1]byte
	if err := d.readFull(pre[:]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return formatErr(0, err, "truncated preamble")
	}
	if !bytes.Equal(pre[:len(Magic)], Magic[:]) {
		return formatErr(0, nil, "bad magic %q", pre[:len(Magic)])
	}
	if v := pre[len(Magic)]; v != Version {
		return formatErr(int64(len(Magic)), nil, "unsupported version %d", v)
	}
	return nil
}

func (d *decoder) finish() (*graph.Graph, error) {
	if _, err := d.r.ReadByte(); !errors.Is(err, io.EOF) {
		if err != nil {
			return nil, formatErr(d.offset, err, "reading past end record")
		}
		return nil, formatErr(d.offset, nil, "trailing data after end record")
	}
	return d.g, nil
}

func (d *decoder) readHeader(b []byte) ([]byte, error) {
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < n; i++ {
		var key, value string
		if key, b, err = msgp.ReadStringBytes(b); err != nil {
			return nil, err
		}
		if value, b, err = msgp.ReadStringBytes(b); err != nil {
			return nil, fmt.Errorf("header %q: %w", key, err)
		}
		d.g.SetHeader(key, value)
	}
	return b, nil
}

func (d *decoder) readNode(b []byte) ([]byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	if n != nodeFields {
		return nil, fmt.Errorf("node record has %d fields, want %d", n, nodeFields)
	}

	var node graph.Node
	if node.ID, b, err = msgp.ReadUint32Bytes(b); err != nil {
		return nil, fmt.Errorf("node id: %w", err)
	}
	if node.TypeName, b, err = msgp.ReadStringBytes(b); err != nil {
		return nil, fmt.Errorf("node %d type: %w", node.ID, err)
	}
	node.Type = graph.ParseNodeType(node.TypeName)
	if node.Attrs, b, err = readAttributes(b); err != nil {
		return nil, fmt.Errorf("node %d attributes: %w", node.ID, err)
	}

	if err := d.g.AddNode(node); err != nil {
		return nil, err
	}
	return b, nil
}

func (d *decoder) readEdge(b []byte) ([]byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	if n != edgeFields {
		return nil, fmt.Errorf("edge record has %d fields, want %d", n, edgeFields)
	}

	var e graph.Edge
	if e.ID, b, err = msgp.ReadUint32Bytes(b); err != nil {
		return nil, fmt.Errorf("edge id: %w", err)
	}
	if e.KindName, b, err = msgp.ReadStringBytes(b); err != nil {
		return nil, fmt.Errorf("edge %d kind: %w", e.ID, err)
	}
	e.Kind = graph.ParseEdgeKind(e.KindName)
	if e.From, b, err = msgp.ReadUint32Bytes(b); err != nil {
		return nil, fmt.Errorf("edge %d source: %w", e.ID, err)
	}
	if e.To, b, err = msgp.ReadUint32Bytes(b); err != nil {
		return nil, fmt.Errorf("edge %d target: %w", e.ID, err)
	}
	if e.Position, b, err = msgp.ReadUint32Bytes(b); err != nil {
		return nil, fmt.Errorf("edge %d position: %w", e.ID, err)
	}

	if err := d.g.AddEdge(e); err != nil {
		return nil, err
	}
	return b, nil
}

func readAttributes(b []byte) (graph.Attributes, []byte, error) {
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, nil, err
	}

	attrs := make(graph.Attributes, n)
	for i := uint32(0); i < n; i++ {
		var key string
		if key, b, err = msgp.ReadStringBytes(b); err != nil {
			return nil, nil, err
		}

		var v graph.Value
		switch msgp.NextType(b) {
		case msgp.StrType:
			var s string
			s, b, err = msgp.ReadStringBytes(b)
			v = graph.StringValue(s)
		case msgp.IntType, msgp.UintType:
			var i int64
			i, b, err = msgp.ReadInt64Bytes(b)
			v = graph.IntValue(i)
		case msgp.Float64Type, msgp.Float32Type:
			var f float64
			f, b, err = msgp.ReadFloat64Bytes(b)
			v = graph.FloatValue(f)
		case msgp.BoolType:
			var bv bool
			bv, b, err = msgp.ReadBoolBytes(b)
			v = graph.BoolValue(bv)
		case msgp.InvalidType:
			return nil, nil, fmt.Errorf("attribute %q: %w", key, msgp.ErrShortBytes)
		default:
			return nil, nil, fmt.Errorf("attribute %q: unsupported value type %s", key, msgp.NextType(b))
		}
		if err != nil {
			return nil, nil, fmt.Errorf("attribute %q: %w", key, err)
		}
		attrs[key] = v
	}
	return attrs, b, nil
}
