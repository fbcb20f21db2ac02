package graphbin

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/tinylib/msgp/msgp"

	"github.com/Benny93/metrigraph/internal/graph"
)

// ErrEncoderClosed is returned when writing to a closed Encoder.
var ErrEncoderClosed = errors.New("encoder closed")

// EncodeOptions configures artifact writing.
type EncodeOptions struct {
	// Compress wraps the record stream in a zstd frame.
	Compress bool
}

// Encoder streams records to an artifact. Nodes must be written before any
// edge that references them. Close writes the end record; an artifact that
// was never closed does not decode.
type Encoder struct {
	bw     *bufio.Writer
	zw     *zstd.Encoder
	buf    []byte
	closed bool
}

// NewEncoder writes the preamble to w and returns an Encoder for the records.
func NewEncoder(w io.Writer, opts EncodeOptions) (*Encoder, error) {
	e := &Encoder{}
	if opts.Compress {
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("creating zstd writer: %w", err)
		}
		e.zw = zw
		e.bw = bufio.NewWriter(zw)
	} else {
		e.bw = bufio.NewWriter(w)
	}

	if _, err := e.bw.Write(Magic[:]); err != nil {
		return nil, fmt.Errorf("writing preamble: %w", err)
	}
	if err := e.bw.WriteByte(Version); err != nil {
		return nil, fmt.Errorf("writing preamble: %w", err)
	}
	return e, nil
}

// WriteHeader writes analyzer header entries in key order.
func (e *Encoder) WriteHeader(header map[string]string) error {
	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := msgp.AppendMapHeader(e.buf[:0], uint32(len(keys)))
	for _, k := range keys {
		b = msgp.AppendString(b, k)
		b = msgp.AppendString(b, header[k])
	}
	return e.writeRecord(tagHeader, b)
}

// WriteNode writes a node record. Attributes are written in key order so
// the output is deterministic.
func (e *Encoder) WriteNode(n *graph.Node) error {
	typeName := n.TypeName
	if typeName == "" {
		typeName = n.Type.String()
	}

	b := msgp.AppendArrayHeader(e.buf[:0], nodeFields)
	b = msgp.AppendUint32(b, n.ID)
	b = msgp.AppendString(b, typeName)
	b = appendAttributes(b, n.Attrs)
	return e.writeRecord(tagNode, b)
}

// WriteEdge writes an edge record.
func (e *Encoder) WriteEdge(ed graph.Edge) error {
	kindName := ed.KindName
	if kindName == "" {
		kindName = ed.Kind.String()
	}

	b := msgp.AppendArrayHeader(e.buf[:0], edgeFields)
	b = msgp.AppendUint32(b, ed.ID)
	b = msgp.AppendString(b, kindName)
	b = msgp.AppendUint32(b, ed.From)
	b = msgp.AppendUint32(b, ed.To)
	b = msgp.AppendUint32(b, ed.Position)
	return e.writeRecord(tagEdge, b)
}

// Close writes the end record and flushes. It does not close the
// underlying writer.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	if err := e.writeRecord(tagEnd, nil); err != nil {
		return err
	}
	e.closed = true

	if err := e.bw.Flush(); err != nil {
		return fmt.Errorf("flushing artifact: %w", err)
	}
	if e.zw != nil {
		if err := e.zw.Close(); err != nil {
			return fmt.Errorf("closing zstd stream: %w", err)
		}
	}
	return nil
}

func (e *Encoder) writeRecord(tag byte, payload []byte) error {
	if e.closed {
		return ErrEncoderClosed
	}
	if len(payload) > MaxRecordSize {
		return fmt.Errorf("record 0x%02x payload of %d bytes exceeds limit %d", tag, len(payload), MaxRecordSize)
	}

	var prefix [1 + binary.MaxVarintLen64]byte
	prefix[0] = tag
	n := binary.PutUvarint(prefix[1:], uint64(len(payload)))

	if _, err := e.bw.Write(prefix[:1+n]); err != nil {
		return fmt.Errorf("writing record 0x%02x: %w", tag, err)
	}
	if _, err := e.bw.Write(payload); err != nil {
		return fmt.Errorf("writing record 0x%02x: %w", tag, err)
	}
	// Keep the grown buffer for the next record.
	e.buf = payload[:0]
	return nil
}

func appendAttributes(b []byte, attrs graph.Attributes) []byte {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b = msgp.AppendMapHeader(b, uint32(len(keys)))
	for _, k := range keys {
		b = msgp.AppendString(b, k)
		v := attrs[k]
		switch v.Kind() {
		case graph.ValueInt:
			i, _ := v.Int()
			b = msgp.AppendInt64(b, i)
		case graph.ValueFloat:
			f, _ := v.Number()
			b = msgp.AppendFloat64(b, f)
		case graph.ValueBool:
			bv, _ := v.Bool()
			b = msgp.AppendBool(b, bv)
		default:
			s, _ := v.Str()
			b = msgp.AppendString(b, s)
		}
	}
	return b
}

// Encode writes the whole graph: header, then every node, then every edge.
func Encode(w io.Writer, g *graph.Graph, opts EncodeOptions) error {
	enc, err := NewEncoder(w, opts)
	if err != nil {
		return err
	}

	if header := g.Header(); len(header) > 0 {
		if err := enc.WriteHeader(header); err != nil {
			return err
		}
	}
	for _, n := range g.Nodes() {
		if err := enc.WriteNode(n); err != nil {
			return fmt.Errorf("encoding node %d: %w", n.ID, err)
		}
	}
	for _, ed := range g.Edges() {
		if err := enc.WriteEdge(ed); err != nil {
			return fmt.Errorf("encoding edge %d: %w", ed.ID, err)
		}
	}
	return enc.Close()
}

// WriteFile encodes g to path, replacing any existing file.
func WriteFile(path string, g *graph.Graph, opts EncodeOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating graph artifact: %w", err)
	}
	if err := Encode(f, g, opts); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing graph artifact: %w", err)
	}
	return nil
}
