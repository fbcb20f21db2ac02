// Package graphbin reads and writes the binary analysis graph artifact.
//
// An artifact is a magic/version preamble followed by a stream of
// length-prefixed records:
//
//	magic "SMGR" | version byte
//	record := tag byte | uvarint payload length | payload
//
// Payloads are MessagePack encoded. Header records carry analyzer entries,
// node records carry [id, type, attributes] and edge records carry
// [id, kind, from, to, position]. An empty end record terminates the stream;
// a stream without one is treated as truncated. Node and edge counts are
// never written up front, so writers can stream and readers build the graph
// incrementally.
//
// A zstd compressed artifact is recognized by its frame magic and
// decompressed transparently.
package graphbin

import (
	"errors"
	"fmt"
)

// Magic is the artifact preamble.
var Magic = [4]byte{'S', 'M', 'G', 'R'}

// Version is the only format version this package reads and writes.
const Version byte = 1

// MaxRecordSize bounds a single record payload.
const MaxRecordSize = 64 << 20

// zstdMagic is the zstd frame magic number (little endian 0xFD2FB528).
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// Record tags.
const (
	tagEnd    byte = 0x00
	tagHeader byte = 0x01
	tagNode   byte = 0x02
	tagEdge   byte = 0x03
)

const (
	nodeFields = 3
	edgeFields = 5
)

// ErrMalformed is wrapped by every FormatError for errors.Is checks.
var ErrMalformed = errors.New("malformed graph artifact")

// FormatError reports a truncated or otherwise invalid artifact.
type FormatError struct {
	// Offset is the byte offset of the record (or preamble) that failed.
	Offset int64

	// Reason is a short description of the violation.
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("graph format error at offset %d: %s: %v", e.Offset, e.Reason, e.Err)
	}
	return fmt.Sprintf("graph format error at offset %d: %s", e.Offset, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *FormatError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrMalformed) true for every FormatError.
func (e *FormatError) Is(target error) bool {
	return target == ErrMalformed
}

func formatErr(offset int64, err error, reason string, args ...any) *FormatError {
	return &FormatError{Offset: offset, Reason: fmt.Sprintf(reason, args...), Err: err}
}
