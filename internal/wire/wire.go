// SPDX-License-Identifier: MIT
/*
Package wire implements the versioned binary format that carries a graph
snapshot and its buffer resources across process boundaries, plus the
magic-tagged request/response headers of the legacy script-processor
round trip.

Decoding is all-or-nothing: a truncated, mistagged, or
version-mismatched payload yields an error and no partial graph.
*/
package wire

import (
	"encoding/binary"
	"errors"
	"math"
)

// Decode error categories, matchable with errors.Is.
var (
	ErrShortPayload    = errors.New("wire: payload truncated")
	ErrBadMagic        = errors.New("wire: bad magic")
	ErrBadVersion      = errors.New("wire: unsupported version")
	ErrUnknownNodeKind = errors.New("wire: unknown node kind")
	ErrMissingBuffer   = errors.New("wire: node references buffer missing from resource table")
	ErrMalformed       = errors.New("wire: malformed payload")
)

// Encoder builds a little-endian wire payload. Append operations never
// fail; size fields are reserved and patched afterwards.
type Encoder struct {
	buf []byte
}

func (e *Encoder) Len() int      { return len(e.buf) }
func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) U8(v uint8)  { e.buf = append(e.buf, v) }
func (e *Encoder) U16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}
func (e *Encoder) U32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}
func (e *Encoder) U64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}
func (e *Encoder) I64(v int64) { e.U64(uint64(v)) }
func (e *Encoder) F32(v float32) {
	e.U32(math.Float32bits(v))
}
func (e *Encoder) F64(v float64) {
	e.U64(math.Float64bits(v))
}

// String appends a u32 length prefix followed by the raw bytes.
func (e *Encoder) String(s string) {
	e.U32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

// PatchU32 overwrites a previously reserved u32 at offset.
func (e *Encoder) PatchU32(offset int, v uint32) {
	binary.LittleEndian.PutUint32(e.buf[offset:], v)
}

// Decoder reads a little-endian wire payload with a sticky error: after
// the first short read every subsequent read returns a zero value, and
// Err reports the failure.
type Decoder struct {
	buf []byte
	off int
	err error
}

func NewDecoder(buf []byte) *Decoder { return &Decoder{buf: buf} }

func (d *Decoder) Err() error  { return d.err }
func (d *Decoder) AtEnd() bool { return d.err != nil || d.off >= len(d.buf) }

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.buf)-d.off < n {
		d.err = ErrShortPayload
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *Decoder) U8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *Decoder) U16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *Decoder) U32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *Decoder) U64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *Decoder) I64() int64   { return int64(d.U64()) }
func (d *Decoder) F32() float32 { return math.Float32frombits(d.U32()) }
func (d *Decoder) F64() float64 { return math.Float64frombits(d.U64()) }

// Bytes reads exactly n raw bytes.
func (d *Decoder) Bytes(n int) []byte { return d.take(n) }

// Remaining reports the unread byte count.
func (d *Decoder) Remaining() int {
	if d.err != nil {
		return 0
	}
	return len(d.buf) - d.off
}

// Count reads a u32 element count and rejects any count whose elements
// could not fit in the remaining payload. Wire-supplied lengths must
// pass through here before sizing an allocation, so a crafted count can
// never drive an oversized make.
func (d *Decoder) Count(elemSize int) int {
	n := d.U32()
	if d.err != nil {
		return 0
	}
	if int64(n)*int64(elemSize) > int64(d.Remaining()) {
		d.err = ErrShortPayload
		return 0
	}
	return int(n)
}

// String reads a u32 length prefix followed by the raw bytes.
func (d *Decoder) String() string {
	n := d.U32()
	b := d.take(int(n))
	if b == nil {
		return ""
	}
	return string(b)
}
