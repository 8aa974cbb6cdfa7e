// Package kbin implements the wire codec: big-endian primitive encoding,
// length-prefixed strings and byte sequences, ZigZag/LEB128 varints, and
// the nested record-batch frame. The codec is pure: no I/O, no
// concurrency, and every Writer method appends to a caller-owned byte slice.
package kbin

import (
	"encoding/binary"

	"github.com/fluvio-go/fluvio/pkg/ferr"
)

// MaxStringLen is the largest string length the wire format can express
// in the i16 length prefix used by Writer.String.
const MaxStringLen = 32767

// Writer accumulates encoded bytes. The zero value is ready to use.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer that appends after buf's existing contents,
// reusing its spare capacity if any.
func NewWriter(buf []byte) *Writer { return &Writer{buf: buf} }

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) Int8(v int8) { w.buf = append(w.buf, byte(v)) }

func (w *Writer) Bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) Int16(v int16) {
	w.buf = append(w.buf, byte(v>>8), byte(v))
}

func (w *Writer) Int32(v int32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Uint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) Int64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	w.buf = append(w.buf, b[:]...)
}

// String writes a nullable i16-length-prefixed UTF-8 string. A nil s
// writes length -1. Returns an EncodingError if s exceeds MaxStringLen.
func (w *Writer) String(s *string) error {
	if s == nil {
		w.Int16(-1)
		return nil
	}
	if len(*s) > MaxStringLen {
		return ferr.New(ferr.CodeEncodingError, "string length exceeds maximum of 32767 bytes")
	}
	w.Int16(int16(len(*s)))
	w.buf = append(w.buf, *s...)
	return nil
}

// CompactString writes a non-nullable string (convenience over String for
// call sites that always have a value).
func (w *Writer) CompactString(s string) error {
	return w.String(&s)
}

// PrefixedBytes writes an i32-length-prefixed byte sequence. b may be empty
// but must not be nil for this non-nullable form.
func (w *Writer) PrefixedBytes(b []byte) {
	w.Int32(int32(len(b)))
	w.buf = append(w.buf, b...)
}

// NullableBytes writes an i32-length-prefixed byte sequence, using -1 for
// an absent value (b == nil) and distinguishing it from an empty-but-present
// value (b != nil, len(b) == 0), which writes length 0. This realizes the
// optional-wrapper requirement from the design notes: callers must pass nil
// for "absent", not an empty non-nil slice.
func (w *Writer) NullableBytes(b []byte) {
	if b == nil {
		w.Int32(-1)
		return
	}
	w.PrefixedBytes(b)
}

// Varint writes a ZigZag+LEB128-encoded signed 32-bit integer.
func (w *Writer) Varint(n int32) {
	zz := uint32((n << 1) ^ (n >> 31))
	w.Uvarint(zz)
}

// Uvarint writes a LEB128-encoded unsigned 32-bit integer.
func (w *Writer) Uvarint(u uint32) {
	for u >= 0x80 {
		w.buf = append(w.buf, byte(u)|0x80)
		u >>= 7
	}
	w.buf = append(w.buf, byte(u))
}

// VarintLen returns the number of bytes Varint(n) would write.
func VarintLen(n int32) int {
	zz := uint32((n << 1) ^ (n >> 31))
	return UvarintLen(zz)
}

// UvarintLen returns the number of bytes Uvarint(u) would write.
func UvarintLen(u uint32) int {
	n := 1
	for u >= 0x80 {
		n++
		u >>= 7
	}
	return n
}

// Reader parses a byte slice incrementally, tracking a cursor and the
// first error encountered. Once an error is set, all further reads are
// no-ops returning the zero value, so callers can chain reads and check
// Err once at the end.
type Reader struct {
	buf []byte
	off int
	err error
}

// NewReader returns a Reader over buf.
func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Err returns the first error encountered while reading, if any.
func (r *Reader) Err() error { return r.err }

// Remaining returns the unread suffix of the buffer.
func (r *Reader) Remaining() []byte { return r.buf[r.off:] }

// Done reports whether the whole buffer has been consumed (and no error
// occurred).
func (r *Reader) Done() bool { return r.err == nil && r.off >= len(r.buf) }

func (r *Reader) fail(code ferr.Code, msg string) {
	if r.err == nil {
		r.err = ferr.New(code, msg)
	}
}

func (r *Reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if len(r.buf)-r.off < n {
		r.fail(ferr.CodeTruncatedFrame, "frame ended before expected field")
		return false
	}
	return true
}

func (r *Reader) Int8() int8 {
	if !r.need(1) {
		return 0
	}
	v := int8(r.buf[r.off])
	r.off++
	return v
}

func (r *Reader) Bool() bool { return r.Int8() != 0 }

func (r *Reader) Int16() int16 {
	if !r.need(2) {
		return 0
	}
	v := int16(binary.BigEndian.Uint16(r.buf[r.off:]))
	r.off += 2
	return v
}

func (r *Reader) Int32() int32 {
	if !r.need(4) {
		return 0
	}
	v := int32(binary.BigEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	return v
}

func (r *Reader) Uint32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *Reader) Int64() int64 {
	if !r.need(8) {
		return 0
	}
	v := int64(binary.BigEndian.Uint64(r.buf[r.off:]))
	r.off += 8
	return v
}

// String reads a nullable i16-length-prefixed UTF-8 string, returning nil
// for a -1 length prefix.
func (r *Reader) String() *string {
	if !r.need(2) {
		return nil
	}
	l := r.Int16()
	if r.err != nil {
		return nil
	}
	if l < -1 {
		r.fail(ferr.CodeMalformed, "negative string length")
		return nil
	}
	if l == -1 {
		return nil
	}
	if !r.need(int(l)) {
		return nil
	}
	s := string(r.buf[r.off : r.off+int(l)])
	r.off += int(l)
	return &s
}

// Bytes reads an i32-length-prefixed byte sequence. A -1 length yields nil;
// a 0 length yields a non-nil empty slice, preserving the absent/empty
// distinction on read just as NullableBytes preserves it on write.
func (r *Reader) Bytes() []byte {
	if !r.need(4) {
		return nil
	}
	l := r.Int32()
	if r.err != nil {
		return nil
	}
	if l < -1 {
		r.fail(ferr.CodeMalformed, "negative byte length")
		return nil
	}
	if l == -1 {
		return nil
	}
	if !r.need(int(l)) {
		return nil
	}
	b := make([]byte, l)
	copy(b, r.buf[r.off:r.off+int(l)])
	r.off += int(l)
	return b
}

// Varint reads a ZigZag+LEB128-encoded signed 32-bit integer.
func (r *Reader) Varint() int32 {
	u := r.Uvarint()
	return int32(u>>1) ^ -int32(u&1)
}

// Uvarint reads a LEB128-encoded unsigned 32-bit integer.
func (r *Reader) Uvarint() uint32 {
	var u uint32
	for shift := uint(0); ; shift += 7 {
		if r.err != nil {
			return 0
		}
		if shift > 28 {
			r.fail(ferr.CodeMalformed, "varint too long")
			return 0
		}
		if !r.need(1) {
			return 0
		}
		b := r.buf[r.off]
		r.off++
		u |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			break
		}
	}
	return u
}

// Span reads n raw bytes without interpretation.
func (r *Reader) Span(n int) []byte {
	if !r.need(n) {
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}
