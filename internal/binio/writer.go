package binio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Writer encodes little-endian values into a growable buffer.
//
// Write methods never fail except for string length overflow, so Writer
// accumulates the first error and Err reports it; this keeps encode
// call sites linear instead of error-checked per field.
type Writer struct {
	buf []byte
	err error
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the encoded buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Err returns the first error encountered while writing, if any.
func (w *Writer) Err() error { return w.err }

// Raw appends b verbatim.
func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// U8 writes one byte.
func (w *Writer) U8(v uint8) {
	w.buf = append(w.buf, v)
}

// Bool writes a boolean as a single 0/1 byte.
func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
	} else {
		w.U8(0)
	}
}

// U16 writes a little-endian uint16.
func (w *Writer) U16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// U32 writes a little-endian uint32.
func (w *Writer) U32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// U64 writes a little-endian uint64.
func (w *Writer) U64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// I16 writes a little-endian int16.
func (w *Writer) I16(v int16) { w.U16(uint16(v)) }

// I32 writes a little-endian int32.
func (w *Writer) I32(v int32) { w.U32(uint32(v)) }

// I64 writes a little-endian int64.
func (w *Writer) I64(v int64) { w.U64(uint64(v)) }

// F32 writes a little-endian IEEE 754 float32.
func (w *Writer) F32(v float32) { w.U32(math.Float32bits(v)) }

// F64 writes a little-endian IEEE 754 float64.
func (w *Writer) F64(v float64) { w.U64(math.Float64bits(v)) }

// StringU8 writes a UTF-8 string prefixed with a uint16 byte count.
func (w *Writer) StringU8(s string) {
	if len(s) > math.MaxUint16 {
		w.fail(fmt.Errorf("binio: string of %d bytes exceeds uint16 length prefix", len(s)))
		return
	}
	w.U16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// StringU16 writes a UTF-16LE string prefixed with a uint16 count of 16-bit
// code units.
func (w *Writer) StringU16(s string) {
	encoded, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		w.fail(fmt.Errorf("binio: utf-16 encode: %w", err))
		return
	}
	units := len(encoded) / 2
	if units > math.MaxUint16 {
		w.fail(fmt.Errorf("binio: string of %d utf-16 units exceeds uint16 length prefix", units))
		return
	}
	w.U16(uint16(units))
	w.buf = append(w.buf, encoded...)
}

// NullString writes s followed by a NUL terminator.
func (w *Writer) NullString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}
