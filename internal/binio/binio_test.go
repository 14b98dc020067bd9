package binio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripPrimitives(t *testing.T) {
	t.Parallel()

	w := NewWriter()
	w.Bool(true)
	w.Bool(false)
	w.U8(0xab)
	w.U16(0x1234)
	w.U32(0xdeadbeef)
	w.U64(0x0102030405060708)
	w.I16(-12)
	w.I32(-123456)
	w.I64(-1234567890123)
	w.F32(1.5)
	w.F64(-2.25)
	require.NoError(t, w.Err())

	r := NewReader(w.Bytes())

	b, err := r.Bool()
	require.NoError(t, err)
	assert.True(t, b)
	b, err = r.Bool()
	require.NoError(t, err)
	assert.False(t, b)

	u8, err := r.U8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xab), u8)

	u16, err := r.U16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), u16)

	u32, err := r.U32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xdeadbeef), u32)

	u64, err := r.U64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), u64)

	i16, err := r.I16()
	require.NoError(t, err)
	assert.Equal(t, int16(-12), i16)

	i32, err := r.I32()
	require.NoError(t, err)
	assert.Equal(t, int32(-123456), i32)

	i64, err := r.I64()
	require.NoError(t, err)
	assert.Equal(t, int64(-1234567890123), i64)

	f32, err := r.F32()
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f32)

	f64, err := r.F64()
	require.NoError(t, err)
	assert.Equal(t, -2.25, f64)

	assert.Zero(t, r.Remaining())
}

func TestStrings(t *testing.T) {
	t.Parallel()

	w := NewWriter()
	w.StringU8("hello")
	w.StringU16("höllo wörld")
	w.NullString("db/units_tables/data__")
	w.StringU8("")
	w.StringU16("")
	require.NoError(t, w.Err())

	r := NewReader(w.Bytes())

	s, err := r.StringU8()
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	s, err = r.StringU16()
	require.NoError(t, err)
	assert.Equal(t, "höllo wörld", s)

	s, err = r.NullString()
	require.NoError(t, err)
	assert.Equal(t, "db/units_tables/data__", s)

	s, err = r.StringU8()
	require.NoError(t, err)
	assert.Empty(t, s)

	s, err = r.StringU16()
	require.NoError(t, err)
	assert.Empty(t, s)

	assert.Zero(t, r.Remaining())
}

func TestShortReads(t *testing.T) {
	t.Parallel()

	r := NewReader([]byte{0x01, 0x02})
	_, err := r.U32()
	require.ErrorIs(t, err, ErrShortRead)
	// Position unchanged after a failed read.
	assert.Equal(t, 0, r.Pos())

	_, err = NewReader([]byte{'a', 'b'}).NullString()
	require.ErrorIs(t, err, ErrShortRead)

	// Length prefix larger than the remaining payload.
	w := NewWriter()
	w.U16(100)
	_, err = NewReader(w.Bytes()).StringU8()
	require.ErrorIs(t, err, ErrShortRead)
}

func TestStrictBool(t *testing.T) {
	t.Parallel()

	_, err := NewReader([]byte{0x02}).Bool()
	require.ErrorIs(t, err, ErrBadBool)
}
