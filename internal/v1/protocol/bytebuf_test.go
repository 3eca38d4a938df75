package protocol

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarUintRoundTrip(t *testing.T) {
	values := []uint32{0, 1, 127, 128, 300, 16383, 16384, 1 << 21, math.MaxUint32}
	for _, v := range values {
		buf := NewByteBuf()
		buf.WriteVarUint(v)
		got, err := buf.ReadVarUint()
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, 0, buf.ReadableBytes())
	}
}

func TestVarUintEncoding(t *testing.T) {
	tests := []struct {
		value uint32
		want  []byte
	}{
		{0, []byte{0x00}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xAC, 0x02}},
		{math.MaxUint32, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x0F}},
	}
	for _, tt := range tests {
		buf := NewByteBuf()
		buf.WriteVarUint(tt.value)
		assert.Equal(t, tt.want, buf.Bytes(), "value %d", tt.value)
	}
}

func TestVarUintTruncatedRestoresIndex(t *testing.T) {
	buf := NewByteBufFrom([]byte{0x80, 0x80})

	_, err := buf.ReadVarUint()
	require.ErrorIs(t, err, ErrNeedMoreData)

	// Both continuation bytes must still be readable for the retry.
	assert.Equal(t, 2, buf.ReadableBytes())
}

func TestVarUintTooLong(t *testing.T) {
	buf := NewByteBufFrom([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})

	_, err := buf.ReadVarUint()
	require.ErrorIs(t, err, ErrBadVarint)
}

func TestFixedWidthLittleEndian(t *testing.T) {
	buf := NewByteBuf()
	buf.WriteUint16(0x0102)
	buf.WriteInt32(1)
	buf.WriteInt32(-1)
	buf.WriteUint64(0x0807060504030201)

	assert.Equal(t, []byte{
		0x02, 0x01,
		0x01, 0x00, 0x00, 0x00,
		0xFF, 0xFF, 0xFF, 0xFF,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
	}, buf.Bytes())

	u16, err := buf.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0102), u16)
	i32, err := buf.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(1), i32)
	neg, err := buf.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(-1), neg)
	u64, err := buf.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0807060504030201), u64)
}

func TestFloatRoundTrip(t *testing.T) {
	buf := NewByteBuf()
	buf.WriteFloat32(3.5)
	buf.WriteFloat64(-0.25)

	f32, err := buf.ReadFloat32()
	require.NoError(t, err)
	assert.Equal(t, float32(3.5), f32)
	f64, err := buf.ReadFloat64()
	require.NoError(t, err)
	assert.Equal(t, -0.25, f64)
}

func TestVarStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "a", "hello", "房间", "héllo wörld"} {
		buf := NewByteBuf()
		buf.WriteVarString(s)
		got, err := buf.ReadVarString()
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestVarStringLengthIsByteLength(t *testing.T) {
	buf := NewByteBuf()
	buf.WriteVarString("房")

	// Three UTF-8 bytes, so the prefix must be 3, not 1.
	n, err := buf.ReadVarUint()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), n)
}

func TestVarStringShortReadRestoresIndex(t *testing.T) {
	buf := NewByteBufFrom([]byte{0x05, 'a', 'b'})

	_, err := buf.ReadVarString()
	require.ErrorIs(t, err, ErrNeedMoreData)
	assert.Equal(t, 3, buf.ReadableBytes())
}

func TestBoolEncoding(t *testing.T) {
	buf := NewByteBuf()
	buf.WriteBool(true)
	buf.WriteBool(false)
	assert.Equal(t, []byte{0x01, 0x00}, buf.Bytes())

	v, err := buf.ReadBool()
	require.NoError(t, err)
	assert.True(t, v)
	v, err = buf.ReadBool()
	require.NoError(t, err)
	assert.False(t, v)
}

func TestMarkAndReset(t *testing.T) {
	buf := NewByteBufFrom([]byte{1, 2, 3})
	buf.MarkReaderIndex()
	_, err := buf.ReadUint8()
	require.NoError(t, err)
	_, err = buf.ReadUint8()
	require.NoError(t, err)

	buf.ResetReaderIndex()
	assert.Equal(t, 3, buf.ReadableBytes())
}

func TestDiscardReadBytes(t *testing.T) {
	buf := NewByteBufFrom([]byte{1, 2, 3, 4})
	_, err := buf.ReadBytes(2)
	require.NoError(t, err)

	buf.DiscardReadBytes()
	assert.Equal(t, []byte{3, 4}, buf.Bytes())

	v, err := buf.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, byte(3), v)
}

func TestReadPastEnd(t *testing.T) {
	buf := NewByteBufFrom([]byte{1})
	_, err := buf.ReadInt32()
	require.ErrorIs(t, err, ErrNeedMoreData)
}
