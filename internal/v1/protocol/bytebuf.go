package protocol

import (
	"encoding/binary"
	"math"
)

// ByteBuf is a growable byte sequence with independent read and write
// cursors and a markable reader index. All fixed-width integers are
// little-endian on the wire.
type ByteBuf struct {
	data []byte
	r    int
	mark int
}

// NewByteBuf returns an empty buffer.
func NewByteBuf() *ByteBuf {
	return &ByteBuf{}
}

// NewByteBufFrom returns a buffer whose readable region is b. The slice is
// not copied; callers hand over ownership.
func NewByteBufFrom(b []byte) *ByteBuf {
	return &ByteBuf{data: b}
}

// ReadableBytes returns the number of bytes between the read and write cursors.
func (b *ByteBuf) ReadableBytes() int {
	return len(b.data) - b.r
}

// IsReadable reports whether at least n bytes can be read.
func (b *ByteBuf) IsReadable(n int) bool {
	return b.ReadableBytes() >= n
}

// MarkReaderIndex records the current reader index for ResetReaderIndex.
func (b *ByteBuf) MarkReaderIndex() {
	b.mark = b.r
}

// ResetReaderIndex rewinds the reader index to the last mark.
func (b *ByteBuf) ResetReaderIndex() {
	b.r = b.mark
}

// DiscardReadBytes drops consumed bytes so the buffer does not grow without
// bound on long-lived connections. Invalidates any mark.
func (b *ByteBuf) DiscardReadBytes() {
	if b.r == 0 {
		return
	}
	b.data = append(b.data[:0], b.data[b.r:]...)
	b.r = 0
	b.mark = 0
}

// Bytes returns the readable region without consuming it.
func (b *ByteBuf) Bytes() []byte {
	return b.data[b.r:]
}

func (b *ByteBuf) ReadUint8() (byte, error) {
	if !b.IsReadable(1) {
		return 0, ErrNeedMoreData
	}
	v := b.data[b.r]
	b.r++
	return v, nil
}

// ReadBytes consumes and returns the next n bytes.
func (b *ByteBuf) ReadBytes(n int) ([]byte, error) {
	if n < 0 || !b.IsReadable(n) {
		return nil, ErrNeedMoreData
	}
	out := make([]byte, n)
	copy(out, b.data[b.r:b.r+n])
	b.r += n
	return out, nil
}

func (b *ByteBuf) WriteUint8(v byte) {
	b.data = append(b.data, v)
}

func (b *ByteBuf) WriteBytes(p []byte) {
	b.data = append(b.data, p...)
}

func (b *ByteBuf) ReadUint16() (uint16, error) {
	p, err := b.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(p), nil
}

func (b *ByteBuf) WriteUint16(v uint16) {
	b.data = binary.LittleEndian.AppendUint16(b.data, v)
}

func (b *ByteBuf) ReadInt16() (int16, error) {
	v, err := b.ReadUint16()
	return int16(v), err
}

func (b *ByteBuf) WriteInt16(v int16) {
	b.WriteUint16(uint16(v))
}

func (b *ByteBuf) ReadUint32() (uint32, error) {
	p, err := b.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

func (b *ByteBuf) WriteUint32(v uint32) {
	b.data = binary.LittleEndian.AppendUint32(b.data, v)
}

func (b *ByteBuf) ReadInt32() (int32, error) {
	v, err := b.ReadUint32()
	return int32(v), err
}

func (b *ByteBuf) WriteInt32(v int32) {
	b.WriteUint32(uint32(v))
}

func (b *ByteBuf) ReadUint64() (uint64, error) {
	p, err := b.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

func (b *ByteBuf) WriteUint64(v uint64) {
	b.data = binary.LittleEndian.AppendUint64(b.data, v)
}

func (b *ByteBuf) ReadInt64() (int64, error) {
	v, err := b.ReadUint64()
	return int64(v), err
}

func (b *ByteBuf) WriteInt64(v int64) {
	b.WriteUint64(uint64(v))
}

func (b *ByteBuf) ReadFloat32() (float32, error) {
	v, err := b.ReadUint32()
	return math.Float32frombits(v), err
}

func (b *ByteBuf) WriteFloat32(v float32) {
	b.WriteUint32(math.Float32bits(v))
}

func (b *ByteBuf) ReadFloat64() (float64, error) {
	v, err := b.ReadUint64()
	return math.Float64frombits(v), err
}

func (b *ByteBuf) WriteFloat64(v float64) {
	b.WriteUint64(math.Float64bits(v))
}

// ReadBool reads a one-byte boolean, 0x00 or 0x01. Any nonzero byte is
// treated as true.
func (b *ByteBuf) ReadBool() (bool, error) {
	v, err := b.ReadUint8()
	return v != 0, err
}

func (b *ByteBuf) WriteBool(v bool) {
	if v {
		b.WriteUint8(0x01)
	} else {
		b.WriteUint8(0x00)
	}
}

// maxVarintBytes is the longest encoding of a 32-bit VarInt.
const maxVarintBytes = 5

// ReadVarUint decodes a LEB128 unsigned VarInt. On ErrNeedMoreData the
// reader index is restored to where the VarInt started.
func (b *ByteBuf) ReadVarUint() (uint32, error) {
	start := b.r
	var result uint32
	var shift uint
	for i := 0; i < maxVarintBytes; i++ {
		v, err := b.ReadUint8()
		if err != nil {
			b.r = start
			return 0, ErrNeedMoreData
		}
		result |= uint32(v&0x7F) << shift
		if v&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
	return 0, ErrBadVarint
}

// WriteVarUint encodes v as a LEB128 unsigned VarInt, at most 5 bytes.
func (b *ByteBuf) WriteVarUint(v uint32) {
	for {
		if v < 0x80 {
			b.WriteUint8(byte(v))
			return
		}
		b.WriteUint8(byte(v&0x7F) | 0x80)
		v >>= 7
	}
}

// ReadVarString reads a VarInt byte-length prefix followed by UTF-8 bytes.
// On ErrNeedMoreData the reader index is restored to the start of the prefix.
func (b *ByteBuf) ReadVarString() (string, error) {
	start := b.r
	n, err := b.ReadVarUint()
	if err != nil {
		return "", err
	}
	p, err := b.ReadBytes(int(n))
	if err != nil {
		b.r = start
		return "", ErrNeedMoreData
	}
	return string(p), nil
}

// WriteVarString writes a VarInt byte-length prefix followed by UTF-8 bytes.
func (b *ByteBuf) WriteVarString(s string) {
	b.WriteVarUint(uint32(len(s)))
	b.WriteBytes([]byte(s))
}
