package protocol

import "fmt"

// MaxFrameLength bounds a single frame body. Anything larger is treated as
// a protocol error and the connection is torn down.
const MaxFrameLength = 65536

// SupportedVersions lists handshake bytes the server accepts.
var SupportedVersions = map[byte]struct{}{0x01: {}}

// FrameDecoder slices an incoming byte stream into length-prefixed frames.
// The first byte of the stream is the protocol version handshake; after that
// every frame is a VarInt length followed by that many body bytes.
type FrameDecoder struct {
	handshaken bool
	version    byte
}

// Version returns the negotiated protocol version. Valid only after the
// handshake byte has been consumed.
func (d *FrameDecoder) Version() byte {
	return d.version
}

// Handshaken reports whether the version byte has been consumed.
func (d *FrameDecoder) Handshaken() bool {
	return d.handshaken
}

// Decode extracts zero or more complete frames from buf. Partial trailing
// data is left in the buffer with the reader index rewound so the next call
// resumes cleanly. Returns ErrVersionMismatch, ErrBadVarint or
// ErrFrameTooLarge on protocol violations; all are fatal.
func (d *FrameDecoder) Decode(buf *ByteBuf) ([]*ByteBuf, error) {
	var frames []*ByteBuf

	if !d.handshaken {
		if !buf.IsReadable(1) {
			return frames, nil
		}
		version, err := buf.ReadUint8()
		if err != nil {
			return frames, nil
		}
		if _, ok := SupportedVersions[version]; !ok {
			return nil, fmt.Errorf("%w: 0x%02x", ErrVersionMismatch, version)
		}
		d.version = version
		d.handshaken = true
	}

	for {
		buf.MarkReaderIndex()
		length, err := buf.ReadVarUint()
		if err == ErrNeedMoreData {
			buf.ResetReaderIndex()
			break
		}
		if err != nil {
			return nil, err
		}
		if length > MaxFrameLength {
			return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
		}
		if !buf.IsReadable(int(length)) {
			buf.ResetReaderIndex()
			break
		}
		body, err := buf.ReadBytes(int(length))
		if err != nil {
			buf.ResetReaderIndex()
			break
		}
		frames = append(frames, NewByteBufFrom(body))
	}
	return frames, nil
}

// EncodeFrame returns a new buffer containing a VarInt length prefix and the
// body bytes of the given buffer.
func EncodeFrame(body *ByteBuf) *ByteBuf {
	out := NewByteBuf()
	out.WriteVarUint(uint32(body.ReadableBytes()))
	out.WriteBytes(body.Bytes())
	return out
}
