package protocol

import "errors"

var (
	// ErrNeedMoreData signals an incomplete read; the reader index is left
	// where it was and the caller should retry once more bytes arrive.
	ErrNeedMoreData = errors.New("need more data")

	// ErrBadVarint signals a malformed VarInt. Fatal for the connection.
	ErrBadVarint = errors.New("bad varint")

	// ErrUnknownPacket signals a packet id with no registry entry.
	ErrUnknownPacket = errors.New("unknown packet id")

	// ErrVersionMismatch signals an unsupported handshake version byte.
	ErrVersionMismatch = errors.New("unsupported protocol version")

	// ErrFrameTooLarge signals a frame length above MaxFrameLength.
	ErrFrameTooLarge = errors.New("frame too large")
)
