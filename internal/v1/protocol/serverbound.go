package protocol

// Serverbound is a decoded client-to-server packet. The marker method keeps
// unrelated types out of the registry tables.
type Serverbound interface {
	serverbound()
}

// ServerBoundPing is the keepalive. Replied to with ClientBoundPong and
// suppressed from debug packet logs.
type ServerBoundPing struct{}

// ServerBoundAuthenticate carries the bearer token for the identity service.
type ServerBoundAuthenticate struct {
	Token string
}

// ServerBoundChat carries a chat line for the caller's room.
type ServerBoundChat struct {
	Content string
}

type ServerBoundCreateRoom struct {
	RoomID string
}

type ServerBoundJoinRoom struct {
	RoomID string
}

type ServerBoundLeaveRoom struct{}

type ServerBoundSelectChart struct {
	ChartID int32
}

type ServerBoundRequestStart struct{}

type ServerBoundReady struct{}

type ServerBoundCancelReady struct{}

// ServerBoundPlayed reports that the caller finished the current chart.
type ServerBoundPlayed struct{}

func (ServerBoundPing) serverbound()         {}
func (ServerBoundAuthenticate) serverbound() {}
func (ServerBoundChat) serverbound()         {}
func (ServerBoundCreateRoom) serverbound()   {}
func (ServerBoundJoinRoom) serverbound()     {}
func (ServerBoundLeaveRoom) serverbound()    {}
func (ServerBoundSelectChart) serverbound()  {}
func (ServerBoundRequestStart) serverbound() {}
func (ServerBoundReady) serverbound()        {}
func (ServerBoundCancelReady) serverbound()  {}
func (ServerBoundPlayed) serverbound()       {}

func decodeAuthenticate(buf *ByteBuf) (Serverbound, error) {
	token, err := buf.ReadVarString()
	if err != nil {
		return nil, err
	}
	return ServerBoundAuthenticate{Token: token}, nil
}

func decodeChat(buf *ByteBuf) (Serverbound, error) {
	content, err := buf.ReadVarString()
	if err != nil {
		return nil, err
	}
	return ServerBoundChat{Content: content}, nil
}

func decodeCreateRoom(buf *ByteBuf) (Serverbound, error) {
	id, err := buf.ReadVarString()
	if err != nil {
		return nil, err
	}
	return ServerBoundCreateRoom{RoomID: id}, nil
}

func decodeJoinRoom(buf *ByteBuf) (Serverbound, error) {
	id, err := buf.ReadVarString()
	if err != nil {
		return nil, err
	}
	return ServerBoundJoinRoom{RoomID: id}, nil
}

func decodeSelectChart(buf *ByteBuf) (Serverbound, error) {
	id, err := buf.ReadInt32()
	if err != nil {
		return nil, err
	}
	return ServerBoundSelectChart{ChartID: id}, nil
}

// encodePayload writes the packet body without the id byte. The server never
// sends serverbound packets; this exists for clients and round-trip tests.
func (ServerBoundPing) encodePayload(*ByteBuf) {}

func (p ServerBoundAuthenticate) encodePayload(buf *ByteBuf) {
	buf.WriteVarString(p.Token)
}

func (p ServerBoundChat) encodePayload(buf *ByteBuf) {
	buf.WriteVarString(p.Content)
}

func (p ServerBoundCreateRoom) encodePayload(buf *ByteBuf) {
	buf.WriteVarString(p.RoomID)
}

func (p ServerBoundJoinRoom) encodePayload(buf *ByteBuf) {
	buf.WriteVarString(p.RoomID)
}

func (ServerBoundLeaveRoom) encodePayload(*ByteBuf) {}

func (p ServerBoundSelectChart) encodePayload(buf *ByteBuf) {
	buf.WriteInt32(p.ChartID)
}

func (ServerBoundRequestStart) encodePayload(*ByteBuf) {}
func (ServerBoundReady) encodePayload(*ByteBuf)        {}
func (ServerBoundCancelReady) encodePayload(*ByteBuf)  {}
func (ServerBoundPlayed) encodePayload(*ByteBuf)       {}
