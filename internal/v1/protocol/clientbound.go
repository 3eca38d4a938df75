package protocol

// Result markers for success/failure packet variants.
const (
	resultFailed  byte = 0x00
	resultSuccess byte = 0x01
)

// Clientbound is an encodable server-to-client packet.
type Clientbound interface {
	encodePacket(buf *ByteBuf)
}

// ClientBoundPong answers ServerBoundPing.
type ClientBoundPong struct{}

func (ClientBoundPong) encodePacket(*ByteBuf) {}

// ClientBoundAuthenticateSuccess reports a successful login. Room is non-nil
// only when the server still tracks the user in a room.
type ClientBoundAuthenticateSuccess struct {
	Profile FullUserProfile
	Room    *RoomInfo
}

func (p ClientBoundAuthenticateSuccess) encodePacket(buf *ByteBuf) {
	buf.WriteUint8(resultSuccess)
	p.Profile.Encode(buf)
	if p.Room != nil {
		buf.WriteBool(true)
		p.Room.Encode(buf)
	} else {
		buf.WriteBool(false)
	}
}

type ClientBoundAuthenticateFailure struct {
	Reason string
}

func (p ClientBoundAuthenticateFailure) encodePacket(buf *ByteBuf) {
	buf.WriteUint8(resultFailed)
	buf.WriteVarString(p.Reason)
}

// ClientBoundMessage wraps a polymorphic room message.
type ClientBoundMessage struct {
	Message RoomMessage
}

func (p ClientBoundMessage) encodePacket(buf *ByteBuf) {
	p.Message.encodeMessage(buf)
}

type ClientBoundChangeState struct {
	State GameState
}

func (p ClientBoundChangeState) encodePacket(buf *ByteBuf) {
	EncodeGameState(buf, p.State)
}

// ClientBoundChangeHost tells the recipient whether it is now the host.
type ClientBoundChangeHost struct {
	IsHost bool
}

func (p ClientBoundChangeHost) encodePacket(buf *ByteBuf) {
	buf.WriteBool(p.IsHost)
}

type ClientBoundCreateRoomSuccess struct{}

func (ClientBoundCreateRoomSuccess) encodePacket(buf *ByteBuf) {
	buf.WriteUint8(resultSuccess)
}

type ClientBoundCreateRoomFailure struct {
	Reason string
}

func (p ClientBoundCreateRoomFailure) encodePacket(buf *ByteBuf) {
	buf.WriteUint8(resultFailed)
	buf.WriteVarString(p.Reason)
}

// ClientBoundJoinRoomSuccess carries the room snapshot for the joiner: the
// state, one combined participant sequence (users then monitors, each tagged
// by the monitor flag) and the live flag.
type ClientBoundJoinRoomSuccess struct {
	State        GameState
	Participants []FullUserProfile
	Live         bool
}

func (p ClientBoundJoinRoomSuccess) encodePacket(buf *ByteBuf) {
	buf.WriteUint8(resultSuccess)
	EncodeGameState(buf, p.State)
	buf.WriteVarUint(uint32(len(p.Participants)))
	for _, fp := range p.Participants {
		fp.Encode(buf)
	}
	buf.WriteBool(p.Live)
}

type ClientBoundJoinRoomFailure struct {
	Reason string
}

func (p ClientBoundJoinRoomFailure) encodePacket(buf *ByteBuf) {
	buf.WriteUint8(resultFailed)
	buf.WriteVarString(p.Reason)
}

// ClientBoundOnJoinRoom notifies existing members of a new participant.
type ClientBoundOnJoinRoom struct {
	Profile FullUserProfile
}

func (p ClientBoundOnJoinRoom) encodePacket(buf *ByteBuf) {
	p.Profile.Encode(buf)
}

type ClientBoundLeaveRoomSuccess struct{}

func (ClientBoundLeaveRoomSuccess) encodePacket(buf *ByteBuf) {
	buf.WriteUint8(resultSuccess)
}

type ClientBoundLeaveRoomFailure struct {
	Reason string
}

func (p ClientBoundLeaveRoomFailure) encodePacket(buf *ByteBuf) {
	buf.WriteUint8(resultFailed)
	buf.WriteVarString(p.Reason)
}

// ClientBoundOnLeaveRoom is the dedicated departure notification. The
// handler currently broadcasts LeaveRoomMessage instead; the packet stays
// registered for protocol compatibility.
type ClientBoundOnLeaveRoom struct {
	Profile FullUserProfile
}

func (p ClientBoundOnLeaveRoom) encodePacket(buf *ByteBuf) {
	p.Profile.Encode(buf)
}

type ClientBoundSelectChartSuccess struct{}

func (ClientBoundSelectChartSuccess) encodePacket(buf *ByteBuf) {
	buf.WriteUint8(resultSuccess)
}

type ClientBoundSelectChartFailure struct {
	Reason string
}

func (p ClientBoundSelectChartFailure) encodePacket(buf *ByteBuf) {
	buf.WriteUint8(resultFailed)
	buf.WriteVarString(p.Reason)
}

type ClientBoundRequestStartSuccess struct{}

func (ClientBoundRequestStartSuccess) encodePacket(buf *ByteBuf) {
	buf.WriteUint8(resultSuccess)
}

type ClientBoundRequestStartFailure struct {
	Reason string
}

func (p ClientBoundRequestStartFailure) encodePacket(buf *ByteBuf) {
	buf.WriteUint8(resultFailed)
	buf.WriteVarString(p.Reason)
}

type ClientBoundReadySuccess struct{}

func (ClientBoundReadySuccess) encodePacket(buf *ByteBuf) {
	buf.WriteUint8(resultSuccess)
}

type ClientBoundReadyFailure struct {
	Reason string
}

func (p ClientBoundReadyFailure) encodePacket(buf *ByteBuf) {
	buf.WriteUint8(resultFailed)
	buf.WriteVarString(p.Reason)
}

type ClientBoundCancelReadySuccess struct{}

func (ClientBoundCancelReadySuccess) encodePacket(buf *ByteBuf) {
	buf.WriteUint8(resultSuccess)
}

type ClientBoundCancelReadyFailure struct {
	Reason string
}

func (p ClientBoundCancelReadyFailure) encodePacket(buf *ByteBuf) {
	buf.WriteUint8(resultFailed)
	buf.WriteVarString(p.Reason)
}

type ClientBoundPlayedSuccess struct{}

func (ClientBoundPlayedSuccess) encodePacket(buf *ByteBuf) {
	buf.WriteUint8(resultSuccess)
}

type ClientBoundPlayedFailure struct {
	Reason string
}

func (p ClientBoundPlayedFailure) encodePacket(buf *ByteBuf) {
	buf.WriteUint8(resultFailed)
	buf.WriteVarString(p.Reason)
}
