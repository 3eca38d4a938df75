package protocol

// Room message variant tags.
const (
	messageChat         byte = 0x00
	messageLeaveRoom    byte = 0x01
	messageNewHost      byte = 0x02
	messageSelectChart  byte = 0x03
	messageStartPlaying byte = 0x04
)

// RoomMessage is the polymorphic payload of the clientbound Message packet,
// discriminated by a leading tag byte.
type RoomMessage interface {
	encodeMessage(buf *ByteBuf)
}

// ChatMessage carries a line of room chat. UserID -1 is the server itself.
type ChatMessage struct {
	UserID  int32
	Content string
}

func (m ChatMessage) encodeMessage(buf *ByteBuf) {
	buf.WriteUint8(messageChat)
	buf.WriteInt32(m.UserID)
	buf.WriteVarString(m.Content)
}

// LeaveRoomMessage announces a departure to the remaining members.
type LeaveRoomMessage struct {
	UserID   int32
	UserName string
}

func (m LeaveRoomMessage) encodeMessage(buf *ByteBuf) {
	buf.WriteUint8(messageLeaveRoom)
	buf.WriteInt32(m.UserID)
	buf.WriteVarString(m.UserName)
}

// NewHostMessage announces a host change to the whole room.
type NewHostMessage struct {
	UserID   int32
	UserName string
}

func (m NewHostMessage) encodeMessage(buf *ByteBuf) {
	buf.WriteUint8(messageNewHost)
	buf.WriteInt32(m.UserID)
	buf.WriteVarString(m.UserName)
}

// SelectChartMessage announces the host's chart pick.
type SelectChartMessage struct {
	UserID   int32
	UserName string
	ChartID  int32
}

func (m SelectChartMessage) encodeMessage(buf *ByteBuf) {
	buf.WriteUint8(messageSelectChart)
	buf.WriteInt32(m.UserID)
	buf.WriteVarString(m.UserName)
	buf.WriteInt32(m.ChartID)
}

// StartPlayingMessage announces the transition into play.
type StartPlayingMessage struct{}

func (StartPlayingMessage) encodeMessage(buf *ByteBuf) {
	buf.WriteUint8(messageStartPlaying)
}
