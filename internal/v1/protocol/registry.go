package protocol

import (
	"fmt"
	"reflect"
)

// Serverbound packet ids.
const (
	idServerPing         byte = 0x00
	idServerAuthenticate byte = 0x01
	idServerChat         byte = 0x02
	idServerCreateRoom   byte = 0x03
	idServerJoinRoom     byte = 0x04
	idServerLeaveRoom    byte = 0x05
	idServerSelectChart  byte = 0x06
	idServerRequestStart byte = 0x07
	idServerReady        byte = 0x08
	idServerCancelReady  byte = 0x09
	idServerPlayed       byte = 0x0A
)

// Clientbound packet ids.
const (
	idClientPong               byte = 0x00
	idClientAuthenticateResult byte = 0x01
	idClientMessage            byte = 0x02
	idClientChangeState        byte = 0x03
	idClientChangeHost         byte = 0x04
	idClientCreateRoomResult   byte = 0x05
	idClientJoinRoomResult     byte = 0x06
	idClientOnJoinRoom         byte = 0x07
	idClientLeaveRoomResult    byte = 0x08
	idClientOnLeaveRoom        byte = 0x09
	idClientSelectChartResult  byte = 0x0A
	idClientRequestStartResult byte = 0x0B
	idClientReadyResult        byte = 0x0C
	idClientCancelReadyResult  byte = 0x0D
	idClientPlayedResult       byte = 0x0E
)

// serverboundDecoders maps a packet id to its payload decoder. This table and
// the id maps below are the only place ids and types are coupled.
var serverboundDecoders = map[byte]func(*ByteBuf) (Serverbound, error){
	idServerPing:         func(*ByteBuf) (Serverbound, error) { return ServerBoundPing{}, nil },
	idServerAuthenticate: decodeAuthenticate,
	idServerChat:         decodeChat,
	idServerCreateRoom:   decodeCreateRoom,
	idServerJoinRoom:     decodeJoinRoom,
	idServerLeaveRoom:    func(*ByteBuf) (Serverbound, error) { return ServerBoundLeaveRoom{}, nil },
	idServerSelectChart:  decodeSelectChart,
	idServerRequestStart: func(*ByteBuf) (Serverbound, error) { return ServerBoundRequestStart{}, nil },
	idServerReady:        func(*ByteBuf) (Serverbound, error) { return ServerBoundReady{}, nil },
	idServerCancelReady:  func(*ByteBuf) (Serverbound, error) { return ServerBoundCancelReady{}, nil },
	idServerPlayed:       func(*ByteBuf) (Serverbound, error) { return ServerBoundPlayed{}, nil },
}

var serverboundIDs = map[reflect.Type]byte{
	reflect.TypeOf(ServerBoundPing{}):         idServerPing,
	reflect.TypeOf(ServerBoundAuthenticate{}): idServerAuthenticate,
	reflect.TypeOf(ServerBoundChat{}):         idServerChat,
	reflect.TypeOf(ServerBoundCreateRoom{}):   idServerCreateRoom,
	reflect.TypeOf(ServerBoundJoinRoom{}):     idServerJoinRoom,
	reflect.TypeOf(ServerBoundLeaveRoom{}):    idServerLeaveRoom,
	reflect.TypeOf(ServerBoundSelectChart{}):  idServerSelectChart,
	reflect.TypeOf(ServerBoundRequestStart{}): idServerRequestStart,
	reflect.TypeOf(ServerBoundReady{}):        idServerReady,
	reflect.TypeOf(ServerBoundCancelReady{}):  idServerCancelReady,
	reflect.TypeOf(ServerBoundPlayed{}):       idServerPlayed,
}

// clientboundIDs maps packet types to ids. Success and failure variants of an
// operation share one id; the result marker byte inside the payload tells
// them apart.
var clientboundIDs = map[reflect.Type]byte{
	reflect.TypeOf(ClientBoundPong{}):                idClientPong,
	reflect.TypeOf(ClientBoundAuthenticateSuccess{}): idClientAuthenticateResult,
	reflect.TypeOf(ClientBoundAuthenticateFailure{}): idClientAuthenticateResult,
	reflect.TypeOf(ClientBoundMessage{}):             idClientMessage,
	reflect.TypeOf(ClientBoundChangeState{}):         idClientChangeState,
	reflect.TypeOf(ClientBoundChangeHost{}):          idClientChangeHost,
	reflect.TypeOf(ClientBoundCreateRoomSuccess{}):   idClientCreateRoomResult,
	reflect.TypeOf(ClientBoundCreateRoomFailure{}):   idClientCreateRoomResult,
	reflect.TypeOf(ClientBoundJoinRoomSuccess{}):     idClientJoinRoomResult,
	reflect.TypeOf(ClientBoundJoinRoomFailure{}):     idClientJoinRoomResult,
	reflect.TypeOf(ClientBoundOnJoinRoom{}):          idClientOnJoinRoom,
	reflect.TypeOf(ClientBoundLeaveRoomSuccess{}):    idClientLeaveRoomResult,
	reflect.TypeOf(ClientBoundLeaveRoomFailure{}):    idClientLeaveRoomResult,
	reflect.TypeOf(ClientBoundOnLeaveRoom{}):         idClientOnLeaveRoom,
	reflect.TypeOf(ClientBoundSelectChartSuccess{}):  idClientSelectChartResult,
	reflect.TypeOf(ClientBoundSelectChartFailure{}):  idClientSelectChartResult,
	reflect.TypeOf(ClientBoundRequestStartSuccess{}): idClientRequestStartResult,
	reflect.TypeOf(ClientBoundRequestStartFailure{}): idClientRequestStartResult,
	reflect.TypeOf(ClientBoundReadySuccess{}):        idClientReadyResult,
	reflect.TypeOf(ClientBoundReadyFailure{}):        idClientReadyResult,
	reflect.TypeOf(ClientBoundCancelReadySuccess{}):  idClientCancelReadyResult,
	reflect.TypeOf(ClientBoundCancelReadyFailure{}):  idClientCancelReadyResult,
	reflect.TypeOf(ClientBoundPlayedSuccess{}):       idClientPlayedResult,
	reflect.TypeOf(ClientBoundPlayedFailure{}):       idClientPlayedResult,
}

// DecodeServerbound parses one frame body: a packet id byte followed by the
// packet payload. An unregistered id yields ErrUnknownPacket, which is fatal
// for the connection.
func DecodeServerbound(frame *ByteBuf) (Serverbound, error) {
	id, err := frame.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("reading packet id: %w", err)
	}
	decode, ok := serverboundDecoders[id]
	if !ok {
		return nil, fmt.Errorf("%w: serverbound 0x%02x", ErrUnknownPacket, id)
	}
	pkt, err := decode(frame)
	if err != nil {
		return nil, fmt.Errorf("decoding packet 0x%02x: %w", id, err)
	}
	return pkt, nil
}

// EncodeServerbound writes a frame body (id byte plus payload) for a
// serverbound packet. Used by clients and tests.
func EncodeServerbound(pkt Serverbound) (*ByteBuf, error) {
	id, ok := serverboundIDs[reflect.TypeOf(pkt)]
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnknownPacket, pkt)
	}
	buf := NewByteBuf()
	buf.WriteUint8(id)
	pkt.(interface{ encodePayload(*ByteBuf) }).encodePayload(buf)
	return buf, nil
}

// EncodeClientbound writes a frame body (id byte plus payload) for a
// clientbound packet.
func EncodeClientbound(pkt Clientbound) (*ByteBuf, error) {
	id, ok := clientboundIDs[reflect.TypeOf(pkt)]
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnknownPacket, pkt)
	}
	buf := NewByteBuf()
	buf.WriteUint8(id)
	pkt.encodePacket(buf)
	return buf, nil
}

// ServerboundID reports the registered id for a packet type. Used by metrics
// labelling and debug logging.
func ServerboundID(pkt Serverbound) (byte, bool) {
	id, ok := serverboundIDs[reflect.TypeOf(pkt)]
	return id, ok
}
