package protocol

import "fmt"

// UserProfile identifies a player. Immutable after creation.
type UserProfile struct {
	ID   int32
	Name string
}

func (p UserProfile) Encode(buf *ByteBuf) {
	buf.WriteInt32(p.ID)
	buf.WriteVarString(p.Name)
}

func DecodeUserProfile(buf *ByteBuf) (UserProfile, error) {
	id, err := buf.ReadInt32()
	if err != nil {
		return UserProfile{}, err
	}
	name, err := buf.ReadVarString()
	if err != nil {
		return UserProfile{}, err
	}
	return UserProfile{ID: id, Name: name}, nil
}

// FullUserProfile is the encoding-time composite of a profile and its
// monitor flag; it is always written as one unit.
type FullUserProfile struct {
	Profile UserProfile
	Monitor bool
}

func (p FullUserProfile) Encode(buf *ByteBuf) {
	p.Profile.Encode(buf)
	buf.WriteBool(p.Monitor)
}

func DecodeFullUserProfile(buf *ByteBuf) (FullUserProfile, error) {
	profile, err := DecodeUserProfile(buf)
	if err != nil {
		return FullUserProfile{}, err
	}
	monitor, err := buf.ReadBool()
	if err != nil {
		return FullUserProfile{}, err
	}
	return FullUserProfile{Profile: profile, Monitor: monitor}, nil
}

// CombineProfiles builds a single participant sequence from users followed
// by monitors, each tagged with its monitor flag.
func CombineProfiles(users, monitors []UserProfile) []FullUserProfile {
	out := make([]FullUserProfile, 0, len(users)+len(monitors))
	for _, u := range users {
		out = append(out, FullUserProfile{Profile: u})
	}
	for _, m := range monitors {
		out = append(out, FullUserProfile{Profile: m, Monitor: true})
	}
	return out
}

// GameState state discriminators.
const (
	stateSelectChart  byte = 0x00
	stateWaitForReady byte = 0x01
	statePlaying      byte = 0x02
	stateSettling     byte = 0x03
)

// GameState is the per-room state machine value. Variants encode a one-byte
// discriminator followed by the variant payload.
type GameState interface {
	encodeState(buf *ByteBuf)
}

// StateSelectChart is the initial room state; Chart is nil until the host
// picks one.
type StateSelectChart struct {
	Chart *int32
}

func (s StateSelectChart) encodeState(buf *ByteBuf) {
	buf.WriteUint8(stateSelectChart)
	if s.Chart != nil {
		buf.WriteBool(true)
		buf.WriteInt32(*s.Chart)
	} else {
		buf.WriteBool(false)
	}
}

type StateWaitForReady struct{}

func (StateWaitForReady) encodeState(buf *ByteBuf) {
	buf.WriteUint8(stateWaitForReady)
}

type StatePlaying struct{}

func (StatePlaying) encodeState(buf *ByteBuf) {
	buf.WriteUint8(statePlaying)
}

type StateSettling struct{}

func (StateSettling) encodeState(buf *ByteBuf) {
	buf.WriteUint8(stateSettling)
}

func EncodeGameState(buf *ByteBuf, s GameState) {
	s.encodeState(buf)
}

func DecodeGameState(buf *ByteBuf) (GameState, error) {
	disc, err := buf.ReadUint8()
	if err != nil {
		return nil, err
	}
	switch disc {
	case stateSelectChart:
		present, err := buf.ReadBool()
		if err != nil {
			return nil, err
		}
		if !present {
			return StateSelectChart{}, nil
		}
		id, err := buf.ReadInt32()
		if err != nil {
			return nil, err
		}
		return StateSelectChart{Chart: &id}, nil
	case stateWaitForReady:
		return StateWaitForReady{}, nil
	case statePlaying:
		return StatePlaying{}, nil
	case stateSettling:
		return StateSettling{}, nil
	default:
		return nil, fmt.Errorf("unknown game state 0x%02x", disc)
	}
}

// RoomInfo is the full snapshot of a room sent to a reconnecting client.
type RoomInfo struct {
	RoomID       string
	State        GameState
	Live         bool
	Locked       bool
	Cycle        bool
	IsHost       bool
	IsReady      bool
	Participants []FullUserProfile
}

func (r RoomInfo) Encode(buf *ByteBuf) {
	buf.WriteVarString(r.RoomID)
	EncodeGameState(buf, r.State)
	buf.WriteBool(r.Live)
	buf.WriteBool(r.Locked)
	buf.WriteBool(r.Cycle)
	buf.WriteBool(r.IsHost)
	buf.WriteBool(r.IsReady)
	buf.WriteVarUint(uint32(len(r.Participants)))
	for _, p := range r.Participants {
		buf.WriteInt32(p.Profile.ID)
		p.Encode(buf)
	}
}
