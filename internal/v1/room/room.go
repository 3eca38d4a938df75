// Package room holds the rooms and online tables and every mutation on them.
// All state lives behind the Registry mutex; no network write ever happens
// under it.
package room

import (
	"github.com/phiralab/phira-mp-server/internal/v1/protocol"
)

// Conn is the non-owning handle a room keeps for each member. Implemented by
// transport.Conn; declared here so this package stays free of transport.
type Conn interface {
	Send(pkt protocol.Clientbound)
	Close()
}

// Member is one participant of a room.
type Member struct {
	Profile protocol.UserProfile
	Conn    Conn
	Monitor bool
	Ready   bool
	Played  bool
}

// Room is the per-room state. Mutated only by Registry methods holding the
// registry lock; Members preserves join order.
type Room struct {
	ID      string
	HostID  int32
	State   protocol.GameState
	Chart   *int32
	Locked  bool
	Cycle   bool
	Live    bool
	Members []*Member
}

func (r *Room) member(userID int32) (*Member, int) {
	for i, m := range r.Members {
		if m.Profile.ID == userID {
			return m, i
		}
	}
	return nil, -1
}

func (r *Room) players() []*Member {
	out := make([]*Member, 0, len(r.Members))
	for _, m := range r.Members {
		if !m.Monitor {
			out = append(out, m)
		}
	}
	return out
}

func (r *Room) host() *Member {
	m, _ := r.member(r.HostID)
	return m
}

// participants builds the wire participant sequence, players first and then
// monitors, matching the join-order within each group.
func (r *Room) participants() []protocol.FullUserProfile {
	users := make([]protocol.UserProfile, 0, len(r.Members))
	monitors := make([]protocol.UserProfile, 0)
	for _, m := range r.Members {
		if m.Monitor {
			monitors = append(monitors, m.Profile)
		} else {
			users = append(users, m.Profile)
		}
	}
	return protocol.CombineProfiles(users, monitors)
}

func (r *Room) conns(except Conn) []Conn {
	out := make([]Conn, 0, len(r.Members))
	for _, m := range r.Members {
		if m.Conn != nil && m.Conn != except {
			out = append(out, m.Conn)
		}
	}
	return out
}

// allPlayersReady reports whether every non-monitor member is ready. False
// for an empty player list.
func (r *Room) allPlayersReady() bool {
	players := r.players()
	if len(players) == 0 {
		return false
	}
	for _, m := range players {
		if !m.Ready {
			return false
		}
	}
	return true
}

func (r *Room) allPlayersPlayed() bool {
	players := r.players()
	if len(players) == 0 {
		return false
	}
	for _, m := range players {
		if !m.Played {
			return false
		}
	}
	return true
}

func (r *Room) resetPlayFlags() {
	for _, m := range r.Members {
		m.Ready = false
		m.Played = false
	}
}

// info builds the reconnect snapshot for one member's point of view.
func (r *Room) info(userID int32) protocol.RoomInfo {
	m, _ := r.member(userID)
	ready := m != nil && m.Ready
	return protocol.RoomInfo{
		RoomID:       r.ID,
		State:        r.State,
		Live:         r.Live,
		Locked:       r.Locked,
		Cycle:        r.Cycle,
		IsHost:       r.HostID == userID,
		IsReady:      ready,
		Participants: r.participants(),
	}
}
