// Package session maps decoded packets onto room operations. One handler is
// created per connection; the Manager holds everything the handlers share.
package session

import (
	"context"
	"net"
	"strconv"
	"sync"

	"github.com/phiralab/phira-mp-server/internal/v1/events"
	"github.com/phiralab/phira-mp-server/internal/v1/identity"
	"github.com/phiralab/phira-mp-server/internal/v1/protocol"
	"github.com/phiralab/phira-mp-server/internal/v1/room"
	"github.com/phiralab/phira-mp-server/internal/v1/security"
	"github.com/phiralab/phira-mp-server/internal/v1/transport"
)

// Identity resolves bearer tokens. Satisfied by identity.Client.
type Identity interface {
	Me(ctx context.Context, token string) (*identity.UserInfo, error)
}

// Manager owns the shared state behind every connection handler and
// implements transport.Handler.
type Manager struct {
	registry *room.Registry
	identity Identity
	security *security.Store
	bus      *events.Bus

	mu    sync.Mutex
	conns map[*transport.Conn]struct{}
}

func NewManager(registry *room.Registry, id Identity, sec *security.Store, bus *events.Bus) *Manager {
	return &Manager{
		registry: registry,
		identity: id,
		security: sec,
		bus:      bus,
		conns:    make(map[*transport.Conn]struct{}),
	}
}

// HandleConn wires a fresh TCP connection to a new handler and starts its
// pumps. Every live connection, authenticated or not, is tracked until its
// disconnect hook runs.
func (m *Manager) HandleConn(raw net.Conn) {
	h := &handler{mgr: m}
	h.conn = transport.NewConn(raw, h.onPacket, func(c *transport.Conn) {
		m.forgetConn(c)
		h.onClose(c)
	})
	m.trackConn(h.conn)
	h.conn.Start()
}

func (m *Manager) trackConn(c *transport.Conn) {
	m.mu.Lock()
	m.conns[c] = struct{}{}
	m.mu.Unlock()
}

func (m *Manager) forgetConn(c *transport.Conn) {
	m.mu.Lock()
	delete(m.conns, c)
	m.mu.Unlock()
}

// CloseAll closes every live connection. Each close fires the connection's
// disconnect hook, so rooms empty out and destroy themselves. Used by
// graceful shutdown after the listener stops accepting.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	conns := make([]*transport.Conn, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// Registry exposes the rooms table for admin surfaces.
func (m *Manager) Registry() *room.Registry {
	return m.registry
}

// KickUser force-disconnects an online user. The disconnect hook performs
// the room cleanup. Reports whether the user was online.
func (m *Manager) KickUser(userID int32) bool {
	conn, ok := m.registry.OnlineConn(userID)
	if !ok {
		return false
	}
	conn.Send(protocol.ClientBoundMessage{Message: protocol.ChatMessage{
		UserID:  serverUserID,
		Content: "You have been kicked from the server",
	}})
	conn.Close()
	return true
}

// BroadcastSystemChat sends a server chat line to every online user.
func (m *Manager) BroadcastSystemChat(content string) {
	m.registry.BroadcastAll(protocol.ClientBoundMessage{Message: protocol.ChatMessage{
		UserID:  serverUserID,
		Content: content,
	}})
}

func (m *Manager) userBanned(userID int32) (*security.BanRecord, bool) {
	if m.security == nil {
		return nil, false
	}
	return m.security.IsBanned(security.BanUser, strconv.FormatInt(int64(userID), 10))
}
