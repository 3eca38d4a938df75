package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/phiralab/phira-mp-server/internal/v1/events"
	"github.com/phiralab/phira-mp-server/internal/v1/identity"
	"github.com/phiralab/phira-mp-server/internal/v1/logging"
	"github.com/phiralab/phira-mp-server/internal/v1/metrics"
	"github.com/phiralab/phira-mp-server/internal/v1/protocol"
	"github.com/phiralab/phira-mp-server/internal/v1/room"
	"github.com/phiralab/phira-mp-server/internal/v1/transport"
)

// serverUserID is the pseudo-user for server-originated chat lines.
const serverUserID int32 = -1

const (
	maxRoomIDLength = 32
	maxChatLength   = 256
)

// Bus payloads.
type UserEvent struct {
	UserID int32
	Name   string
}

type RoomEvent struct {
	RoomID string
	UserID int32
}

type ChatEvent struct {
	RoomID  string
	UserID  int32
	Content string
}

// handler is the per-connection packet dispatcher.
type handler struct {
	mgr  *Manager
	conn *transport.Conn

	mu      sync.RWMutex
	profile *protocol.UserProfile
	monitor bool
}

func (h *handler) userProfile() (protocol.UserProfile, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.profile == nil {
		return protocol.UserProfile{}, false
	}
	return *h.profile, true
}

func (h *handler) isMonitor() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.monitor
}

func (h *handler) setProfile(p protocol.UserProfile, monitor bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.profile = &p
	h.monitor = monitor
}

func (h *handler) ctx() context.Context {
	ctx := logging.WithRemoteAddr(context.Background(), h.conn.RemoteIP())
	if p, ok := h.userProfile(); ok {
		ctx = logging.WithUser(ctx, p.ID)
	}
	return ctx
}

// onPacket runs on the connection's read goroutine, so packets of one
// connection are handled strictly in arrival order.
func (h *handler) onPacket(conn *transport.Conn, pkt protocol.Serverbound) {
	ctx := h.ctx()

	switch p := pkt.(type) {
	case protocol.ServerBoundPing:
		conn.Send(protocol.ClientBoundPong{})
		return
	case protocol.ServerBoundAuthenticate:
		h.handleAuthenticate(ctx, p)
		return
	}

	prof, ok := h.userProfile()
	if !ok {
		logging.Warn(ctx, "packet before authentication", zap.String("packet", fmt.Sprintf("%T", pkt)))
		conn.Close()
		return
	}

	switch p := pkt.(type) {
	case protocol.ServerBoundChat:
		h.handleChat(ctx, prof, p)
	case protocol.ServerBoundCreateRoom:
		h.handleCreateRoom(ctx, prof, p)
	case protocol.ServerBoundJoinRoom:
		h.handleJoinRoom(ctx, prof, p)
	case protocol.ServerBoundLeaveRoom:
		h.handleLeaveRoom(ctx, prof)
	case protocol.ServerBoundSelectChart:
		h.handleSelectChart(ctx, prof, p)
	case protocol.ServerBoundRequestStart:
		h.handleRequestStart(ctx, prof)
	case protocol.ServerBoundReady:
		h.handleReady(ctx, prof)
	case protocol.ServerBoundCancelReady:
		h.handleCancelReady(ctx, prof)
	case protocol.ServerBoundPlayed:
		h.handlePlayed(ctx, prof)
	}
}

func (h *handler) handleAuthenticate(ctx context.Context, pkt protocol.ServerBoundAuthenticate) {
	if pkt.Token == "" {
		metrics.AuthAttempts.WithLabelValues("invalid").Inc()
		h.conn.Send(protocol.ClientBoundAuthenticateFailure{Reason: "invalid token"})
		h.conn.Close()
		return
	}

	user, err := h.mgr.identity.Me(ctx, pkt.Token)
	if err != nil {
		reason := "authentication failed"
		status := "error"
		if errors.Is(err, identity.ErrUnauthorized) {
			reason = "invalid token"
			status = "invalid"
		}
		metrics.AuthAttempts.WithLabelValues(status).Inc()
		logging.Warn(ctx, "authentication failed", zap.Error(err))
		h.conn.Send(protocol.ClientBoundAuthenticateFailure{Reason: reason})
		h.conn.Close()
		return
	}

	if _, banned := h.mgr.userBanned(user.ID); banned || user.Banned {
		metrics.AuthAttempts.WithLabelValues("banned").Inc()
		logging.Info(ctx, "rejected banned user", zap.Int32("userId", user.ID))
		h.conn.Send(protocol.ClientBoundAuthenticateFailure{Reason: "account banned"})
		h.conn.Close()
		return
	}

	profile := protocol.UserProfile{ID: user.ID, Name: user.Name}
	monitor := h.mgr.registry.IsMonitor(user.ID)
	h.setProfile(profile, monitor)

	// A second login from elsewhere evicts the previous connection.
	if old := h.mgr.registry.SetOnline(user.ID, h.conn); old != nil && old != room.Conn(h.conn) {
		old.Close()
	}
	info, _ := h.mgr.registry.RebindConn(user.ID, h.conn)

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	logging.Info(logging.WithUser(ctx, user.ID), "user authenticated",
		zap.String("userName", user.Name), zap.Bool("monitor", monitor))

	h.conn.Send(protocol.ClientBoundAuthenticateSuccess{
		Profile: protocol.FullUserProfile{Profile: profile, Monitor: monitor},
		Room:    info,
	})
	h.conn.Send(protocol.ClientBoundMessage{Message: protocol.ChatMessage{
		UserID:  serverUserID,
		Content: fmt.Sprintf("Welcome to the multiplayer server, %s!", user.Name),
	}})
	h.conn.Send(protocol.ClientBoundMessage{Message: protocol.ChatMessage{
		UserID:  serverUserID,
		Content: fmt.Sprintf("Players online: %d", h.mgr.registry.OnlineCount()),
	}})

	h.mgr.bus.Emit(ctx, events.TopicUserAuthenticated, UserEvent{UserID: user.ID, Name: user.Name})
}

func (h *handler) handleChat(ctx context.Context, prof protocol.UserProfile, pkt protocol.ServerBoundChat) {
	content := strings.TrimSpace(pkt.Content)
	if content == "" || utf8.RuneCountInString(content) > maxChatLength {
		return
	}
	roomID, ok := h.mgr.registry.RoomOfUser(prof.ID)
	if !ok {
		logging.Debug(ctx, "chat outside a room dropped")
		return
	}

	_ = h.mgr.registry.Broadcast(roomID, protocol.ClientBoundMessage{Message: protocol.ChatMessage{
		UserID:  prof.ID,
		Content: content,
	}}, nil)

	h.mgr.bus.Emit(ctx, events.TopicChat, ChatEvent{RoomID: roomID, UserID: prof.ID, Content: content})
}

func validRoomID(id string) bool {
	if id == "" || utf8.RuneCountInString(id) > maxRoomIDLength {
		return false
	}
	for _, r := range id {
		if r < 0x20 || r == 0x7F {
			return false
		}
	}
	return true
}

func (h *handler) handleCreateRoom(ctx context.Context, prof protocol.UserProfile, pkt protocol.ServerBoundCreateRoom) {
	if !validRoomID(pkt.RoomID) {
		h.conn.Send(protocol.ClientBoundCreateRoomFailure{Reason: "invalid room id"})
		return
	}

	if err := h.mgr.registry.Create(pkt.RoomID, prof, h.conn); err != nil {
		h.conn.Send(protocol.ClientBoundCreateRoomFailure{Reason: err.Error()})
		return
	}

	logging.Info(logging.WithRoom(ctx, pkt.RoomID), "room created")
	h.conn.Send(protocol.ClientBoundCreateRoomSuccess{})
	h.mgr.bus.Emit(ctx, events.TopicRoomCreated, RoomEvent{RoomID: pkt.RoomID, UserID: prof.ID})
}

func (h *handler) handleJoinRoom(ctx context.Context, prof protocol.UserProfile, pkt protocol.ServerBoundJoinRoom) {
	if h.isMonitor() {
		// TODO: attach monitors as live observers once the observer client
		// protocol is settled; until then the attach is accepted without
		// touching room state.
		snap, err := h.mgr.registry.Snapshot(pkt.RoomID)
		if err != nil {
			h.conn.Send(protocol.ClientBoundJoinRoomFailure{Reason: err.Error()})
			return
		}
		h.conn.Send(protocol.ClientBoundJoinRoomSuccess{
			State:        snap.State,
			Participants: snap.Participants,
			Live:         snap.Live,
		})
		return
	}

	snap, err := h.mgr.registry.Join(pkt.RoomID, prof, h.conn, false)
	if err != nil {
		h.conn.Send(protocol.ClientBoundJoinRoomFailure{Reason: err.Error()})
		return
	}

	logging.Info(logging.WithRoom(ctx, pkt.RoomID), "user joined room")
	h.conn.Send(protocol.ClientBoundJoinRoomSuccess{
		State:        snap.State,
		Participants: snap.Participants,
		Live:         snap.Live,
	})

	joined := protocol.ClientBoundOnJoinRoom{
		Profile: protocol.FullUserProfile{Profile: prof},
	}
	for _, c := range snap.Others {
		c.Send(joined)
	}

	h.mgr.bus.Emit(ctx, events.TopicRoomJoined, RoomEvent{RoomID: pkt.RoomID, UserID: prof.ID})
}

func (h *handler) handleLeaveRoom(ctx context.Context, prof protocol.UserProfile) {
	res, err := h.mgr.registry.Leave(prof.ID)
	if err != nil {
		h.conn.Send(protocol.ClientBoundLeaveRoomFailure{Reason: "not in room"})
		return
	}

	h.conn.Send(protocol.ClientBoundLeaveRoomSuccess{})
	h.notifyDeparture(ctx, res)
	h.mgr.bus.Emit(ctx, events.TopicRoomLeft, RoomEvent{RoomID: res.RoomID, UserID: prof.ID})
	if res.Destroyed {
		h.mgr.bus.Emit(ctx, events.TopicRoomDestroyed, RoomEvent{RoomID: res.RoomID})
	}
}

// notifyDeparture tells the remaining members about a leave and, if the host
// role moved, tells the new host.
func (h *handler) notifyDeparture(ctx context.Context, res *room.LeaveResult) {
	if res.Destroyed {
		logging.Info(logging.WithRoom(ctx, res.RoomID), "room destroyed, last member left")
		return
	}

	left := protocol.ClientBoundMessage{Message: protocol.LeaveRoomMessage{
		UserID:   res.User.ID,
		UserName: res.User.Name,
	}}
	for _, c := range res.Remaining {
		c.Send(left)
	}
	if res.NewHost != nil {
		res.NewHost.Conn.Send(protocol.ClientBoundChangeHost{IsHost: true})
		logging.Info(logging.WithRoom(ctx, res.RoomID), "host transferred",
			zap.Int32("newHost", res.NewHost.Profile.ID))
	}
}

func (h *handler) handleSelectChart(ctx context.Context, prof protocol.UserProfile, pkt protocol.ServerBoundSelectChart) {
	res, err := h.mgr.registry.SelectChart(prof.ID, pkt.ChartID)
	if err != nil {
		h.conn.Send(protocol.ClientBoundSelectChartFailure{Reason: err.Error()})
		return
	}

	chart := pkt.ChartID
	state := protocol.ClientBoundChangeState{State: protocol.StateSelectChart{Chart: &chart}}
	msg := protocol.ClientBoundMessage{Message: protocol.SelectChartMessage{
		UserID:   res.Host.ID,
		UserName: res.Host.Name,
		ChartID:  pkt.ChartID,
	}}
	for _, c := range res.All {
		c.Send(state)
		c.Send(msg)
	}
	h.conn.Send(protocol.ClientBoundSelectChartSuccess{})
}

func (h *handler) handleRequestStart(ctx context.Context, prof protocol.UserProfile) {
	res, err := h.mgr.registry.RequestStart(prof.ID)
	if err != nil {
		h.conn.Send(protocol.ClientBoundRequestStartFailure{Reason: err.Error()})
		return
	}

	state := protocol.ClientBoundChangeState{State: protocol.StateWaitForReady{}}
	for _, c := range res.All {
		c.Send(state)
	}
	h.conn.Send(protocol.ClientBoundRequestStartSuccess{})
}

func (h *handler) handleReady(ctx context.Context, prof protocol.UserProfile) {
	res, err := h.mgr.registry.MarkReady(prof.ID)
	if err != nil {
		h.conn.Send(protocol.ClientBoundReadyFailure{Reason: err.Error()})
		return
	}

	h.conn.Send(protocol.ClientBoundReadySuccess{})
	if res.AllReady {
		start := protocol.ClientBoundMessage{Message: protocol.StartPlayingMessage{}}
		state := protocol.ClientBoundChangeState{State: protocol.StatePlaying{}}
		for _, c := range res.All {
			c.Send(start)
			c.Send(state)
		}
		logging.Info(logging.WithRoom(ctx, res.RoomID), "game started")
		h.mgr.bus.Emit(ctx, events.TopicGameStarted, RoomEvent{RoomID: res.RoomID})
	}
}

func (h *handler) handleCancelReady(ctx context.Context, prof protocol.UserProfile) {
	res, err := h.mgr.registry.CancelReady(prof.ID)
	if err != nil {
		h.conn.Send(protocol.ClientBoundCancelReadyFailure{Reason: err.Error()})
		return
	}

	h.conn.Send(protocol.ClientBoundCancelReadySuccess{})
	if res != nil {
		// The host backed out; the whole room rolls back to selection.
		state := protocol.ClientBoundChangeState{State: protocol.StateSelectChart{Chart: res.Chart}}
		for _, c := range res.All {
			c.Send(state)
		}
	}
}

func (h *handler) handlePlayed(ctx context.Context, prof protocol.UserProfile) {
	res, err := h.mgr.registry.MarkPlayed(prof.ID)
	if err != nil {
		h.conn.Send(protocol.ClientBoundPlayedFailure{Reason: err.Error()})
		return
	}

	h.conn.Send(protocol.ClientBoundPlayedSuccess{})
	if !res.AllPlayed {
		return
	}

	settling := protocol.ClientBoundChangeState{State: protocol.StateSettling{}}
	selecting := protocol.ClientBoundChangeState{State: protocol.StateSelectChart{Chart: res.Chart}}
	for _, c := range res.All {
		c.Send(settling)
	}
	if res.NewHost != nil {
		res.NewHost.Conn.Send(protocol.ClientBoundChangeHost{IsHost: true})
		rotated := protocol.ClientBoundMessage{Message: protocol.NewHostMessage{
			UserID:   res.NewHost.Profile.ID,
			UserName: res.NewHost.Profile.Name,
		}}
		for _, c := range res.All {
			c.Send(rotated)
		}
	}
	for _, c := range res.All {
		c.Send(selecting)
	}
	logging.Info(logging.WithRoom(ctx, res.RoomID), "game finished")
	h.mgr.bus.Emit(ctx, events.TopicGameFinished, RoomEvent{RoomID: res.RoomID})
}

// onClose is the disconnect hook; it runs exactly once per connection.
func (h *handler) onClose(conn *transport.Conn) {
	prof, ok := h.userProfile()
	if !ok {
		return
	}
	ctx := h.ctx()

	// Only the connection that still owns the online entry cleans up; a
	// reconnect may already have taken over the user's room membership.
	if !h.mgr.registry.SetOffline(prof.ID, conn) {
		return
	}

	if res, err := h.mgr.registry.Leave(prof.ID); err == nil {
		h.notifyDeparture(ctx, res)
		if res.Destroyed {
			h.mgr.bus.Emit(ctx, events.TopicRoomDestroyed, RoomEvent{RoomID: res.RoomID})
		}
	}

	logging.Info(ctx, "user disconnected")
	h.mgr.bus.Emit(ctx, events.TopicUserDisconnected, UserEvent{UserID: prof.ID, Name: prof.Name})
}
