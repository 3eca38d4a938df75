package room

import (
	"math/rand"
	"sync"

	"github.com/phiralab/phira-mp-server/internal/v1/metrics"
	"github.com/phiralab/phira-mp-server/internal/v1/protocol"
)

// Registry is the single authority over the rooms table, the online table
// and the monitor set. Every mutation happens under one lock; methods return
// snapshots (member handles, participant lists) so callers can perform the
// resulting sends after the lock is released.
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	online   map[int32]Conn
	monitors map[int32]struct{}

	maxRoomUsers int
	contestMode  bool
	whitelist    map[int32]struct{}
}

func NewRegistry(maxRoomUsers int) *Registry {
	return &Registry{
		rooms:        make(map[string]*Room),
		online:       make(map[int32]Conn),
		monitors:     make(map[int32]struct{}),
		maxRoomUsers: maxRoomUsers,
	}
}

// --- online table ---

// SetOnline registers a user's connection and returns the previous one when
// the user was already connected, so the caller can evict it.
func (g *Registry) SetOnline(userID int32, conn Conn) Conn {
	g.mu.Lock()
	defer g.mu.Unlock()
	old := g.online[userID]
	g.online[userID] = conn
	return old
}

// SetOffline removes the online entry, but only if it still belongs to conn.
// A reconnect may have replaced the entry already; reports whether conn was
// the current one.
func (g *Registry) SetOffline(userID int32, conn Conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.online[userID] == conn {
		delete(g.online, userID)
		return true
	}
	return false
}

// OnlineConn returns the connection of an online user.
func (g *Registry) OnlineConn(userID int32) (Conn, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.online[userID]
	return c, ok
}

func (g *Registry) OnlineCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.online)
}

// --- monitor set ---

// SetMonitors replaces the monitor set. Called at startup and on explicit
// admin reload.
func (g *Registry) SetMonitors(ids []int32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.monitors = make(map[int32]struct{}, len(ids))
	for _, id := range ids {
		g.monitors[id] = struct{}{}
	}
}

func (g *Registry) IsMonitor(userID int32) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.monitors[userID]
	return ok
}

// --- registry-level limits ---

func (g *Registry) SetMaxRoomUsers(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.maxRoomUsers = n
}

func (g *Registry) MaxRoomUsers() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxRoomUsers
}

// SetContestMode toggles restricted room creation. When enabled, only
// whitelisted users may create rooms.
func (g *Registry) SetContestMode(enabled bool, whitelist []int32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contestMode = enabled
	g.whitelist = make(map[int32]struct{}, len(whitelist))
	for _, id := range whitelist {
		g.whitelist[id] = struct{}{}
	}
}

func (g *Registry) ContestMode() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.contestMode
}

// --- room lookups ---

// roomOf finds the room containing userID. Callers hold the lock. By the
// single-room invariant there is at most one.
func (g *Registry) roomOf(userID int32) *Room {
	for _, r := range g.rooms {
		if m, _ := r.member(userID); m != nil {
			return r
		}
	}
	return nil
}

// RoomOfUser returns the id of the room containing the user, if any.
func (g *Registry) RoomOfUser(userID int32) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if r := g.roomOf(userID); r != nil {
		return r.ID, true
	}
	return "", false
}

// RebindConn points a user's room membership at a fresh connection after a
// re-authentication and returns the reconnect snapshot.
func (g *Registry) RebindConn(userID int32, conn Conn) (*protocol.RoomInfo, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.roomOf(userID)
	if r == nil {
		return nil, false
	}
	m, _ := r.member(userID)
	m.Conn = conn
	info := r.info(userID)
	return &info, true
}

// InfoFor returns the reconnect snapshot for a user's current room.
func (g *Registry) InfoFor(userID int32) (*protocol.RoomInfo, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r := g.roomOf(userID)
	if r == nil {
		return nil, false
	}
	info := r.info(userID)
	return &info, true
}

// --- create / join / leave ---

// Create makes a new room with the caller as host and sole member.
func (g *Registry) Create(roomID string, profile protocol.UserProfile, conn Conn) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.contestMode {
		if _, ok := g.whitelist[profile.ID]; !ok {
			return ErrNotWhitelisted
		}
	}
	if _, ok := g.rooms[roomID]; ok {
		return ErrRoomExists
	}
	if g.roomOf(profile.ID) != nil {
		return ErrUserExists
	}

	r := &Room{
		ID:     roomID,
		HostID: profile.ID,
		State:  protocol.StateSelectChart{},
		Members: []*Member{
			{Profile: profile, Conn: conn},
		},
	}
	g.rooms[roomID] = r
	metrics.ActiveRooms.Inc()
	metrics.RoomParticipants.WithLabelValues(roomID).Set(1)
	return nil
}

// JoinSnapshot is everything the handler needs after a successful join: the
// reply payload plus the peers to notify.
type JoinSnapshot struct {
	State        protocol.GameState
	Participants []protocol.FullUserProfile
	Live         bool
	Others       []Conn
}

// Join adds a user to a room and returns the join snapshot.
func (g *Registry) Join(roomID string, profile protocol.UserProfile, conn Conn, monitor bool) (*JoinSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if g.roomOf(profile.ID) != nil {
		return nil, ErrUserExists
	}
	if !monitor {
		if r.Locked {
			return nil, ErrRoomLocked
		}
		if g.maxRoomUsers > 0 && len(r.players()) >= g.maxRoomUsers {
			return nil, ErrRoomFull
		}
	}

	others := r.conns(nil)
	r.Members = append(r.Members, &Member{Profile: profile, Conn: conn, Monitor: monitor})
	if monitor {
		r.Live = true
	}
	metrics.RoomParticipants.WithLabelValues(roomID).Set(float64(len(r.Members)))

	return &JoinSnapshot{
		State:        r.State,
		Participants: r.participants(),
		Live:         r.Live,
		Others:       others,
	}, nil
}

// Snapshot returns the join-reply view of a room without mutating it. Used
// by the reserved monitor attach path.
func (g *Registry) Snapshot(roomID string) (*JoinSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return &JoinSnapshot{
		State:        r.State,
		Participants: r.participants(),
		Live:         r.Live,
	}, nil
}

// LeaveResult describes the outcome of a departure so the caller can emit
// the right packets outside the lock.
type LeaveResult struct {
	RoomID    string
	User      protocol.UserProfile
	Destroyed bool
	NewHost   *Member
	Remaining []Conn
}

// Leave removes a user from their room, applying the host transfer protocol.
// The host decision is taken from the pre-leave membership snapshot, then the
// user is removed; an emptied room is destroyed, otherwise a departing host
// is replaced by a uniformly random remaining player.
func (g *Registry) Leave(userID int32) (*LeaveResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r := g.roomOf(userID)
	if r == nil {
		return nil, ErrNotInRoom
	}

	m, idx := r.member(userID)
	wasHost := r.HostID == userID

	r.Members = append(r.Members[:idx], r.Members[idx+1:]...)

	res := &LeaveResult{
		RoomID: r.ID,
		User:   m.Profile,
	}

	if len(r.Members) == 0 {
		delete(g.rooms, r.ID)
		metrics.ActiveRooms.Dec()
		metrics.RoomParticipants.DeleteLabelValues(r.ID)
		res.Destroyed = true
		return res, nil
	}

	metrics.RoomParticipants.WithLabelValues(r.ID).Set(float64(len(r.Members)))
	res.Remaining = r.conns(nil)

	if wasHost {
		if players := r.players(); len(players) > 0 {
			next := players[rand.Intn(len(players))]
			r.HostID = next.Profile.ID
			res.NewHost = next
		}
	}
	return res, nil
}

// --- gameplay state ---

// ChartResult carries the broadcast targets of a chart selection.
type ChartResult struct {
	RoomID string
	Host   protocol.UserProfile
	All    []Conn
}

// SelectChart records the host's pick. Only the host may pick, and only
// while the room is selecting.
func (g *Registry) SelectChart(userID int32, chartID int32) (*ChartResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r := g.roomOf(userID)
	if r == nil {
		return nil, ErrNotInRoom
	}
	if r.HostID != userID {
		return nil, ErrNotHost
	}
	if _, ok := r.State.(protocol.StateSelectChart); !ok {
		return nil, ErrBadState
	}

	r.Chart = &chartID
	r.State = protocol.StateSelectChart{Chart: r.Chart}
	host, _ := r.member(userID)
	return &ChartResult{RoomID: r.ID, Host: host.Profile, All: r.conns(nil)}, nil
}

// StartResult carries the broadcast targets of a state transition. Chart is
// set when the transition returns the room to chart selection.
type StartResult struct {
	RoomID string
	Chart  *int32
	All    []Conn
}

// RequestStart moves the room from chart selection to the ready check.
func (g *Registry) RequestStart(userID int32) (*StartResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r := g.roomOf(userID)
	if r == nil {
		return nil, ErrNotInRoom
	}
	if r.HostID != userID {
		return nil, ErrNotHost
	}
	if _, ok := r.State.(protocol.StateSelectChart); !ok {
		return nil, ErrBadState
	}

	r.resetPlayFlags()
	r.State = protocol.StateWaitForReady{}
	return &StartResult{RoomID: r.ID, All: r.conns(nil)}, nil
}

// ReadyResult reports a ready mark. AllReady is set on the call that
// completed the set and moved the room into play.
type ReadyResult struct {
	RoomID   string
	AllReady bool
	All      []Conn
}

// MarkReady records a player's ready flag during the ready check. When the
// last player readies up, the room transitions to playing.
func (g *Registry) MarkReady(userID int32) (*ReadyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r := g.roomOf(userID)
	if r == nil {
		return nil, ErrNotInRoom
	}
	if _, ok := r.State.(protocol.StateWaitForReady); !ok {
		return nil, ErrBadState
	}
	m, _ := r.member(userID)
	if m.Monitor {
		return nil, ErrBadState
	}

	m.Ready = true
	res := &ReadyResult{RoomID: r.ID, All: r.conns(nil)}
	if r.allPlayersReady() {
		r.State = protocol.StatePlaying{}
		res.AllReady = true
	}
	return res, nil
}

// CancelReady clears a player's ready flag. The host cancelling aborts the
// ready check and returns the room to chart selection.
func (g *Registry) CancelReady(userID int32) (*StartResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r := g.roomOf(userID)
	if r == nil {
		return nil, ErrNotInRoom
	}
	if _, ok := r.State.(protocol.StateWaitForReady); !ok {
		return nil, ErrBadState
	}
	m, _ := r.member(userID)
	m.Ready = false

	if r.HostID == userID {
		r.resetPlayFlags()
		r.State = protocol.StateSelectChart{Chart: r.Chart}
		return &StartResult{RoomID: r.ID, Chart: r.Chart, All: r.conns(nil)}, nil
	}
	return nil, nil
}

// PlayedResult reports a finished run. When the last player finishes, the
// room settles and returns to chart selection; in cycle mode the host role
// rotates to the next player in join order.
type PlayedResult struct {
	RoomID    string
	AllPlayed bool
	NewHost   *Member
	Chart     *int32
	All       []Conn
}

// MarkPlayed records that a player finished the current chart.
func (g *Registry) MarkPlayed(userID int32) (*PlayedResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r := g.roomOf(userID)
	if r == nil {
		return nil, ErrNotInRoom
	}
	if _, ok := r.State.(protocol.StatePlaying); !ok {
		return nil, ErrBadState
	}
	m, _ := r.member(userID)
	if m.Monitor {
		return nil, ErrBadState
	}

	m.Played = true
	res := &PlayedResult{RoomID: r.ID, All: r.conns(nil)}
	if r.allPlayersPlayed() {
		res.AllPlayed = true
		if r.Cycle {
			if next := r.nextHost(); next != nil {
				r.HostID = next.Profile.ID
				res.NewHost = next
			}
		}
		r.resetPlayFlags()
		r.State = protocol.StateSelectChart{Chart: r.Chart}
		res.Chart = r.Chart
	}
	return res, nil
}

// nextHost picks the player after the current host in join order, wrapping
// around. Callers hold the lock.
func (r *Room) nextHost() *Member {
	players := r.players()
	if len(players) < 2 {
		return nil
	}
	for i, m := range players {
		if m.Profile.ID == r.HostID {
			return players[(i+1)%len(players)]
		}
	}
	return players[0]
}

// --- room flags ---

// ToggleLock flips the lock flag. Host only.
func (g *Registry) ToggleLock(userID int32) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r := g.roomOf(userID)
	if r == nil {
		return false, ErrNotInRoom
	}
	if r.HostID != userID {
		return false, ErrNotHost
	}
	r.Locked = !r.Locked
	return r.Locked, nil
}

// SetCycle sets host rotation mode. Host only.
func (g *Registry) SetCycle(userID int32, cycle bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	r := g.roomOf(userID)
	if r == nil {
		return ErrNotInRoom
	}
	if r.HostID != userID {
		return ErrNotHost
	}
	r.Cycle = cycle
	return nil
}

// --- admin operations ---

// Summary is the admin-facing view of a room.
type Summary struct {
	ID      string                `json:"id"`
	HostID  int32                 `json:"host_id"`
	Locked  bool                  `json:"locked"`
	Cycle   bool                  `json:"cycle"`
	Live    bool                  `json:"live"`
	Chart   *int32                `json:"chart,omitempty"`
	Members []protocol.UserProfile `json:"members"`
}

// List snapshots every room for the admin API and console.
func (g *Registry) List() []Summary {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Summary, 0, len(g.rooms))
	for _, r := range g.rooms {
		members := make([]protocol.UserProfile, 0, len(r.Members))
		for _, m := range r.Members {
			members = append(members, m.Profile)
		}
		out = append(out, Summary{
			ID:      r.ID,
			HostID:  r.HostID,
			Locked:  r.Locked,
			Cycle:   r.Cycle,
			Live:    r.Live,
			Chart:   r.Chart,
			Members: members,
		})
	}
	return out
}

// Disband force-destroys a room and returns the evicted members' connections.
func (g *Registry) Disband(roomID string) ([]Conn, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	conns := r.conns(nil)
	delete(g.rooms, roomID)
	metrics.ActiveRooms.Dec()
	metrics.RoomParticipants.DeleteLabelValues(roomID)
	return conns, nil
}

// BroadcastAll sends a packet to every online connection.
func (g *Registry) BroadcastAll(pkt protocol.Clientbound) {
	g.mu.Lock()
	conns := make([]Conn, 0, len(g.online))
	for _, c := range g.online {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		c.Send(pkt)
	}
}

// Broadcast sends a packet to every member of a room, optionally excluding
// one connection.
func (g *Registry) Broadcast(roomID string, pkt protocol.Clientbound, except Conn) error {
	g.mu.Lock()
	r, ok := g.rooms[roomID]
	if !ok {
		g.mu.Unlock()
		return ErrRoomNotFound
	}
	conns := r.conns(except)
	g.mu.Unlock()

	for _, c := range conns {
		c.Send(pkt)
	}
	return nil
}
