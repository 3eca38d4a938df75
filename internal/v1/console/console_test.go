package console

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phiralab/phira-mp-server/internal/v1/events"
	"github.com/phiralab/phira-mp-server/internal/v1/protocol"
	"github.com/phiralab/phira-mp-server/internal/v1/room"
	"github.com/phiralab/phira-mp-server/internal/v1/security"
	"github.com/phiralab/phira-mp-server/internal/v1/session"
)

func newTestConsole(t *testing.T, shutdown func()) (*Console, *room.Registry, *security.Store) {
	t.Helper()
	sec, err := security.Load(filepath.Join(t.TempDir(), "security.json"))
	require.NoError(t, err)
	registry := room.NewRegistry(8)
	mgr := session.NewManager(registry, nil, sec, events.NewBus())
	if shutdown == nil {
		shutdown = func() {}
	}
	monitorsFile := filepath.Join(t.TempDir(), "monitors.txt")
	return New(mgr, sec, monitorsFile, shutdown, strings.NewReader(""), os.Stdout), registry, sec
}

func TestHelpAndUnknown(t *testing.T) {
	c, _, _ := newTestConsole(t, nil)

	assert.Contains(t, c.Execute("/help"), "/disband")
	assert.Contains(t, c.Execute("/"), "/disband")
	assert.Contains(t, c.Execute("/frobnicate"), "unknown command")
}

func TestListAndDisband(t *testing.T) {
	c, registry, _ := newTestConsole(t, nil)

	assert.Equal(t, "no rooms", c.Execute("/list"))

	require.NoError(t, registry.Create("R1", protocol.UserProfile{ID: 1, Name: "alice"}, nil))
	out := c.Execute("/list")
	assert.Contains(t, out, "R1")
	assert.Contains(t, out, "host=1")

	out = c.Execute("/disband R1")
	assert.Contains(t, out, "disbanded")
	assert.Empty(t, registry.List())

	assert.Contains(t, c.Execute("/disband R1"), "error:")
}

func TestBanAndPardon(t *testing.T) {
	c, _, sec := newTestConsole(t, nil)

	out := c.Execute("/ban id 42 24h repeated griefing")
	assert.Contains(t, out, "banned id 42")
	rec, banned := sec.IsBanned(security.BanUser, "42")
	require.True(t, banned)
	assert.Equal(t, "repeated griefing", rec.Reason)
	require.NotNil(t, rec.ExpireAt)

	// The ttl token is optional; a bare reason still parses.
	c.Execute("/ban ip 10.0.0.9 flooding")
	rec, banned = sec.IsBanned(security.BanIP, "10.0.0.9")
	require.True(t, banned)
	assert.Equal(t, "flooding", rec.Reason)
	assert.Nil(t, rec.ExpireAt)

	assert.Contains(t, c.Execute("/ban mac 42"), "must be id or ip")

	assert.Contains(t, c.Execute("/pardon id 42"), "pardoned")
	_, banned = sec.IsBanned(security.BanUser, "42")
	assert.False(t, banned)
	assert.Equal(t, "no such ban", c.Execute("/pardon id 42"))
}

func TestBlacklistCommands(t *testing.T) {
	c, _, sec := newTestConsole(t, nil)

	assert.Equal(t, "blacklist empty", c.Execute("/blacklist list"))
	assert.Contains(t, c.Execute("/blacklist add 10.0.0.1"), "blacklisted")
	assert.True(t, sec.IsBlacklistedIP("10.0.0.1"))
	assert.Contains(t, c.Execute("/blacklist list"), "10.0.0.1")
	assert.Contains(t, c.Execute("/blacklist remove 10.0.0.1"), "removed")
	assert.False(t, sec.IsBlacklistedIP("10.0.0.1"))
	assert.Contains(t, c.Execute("/blacklist add bad-ip not-a-ttl"), "bad ttl")
}

func TestOpCommands(t *testing.T) {
	c, _, sec := newTestConsole(t, nil)

	assert.Contains(t, c.Execute("/op 42"), "granted")
	assert.True(t, sec.IsOp("42"))
	assert.Contains(t, c.Execute("/deop 42"), "revoked")
	assert.False(t, sec.IsOp("42"))
	assert.Contains(t, c.Execute("/deop 42"), "not an operator")
}

func TestKickOffline(t *testing.T) {
	c, _, _ := newTestConsole(t, nil)

	assert.Contains(t, c.Execute("/kick 42"), "not online")
	assert.Contains(t, c.Execute("/kick forty-two"), "bad user id")
}

func TestMonitorsReload(t *testing.T) {
	c, registry, _ := newTestConsole(t, nil)
	require.NoError(t, os.WriteFile(c.monitorsFile, []byte("900\n"), 0o644))

	assert.Contains(t, c.Execute("/monitors"), "1 entries")
	assert.True(t, registry.IsMonitor(900))
}

func TestStopCallsShutdown(t *testing.T) {
	called := false
	c, _, _ := newTestConsole(t, func() { called = true })

	assert.Equal(t, "shutting down", c.Execute("/stop"))
	assert.True(t, called)
}

func TestRunDispatchesLines(t *testing.T) {
	sec, err := security.Load(filepath.Join(t.TempDir(), "security.json"))
	require.NoError(t, err)
	registry := room.NewRegistry(8)
	mgr := session.NewManager(registry, nil, sec, events.NewBus())

	in := strings.NewReader("ignored chatter\n/op 7\n/list\n")
	var out strings.Builder
	c := New(mgr, sec, "monitors.txt", func() {}, in, &out)

	c.Run(context.Background())

	assert.True(t, sec.IsOp("7"))
	assert.Contains(t, out.String(), "no rooms")
	assert.NotContains(t, out.String(), "unknown command")
}
