package security

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Load(filepath.Join(t.TempDir(), "security.json"))
	require.NoError(t, err)
	return s
}

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, s.ListBans())
	assert.Empty(t, s.Ops())
}

func TestBanLifecycle(t *testing.T) {
	s := newStore(t)

	s.AddBan(BanUser, "42", 0, "cheating")
	rec, ok := s.IsBanned(BanUser, "42")
	require.True(t, ok)
	assert.Equal(t, "cheating", rec.Reason)
	assert.Nil(t, rec.ExpireAt)

	_, ok = s.IsBanned(BanIP, "42")
	assert.False(t, ok, "ban types are independent namespaces")

	assert.True(t, s.RemoveBan(BanUser, "42"))
	_, ok = s.IsBanned(BanUser, "42")
	assert.False(t, ok)
	assert.False(t, s.RemoveBan(BanUser, "42"))
}

func TestBanReplacesExisting(t *testing.T) {
	s := newStore(t)
	s.AddBan(BanUser, "42", 0, "first")
	s.AddBan(BanUser, "42", 0, "second")

	require.Len(t, s.ListBans(), 1)
	rec, _ := s.IsBanned(BanUser, "42")
	assert.Equal(t, "second", rec.Reason)
}

func TestExpiredBanPurgedOnRead(t *testing.T) {
	s := newStore(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	s.AddBan(BanUser, "42", time.Hour, "temp")
	_, ok := s.IsBanned(BanUser, "42")
	require.True(t, ok)

	s.now = func() time.Time { return now.Add(2 * time.Hour) }
	_, ok = s.IsBanned(BanUser, "42")
	assert.False(t, ok)
	assert.Empty(t, s.ListBans())
}

func TestBlacklistIP(t *testing.T) {
	s := newStore(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	s.AddBlacklistIP("10.0.0.1", 0)
	s.AddBlacklistIP("10.0.0.2", time.Minute)
	assert.True(t, s.IsBlacklistedIP("10.0.0.1"))
	assert.True(t, s.IsBlacklistedIP("10.0.0.2"))

	s.now = func() time.Time { return now.Add(time.Hour) }
	assert.True(t, s.IsBlacklistedIP("10.0.0.1"), "permanent entry survives")
	assert.False(t, s.IsBlacklistedIP("10.0.0.2"))

	assert.True(t, s.RemoveBlacklistIP("10.0.0.1"))
	assert.False(t, s.IsBlacklistedIP("10.0.0.1"))
}

func TestIPBlocked(t *testing.T) {
	s := newStore(t)

	assert.False(t, s.IPBlocked("10.0.0.9"))

	s.AddBlacklistIP("10.0.0.9", 0)
	assert.True(t, s.IPBlocked("10.0.0.9"))
	require.True(t, s.RemoveBlacklistIP("10.0.0.9"))

	s.AddBan(BanIP, "10.0.0.9", 0, "abuse")
	assert.True(t, s.IPBlocked("10.0.0.9"))

	s.AddBan(BanUser, "10.0.0.9", 0, "odd name")
	require.True(t, s.RemoveBan(BanIP, "10.0.0.9"))
	assert.False(t, s.IPBlocked("10.0.0.9"), "user bans do not block IPs")
}

func TestOps(t *testing.T) {
	s := newStore(t)

	s.Op("42")
	assert.True(t, s.IsOp("42"))
	assert.Equal(t, []string{"42"}, s.Ops())

	assert.True(t, s.Deop("42"))
	assert.False(t, s.IsOp("42"))
	assert.False(t, s.Deop("42"))
}

func TestPersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "security.json")
	s, err := Load(path)
	require.NoError(t, err)

	s.Op("1")
	s.AddBan(BanUser, "42", 0, "cheating")
	s.AddBlacklistIP("10.0.0.1", 0)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, reloaded.IsOp("1"))
	_, ok := reloaded.IsBanned(BanUser, "42")
	assert.True(t, ok)
	assert.True(t, reloaded.IsBlacklistedIP("10.0.0.1"))
}

func TestPersistedSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "security.json")
	s, err := Load(path)
	require.NoError(t, err)
	s.AddBan(BanUser, "42", time.Hour, "cheating")
	s.AddBlacklistIP("10.0.0.1", time.Hour)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var file struct {
		Ops          []string           `json:"ops"`
		BlacklistIPs map[string]float64 `json:"blacklist_ips"`
		Bans         []map[string]any   `json:"bans"`
	}
	require.NoError(t, json.Unmarshal(data, &file))
	require.Len(t, file.Bans, 1)

	// Timestamps on disk are unix-seconds numbers, not formatted strings.
	expire, ok := file.Bans[0]["expire_at"].(float64)
	require.True(t, ok, "expire_at must be a JSON number, got %T", file.Bans[0]["expire_at"])
	created, ok := file.Bans[0]["created_at"].(float64)
	require.True(t, ok, "created_at must be a JSON number, got %T", file.Bans[0]["created_at"])
	assert.InDelta(t, time.Now().Add(time.Hour).Unix(), expire, 5)
	assert.InDelta(t, time.Now().Unix(), created, 5)
	assert.InDelta(t, time.Now().Add(time.Hour).Unix(), file.BlacklistIPs["10.0.0.1"], 5)
}

func TestLoadUnixSecondsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "security.json")
	future := time.Now().Add(24 * time.Hour).Unix()
	raw := fmt.Sprintf(`{
		"ops": ["7"],
		"blacklist_ips": {"10.0.0.1": null, "10.0.0.2": %d},
		"bans": [
			{"type": "id", "target": "42", "expire_at": %d, "reason": "temp", "created_at": %d},
			{"type": "ip", "target": "10.0.0.3", "reason": "perm", "created_at": 1600000000.5},
			{"type": "id", "target": "9", "expire_at": 1600000000, "reason": "old", "created_at": 1500000000}
		]
	}`, future, future, time.Now().Unix())
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	s, err := Load(path)
	require.NoError(t, err)

	assert.True(t, s.IsOp("7"))
	assert.True(t, s.IsBlacklistedIP("10.0.0.1"))
	assert.True(t, s.IsBlacklistedIP("10.0.0.2"))

	rec, ok := s.IsBanned(BanUser, "42")
	require.True(t, ok)
	require.NotNil(t, rec.ExpireAt)
	assert.Equal(t, future, rec.ExpireAt.Unix())

	_, ok = s.IsBanned(BanIP, "10.0.0.3")
	assert.True(t, ok)

	// The long-expired entry purges on first read.
	_, ok = s.IsBanned(BanUser, "9")
	assert.False(t, ok)
}
