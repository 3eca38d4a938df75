package admin

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phiralab/phira-mp-server/internal/v1/events"
	"github.com/phiralab/phira-mp-server/internal/v1/protocol"
	"github.com/phiralab/phira-mp-server/internal/v1/room"
	"github.com/phiralab/phira-mp-server/internal/v1/security"
	"github.com/phiralab/phira-mp-server/internal/v1/session"
)

const testToken = "test-admin-token"

func profile(id int32) protocol.UserProfile {
	return protocol.UserProfile{ID: id, Name: "user"}
}

func newTestRouter(t *testing.T) (*gin.Engine, *room.Registry, *security.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sec, err := security.Load(filepath.Join(t.TempDir(), "security.json"))
	require.NoError(t, err)
	registry := room.NewRegistry(8)
	mgr := session.NewManager(registry, nil, sec, events.NewBus())

	srv := NewServer(mgr, sec, testToken, filepath.Join(t.TempDir(), "monitors.txt"))
	router := gin.New()
	srv.RegisterRoutes(router, nil)
	return router, registry, sec
}

func doRequest(router *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPublicRoomListing(t *testing.T) {
	router, registry, _ := newTestRouter(t)
	require.NoError(t, registry.Create("R1", profile(1), nil))

	w := doRequest(router, http.MethodGet, "/rooms", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "R1")
	// The public listing never exposes member identities.
	assert.NotContains(t, w.Body.String(), "user")
}

func TestRequiresAuth(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/admin/rooms", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, http.MethodGet, "/admin/rooms", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListRoomsWithStaticToken(t *testing.T) {
	router, registry, _ := newTestRouter(t)
	require.NoError(t, registry.Create("R1", profile(1), nil))

	w := doRequest(router, http.MethodGet, "/admin/rooms", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Rooms []room.Summary `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Rooms, 1)
	assert.Equal(t, "R1", resp.Rooms[0].ID)
	assert.Equal(t, int32(1), resp.Rooms[0].HostID)
}

func TestOTPSessionFlow(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/admin/auth/otp", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var otpResp struct {
		SSID string `json:"ssid"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &otpResp))
	require.NotEmpty(t, otpResp.SSID)

	w = doRequest(router, http.MethodPost, "/admin/auth/verify", "",
		map[string]string{"ssid": otpResp.SSID, "code": "000000"})
	// A wrong guess consumes the entry.
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = doRequest(router, http.MethodPost, "/admin/auth/verify", "",
		map[string]string{"ssid": otpResp.SSID, "code": "000000"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOTPRedeemAndUseSession(t *testing.T) {
	auth := newTestServerAuth(t)
	ssid := auth.srv.auth.issueOTP()

	auth.srv.auth.mu.Lock()
	code := auth.srv.auth.otps[ssid].code
	auth.srv.auth.mu.Unlock()

	w := doRequest(auth.router, http.MethodPost, "/admin/auth/verify", "",
		map[string]string{"ssid": ssid, "code": code})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	w = doRequest(auth.router, http.MethodGet, "/admin/rooms", resp.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

type serverWithRouter struct {
	srv    *Server
	router *gin.Engine
}

func newTestServerAuth(t *testing.T) *serverWithRouter {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sec, err := security.Load(filepath.Join(t.TempDir(), "security.json"))
	require.NoError(t, err)
	mgr := session.NewManager(room.NewRegistry(8), nil, sec, events.NewBus())
	srv := NewServer(mgr, sec, "", filepath.Join(t.TempDir(), "monitors.txt"))
	router := gin.New()
	srv.RegisterRoutes(router, nil)
	return &serverWithRouter{srv: srv, router: router}
}

func TestBanLifecycleOverHTTP(t *testing.T) {
	router, _, sec := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/admin/bans", testToken, map[string]any{
		"type": "id", "target": "42", "reason": "cheating",
	})
	require.Equal(t, http.StatusOK, w.Code)
	_, banned := sec.IsBanned(security.BanUser, "42")
	assert.True(t, banned)

	w = doRequest(router, http.MethodGet, "/admin/bans", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cheating")

	w = doRequest(router, http.MethodDelete, "/admin/bans", testToken, map[string]any{
		"type": "id", "target": "42",
	})
	require.Equal(t, http.StatusOK, w.Code)
	_, banned = sec.IsBanned(security.BanUser, "42")
	assert.False(t, banned)
}

func TestBanRejectsUnknownType(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/admin/bans", testToken, map[string]any{
		"type": "mac", "target": "x",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBlacklistOverHTTP(t *testing.T) {
	router, _, sec := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/admin/blacklist", testToken, map[string]any{
		"ip": "10.0.0.1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, sec.IsBlacklistedIP("10.0.0.1"))

	w = doRequest(router, http.MethodDelete, "/admin/blacklist", testToken, map[string]any{
		"ip": "10.0.0.1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, sec.IsBlacklistedIP("10.0.0.1"))
}

func TestDisbandRoom(t *testing.T) {
	router, registry, _ := newTestRouter(t)
	require.NoError(t, registry.Create("R1", profile(1), nil))

	w := doRequest(router, http.MethodDelete, "/admin/rooms/R1", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, registry.List())

	w = doRequest(router, http.MethodDelete, "/admin/rooms/R1", testToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKickOfflineUser(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/admin/kick", testToken, map[string]any{
		"user_id": 42,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMaxUsersConfig(t *testing.T) {
	router, registry, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPut, "/admin/config/max-users", testToken, map[string]any{
		"max": 2,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, registry.MaxRoomUsers())

	w = doRequest(router, http.MethodPut, "/admin/config/max-users", testToken, map[string]any{
		"max": 0,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContestConfig(t *testing.T) {
	router, registry, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPut, "/admin/config/contest", testToken, map[string]any{
		"enabled": true, "whitelist": []int32{7},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, registry.ContestMode())

	assert.ErrorIs(t, registry.Create("R1", profile(1), nil), room.ErrNotWhitelisted)
	assert.NoError(t, registry.Create("R1", profile(7), nil))
}

func TestOpsOverHTTP(t *testing.T) {
	router, _, sec := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/admin/ops", testToken, map[string]any{"id": "42"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, sec.IsOp("42"))

	w = doRequest(router, http.MethodDelete, "/admin/ops/42", testToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, sec.IsOp("42"))
}
