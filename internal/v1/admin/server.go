// Package admin exposes the operator HTTP API: room management, moderation
// and runtime configuration. Everything it does goes through the same core
// operations the packet handler uses.
package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/phiralab/phira-mp-server/internal/v1/monitors"
	"github.com/phiralab/phira-mp-server/internal/v1/protocol"
	"github.com/phiralab/phira-mp-server/internal/v1/ratelimit"
	"github.com/phiralab/phira-mp-server/internal/v1/room"
	"github.com/phiralab/phira-mp-server/internal/v1/security"
	"github.com/phiralab/phira-mp-server/internal/v1/session"
)

// Server implements the admin API handlers.
type Server struct {
	mgr          *session.Manager
	registry     *room.Registry
	security     *security.Store
	auth         *authenticator
	monitorsFile string
}

func NewServer(mgr *session.Manager, sec *security.Store, adminToken, monitorsFile string) *Server {
	return &Server{
		mgr:          mgr,
		registry:     mgr.Registry(),
		security:     sec,
		auth:         newAuthenticator(adminToken),
		monitorsFile: monitorsFile,
	}
}

// RegisterRoutes mounts the admin API under /admin, plus the public room
// listing at /rooms.
func (s *Server) RegisterRoutes(r gin.IRouter, limiter *ratelimit.RateLimiter) {
	r.GET("/rooms", s.publicRooms)

	group := r.Group("/admin")
	if limiter != nil {
		group.Use(limiter.AdminMiddleware())
	}

	group.POST("/auth/otp", s.requestOTP)
	group.POST("/auth/verify", s.verifyOTP)

	authed := group.Group("", s.auth.middleware())
	authed.GET("/rooms", s.listRooms)
	authed.DELETE("/rooms/:id", s.disbandRoom)
	authed.POST("/broadcast", s.broadcast)
	authed.POST("/kick", s.kick)

	authed.GET("/bans", s.listBans)
	authed.POST("/bans", s.addBan)
	authed.DELETE("/bans", s.removeBan)

	authed.GET("/blacklist", s.listBlacklist)
	authed.POST("/blacklist", s.addBlacklist)
	authed.DELETE("/blacklist", s.removeBlacklist)

	authed.GET("/ops", s.listOps)
	authed.POST("/ops", s.addOp)
	authed.DELETE("/ops/:id", s.removeOp)

	authed.PUT("/config/max-users", s.setMaxUsers)
	authed.PUT("/config/contest", s.setContest)
	authed.POST("/monitors/reload", s.reloadMonitors)
}

// --- auth ---

func (s *Server) requestOTP(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ssid": s.auth.issueOTP()})
}

func (s *Server) verifyOTP(c *gin.Context) {
	var req struct {
		SSID string `json:"ssid" binding:"required"`
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	token, ok := s.auth.redeemOTP(req.SSID, req.Code)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid ssid or code"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// --- rooms ---

// publicRooms is the unauthenticated listing: enough for a client room
// browser, no member identities.
func (s *Server) publicRooms(c *gin.Context) {
	full := s.registry.List()
	out := make([]gin.H, 0, len(full))
	for _, r := range full {
		out = append(out, gin.H{
			"id":      r.ID,
			"players": len(r.Members),
			"locked":  r.Locked,
			"cycle":   r.Cycle,
			"live":    r.Live,
		})
	}
	c.JSON(http.StatusOK, gin.H{"rooms": out})
}

func (s *Server) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": s.registry.List()})
}

func (s *Server) disbandRoom(c *gin.Context) {
	conns, err := s.registry.Disband(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	notice := protocol.ClientBoundMessage{Message: protocol.ChatMessage{
		UserID:  -1,
		Content: "This room has been disbanded by an operator",
	}}
	for _, conn := range conns {
		conn.Send(notice)
	}
	c.JSON(http.StatusOK, gin.H{"evicted": len(conns)})
}

func (s *Server) broadcast(c *gin.Context) {
	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.mgr.BroadcastSystemChat(req.Content)
	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

func (s *Server) kick(c *gin.Context) {
	var req struct {
		UserID int32 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.mgr.KickUser(req.UserID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not online"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "kicked"})
}

// --- bans ---

type banRequest struct {
	Type       security.BanType `json:"type" binding:"required"`
	Target     string           `json:"target" binding:"required"`
	TTLSeconds int64            `json:"ttl_seconds"`
	Reason     string           `json:"reason"`
}

func (b banRequest) valid() bool {
	return b.Type == security.BanUser || b.Type == security.BanIP
}

func (s *Server) listBans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"bans": s.security.ListBans()})
}

func (s *Server) addBan(c *gin.Context) {
	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be \"id\" or \"ip\""})
		return
	}
	rec := s.security.AddBan(req.Type, req.Target, time.Duration(req.TTLSeconds)*time.Second, req.Reason)
	c.JSON(http.StatusOK, gin.H{"ban": rec})
}

func (s *Server) removeBan(c *gin.Context) {
	var req struct {
		Type   security.BanType `json:"type" binding:"required"`
		Target string           `json:"target" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.security.RemoveBan(req.Type, req.Target) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such ban"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// --- blacklist ---

func (s *Server) listBlacklist(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"blacklist": s.security.ListBlacklistIPs()})
}

func (s *Server) addBlacklist(c *gin.Context) {
	var req struct {
		IP         string `json:"ip" binding:"required"`
		TTLSeconds int64  `json:"ttl_seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.security.AddBlacklistIP(req.IP, time.Duration(req.TTLSeconds)*time.Second)
	c.JSON(http.StatusOK, gin.H{"status": "added"})
}

func (s *Server) removeBlacklist(c *gin.Context) {
	var req struct {
		IP string `json:"ip" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !s.security.RemoveBlacklistIP(req.IP) {
		c.JSON(http.StatusNotFound, gin.H{"error": "ip not blacklisted"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}

// --- operators ---

func (s *Server) listOps(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ops": s.security.Ops()})
}

func (s *Server) addOp(c *gin.Context) {
	var req struct {
		ID string `json:"id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.security.Op(req.ID)
	c.JSON(http.StatusOK, gin.H{"status": "granted"})
}

func (s *Server) removeOp(c *gin.Context) {
	if !s.security.Deop(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not an operator"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

// --- runtime config ---

func (s *Server) setMaxUsers(c *gin.Context) {
	var req struct {
		Max int `json:"max" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.registry.SetMaxRoomUsers(req.Max)
	c.JSON(http.StatusOK, gin.H{"max": req.Max})
}

func (s *Server) setContest(c *gin.Context) {
	var req struct {
		Enabled   bool    `json:"enabled"`
		Whitelist []int32 `json:"whitelist"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.registry.SetContestMode(req.Enabled, req.Whitelist)
	c.JSON(http.StatusOK, gin.H{"enabled": req.Enabled, "whitelist": len(req.Whitelist)})
}

func (s *Server) reloadMonitors(c *gin.Context) {
	ids, err := monitors.Load(s.monitorsFile)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.registry.SetMonitors(ids)
	c.JSON(http.StatusOK, gin.H{"monitors": len(ids)})
}
