package admin

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/phiralab/phira-mp-server/internal/v1/logging"
)

const (
	otpTTL     = 5 * time.Minute
	sessionTTL = 12 * time.Hour
)

type otpEntry struct {
	code      string
	expiresAt time.Time
}

// authenticator issues admin sessions. Two paths: the static ADMIN_TOKEN,
// and an OTP exchange where the code is printed to the server log and traded
// for a short-lived JWT.
type authenticator struct {
	staticToken string
	jwtSecret   []byte

	mu   sync.Mutex
	otps map[string]otpEntry
}

func newAuthenticator(staticToken string) *authenticator {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(fmt.Sprintf("reading random secret: %v", err))
	}
	return &authenticator{
		staticToken: staticToken,
		jwtSecret:   secret,
		otps:        make(map[string]otpEntry),
	}
}

// issueOTP creates a one-time code bound to a fresh session id. The code is
// only revealed through the server log.
func (a *authenticator) issueOTP() string {
	var n uint32
	_ = binary.Read(rand.Reader, binary.LittleEndian, &n)
	code := fmt.Sprintf("%06d", n%1000000)
	ssid := uuid.NewString()

	a.mu.Lock()
	a.otps[ssid] = otpEntry{code: code, expiresAt: time.Now().Add(otpTTL)}
	a.mu.Unlock()

	logging.Info(context.Background(), "admin OTP issued",
		zap.String("ssid", ssid), zap.String("code", code))
	return ssid
}

// redeemOTP trades a valid ssid and code for a session JWT. The entry is
// consumed regardless of outcome.
func (a *authenticator) redeemOTP(ssid, code string) (string, bool) {
	a.mu.Lock()
	entry, ok := a.otps[ssid]
	delete(a.otps, ssid)
	a.mu.Unlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(entry.code), []byte(code)) != 1 {
		return "", false
	}

	claims := jwt.RegisteredClaims{
		Subject:   "admin",
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(sessionTTL)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
	if err != nil {
		logging.Error(context.Background(), "signing admin session token", zap.Error(err))
		return "", false
	}
	return token, true
}

func (a *authenticator) validSession(token string) bool {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.jwtSecret, nil
	})
	return err == nil && parsed.Valid
}

// middleware guards the admin routes. Accepts the static token or a session
// JWT as a bearer credential.
func (a *authenticator) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		if a.staticToken != "" &&
			subtle.ConstantTimeCompare([]byte(token), []byte(a.staticToken)) == 1 {
			c.Next()
			return
		}
		if a.validSession(token) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	}
}
