// Package ratelimit implements per-IP rate limiting backed by an in-memory store.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"github.com/phiralab/phira-mp-server/internal/v1/logging"
	"github.com/phiralab/phira-mp-server/internal/v1/metrics"
)

// RateLimiter holds the limiter instances for the TCP accept gate and the
// admin HTTP API.
type RateLimiter struct {
	connect *limiter.Limiter
	admin   *limiter.Limiter
	store   limiter.Store
}

// NewRateLimiter parses the formatted rates (e.g. "30-M") and builds the
// limiters on a shared memory store.
func NewRateLimiter(connectRate, adminRate string) (*RateLimiter, error) {
	cRate, err := limiter.NewRateFromFormatted(connectRate)
	if err != nil {
		return nil, fmt.Errorf("invalid connect rate: %w", err)
	}
	aRate, err := limiter.NewRateFromFormatted(adminRate)
	if err != nil {
		return nil, fmt.Errorf("invalid admin rate: %w", err)
	}

	store := memory.NewStore()
	return &RateLimiter{
		connect: limiter.New(store, cRate),
		admin:   limiter.New(store, aRate),
		store:   store,
	}, nil
}

// AllowConnect reports whether a new TCP connection from ip is within the
// connect rate. Store failures fail open.
func (rl *RateLimiter) AllowConnect(ctx context.Context, ip string) bool {
	lctx, err := rl.connect.Get(ctx, "tcp:"+ip)
	if err != nil {
		logging.Error(ctx, "rate limiter store failed", zap.Error(err))
		return true
	}
	if lctx.Reached {
		metrics.RateLimitExceeded.WithLabelValues("tcp_connect").Inc()
		return false
	}
	return true
}

// AdminMiddleware enforces the admin API rate per client IP.
func (rl *RateLimiter) AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		lctx, err := rl.admin.Get(ctx, "admin:"+c.ClientIP())
		if err != nil {
			logging.Error(ctx, "rate limiter store failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(lctx.Reset, 10))

		if lctx.Reached {
			metrics.RateLimitExceeded.WithLabelValues("admin_api").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Too many requests",
				"retry_after": lctx.Reset,
			})
			return
		}
		c.Next()
	}
}
