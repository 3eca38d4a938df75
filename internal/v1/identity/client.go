// Package identity resolves bearer tokens against the Phira API.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/phiralab/phira-mp-server/internal/v1/logging"
)

// UserInfo is the subset of the /me response the server cares about.
type UserInfo struct {
	ID     int32  `json:"id"`
	Name   string `json:"name"`
	Banned bool   `json:"banned"`
}

// ErrUnauthorized is returned for 401/403 responses; these are not retried.
var ErrUnauthorized = errors.New("invalid token")

const (
	maxAttempts = 5
	retryWait   = time.Second
)

// Client calls the identity service. Repeated upstream failures trip the
// circuit breaker so a dead API does not stall every login for the full
// retry budget.
type Client struct {
	base    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	wait    time.Duration
}

func NewClient(base string) *Client {
	return &Client{
		base: base,
		http: &http.Client{Timeout: 10 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "identity",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// Rejected tokens are an answer, not an outage.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrUnauthorized)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Warn(context.Background(), "identity breaker state change",
					zap.String("from", from.String()), zap.String("to", to.String()))
			},
		}),
		wait: retryWait,
	}
}

// Me resolves a bearer token to a user. Transport errors and non-2xx
// responses are retried up to five times with a fixed one second wait;
// 401/403 fail immediately.
func (c *Client) Me(ctx context.Context, token string) (*UserInfo, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.fetch(ctx, token)
		})
		if err == nil {
			return result.(*UserInfo), nil
		}
		if errors.Is(err, ErrUnauthorized) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		logging.Warn(ctx, "identity request failed",
			zap.Int("attempt", attempt), zap.Error(err))
		if attempt < maxAttempts {
			select {
			case <-time.After(c.wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, fmt.Errorf("identity service unavailable: %w", lastErr)
}

func (c *Client) fetch(ctx context.Context, token string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("identity service returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var user UserInfo
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("parsing identity response: %w", err)
	}
	return &user, nil
}
