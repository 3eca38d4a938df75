package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/phiralab/phira-mp-server/internal/v1/logging"
	"github.com/phiralab/phira-mp-server/internal/v1/metrics"
	"github.com/phiralab/phira-mp-server/internal/v1/ratelimit"
)

// Handler owns the lifecycle of accepted connections.
type Handler interface {
	HandleConn(raw net.Conn)
}

// ConnGate decides whether an IP may connect at all. Implemented by the
// security store (blacklist and active IP bans).
type ConnGate interface {
	IPBlocked(ip string) bool
}

// Server runs the TCP accept loop and applies the pre-handshake gates.
type Server struct {
	addr    string
	handler Handler
	gate    ConnGate
	limiter *ratelimit.RateLimiter

	ln     net.Listener
	closed atomic.Bool
}

func NewServer(addr string, handler Handler, gate ConnGate, limiter *ratelimit.RateLimiter) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		gate:    gate,
		limiter: limiter,
	}
}

// Listen binds the listening socket. Split from Serve so callers can fail
// fast on a bad address before daemonizing.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.ln = ln
	logging.Info(context.Background(), "tcp server listening", zap.String("addr", s.addr))
	return nil
}

// Serve accepts connections until Shutdown is called. Returns nil on a clean
// shutdown.
func (s *Server) Serve() error {
	if s.ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	for {
		raw, err := s.ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		ip := remoteIP(raw)
		ctx := logging.WithRemoteAddr(context.Background(), ip)

		if s.gate != nil && s.gate.IPBlocked(ip) {
			metrics.ConnectionsRejected.WithLabelValues("blocked").Inc()
			logging.Info(ctx, "refused connection from blocked ip")
			_ = raw.Close()
			continue
		}
		if s.limiter != nil && !s.limiter.AllowConnect(ctx, ip) {
			metrics.ConnectionsRejected.WithLabelValues("rate_limited").Inc()
			logging.Info(ctx, "refused connection, connect rate exceeded")
			_ = raw.Close()
			continue
		}

		metrics.IncConnection()
		logging.Debug(ctx, "accepted connection")
		s.handler.HandleConn(raw)
	}
}

// Shutdown stops accepting. Existing connections are closed by their owner.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closed.Store(true)
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func remoteIP(c net.Conn) string {
	ip, _, err := net.SplitHostPort(c.RemoteAddr().String())
	if err != nil {
		return c.RemoteAddr().String()
	}
	return ip
}
