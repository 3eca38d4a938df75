package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/phiralab/phira-mp-server/internal/v1/logging"
	"github.com/phiralab/phira-mp-server/internal/v1/metrics"
	"github.com/phiralab/phira-mp-server/internal/v1/protocol"
)

const (
	// sendQueueSize is the high-water mark for a peer's outbound queue. A
	// consumer that falls this far behind is disconnected.
	sendQueueSize = 256

	writeWait = 10 * time.Second
	readWait  = 90 * time.Second

	// drainWait bounds how long a closing connection may spend flushing its
	// remaining queued packets.
	drainWait = 2 * time.Second

	readBufferSize = 4096
)

// PacketFunc is invoked on the read goroutine for every decoded packet, in
// arrival order.
type PacketFunc func(*Conn, protocol.Serverbound)

// CloseFunc is invoked exactly once after the connection's read loop exits.
type CloseFunc func(*Conn)

// Conn is one client's TCP connection. All outbound packets funnel through a
// single buffered channel drained by one writer goroutine, so packets are
// delivered in enqueue order.
type Conn struct {
	raw      net.Conn
	decoder  *protocol.FrameDecoder
	onPacket PacketFunc
	onClose  CloseFunc

	remoteIP string

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	send chan []byte
	done chan struct{}
}

// NewConn wraps an accepted TCP connection. Call Start to begin the pumps.
func NewConn(raw net.Conn, onPacket PacketFunc, onClose CloseFunc) *Conn {
	ip, _, err := net.SplitHostPort(raw.RemoteAddr().String())
	if err != nil {
		ip = raw.RemoteAddr().String()
	}
	return &Conn{
		raw:      raw,
		decoder:  &protocol.FrameDecoder{},
		onPacket: onPacket,
		onClose:  onClose,
		remoteIP: ip,
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
	}
}

// Start launches the read and write goroutines.
func (c *Conn) Start() {
	go c.writePump()
	go c.readPump()
}

// RemoteIP returns the peer's IP without the port.
func (c *Conn) RemoteIP() string {
	return c.remoteIP
}

// RemoteAddr returns the peer's full address.
func (c *Conn) RemoteAddr() string {
	return c.raw.RemoteAddr().String()
}

// Send encodes a clientbound packet and queues it for delivery. If the queue
// is full the peer is too slow to keep up and the connection is torn down.
func (c *Conn) Send(pkt protocol.Clientbound) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	c.mu.RUnlock()

	body, err := protocol.EncodeClientbound(pkt)
	if err != nil {
		logging.Error(context.Background(), "encoding clientbound packet",
			zap.String("remoteAddr", c.remoteIP), zap.Error(err))
		return
	}
	frame := protocol.EncodeFrame(body)

	// The send channel is never closed, so a Close racing this enqueue at
	// worst drops the frame via the done case.
	select {
	case c.send <- frame.Bytes():
	case <-c.done:
	default:
		metrics.PacketsDropped.Inc()
		logging.Warn(context.Background(), "send queue full, disconnecting slow peer",
			zap.String("remoteAddr", c.remoteIP))
		c.Close()
	}
}

// Close shuts the connection down idempotently. Queued packets get a short
// drain window before the socket is closed.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		_ = c.raw.SetWriteDeadline(time.Now().Add(drainWait))
		close(c.done)
	})
}

func (c *Conn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Conn) writePump() {
	defer func() {
		_ = c.raw.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.isClosed() {
				_ = c.raw.SetWriteDeadline(time.Now().Add(writeWait))
			}
			if _, err := c.raw.Write(frame); err != nil {
				logging.Debug(context.Background(), "write failed",
					zap.String("remoteAddr", c.remoteIP), zap.Error(err))
				return
			}
		case <-c.done:
			// Flush what is already queued, bounded by the drain deadline
			// Close set on the socket.
			for {
				select {
				case frame := <-c.send:
					if _, err := c.raw.Write(frame); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// readPump reads the socket, feeds the frame decoder and dispatches decoded
// packets. Any protocol violation is fatal for the connection.
func (c *Conn) readPump() {
	ctx := logging.WithRemoteAddr(context.Background(), c.remoteIP)
	defer func() {
		c.Close()
		c.onClose(c)
		metrics.DecConnection()
	}()

	buf := protocol.NewByteBuf()
	tmp := make([]byte, readBufferSize)
	for {
		_ = c.raw.SetReadDeadline(time.Now().Add(readWait))
		n, err := c.raw.Read(tmp)
		if n > 0 {
			buf.WriteBytes(tmp[:n])
			frames, derr := c.decoder.Decode(buf)
			if derr != nil {
				logging.Warn(ctx, "protocol violation", zap.Error(derr))
				return
			}
			for _, frame := range frames {
				pkt, perr := protocol.DecodeServerbound(frame)
				if perr != nil {
					logging.Warn(ctx, "malformed packet", zap.Error(perr))
					return
				}
				if id, ok := protocol.ServerboundID(pkt); ok {
					metrics.PacketsReceived.WithLabelValues(packetLabel(id)).Inc()
				}
				c.onPacket(c, pkt)
			}
			buf.DiscardReadBytes()
		}
		if err != nil {
			return
		}
	}
}

func packetLabel(id byte) string {
	const hex = "0123456789abcdef"
	return string([]byte{'0', 'x', hex[id>>4], hex[id&0x0F]})
}
