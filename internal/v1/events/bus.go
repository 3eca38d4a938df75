// Package events is a small in-process pub/sub bus. Plugins and ancillary
// features subscribe here instead of reaching into the core.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/phiralab/phira-mp-server/internal/v1/logging"
)

// Topics emitted by the core.
const (
	TopicUserAuthenticated = "user.authenticated"
	TopicUserDisconnected  = "user.disconnected"
	TopicRoomCreated       = "room.created"
	TopicRoomDestroyed     = "room.destroyed"
	TopicRoomJoined        = "room.joined"
	TopicRoomLeft          = "room.left"
	TopicChat              = "room.chat"
	TopicGameStarted       = "room.game_started"
	TopicGameFinished      = "room.game_finished"
)

// Handler receives an emitted payload. Handlers run synchronously on the
// emitting goroutine and must not block.
type Handler func(ctx context.Context, payload any)

// Bus fans events out to subscribers. A panicking handler is logged and does
// not affect the emitter or other handlers.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a topic.
func (b *Bus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Emit delivers a payload to every subscriber of the topic.
func (b *Bus) Emit(ctx context.Context, topic string, payload any) {
	b.mu.RLock()
	handlers := b.handlers[topic]
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(ctx, topic, h, payload)
	}
}

func (b *Bus) dispatch(ctx context.Context, topic string, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error(ctx, "event handler panicked",
				zap.String("topic", topic), zap.Any("panic", r))
		}
	}()
	h(ctx, payload)
}
