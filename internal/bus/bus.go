package bus

import (
	"context"
	"log/slog"
	"sync"
)

// EmbedField is one name/value pair in a grouped notification.
type EmbedField struct {
	Name  string
	Value string
}

// Embed is a platform-agnostic rich message block. Fields must already be
// capped at the platform limit by the producer.
type Embed struct {
	Title       string
	Description string
	Fields      []EmbedField
}

// Notification is an outbound chat message. Content carries any hoisted
// mention tokens; embeds alone do not trigger platform notifications.
type Notification struct {
	ChannelID string
	Content   string
	Embeds    []Embed
}

// Handler delivers a notification to the chat platform.
type Handler func(ctx context.Context, n *Notification) error

// Bus decouples monitors from the chat gateway using a buffered channel.
// Delivery is best-effort: handler errors are logged and the notification
// is dropped.
type Bus struct {
	out chan *Notification

	mu       sync.RWMutex
	handlers []Handler
}

// New creates a bus with a buffered outbound queue.
func New() *Bus {
	return &Bus{out: make(chan *Notification, 64)}
}

// Publish queues a notification for delivery. It never blocks the caller;
// if the queue is full the notification is dropped with a warning.
func (b *Bus) Publish(n *Notification) {
	select {
	case b.out <- n:
	default:
		slog.Warn("notification dropped, outbound queue full", "channel", n.ChannelID)
	}
}

// Subscribe registers a delivery handler.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Dispatch reads from the outbound queue and delivers to subscribers.
// Blocks until ctx is cancelled.
func (b *Bus) Dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-b.out:
			b.mu.RLock()
			handlers := b.handlers
			b.mu.RUnlock()
			for _, h := range handlers {
				if err := h(ctx, n); err != nil {
					slog.Warn("notification send failed", "channel", n.ChannelID, "err", err)
				}
			}
		}
	}
}
