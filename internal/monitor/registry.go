package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/joebot/archmon/internal/ap"
	"github.com/joebot/archmon/internal/bus"
	"github.com/joebot/archmon/internal/store"
)

var (
	// ErrDuplicate is returned when an endpoint is already monitored.
	ErrDuplicate = errors.New("endpoint already monitored")
	// ErrNotFound is returned when no monitor exists for a key.
	ErrNotFound = errors.New("no monitor for endpoint")
)

// Storage is the persistence surface the registry needs.
type Storage interface {
	LinkSource
	RemoveConnection(ctx context.Context, c store.Connection) error
}

// ChannelResolver validates a notification channel and returns the guild
// it belongs to. It fails for unknown channels, non-text channels and
// channels outside a guild.
type ChannelResolver func(channelID string) (guildID string, err error)

// SessionFactory builds a protocol client for a connection config.
type SessionFactory func(c store.Connection) Session

// Registry tracks the active monitors, at most one per host:port. It is
// safe for concurrent use by command handlers.
type Registry struct {
	storage    Storage
	notify     *bus.Bus
	newSession SessionFactory

	mu       sync.Mutex
	monitors map[string]*Monitor
}

// NewRegistry creates an empty registry. A nil factory dials real
// Archipelago sessions.
func NewRegistry(storage Storage, notify *bus.Bus, factory SessionFactory) *Registry {
	if factory == nil {
		factory = func(c store.Connection) Session {
			return ap.NewClient(c.Host, c.Port, c.Game, c.Player)
		}
	}
	return &Registry{
		storage:    storage,
		notify:     notify,
		newSession: factory,
		monitors:   make(map[string]*Monitor),
	}
}

// Has reports whether a monitor exists for the host:port key.
func (r *Registry) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.monitors[key]
	return ok
}

// Guild returns the monitors announcing into a guild, sorted by key.
func (r *Registry) Guild(guildID string) []*Monitor {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Monitor
	for _, m := range r.monitors {
		if m.GuildID() == guildID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Make creates, connects and starts a monitor for the connection config.
// Duplicate endpoints and invalid channels are rejected before any
// connection attempt.
func (r *Registry) Make(ctx context.Context, conn store.Connection, resolve ChannelResolver) (*Monitor, error) {
	key := conn.Key()

	r.mu.Lock()
	_, dup := r.monitors[key]
	r.mu.Unlock()
	if dup {
		return nil, fmt.Errorf("%s: %w", key, ErrDuplicate)
	}

	guildID, err := resolve(conn.Channel)
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", conn.Channel, err)
	}

	sess := r.newSession(conn)
	if err := sess.Connect(ctx); err != nil {
		sess.Close()
		return nil, fmt.Errorf("connect %s: %w", key, err)
	}

	m := newMonitor(conn, guildID, sess, r.storage, r.notify)

	r.mu.Lock()
	if _, dup := r.monitors[key]; dup {
		r.mu.Unlock()
		sess.Close()
		return nil, fmt.Errorf("%s: %w", key, ErrDuplicate)
	}
	r.monitors[key] = m
	r.mu.Unlock()

	m.start()
	return m, nil
}

// Remove tears down the monitor for a key: pending reconnects are
// cancelled, the session detached and the monitor dropped from the
// registry before this returns. With deleteFromStore the persisted
// configuration is removed as well.
func (r *Registry) Remove(ctx context.Context, key string, deleteFromStore bool) error {
	r.mu.Lock()
	m, ok := r.monitors[key]
	if ok {
		delete(r.monitors, key)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	m.stop()

	if deleteFromStore {
		if err := r.storage.RemoveConnection(ctx, m.Config()); err != nil {
			return fmt.Errorf("remove stored connection: %w", err)
		}
	}
	return nil
}

// Close stops every monitor. Used at shutdown; stored configurations are
// kept for the next startup replay.
func (r *Registry) Close() {
	r.mu.Lock()
	monitors := r.monitors
	r.monitors = make(map[string]*Monitor)
	r.mu.Unlock()

	for _, m := range monitors {
		m.stop()
	}
}
