package monitor

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joebot/archmon/internal/ap"
	"github.com/joebot/archmon/internal/bus"
	"github.com/joebot/archmon/internal/store"
)

const (
	// flushDelay is the idle window between the first enqueue and the
	// flush, bounding the send rate during event bursts.
	flushDelay = 150 * time.Millisecond
	// retryDelay is the wait between failed reconnect attempts.
	retryDelay = 5 * time.Minute
)

// Session is the protocol client a monitor drives. ap.Client implements
// it; tests substitute a fake.
type Session interface {
	Events() <-chan ap.Event
	Connect(ctx context.Context) error
	Close() error
	URI() string
	Player(slot int) (ap.Player, bool)
	ItemName(player int, id int64, flags int) string
	LocationName(player int, id int64) string
}

// LinkSource provides the current player links for a guild. Links are read
// fresh on every event so link edits take effect immediately.
type LinkSource interface {
	Links(ctx context.Context, guildID string) ([]store.Link, error)
}

// Monitor bridges one Archipelago session to one Discord channel. All
// mutable state is owned by the run goroutine; other goroutines only see
// it through the registry and the read-only accessors.
type Monitor struct {
	conn    store.Connection
	guildID string
	sess    Session
	links   LinkSource
	notify  *bus.Bus

	flushAfter time.Duration
	retryAfter time.Duration

	reconnecting atomic.Bool
	queue        pendingQueue
	flushTimer   *time.Timer
	retryTimer   *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// newMonitor returns a fully initialized monitor. Teardown state is set up
// here rather than in start, so a monitor is safe to stop from the moment
// it becomes visible to other goroutines.
func newMonitor(conn store.Connection, guildID string, sess Session, links LinkSource, notify *bus.Bus) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		conn:       conn,
		guildID:    guildID,
		sess:       sess,
		links:      links,
		notify:     notify,
		flushAfter: flushDelay,
		retryAfter: retryDelay,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Key returns the host:port registry key.
func (m *Monitor) Key() string { return m.conn.Key() }

// GuildID returns the guild the monitor announces into.
func (m *Monitor) GuildID() string { return m.guildID }

// Config returns the connection configuration the monitor was built from.
func (m *Monitor) Config() store.Connection { return m.conn }

// Reconnecting reports whether the monitor is between a disconnect and a
// successful reconnect.
func (m *Monitor) Reconnecting() bool { return m.reconnecting.Load() }

// start spawns the run goroutine. A stop that raced ahead of start has
// already cancelled the context, so run exits on its first select.
func (m *Monitor) start() {
	go m.run(m.ctx)
}

// stop tears the monitor down: pending retries and flushes are cancelled,
// the session subscription is detached and the client closed. A stopped
// monitor never reconnects.
func (m *Monitor) stop() {
	m.cancel()
	<-m.done
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	for {
		var flushC, retryC <-chan time.Time
		if m.flushTimer != nil {
			flushC = m.flushTimer.C
		}
		if m.retryTimer != nil {
			retryC = m.retryTimer.C
		}

		select {
		case <-ctx.Done():
			if m.flushTimer != nil {
				m.flushTimer.Stop()
			}
			if m.retryTimer != nil {
				m.retryTimer.Stop()
			}
			m.sess.Close()
			return

		case ev := <-m.sess.Events():
			m.handle(ctx, ev)

		case <-flushC:
			m.flushTimer = nil
			m.flushQueues()

		case <-retryC:
			m.retryTimer = nil
			m.tryReconnect(ctx)
		}
	}
}

// handle processes one session event. A failure while handling one event
// must not take down the monitor or corrupt the queues for later events.
func (m *Monitor) handle(ctx context.Context, ev ap.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handling panicked", "uri", m.Key(), "panic", r)
		}
	}()

	links, err := m.links.Links(ctx, m.guildID)
	if err != nil {
		slog.Warn("link lookup failed", "guild", m.guildID, "err", err)
		links = nil
	}

	switch ev := ev.(type) {
	case ap.ItemSendEvent:
		kindFor := func(slot int) mentionKind {
			if slot == ev.Receiving {
				return mentionItemReceiver
			}
			return mentionItemFinder
		}
		m.enqueue(catItems, renderSegments(m.sess, ev.Segments, kindFor, m.conn.Mentions, links))

	case ap.CollectEvent:
		kindFor := func(int) mentionKind { return mentionItemFinder }
		m.enqueue(catItems, renderSegments(m.sess, ev.Segments, kindFor, m.conn.Mentions, links))

	case ap.HintEvent:
		kindFor := func(int) mentionKind { return mentionHints }
		m.enqueue(catHints, renderSegments(m.sess, ev.Segments, kindFor, m.conn.Mentions, links))

	case ap.JoinEvent:
		// Other monitors watching the same session are not announced.
		if slices.Contains(ev.Tags, "Monitor") {
			return
		}
		name, game := m.playerName(ev.Slot)
		text, token := resolvePlayer(name, mentionJoinLeave, m.conn.Mentions, links)
		if slices.Contains(ev.Tags, "IgnoreGame") {
			m.announce(line{text: "A tracker for " + text + " has joined the game!", mentions: tokens(token)})
			return
		}
		m.announce(line{text: text + " (" + game + ") joined the game!", mentions: tokens(token)})

	case ap.PartEvent:
		name, game := m.playerName(ev.Slot)
		text, token := resolvePlayer(name, mentionJoinLeave, m.conn.Mentions, links)
		m.announce(line{text: text + " (" + game + ") left the game!", mentions: tokens(token)})

	case ap.GoalEvent:
		name, _ := m.playerName(ev.Slot)
		text, token := resolvePlayer(name, mentionCompletion, m.conn.Mentions, links)
		m.announce(line{text: text + " completed their goal!", mentions: tokens(token)})

	case ap.ReleaseEvent:
		name, _ := m.playerName(ev.Slot)
		text, token := resolvePlayer(name, mentionItemFinder, m.conn.Mentions, links)
		m.announce(line{text: text + " released their remaining items!", mentions: tokens(token)})

	case ap.DisconnectedEvent:
		m.onDisconnect(ctx, ev.Err)
	}
}

func (m *Monitor) playerName(slot int) (name, game string) {
	if p, ok := m.sess.Player(slot); ok {
		return p.Name, p.Game
	}
	return "Unknown player", "unknown"
}

func tokens(token string) []string {
	if token == "" {
		return nil
	}
	return []string{token}
}

// announce sends immediately, bypassing the batcher. Disconnect and
// join/leave style notices are not batched.
func (m *Monitor) announce(l line) {
	m.notify.Publish(&bus.Notification{
		ChannelID: m.conn.Channel,
		Content:   strings.Join(l.mentions, " "),
		Embeds:    []bus.Embed{{Title: "Archipelago", Description: l.text}},
	})
}

func (m *Monitor) onDisconnect(ctx context.Context, err error) {
	slog.Warn("session disconnected", "uri", m.Key(), "err", err)
	m.announce(line{text: "Disconnected from the server."})

	// Repeated disconnect signals while a reconnect is in flight must not
	// start overlapping attempts.
	if m.reconnecting.Load() {
		return
	}
	m.reconnecting.Store(true)
	m.tryReconnect(ctx)
}

func (m *Monitor) tryReconnect(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if err := m.sess.Connect(ctx); err != nil {
		slog.Warn("reconnect failed", "uri", m.Key(), "err", err)
		m.retryTimer = time.NewTimer(m.retryAfter)
		return
	}
	m.reconnecting.Store(false)
	slog.Info("session reconnected", "uri", m.Key())
	m.announce(line{text: "Reconnected to the server."})
}
