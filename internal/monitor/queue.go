package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/joebot/archmon/internal/bus"
)

// maxEmbedFields is the platform cap on fields per grouped message.
const maxEmbedFields = 25

type category int

const (
	catHints category = iota
	catItems
)

// pendingQueue holds rendered lines awaiting the next flush. It is only
// non-empty between an enqueue and the scheduled flush.
type pendingQueue struct {
	hints []line
	items []line
}

func (q *pendingQueue) empty() bool {
	return len(q.hints) == 0 && len(q.items) == 0
}

// enqueue adds a line to a category. The first enqueue into an empty queue
// arms the flush timer; later enqueues inside the window join the same
// flush cycle.
func (m *Monitor) enqueue(cat category, l line) {
	if m.queue.empty() && m.flushTimer == nil {
		m.flushTimer = time.NewTimer(m.flushAfter)
	}
	switch cat {
	case catHints:
		m.queue.hints = append(m.queue.hints, l)
	case catItems:
		m.queue.items = append(m.queue.items, l)
	}
}

// flushQueues drains both categories, hints first. Each category's queue
// is cleared before its messages go out: a failed send is not re-queued.
func (m *Monitor) flushQueues() {
	hints := m.queue.hints
	items := m.queue.items
	m.queue.hints = nil
	m.queue.items = nil

	m.sendBatches("Hints", hints)
	m.sendBatches("Items", items)
}

// sendBatches emits grouped messages of at most maxEmbedFields numbered
// fields. The distinct mention tokens of each batch are hoisted into the
// message content, since embeds alone do not ping anyone.
func (m *Monitor) sendBatches(title string, lines []line) {
	for start := 0; start < len(lines); start += maxEmbedFields {
		end := min(start+maxEmbedFields, len(lines))
		batch := lines[start:end]

		fields := make([]bus.EmbedField, len(batch))
		for i, l := range batch {
			fields[i] = bus.EmbedField{Name: fmt.Sprintf("#%d", start+i+1), Value: l.text}
		}

		m.notify.Publish(&bus.Notification{
			ChannelID: m.conn.Channel,
			Content:   strings.Join(dedupMentions(batch), " "),
			Embeds:    []bus.Embed{{Title: title, Fields: fields}},
		})
	}
}
