package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/joebot/archmon/internal/bus"
)

// drainMonitor builds a monitor whose batcher can be driven directly,
// without the run loop, and returns the notifications it publishes.
func drainMonitor(t *testing.T) (*Monitor, <-chan *bus.Notification) {
	t.Helper()
	b := bus.New()
	ch := make(chan *bus.Notification, 64)
	b.Subscribe(func(ctx context.Context, n *bus.Notification) error {
		ch <- n
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Dispatch(ctx)

	return newMonitor(testConn(), "guild1", nil, nil, b), ch
}

func collectN(t *testing.T, ch <-chan *bus.Notification, n int) []*bus.Notification {
	t.Helper()
	out := make([]*bus.Notification, 0, n)
	for i := 0; i < n; i++ {
		select {
		case msg := <-ch:
			out = append(out, msg)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d notifications, want %d", len(out), n)
		}
	}
	return out
}

func TestBatchCounts(t *testing.T) {
	tests := []struct {
		lines int
		msgs  int
	}{
		{0, 0},
		{1, 1},
		{24, 1},
		{25, 1},
		{26, 2},
		{50, 2},
		{51, 3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d lines", tt.lines), func(t *testing.T) {
			m, ch := drainMonitor(t)
			for i := 0; i < tt.lines; i++ {
				m.enqueue(catItems, line{text: fmt.Sprintf("line %d", i+1)})
			}
			m.flushQueues()

			msgs := collectN(t, ch, tt.msgs)
			select {
			case n := <-ch:
				t.Fatalf("extra notification: %+v", n)
			case <-time.After(50 * time.Millisecond):
			}

			total := 0
			for i, msg := range msgs {
				fields := msg.Embeds[0].Fields
				if len(fields) > maxEmbedFields {
					t.Errorf("message %d has %d fields", i, len(fields))
				}
				for j, f := range fields {
					if want := fmt.Sprintf("#%d", total+j+1); f.Name != want {
						t.Errorf("field name = %q, want %q", f.Name, want)
					}
					if want := fmt.Sprintf("line %d", total+j+1); f.Value != want {
						t.Errorf("field value = %q, want %q", f.Value, want)
					}
				}
				total += len(fields)
			}
			if total != tt.lines {
				t.Errorf("total fields = %d, want %d", total, tt.lines)
			}
		})
	}
}

func TestFlushClearsQueueBeforeSend(t *testing.T) {
	m, ch := drainMonitor(t)
	m.enqueue(catHints, line{text: "one"})
	m.flushQueues()
	collectN(t, ch, 1)

	if !m.queue.empty() {
		t.Error("queue not empty after flush")
	}

	// A second flush with nothing queued emits nothing.
	m.flushQueues()
	select {
	case n := <-ch:
		t.Fatalf("unexpected notification: %+v", n)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMentionsHoistedPerBatch(t *testing.T) {
	m, ch := drainMonitor(t)

	// 26 lines: the duplicate mention appears in both batches, so each
	// batch hoists its own distinct set.
	for i := 0; i < 26; i++ {
		l := line{text: fmt.Sprintf("line %d", i+1), mentions: []string{"<@1>"}}
		if i == 0 {
			l.mentions = append(l.mentions, "<@2>", "<@1>")
		}
		m.enqueue(catItems, l)
	}
	m.flushQueues()

	msgs := collectN(t, ch, 2)
	if msgs[0].Content != "<@1> <@2>" {
		t.Errorf("first batch content = %q, want %q", msgs[0].Content, "<@1> <@2>")
	}
	if msgs[1].Content != "<@1>" {
		t.Errorf("second batch content = %q, want %q", msgs[1].Content, "<@1>")
	}
}

func TestEnqueueArmsTimerOnce(t *testing.T) {
	m, _ := drainMonitor(t)

	m.enqueue(catHints, line{text: "a"})
	timer := m.flushTimer
	if timer == nil {
		t.Fatal("first enqueue did not arm the flush timer")
	}

	m.enqueue(catItems, line{text: "b"})
	m.enqueue(catHints, line{text: "c"})
	if m.flushTimer != timer {
		t.Error("later enqueues replaced the pending flush timer")
	}
}
