package bus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPublishDispatch(t *testing.T) {
	b := New()
	got := make(chan *Notification, 1)
	b.Subscribe(func(ctx context.Context, n *Notification) error {
		got <- n
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Dispatch(ctx)

	b.Publish(&Notification{ChannelID: "c1", Content: "hello"})

	select {
	case n := <-got:
		if n.ChannelID != "c1" || n.Content != "hello" {
			t.Errorf("notification = %+v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification never delivered")
	}
}

func TestHandlerErrorDoesNotStopDispatch(t *testing.T) {
	b := New()
	got := make(chan string, 2)
	b.Subscribe(func(ctx context.Context, n *Notification) error {
		got <- n.Content
		return errors.New("send failed")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Dispatch(ctx)

	b.Publish(&Notification{Content: "first"})
	b.Publish(&Notification{Content: "second"})

	for _, want := range []string{"first", "second"} {
		select {
		case c := <-got:
			if c != want {
				t.Errorf("content = %q, want %q", c, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("%q never delivered", want)
		}
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New()
	done := make(chan struct{})
	go func() {
		// No dispatcher running: overfill the queue.
		for i := 0; i < 200; i++ {
			b.Publish(&Notification{Content: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
}
