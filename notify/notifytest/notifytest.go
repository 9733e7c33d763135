// Package notifytest provides a reusable conformance suite for notify.Feed
// implementations that support publishing.
package notifytest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cartstack/backoffice-go/notify"
)

// Factory creates a fresh Feed instance for testing.
type Factory func(t *testing.T) notify.Feed

// RunFeedTests runs the Feed conformance suite against the factory.
func RunFeedTests(t *testing.T, factory Factory) {
	t.Run("PublishThenSubscribeFromCursor", func(t *testing.T) { testPublishThenResume(t, factory) })
	t.Run("SubscribeSeesOnlyFutureWithoutCursor", func(t *testing.T) { testFutureOnly(t, factory) })
	t.Run("OrderingPerRecipient", func(t *testing.T) { testOrdering(t, factory) })
	t.Run("RecipientIsolation", func(t *testing.T) { testRecipientIsolation(t, factory) })
	t.Run("CancellationStopsStream", func(t *testing.T) { testCancellation(t, factory) })
	t.Run("StreamCloseIsIdempotent", func(t *testing.T) { testCloseIdempotent(t, factory) })
}

func newFeed(t *testing.T, factory Factory) notify.Feed {
	t.Helper()
	f := factory(t)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func nextEvent(t *testing.T, stream notify.EventStream) notify.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	ev, err := stream.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	return ev
}

func testPublishThenResume(t *testing.T, factory Factory) {
	f := newFeed(t, factory)
	ctx := context.Background()

	first, err := f.Publish(ctx, "user-1", notify.Event{Type: "order:new", Message: "one"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := f.Publish(ctx, "user-1", notify.Event{Type: "order:new", Message: "two"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	stream, err := f.Subscribe(ctx, "user-1", first)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stream.Close()

	ev := nextEvent(t, stream)
	if ev.Message != "two" {
		t.Fatalf("resumed event message = %q, want %q", ev.Message, "two")
	}
	if ev.Recipient != "user-1" {
		t.Fatalf("event recipient = %q", ev.Recipient)
	}
	if ev.ID == "" || ev.ID <= first {
		t.Fatalf("event ID %q not ordered after cursor %q", ev.ID, first)
	}
}

func testFutureOnly(t *testing.T, factory Factory) {
	f := newFeed(t, factory)
	ctx := context.Background()

	if _, err := f.Publish(ctx, "user-1", notify.Event{Message: "before"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	stream, err := f.Subscribe(ctx, "user-1", "")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stream.Close()

	if _, err := f.Publish(ctx, "user-1", notify.Event{Message: "after"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ev := nextEvent(t, stream)
	if ev.Message != "after" {
		t.Fatalf("first delivery = %q, want %q (history must not replay without a cursor)", ev.Message, "after")
	}
}

func testOrdering(t *testing.T, factory Factory) {
	f := newFeed(t, factory)
	ctx := context.Background()

	stream, err := f.Subscribe(ctx, "user-1", "")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stream.Close()

	messages := []string{"a", "b", "c", "d"}
	for _, m := range messages {
		if _, err := f.Publish(ctx, "user-1", notify.Event{Message: m}); err != nil {
			t.Fatalf("Publish %q: %v", m, err)
		}
	}

	lastID := ""
	for _, want := range messages {
		ev := nextEvent(t, stream)
		if ev.Message != want {
			t.Fatalf("delivery order: got %q, want %q", ev.Message, want)
		}
		if lastID != "" && ev.ID <= lastID {
			t.Fatalf("event IDs not increasing: %q then %q", lastID, ev.ID)
		}
		lastID = ev.ID
	}
}

func testRecipientIsolation(t *testing.T, factory Factory) {
	f := newFeed(t, factory)
	ctx := context.Background()

	stream, err := f.Subscribe(ctx, "user-1", "")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stream.Close()

	if _, err := f.Publish(ctx, "user-2", notify.Event{Message: "not yours"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, err := f.Publish(ctx, "user-1", notify.Event{Message: "yours"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	ev := nextEvent(t, stream)
	if ev.Message != "yours" {
		t.Fatalf("received %q, want only own events", ev.Message)
	}
}

func testCancellation(t *testing.T, factory Factory) {
	f := newFeed(t, factory)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := f.Subscribe(ctx, "user-1", "")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stream.Close()

	cancel()

	nextCtx, nextCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer nextCancel()
	if _, err := stream.Next(nextCtx); err == nil {
		t.Fatal("Next returned nil error after subscription cancellation")
	} else if errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("Next blocked past cancellation")
	}
}

func testCloseIdempotent(t *testing.T, factory Factory) {
	f := newFeed(t, factory)

	stream, err := f.Subscribe(context.Background(), "user-1", "")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("repeat Close: %v", err)
	}
}
