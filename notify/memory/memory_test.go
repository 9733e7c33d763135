package memory

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/cartstack/backoffice-go/notify"
	"github.com/cartstack/backoffice-go/notify/notifytest"
)

func TestMemoryFeed(t *testing.T) {
	notifytest.RunFeedTests(t, func(t *testing.T) notify.Feed {
		return New()
	})
}

func TestFeedCloseClosesStreams(t *testing.T) {
	f := New()

	stream, err := f.Subscribe(context.Background(), "user-1", "")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := stream.Next(ctx); err != io.EOF {
		t.Fatalf("Next after feed close: err=%v, want io.EOF", err)
	}

	if _, err := f.Publish(context.Background(), "user-1", notify.Event{}); err != notify.ErrFeedClosed {
		t.Fatalf("Publish after close: err=%v, want ErrFeedClosed", err)
	}
	if _, err := f.Subscribe(context.Background(), "user-1", ""); err != notify.ErrFeedClosed {
		t.Fatalf("Subscribe after close: err=%v, want ErrFeedClosed", err)
	}
}
