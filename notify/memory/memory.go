// Package memory provides an in-memory implementation of the notify.Feed
// interface using Go channels for delivery. It backs tests and
// single-binary embeddings where the back office and its event source run
// in one process.
package memory

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cartstack/backoffice-go/notify"
	"github.com/oklog/ulid/v2"
)

// Feed implements notify.Feed in memory. Recipients are fully isolated;
// ordering is guaranteed per recipient.
type Feed struct {
	mu         sync.Mutex
	recipients map[string]*mailbox
	entropy    *ulid.MonotonicEntropy
	closed     bool
}

// mailbox is one recipient's ordered event log and live subscribers.
type mailbox struct {
	mu          sync.Mutex
	events      []notify.Event
	subscribers map[*stream]struct{}
}

// stream is an active subscription to a mailbox.
type stream struct {
	box    *mailbox
	ch     chan notify.Event
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// New creates a memory-backed feed.
func New() *Feed {
	return &Feed{
		recipients: make(map[string]*mailbox),
		entropy:    ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// Publish appends an event for recipient and fans it out to subscribers.
func (f *Feed) Publish(ctx context.Context, recipient string, ev notify.Event) (string, error) {
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return "", notify.ErrFeedClosed
	}
	ev.ID = ulid.MustNew(ulid.Timestamp(time.Now()), f.entropy).String()
	box := f.box(recipient)
	f.mu.Unlock()

	ev.Recipient = recipient
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	box.mu.Lock()
	defer box.mu.Unlock()

	box.events = append(box.events, ev)
	for sub := range box.subscribers {
		select {
		case sub.ch <- ev:
		case <-sub.ctx.Done():
			delete(box.subscribers, sub)
		default:
			// Subscriber buffer full; it can resume from its cursor.
		}
	}

	return ev.ID, nil
}

// Subscribe streams recipient's events, replaying history after
// lastEventID when provided.
func (f *Feed) Subscribe(ctx context.Context, recipient string, lastEventID string) (notify.EventStream, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, notify.ErrFeedClosed
	}
	box := f.box(recipient)
	f.mu.Unlock()

	box.mu.Lock()
	defer box.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	sub := &stream{
		box:    box,
		ch:     make(chan notify.Event, 100),
		ctx:    subCtx,
		cancel: cancel,
	}
	box.subscribers[sub] = struct{}{}

	if lastEventID != "" {
		start := -1
		for i, ev := range box.events {
			if ev.ID == lastEventID {
				start = i + 1
				break
			}
		}
		if start >= 0 {
			for i := start; i < len(box.events); i++ {
				select {
				case sub.ch <- box.events[i]:
				case <-sub.ctx.Done():
					delete(box.subscribers, sub)
					return nil, sub.ctx.Err()
				}
			}
		}
	}

	return sub, nil
}

// Close shuts the feed down and closes all streams.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	boxes := f.recipients
	f.recipients = make(map[string]*mailbox)
	f.mu.Unlock()

	for _, box := range boxes {
		box.mu.Lock()
		for sub := range box.subscribers {
			if sub.closed.CompareAndSwap(false, true) {
				sub.cancel()
				close(sub.ch)
			}
		}
		box.subscribers = make(map[*stream]struct{})
		box.mu.Unlock()
	}
	return nil
}

// box returns the mailbox for recipient, creating it if needed. Caller
// must hold f.mu.
func (f *Feed) box(recipient string) *mailbox {
	box, ok := f.recipients[recipient]
	if !ok {
		box = &mailbox{subscribers: make(map[*stream]struct{})}
		f.recipients[recipient] = box
	}
	return box
}

// Next implements notify.EventStream.
func (s *stream) Next(ctx context.Context) (notify.Event, error) {
	if s.closed.Load() {
		// Drain anything buffered before reporting EOF.
		select {
		case ev, ok := <-s.ch:
			if ok {
				return ev, nil
			}
		default:
		}
		return notify.Event{}, io.EOF
	}

	select {
	case ev, ok := <-s.ch:
		if !ok {
			return notify.Event{}, io.EOF
		}
		return ev, nil
	case <-ctx.Done():
		return notify.Event{}, ctx.Err()
	case <-s.ctx.Done():
		return notify.Event{}, fmt.Errorf("subscription cancelled: %w", s.ctx.Err())
	}
}

// Close implements notify.EventStream.
func (s *stream) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.box.mu.Lock()
		delete(s.box.subscribers, s)
		s.box.mu.Unlock()

		s.cancel()
		close(s.ch)
	}
	return nil
}

// Compile-time interface checks
var (
	_ notify.Feed        = (*Feed)(nil)
	_ notify.EventStream = (*stream)(nil)
)
