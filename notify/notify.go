// Package notify defines the recipient-keyed realtime event feed behind
// the back-office notification bell. The transport is an opaque ordered
// event source: backends deliver events for a recipient in publish order
// and events for other recipients are never surfaced.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Event is one notification for a recipient.
type Event struct {
	// ID is unique and lexicographically ordered within a recipient
	// (ULID), so it doubles as a resume cursor.
	ID string `json:"id"`
	// Recipient identifies who the event is for. Events whose recipient
	// doesn't match the subscriber's identity are dropped, not delivered.
	Recipient string `json:"recipient"`
	// Type is the notification category tag (e.g. "order:new").
	Type string `json:"type"`
	// Message is the human-readable notification text.
	Message string `json:"message"`
	// Data carries optional structured payload, uninterpreted here.
	Data json.RawMessage `json:"data,omitempty"`
	// CreatedAt is when the event was published.
	CreatedAt time.Time `json:"created_at"`
}

// EventStream provides ordered event consumption for one recipient.
// Streams are safe for use by a single consumer.
type EventStream interface {
	// Next blocks until the next event is available or ctx is cancelled.
	// Returns io.EOF when the stream is closed and drained.
	Next(ctx context.Context) (Event, error)

	// Close releases resources associated with this stream.
	Close() error
}

// Feed is the notification source contract.
type Feed interface {
	// Publish appends an event for recipient and returns its assigned ID.
	Publish(ctx context.Context, recipient string, ev Event) (eventID string, err error)

	// Subscribe streams recipient's events, resuming after lastEventID
	// when provided; with an empty cursor the stream starts at the next
	// published event.
	Subscribe(ctx context.Context, recipient string, lastEventID string) (EventStream, error)

	// Close shuts the feed down and closes all streams.
	Close() error
}

var (
	// ErrPublishUnsupported is returned by consume-only feeds (the
	// websocket source): notifications are published by the backend,
	// never by this client.
	ErrPublishUnsupported = errors.New("notify: feed is consume-only")

	// ErrFeedClosed is returned for operations on a closed feed.
	ErrFeedClosed = errors.New("notify: feed closed")
)
