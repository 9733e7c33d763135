// Package ws provides a websocket-backed notify.Feed that consumes the
// back-office notification socket. The source is consume-only: events are
// published by the backend, never by this client.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/cartstack/backoffice-go/notify"
	"github.com/cartstack/backoffice-go/session"
	"github.com/coder/websocket"
)

// Source implements notify.Feed over a websocket endpoint.
type Source struct {
	endpoint *url.URL
	store    *session.Store
	log      *slog.Logger
	hc       *http.Client
}

// Option configures a Source.
type Option func(*Source)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(s *Source) { s.log = log }
}

// WithHTTPClient overrides the client used for the websocket handshake.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Source) { s.hc = hc }
}

// New creates a Source dialing rawURL. The bearer credential is read from
// store at subscribe time, so a re-login picks up the fresh token on the
// next Subscribe.
func New(rawURL string, store *session.Store, opts ...Option) (*Source, error) {
	endpoint, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse socket url: %w", err)
	}
	if endpoint.Scheme == "" || endpoint.Host == "" {
		return nil, fmt.Errorf("socket url %q must be absolute", rawURL)
	}

	s := &Source{
		endpoint: endpoint,
		store:    store,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Publish implements notify.Feed. The websocket source cannot publish.
func (s *Source) Publish(ctx context.Context, recipient string, ev notify.Event) (string, error) {
	return "", notify.ErrPublishUnsupported
}

// Subscribe dials the socket and streams recipient's events. Events whose
// recipient doesn't match are dropped without delivery.
func (s *Source) Subscribe(ctx context.Context, recipient string, lastEventID string) (notify.EventStream, error) {
	target := *s.endpoint
	q := target.Query()
	q.Set("recipient", recipient)
	if lastEventID != "" {
		q.Set("last_event_id", lastEventID)
	}
	target.RawQuery = q.Encode()

	header := http.Header{}
	if tok := s.store.Token(); tok != "" {
		header.Set("Authorization", "Bearer "+tok)
	}

	conn, _, err := websocket.Dial(ctx, target.String(), &websocket.DialOptions{
		HTTPHeader: header,
		HTTPClient: s.hc,
	})
	if err != nil {
		return nil, fmt.Errorf("dial notification socket: %w", err)
	}

	s.log.DebugContext(ctx, "notify.ws.subscribed", slog.String("recipient", recipient))
	return &stream{conn: conn, recipient: recipient, log: s.log}, nil
}

// Close implements notify.Feed. Streams own their connections; the source
// itself holds nothing.
func (s *Source) Close() error {
	return nil
}

// stream reads events off one websocket connection.
type stream struct {
	conn      *websocket.Conn
	recipient string
	log       *slog.Logger
}

// Next reads until an event addressed to the subscriber arrives. Frames
// for other recipients and undecodable frames are skipped.
func (st *stream) Next(ctx context.Context) (notify.Event, error) {
	for {
		mt, data, err := st.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return notify.Event{}, io.EOF
			}
			if ctx.Err() != nil {
				return notify.Event{}, ctx.Err()
			}
			return notify.Event{}, fmt.Errorf("read notification frame: %w", err)
		}
		if mt != websocket.MessageText && mt != websocket.MessageBinary {
			continue
		}

		var ev notify.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			st.log.WarnContext(ctx, "notify.ws.bad_frame", slog.Any("err", err))
			continue
		}
		if ev.Recipient != st.recipient {
			continue
		}
		return ev, nil
	}
}

// Close closes the underlying connection (idempotent at the protocol
// level; repeated closes surface no new error to the caller).
func (st *stream) Close() error {
	_ = st.conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

// Compile-time interface checks
var (
	_ notify.Feed        = (*Source)(nil)
	_ notify.EventStream = (*stream)(nil)
)
