// Package backoffice is a headless Go client for an e-commerce back-office
// REST API. It owns the authenticated session (persisted across restarts),
// gates screen rendering through a route guard, routes every API call
// through one auth-aware gateway, and consumes the realtime notification
// feed behind the notification bell.
//
// The typical embedding:
//
//	client, err := backoffice.NewFromEnv()
//	...
//	if err := client.Start(ctx); err != nil { ... }
//	switch d := client.Guard().Evaluate(currentPath); d.Action { ... }
package backoffice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cartstack/backoffice-go/gateway"
	"github.com/cartstack/backoffice-go/guard"
	"github.com/cartstack/backoffice-go/notify"
	notifyws "github.com/cartstack/backoffice-go/notify/ws"
	"github.com/cartstack/backoffice-go/session"
	"github.com/cartstack/backoffice-go/storage"
	storagefile "github.com/cartstack/backoffice-go/storage/file"
	"github.com/joeshaw/envdecode"
)

// Config wires a Client. Defaults can be loaded via NewFromEnv.
type Config struct {
	// APIBaseURL is the back-office REST endpoint. ENV: BACKOFFICE_API_URL
	APIBaseURL string `env:"BACKOFFICE_API_URL,required"`
	// SocketURL is the notification socket endpoint; empty disables the
	// notification feed. ENV: BACKOFFICE_SOCKET_URL
	SocketURL string `env:"BACKOFFICE_SOCKET_URL"`
	// StateDir is where durable client state lives. ENV: BACKOFFICE_STATE_DIR
	StateDir string `env:"BACKOFFICE_STATE_DIR,default=.backoffice"`
	// Profile selects an isolated account profile. ENV: BACKOFFICE_PROFILE
	Profile string `env:"BACKOFFICE_PROFILE"`
}

// Client is the facade over the session store, route guard, request
// gateway, and notification feed.
type Client struct {
	cfg   Config
	log   *slog.Logger
	store *session.Store
	gw    *gateway.Gateway
	guard *guard.Guard
	feed  notify.Feed

	st      storage.Storage
	ownsSt  bool
	metrics *gateway.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithStorage overrides the durable storage backend. The caller keeps
// ownership: Close will not close a provided backend.
func WithStorage(st storage.Storage) Option {
	return func(c *Client) { c.st = st }
}

// WithFeed overrides the notification feed (e.g. a memory feed in tests).
func WithFeed(feed notify.Feed) Option {
	return func(c *Client) { c.feed = feed }
}

// WithMetrics attaches gateway instrumentation.
func WithMetrics(m *gateway.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a Client from an explicit Config.
func New(cfg Config, opts ...Option) (*Client, error) {
	c := &Client{cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}

	if c.st == nil {
		st, err := storagefile.New(cfg.StateDir)
		if err != nil {
			return nil, fmt.Errorf("open state dir: %w", err)
		}
		c.st = st
		c.ownsSt = true
	}

	var storeOpts []session.StoreOption
	storeOpts = append(storeOpts, session.WithLogger(c.log))
	if cfg.Profile != "" {
		storeOpts = append(storeOpts, session.WithProfile(cfg.Profile))
	}
	c.store = session.NewStore(c.st, storeOpts...)

	gwOpts := []gateway.Option{gateway.WithLogger(c.log)}
	if c.metrics != nil {
		gwOpts = append(gwOpts, gateway.WithMetrics(c.metrics))
	}
	gw, err := gateway.New(cfg.APIBaseURL, c.store, gwOpts...)
	if err != nil {
		return nil, err
	}
	c.gw = gw

	c.guard = guard.New(c.store)

	if c.feed == nil && cfg.SocketURL != "" {
		feed, err := notifyws.New(cfg.SocketURL, c.store, notifyws.WithLogger(c.log))
		if err != nil {
			return nil, err
		}
		c.feed = feed
	}

	return c, nil
}

// NewFromEnv builds a Client from BACKOFFICE_* environment variables.
func NewFromEnv(opts ...Option) (*Client, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return New(cfg, opts...)
}

// Start restores the persisted session and begins mirroring external
// storage changes. It must complete before any guarded screen renders;
// until then the guard answers Wait for protected paths.
func (c *Client) Start(ctx context.Context) error {
	if err := c.store.Restore(ctx); err != nil {
		// The store already fell back to logged-out; surface for logging.
		c.log.WarnContext(ctx, "session restore reported storage trouble", "err", err)
	}
	return c.store.MirrorExternal(ctx)
}

// Session returns the session store.
func (c *Client) Session() *session.Store { return c.store }

// Guard returns the route guard.
func (c *Client) Guard() *guard.Guard { return c.guard }

// Gateway returns the request gateway, for callers issuing endpoints the
// typed services don't cover.
func (c *Client) Gateway() *gateway.Gateway { return c.gw }

// Notifications subscribes to the current identity's notification stream,
// resuming after lastEventID when provided. It fails when no feed is
// configured or nobody is signed in.
func (c *Client) Notifications(ctx context.Context, lastEventID string) (notify.EventStream, error) {
	if c.feed == nil {
		return nil, fmt.Errorf("no notification feed configured")
	}
	recipient := c.identity()
	if recipient == "" {
		return nil, fmt.Errorf("no authenticated identity to subscribe as")
	}
	return c.feed.Subscribe(ctx, recipient, lastEventID)
}

// identity derives the notification recipient from the session profile.
func (c *Client) identity() string {
	sess := c.store.Current()
	if !sess.IsAuthenticated {
		return ""
	}
	for _, key := range []string{"id", "_id", "email"} {
		if v, ok := sess.User[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Close releases resources the client created itself.
func (c *Client) Close() error {
	var first error
	if c.feed != nil {
		if err := c.feed.Close(); err != nil {
			first = err
		}
	}
	if c.ownsSt {
		if err := c.st.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
