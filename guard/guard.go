// Package guard gates screen rendering behind an authenticated session.
// It never navigates or renders itself; Evaluate returns a decision value
// and the embedding shell acts on it. Decisions are pure functions of the
// session snapshot and the requested path, so repeated evaluation with
// unchanged state yields the identical decision.
package guard

import (
	"context"
	"strings"

	"github.com/cartstack/backoffice-go/session"
)

// Action is the kind of decision the guard made.
type Action int

const (
	// ActionWait means the session is still restoring; render a neutral
	// placeholder, neither the screen nor a redirect.
	ActionWait Action = iota
	// ActionAllow means the requested screen may render.
	ActionAllow
	// ActionRedirect means the requested screen must not render; navigate
	// to Decision.Target instead.
	ActionRedirect
)

func (a Action) String() string {
	switch a {
	case ActionWait:
		return "wait"
	case ActionAllow:
		return "allow"
	case ActionRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is the outcome of one guard evaluation.
type Decision struct {
	Action Action
	// Target is the navigation target when Action is ActionRedirect.
	Target string
}

// DefaultEntryPath is where unauthenticated users are sent.
const DefaultEntryPath = "/login"

// defaultPublicPaths are the pre-auth screens reachable without a session.
var defaultPublicPaths = []string{
	"/login",
	"/forgot-password",
	"/login/verify",
}

// Guard classifies requested paths and decides whether they may render.
type Guard struct {
	store  *session.Store
	entry  string
	public map[string]struct{}
}

// Option configures a Guard.
type Option func(*Guard)

// WithEntryPath overrides the redirect target for unauthenticated users.
func WithEntryPath(path string) Option {
	return func(g *Guard) { g.entry = path }
}

// WithPublicPaths replaces the public allow-list. The entry path is always
// treated as public regardless of the list.
func WithPublicPaths(paths ...string) Option {
	return func(g *Guard) {
		g.public = make(map[string]struct{}, len(paths))
		for _, p := range paths {
			g.public[normalize(p)] = struct{}{}
		}
	}
}

// New creates a Guard over the given session store.
func New(store *session.Store, opts ...Option) *Guard {
	g := &Guard{
		store: store,
		entry: DefaultEntryPath,
	}
	WithPublicPaths(defaultPublicPaths...)(g)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Public reports whether path is on the pre-auth allow-list. Everything
// not explicitly listed is protected.
func (g *Guard) Public(path string) bool {
	p := normalize(path)
	if p == normalize(g.entry) {
		return true
	}
	_, ok := g.public[p]
	return ok
}

// Evaluate decides whether the screen at path may render under the
// store's current state.
func (g *Guard) Evaluate(path string) Decision {
	return g.EvaluateSnapshot(g.store.Snapshot(), path)
}

// EvaluateSnapshot is Evaluate against an explicit snapshot. It exists so
// a shell holding a Watch delivery can decide against exactly that state.
func (g *Guard) EvaluateSnapshot(snap session.Snapshot, path string) Decision {
	if g.Public(path) {
		return Decision{Action: ActionAllow}
	}

	switch snap.State {
	case session.StateLoading:
		return Decision{Action: ActionWait}
	case session.StateAuthenticated:
		return Decision{Action: ActionAllow}
	default:
		return Decision{Action: ActionRedirect, Target: g.entry}
	}
}

// Run re-evaluates path on every session transition and invokes navigate
// for each redirect decision, until ctx is cancelled. The navigate callback
// receives the entry path; invoking it twice for the same target must be
// harmless, which the decision contract already guarantees.
func (g *Guard) Run(ctx context.Context, path string, navigate func(target string)) {
	ch := g.store.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if d := g.EvaluateSnapshot(snap, path); d.Action == ActionRedirect {
				navigate(d.Target)
			}
		}
	}
}

func normalize(path string) string {
	if path == "" {
		return "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}
