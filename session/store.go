// Package session owns the client's authenticated session: the single
// source of truth for token, role, permissions, and profile, mirrored to
// durable storage after every mutation. All other packages treat the
// session as read-only and observe changes through Watch.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/cartstack/backoffice-go/storage"
)

// DefaultKey is the durable storage key the session record lives under.
const DefaultKey = "session"

var (
	// ErrMissingToken is returned by Login when the payload has no token.
	ErrMissingToken = errors.New("session: login payload missing token")
	// ErrNoSession is returned by UpdateUser when there is nothing to update.
	ErrNoSession = errors.New("session: no active session")
)

// Store holds the current Session and keeps the durable copy equal to the
// in-memory copy after every mutating operation. It is safe for concurrent
// use.
type Store struct {
	st      storage.Storage
	key     string
	profile string
	log     *slog.Logger

	mu         sync.RWMutex
	restored   bool
	sess       Session
	generation uint64
	watchers   map[chan Snapshot]struct{}
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithKey overrides the durable storage key.
func WithKey(key string) StoreOption {
	return func(s *Store) { s.key = key }
}

// WithProfile scopes durable storage to a named account profile.
func WithProfile(name string) StoreOption {
	return func(s *Store) { s.profile = name }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) StoreOption {
	return func(s *Store) { s.log = log }
}

// NewStore creates a Store over the given durable storage. The store
// starts in StateLoading; call Restore before rendering anything gated.
func NewStore(st storage.Storage, opts ...StoreOption) *Store {
	s := &Store{
		st:       st,
		key:      DefaultKey,
		log:      slog.Default(),
		watchers: make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) storageOpts() []storage.Option {
	if s.profile == "" {
		return nil
	}
	return []storage.Option{storage.WithProfile(s.profile)}
}

// Restore re-hydrates the in-memory session from durable storage. A
// missing, malformed, or invariant-violating durable record is treated as
// "no session", never as a failure: the store always leaves StateLoading.
// The returned error reports storage-system trouble for callers that want
// to surface it, but the store is usable either way.
func (s *Store) Restore(ctx context.Context) error {
	item, err := s.st.Get(ctx, s.key, s.storageOpts()...)

	var sess Session
	switch {
	case err != nil:
		s.log.WarnContext(ctx, "session restore failed, treating as logged out", "err", err)
	case item == nil:
		// No durable record.
	default:
		if uerr := json.Unmarshal(item.Data, &sess); uerr != nil || !sess.Valid() {
			s.log.WarnContext(ctx, "durable session record malformed, discarding")
			sess = Session{}
			// Best effort: remove the bad record so the next start is clean.
			_ = s.st.Delete(ctx, append(s.storageOpts(), storage.WithKey(s.key))...)
		}
	}

	s.mu.Lock()
	s.restored = true
	s.sess = sess
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return err
}

// Login populates a full session from a backend login payload and writes
// it to both memory and durable storage.
func (s *Store) Login(ctx context.Context, p LoginPayload) error {
	if p.Token == "" {
		return ErrMissingToken
	}

	sess := Session{
		IsAuthenticated: true,
		Token:           p.Token,
		Role:            p.Role,
		Permissions:     p.Permissions,
		User:            p.User,
	}.clone()

	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.st.Set(ctx, s.key, raw, s.storageOpts()...); err != nil {
		return err
	}

	s.mu.Lock()
	s.restored = true
	s.sess = sess
	s.generation++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.InfoContext(ctx, "session established", "role", sess.Role)
	s.notify(snap)
	return nil
}

// Logout clears the session from memory and durable storage. It is
// idempotent; repeated calls keep the store logged out.
//
// Memory is cleared even when the durable delete fails, so the process is
// signed out either way; a non-nil error means the durable record may
// still exist and a later Restore would resurrect the session. Callers
// that must not allow that should retry Logout until it returns nil.
func (s *Store) Logout(ctx context.Context) error {
	_, err := s.clear(ctx, "logout")
	return err
}

// Invalidate is the gateway-facing session-clear entry point, used when a
// call finds no credential or a response signals expiry. It reports whether
// this call performed the clear: concurrent invalidations collapse to one
// observable transition.
func (s *Store) Invalidate(ctx context.Context, reason string) bool {
	cleared, _ := s.clear(ctx, reason)
	return cleared
}

func (s *Store) clear(ctx context.Context, reason string) (bool, error) {
	err := s.st.Delete(ctx, append(s.storageOpts(), storage.WithKey(s.key))...)

	s.mu.Lock()
	wasAuthenticated := s.sess.IsAuthenticated
	s.restored = true
	s.sess = Session{}
	s.generation++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if wasAuthenticated {
		s.log.InfoContext(ctx, "session cleared", "reason", reason)
		s.notify(snap)
	}
	return wasAuthenticated, err
}

// UpdateUser shallow-merges the given fields into the current session and
// persists the result, so any field that must survive a restart does.
// Fields not named in the update are left untouched.
func (s *Store) UpdateUser(ctx context.Context, u Update) error {
	s.mu.Lock()
	if !s.sess.IsAuthenticated {
		s.mu.Unlock()
		return ErrNoSession
	}

	sess := s.sess.clone()
	if u.Token != nil && *u.Token != "" {
		sess.Token = *u.Token
	}
	if u.Role != nil {
		sess.Role = *u.Role
	}
	if u.Permissions != nil {
		sess.Permissions = append([]string(nil), u.Permissions...)
	}
	if len(u.User) > 0 {
		if sess.User == nil {
			sess.User = make(map[string]any, len(u.User))
		}
		for k, v := range u.User {
			sess.User[k] = v
		}
	}

	// Durable first, memory after, same as Login: a failed write must
	// leave memory on the old value or a restart would revert the merge.
	raw, err := json.Marshal(sess)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.st.Set(ctx, s.key, raw, s.storageOpts()...); err != nil {
		s.mu.Unlock()
		return err
	}

	s.sess = sess
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return nil
}

// Snapshot returns an immutable view of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// State returns the lifecycle state.
func (s *Store) State() State {
	return s.Snapshot().State
}

// Current returns a copy of the current session value.
func (s *Store) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess.clone()
}

// Token returns the current bearer credential, or "" when logged out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sess.Token
}

// Generation returns the clear/login counter. A caller that records the
// generation before issuing a request can detect that the session changed
// underneath it and must discard the late result.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *Store) snapshotLocked() Snapshot {
	state := StateLoading
	if s.restored {
		if s.sess.IsAuthenticated {
			state = StateAuthenticated
		} else {
			state = StateUnauthenticated
		}
	}
	return Snapshot{State: state, Session: s.sess.clone(), Generation: s.generation}
}

// Watch returns a channel of state snapshots. The current snapshot is
// delivered first, then one per transition, until ctx is cancelled.
// Delivery is best-effort: a slow receiver may miss intermediate snapshots
// but Snapshot() always returns the truth.
func (s *Store) Watch(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, 8)

	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	ch <- snap

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, ch)
		s.mu.Unlock()
	}()

	return ch
}

func (s *Store) notify(snap Snapshot) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.watchers {
		select {
		case ch <- snap:
		default:
		}
	}
}

// MirrorExternal subscribes to durable-storage change events (when the
// backend supports watching) and adopts externally written state: a logout
// performed by another process over the same storage logs this process out
// too. Backends without watch support return no error and no mirroring.
func (s *Store) MirrorExternal(ctx context.Context) error {
	w, ok := s.st.(storage.Watcher)
	if !ok {
		return nil
	}
	return w.Watch(ctx, s.key, func(ctx context.Context, _ string) {
		s.adoptDurable(ctx)
	}, s.storageOpts()...)
}

// adoptDurable re-reads the durable record and, when it differs from the
// in-memory session, adopts it. The store's own writes produce change
// events too; those reads are equal and ignored.
func (s *Store) adoptDurable(ctx context.Context) {
	item, err := s.st.Get(ctx, s.key, s.storageOpts()...)
	if err != nil {
		s.log.WarnContext(ctx, "external session read failed", "err", err)
		return
	}

	var sess Session
	if item != nil {
		if uerr := json.Unmarshal(item.Data, &sess); uerr != nil || !sess.Valid() {
			sess = Session{}
		}
	}

	s.mu.Lock()
	if !s.restored || s.sess.equal(sess) {
		s.mu.Unlock()
		return
	}
	s.sess = sess
	s.generation++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.InfoContext(ctx, "adopted externally written session state", "authenticated", sess.IsAuthenticated)
	s.notify(snap)
}
