package session

import (
	"fmt"
	"slices"
)

// State describes the store's position in its lifecycle.
type State int

const (
	// StateLoading means Restore has not completed yet. Callers must not
	// make a render-or-redirect decision while in this state.
	StateLoading State = iota
	// StateUnauthenticated means there is no session.
	StateUnauthenticated
	// StateAuthenticated means a full session is held.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is the authenticated identity snapshot held by the running
// client. It is either fully absent (logged out) or fully populated; no
// partial state is ever persisted.
type Session struct {
	IsAuthenticated bool           `json:"isAuthenticated"`
	Token           string         `json:"token"`
	Role            string         `json:"role,omitempty"`
	Permissions     []string       `json:"permissions,omitempty"`
	User            map[string]any `json:"user,omitempty"`
}

// Valid reports whether the session satisfies the population invariant:
// authenticated implies a non-empty token.
func (s Session) Valid() bool {
	return s.IsAuthenticated && s.Token != ""
}

// HasPermission reports whether the session carries the named capability tag.
func (s Session) HasPermission(name string) bool {
	return slices.Contains(s.Permissions, name)
}

// clone returns a deep copy so callers can never mutate store-owned state.
func (s Session) clone() Session {
	out := s
	out.Permissions = slices.Clone(s.Permissions)
	if s.User != nil {
		out.User = make(map[string]any, len(s.User))
		for k, v := range s.User {
			out.User[k] = v
		}
	}
	return out
}

// equal compares the identity-bearing fields. User profile fields are
// compared shallowly by length and key presence; a profile-only difference
// with identical credentials is still a difference worth adopting.
func (s Session) equal(other Session) bool {
	if s.IsAuthenticated != other.IsAuthenticated ||
		s.Token != other.Token ||
		s.Role != other.Role ||
		!slices.Equal(s.Permissions, other.Permissions) ||
		len(s.User) != len(other.User) {
		return false
	}
	for k, v := range s.User {
		if ov, ok := other.User[k]; !ok || fmt.Sprint(ov) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

// LoginPayload carries the fields of a successful backend login response
// that the store interprets. Token is required; everything else is optional.
type LoginPayload struct {
	Token       string         `json:"token"`
	Role        string         `json:"role,omitempty"`
	Permissions []string       `json:"permissions,omitempty"`
	User        map[string]any `json:"user,omitempty"`
}

// Update is a partial session mutation. Nil fields are left untouched;
// User entries are merged key by key into the existing profile.
type Update struct {
	Token       *string
	Role        *string
	Permissions []string
	User        map[string]any
}

// Snapshot is an immutable view of the store at one instant.
type Snapshot struct {
	State      State
	Session    Session
	Generation uint64
}
