package guard

import (
	"context"
	"testing"
	"time"

	"github.com/cartstack/backoffice-go/session"
	storagememory "github.com/cartstack/backoffice-go/storage/memory"
)

func newTestStore(t *testing.T) *session.Store {
	t.Helper()
	st, err := storagememory.New(16)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return session.NewStore(st)
}

func TestPublicClassification(t *testing.T) {
	g := New(newTestStore(t))

	cases := []struct {
		path   string
		public bool
	}{
		{"/login", true},
		{"/login/", true},
		{"/forgot-password", true},
		{"/login/verify", true},
		{"/", false},
		{"/products", false},
		{"/orders/42", false},
		{"/loginx", false},
	}
	for _, tc := range cases {
		if got := g.Public(tc.path); got != tc.public {
			t.Errorf("Public(%q) = %v, want %v", tc.path, got, tc.public)
		}
	}
}

func TestWaitWhileLoading(t *testing.T) {
	store := newTestStore(t)
	g := New(store)

	// No Restore yet: protected content must not render and must not
	// redirect either.
	d := g.Evaluate("/products")
	if d.Action != ActionWait {
		t.Fatalf("Evaluate before restore = %v, want %v", d.Action, ActionWait)
	}

	// Public screens render even while loading.
	if d := g.Evaluate("/login"); d.Action != ActionAllow {
		t.Fatalf("Evaluate(/login) while loading = %v, want %v", d.Action, ActionAllow)
	}
}

func TestRedirectWhenUnauthenticated(t *testing.T) {
	store := newTestStore(t)
	g := New(store)
	_ = store.Restore(testContext(t))

	d := g.Evaluate("/products")
	if d.Action != ActionRedirect || d.Target != DefaultEntryPath {
		t.Fatalf("Evaluate = %+v, want redirect to %q", d, DefaultEntryPath)
	}
}

func TestRedirectIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	g := New(store)
	_ = store.Restore(testContext(t))

	first := g.Evaluate("/products")
	second := g.Evaluate("/products")
	if first != second {
		t.Fatalf("repeated evaluation diverged: %+v vs %+v", first, second)
	}
}

func TestAllowAfterLogin(t *testing.T) {
	store := newTestStore(t)
	g := New(store)
	ctx := testContext(t)
	_ = store.Restore(ctx)

	if d := g.Evaluate("/products"); d.Action != ActionRedirect {
		t.Fatalf("pre-login decision = %v", d.Action)
	}

	if err := store.Login(ctx, session.LoginPayload{Token: "abc", Role: "admin"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Re-evaluation after the transition allows rendering; no reload needed.
	if d := g.Evaluate("/products"); d.Action != ActionAllow {
		t.Fatalf("post-login decision = %v, want %v", d.Action, ActionAllow)
	}
}

func TestRedirectAfterInvalidation(t *testing.T) {
	store := newTestStore(t)
	g := New(store)
	ctx := testContext(t)
	_ = store.Restore(ctx)
	_ = store.Login(ctx, session.LoginPayload{Token: "abc"})

	store.Invalidate(ctx, "expired")

	d := g.Evaluate("/orders")
	if d.Action != ActionRedirect || d.Target != DefaultEntryPath {
		t.Fatalf("post-invalidation decision = %+v", d)
	}
}

func TestCustomEntryAndAllowList(t *testing.T) {
	store := newTestStore(t)
	g := New(store, WithEntryPath("/signin"), WithPublicPaths("/signin", "/reset"))
	_ = store.Restore(testContext(t))

	if !g.Public("/signin") || !g.Public("/reset") {
		t.Fatal("custom public paths not honored")
	}
	if g.Public("/login") {
		t.Fatal("default public path survived WithPublicPaths")
	}

	d := g.Evaluate("/products")
	if d.Action != ActionRedirect || d.Target != "/signin" {
		t.Fatalf("decision = %+v, want redirect to /signin", d)
	}
}

func TestRunNavigatesOnInvalidation(t *testing.T) {
	store := newTestStore(t)
	g := New(store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = store.Restore(ctx)
	_ = store.Login(ctx, session.LoginPayload{Token: "abc"})

	targets := make(chan string, 4)
	go g.Run(ctx, "/products", func(target string) { targets <- target })

	store.Invalidate(ctx, "expired")

	select {
	case target := <-targets:
		if target != DefaultEntryPath {
			t.Fatalf("navigated to %q, want %q", target, DefaultEntryPath)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("guard never navigated after invalidation")
	}
}
