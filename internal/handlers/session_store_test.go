package handlers

import (
	"errors"
	"testing"
	"time"

	"github.com/khobz-app/checkout/internal/services"
)

func storeCheckout(t *testing.T, id string) *services.Checkout {
	t.Helper()
	c, err := services.NewCheckout(id, "", "en", services.CheckoutDeps{Calculation: &fakeCalcBackend{}})
	if err != nil {
		t.Fatalf("NewCheckout: %v", err)
	}
	return c
}

func TestSessionStorePutGet(t *testing.T) {
	store := NewSessionStore(time.Hour, nil)
	c := storeCheckout(t, store.NewID())
	store.Put(c)

	got, err := store.Get(c.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != c {
		t.Fatal("expected the same session back")
	}

	if _, err := store.Get("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionStoreExpiresIdleSessions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	store := NewSessionStore(30*time.Minute, clock)

	c := storeCheckout(t, store.NewID())
	store.Put(c)

	now = now.Add(29 * time.Minute)
	if _, err := store.Get(c.ID()); err != nil {
		t.Fatalf("session expired early: %v", err)
	}

	// The read above refreshed the idle timer.
	now = now.Add(29 * time.Minute)
	if _, err := store.Get(c.ID()); err != nil {
		t.Fatalf("refreshed session expired: %v", err)
	}

	now = now.Add(31 * time.Minute)
	if _, err := store.Get(c.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound after idle TTL", err)
	}
	if store.Len() != 0 {
		t.Fatalf("Len = %d, want 0", store.Len())
	}
}

func TestSessionStoreDelete(t *testing.T) {
	store := NewSessionStore(0, nil)
	c := storeCheckout(t, store.NewID())
	store.Put(c)
	store.Delete(c.ID())
	if store.Len() != 0 {
		t.Fatalf("Len = %d, want 0", store.Len())
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	store := NewSessionStore(0, nil)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := store.NewID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
