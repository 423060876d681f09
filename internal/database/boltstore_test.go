// internal/database/boltstore_test.go
package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"solarwatch/internal/status"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	store, err := NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewBoltStore() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store
}

func TestGetLastAbsent(t *testing.T) {
	store := newTestStore(t)

	state, err := store.GetLast(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("GetLast() error: %v", err)
	}
	if state != nil {
		t.Errorf("GetLast() for unknown site = %+v, want nil", state)
	}
}

func TestUpsertRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Now().Truncate(time.Second)

	if err := store.Upsert(ctx, "usina-1", status.Online, at); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	state, err := store.GetLast(ctx, "usina-1")
	if err != nil {
		t.Fatalf("GetLast() error: %v", err)
	}
	if state == nil {
		t.Fatal("GetLast() returned nil after Upsert")
	}
	if state.Status != status.Online {
		t.Errorf("status = %v, want ONLINE", state.Status)
	}
	if !state.UpdatedAt.Equal(at) {
		t.Errorf("updated_at = %v, want %v", state.UpdatedAt, at)
	}
}

func TestUpsertKeepsOneRowPerSite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, st := range []status.Status{status.Online, status.Offline, status.Offline} {
		if err := store.Upsert(ctx, "usina-1", st, time.Now()); err != nil {
			t.Fatalf("Upsert() error: %v", err)
		}
	}
	if err := store.Upsert(ctx, "usina-2", status.Error, time.Now()); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	states, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("List() returned %d rows, want 2", len(states))
	}

	state, _ := store.GetLast(ctx, "usina-1")
	if state.Status != status.Offline {
		t.Errorf("latest status = %v, want OFFLINE", state.Status)
	}
}

func TestTransitionReturnsPrevious(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	prev, err := store.Transition(ctx, "usina-1", status.Online, time.Now())
	if err != nil {
		t.Fatalf("Transition() error: %v", err)
	}
	if prev != nil {
		t.Errorf("first transition returned previous %+v, want nil", prev)
	}

	prev, err = store.Transition(ctx, "usina-1", status.Offline, time.Now())
	if err != nil {
		t.Fatalf("Transition() error: %v", err)
	}
	if prev == nil || prev.Status != status.Online {
		t.Errorf("previous = %+v, want ONLINE", prev)
	}

	state, _ := store.GetLast(ctx, "usina-1")
	if state.Status != status.Offline {
		t.Errorf("stored status = %v, want OFFLINE", state.Status)
	}
}

func TestHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-1 * time.Hour)

	for i, st := range []status.Status{status.Online, status.Offline, status.Error} {
		at := base.Add(time.Duration(i) * time.Minute)
		if err := store.Upsert(ctx, "usina-1", st, at); err != nil {
			t.Fatalf("Upsert() error: %v", err)
		}
	}
	if err := store.Upsert(ctx, "usina-10", status.Online, base); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	history, err := store.History(ctx, "usina-1", base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("History() returned %d entries, want 3", len(history))
	}
	for _, entry := range history {
		if entry.Site != "usina-1" {
			t.Errorf("history leaked entry for %q", entry.Site)
		}
	}

	recent, err := store.History(ctx, "usina-1", base.Add(90*time.Second))
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(recent) != 1 || recent[0].Status != status.Error {
		t.Errorf("filtered history = %+v, want single ERROR entry", recent)
	}
}
