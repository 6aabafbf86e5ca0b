package memstore

import (
	"context"
	"crypto/sha256"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/store"
)

func hash(s string) [32]byte {
	return sha256.Sum256([]byte(s))
}

func newRow(handle, user string) *store.Row {
	now := time.Now().UnixMilli()
	return &store.Row{
		SessionHandle:    handle,
		UserID:           user,
		RefreshTokenHash: hash("r1"),
		KeyVersion:       "v1",
		CreatedAt:        now,
		ExpiresAt:        now + int64(time.Hour/time.Millisecond),
		LastRefreshedAt:  now,
	}
}

func TestCreateConflict(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateSession(ctx, newRow("h1", "u1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := s.CreateSession(ctx, newRow("h1", "u1")); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestGetReturnsClone(t *testing.T) {
	s := New()
	ctx := context.Background()

	row := newRow("h1", "u1")
	row.SessionData = map[string]interface{}{"k": "v"}
	if err := s.CreateSession(ctx, row); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := s.GetSession(ctx, "h1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	got.SessionData["k"] = "mutated"

	again, err := s.GetSession(ctx, "h1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if again.SessionData["k"] != "v" {
		t.Fatal("caller mutation leaked into backend state")
	}
}

func TestUpdateSessionTokensCAS(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateSession(ctx, newRow("h1", "u1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	updated, err := s.UpdateSessionTokens(ctx, "h1", hash("r1"), hash("r2"), hash("r1"), "v1", 123)
	if err != nil {
		t.Fatalf("expected CAS success, got %v", err)
	}
	if updated.RefreshTokenHash != hash("r2") || !updated.HasParent || updated.ParentRefreshTokenHash != hash("r1") {
		t.Fatalf("unexpected row after CAS: %+v", updated)
	}
	if updated.LastRefreshedAt != 123 {
		t.Fatalf("LastRefreshedAt not applied: %d", updated.LastRefreshedAt)
	}

	// Second CAS with the superseded expected hash must lose.
	if _, err := s.UpdateSessionTokens(ctx, "h1", hash("r1"), hash("r3"), hash("r1"), "v1", 456); !errors.Is(err, store.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}

	if _, err := s.UpdateSessionTokens(ctx, "absent", hash("r1"), hash("r2"), hash("r1"), "v1", 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateAfterTheftIsStale(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateSession(ctx, newRow("h1", "u1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := s.MarkTheftDetected(ctx, "h1"); err != nil {
		t.Fatalf("mark theft failed: %v", err)
	}

	// Rotation racing a theft flag must observe a terminal outcome,
	// never overwrite it.
	if _, err := s.UpdateSessionTokens(ctx, "h1", hash("r1"), hash("r2"), hash("r1"), "v1", 1); !errors.Is(err, store.ErrStale) {
		t.Fatalf("expected ErrStale on terminal row, got %v", err)
	}

	row, err := s.GetSession(ctx, "h1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !row.TokenTheftDetected {
		t.Fatal("theft flag lost")
	}
}

func TestConcurrentCASSingleWinner(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.CreateSession(ctx, newRow("h1", "u1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	const n = 32
	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := s.UpdateSessionTokens(ctx, "h1", hash("r1"), hash("r2"), hash("r1"), "v1", 1)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
		} else if !errors.Is(err, store.ErrStale) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one CAS winner, got %d", wins)
	}
}

func TestDeleteAllSessionsForUser(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, h := range []string{"h1", "h2"} {
		if err := s.CreateSession(ctx, newRow(h, "u1")); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}
	if err := s.CreateSession(ctx, newRow("h3", "u2")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	handles, err := s.DeleteAllSessionsForUser(ctx, "u1")
	if err != nil {
		t.Fatalf("delete all failed: %v", err)
	}
	if len(handles) != 2 {
		t.Fatalf("expected 2 revoked handles, got %v", handles)
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 remaining row, got %d", s.Len())
	}
}

func TestDeleteExpired(t *testing.T) {
	s := New()
	ctx := context.Background()

	live := newRow("live", "u1")
	dead := newRow("dead", "u1")
	dead.ExpiresAt = time.Now().UnixMilli() - 1
	for _, r := range []*store.Row{live, dead} {
		if err := s.CreateSession(ctx, r); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	removed, err := s.DeleteExpired(ctx, time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("delete expired failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := s.GetSession(ctx, "live"); err != nil {
		t.Fatalf("live session swept: %v", err)
	}
	if _, err := s.GetSession(ctx, "dead"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for swept session, got %v", err)
	}
}

func TestDeleteSessionIdempotent(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.DeleteSession(ctx, "absent"); err != nil {
		t.Fatalf("deleting an absent row must not fail: %v", err)
	}
}
