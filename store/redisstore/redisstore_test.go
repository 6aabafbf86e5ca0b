package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goSession/store"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	return New(rdb, "gs"), mr
}

func hashByte(b byte) [32]byte {
	var out [32]byte
	for i := 0; i < len(out); i++ {
		out[i] = b
	}
	return out
}

func testRow(handle string) *store.Row {
	now := time.Now().UnixMilli()
	return &store.Row{
		SessionHandle:      handle,
		UserID:             "user-1",
		RefreshTokenHash:   hashByte(0x11),
		SessionData:        map[string]interface{}{"ip": "10.0.0.1"},
		AccessTokenPayload: map[string]interface{}{"role": "member"},
		AntiCSRFToken:      "csrf-abc",
		KeyVersion:         "v1",
		CreatedAt:          now,
		ExpiresAt:          now + int64(time.Hour/time.Millisecond),
		LastRefreshedAt:    now,
	}
}

func TestCreateGetRoundtrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	row := testRow("h1")
	if err := s.CreateSession(ctx, row); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetSession(ctx, "h1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != row.UserID || got.RefreshTokenHash != row.RefreshTokenHash {
		t.Fatalf("row mismatch: %+v", got)
	}
	if got.HasParent || got.TokenTheftDetected {
		t.Fatalf("fresh row must have no parent and no theft flag: %+v", got)
	}
	if got.KeyVersion != "v1" || got.AntiCSRFToken != "csrf-abc" {
		t.Fatalf("metadata mismatch: %+v", got)
	}
	if got.SessionData["ip"] != "10.0.0.1" || got.AccessTokenPayload["role"] != "member" {
		t.Fatalf("payload mismatch: %+v", got)
	}
	if got.CreatedAt != row.CreatedAt || got.ExpiresAt != row.ExpiresAt {
		t.Fatalf("timestamp mismatch: %+v", got)
	}
}

func TestCreateConflict(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, testRow("h1")); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if err := s.CreateSession(ctx, testRow("h1")); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	s, _ := newTestStore(t)

	if _, err := s.GetSession(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateSessionTokensCAS(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	row := testRow("h1")
	if err := s.CreateSession(ctx, row); err != nil {
		t.Fatalf("create: %v", err)
	}

	newHash := hashByte(0x22)
	lra := time.Now().UnixMilli()
	got, err := s.UpdateSessionTokens(ctx, "h1", row.RefreshTokenHash, newHash, row.RefreshTokenHash, "v2", lra)
	if err != nil {
		t.Fatalf("cas: %v", err)
	}
	if got.RefreshTokenHash != newHash {
		t.Fatal("current hash not swapped")
	}
	if !got.HasParent || got.ParentRefreshTokenHash != row.RefreshTokenHash {
		t.Fatal("parent slot not set")
	}
	if got.KeyVersion != "v2" || got.LastRefreshedAt != lra {
		t.Fatalf("metadata not updated: %+v", got)
	}

	// The superseded hash must now lose the race.
	_, err = s.UpdateSessionTokens(ctx, "h1", row.RefreshTokenHash, hashByte(0x33), row.RefreshTokenHash, "v2", lra)
	if !errors.Is(err, store.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestUpdateSessionTokensMissing(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.UpdateSessionTokens(context.Background(), "nope", hashByte(1), hashByte(2), hashByte(1), "v1", 0)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkTheftBlocksCAS(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	row := testRow("h1")
	if err := s.CreateSession(ctx, row); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.MarkTheftDetected(ctx, "h1"); err != nil {
		t.Fatalf("mark theft: %v", err)
	}

	got, err := s.GetSession(ctx, "h1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.TokenTheftDetected {
		t.Fatal("theft flag not persisted")
	}

	_, err = s.UpdateSessionTokens(ctx, "h1", row.RefreshTokenHash, hashByte(0x22), row.RefreshTokenHash, "v1", 0)
	if !errors.Is(err, store.ErrStale) {
		t.Fatalf("CAS on terminal row must be stale, got %v", err)
	}
}

func TestMarkTheftMissing(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.MarkTheftDetected(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteSessionRemovesIndex(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, testRow("h1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.DeleteSession(ctx, "h1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetSession(ctx, "h1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if mr.Exists("gs:u:user-1") {
		if member, _ := mr.SIsMember("gs:u:user-1", "h1"); member {
			t.Fatal("user index entry survived delete")
		}
	}

	// Idempotent.
	if err := s.DeleteSession(ctx, "h1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestDeleteAllSessionsForUser(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, h := range []string{"h1", "h2", "h3"} {
		if err := s.CreateSession(ctx, testRow(h)); err != nil {
			t.Fatalf("create %s: %v", h, err)
		}
	}

	removed, err := s.DeleteAllSessionsForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if len(removed) != 3 {
		t.Fatalf("expected 3 removed handles, got %v", removed)
	}
	for _, h := range []string{"h1", "h2", "h3"} {
		if _, err := s.GetSession(ctx, h); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("session %s survived, err=%v", h, err)
		}
	}

	removed, err = s.DeleteAllSessionsForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("second delete all: %v", err)
	}
	if len(removed) != 0 {
		t.Fatalf("expected no handles on second pass, got %v", removed)
	}
}

func TestDeleteExpiredPrunesDanglingIndex(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, testRow("h1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Simulate TTL eviction: the row key disappears, the index entry stays.
	mr.Del("gs:s:h1")

	removed, err := s.DeleteExpired(ctx, time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", removed)
	}
	if mr.Exists("gs:u:user-1") {
		if member, _ := mr.SIsMember("gs:u:user-1", "h1"); member {
			t.Fatal("dangling index entry not pruned")
		}
	}
}

func TestDeleteExpiredRemovesStaleRows(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	row := testRow("h1")
	row.ExpiresAt = time.Now().UnixMilli() + 60_000
	if err := s.CreateSession(ctx, row); err != nil {
		t.Fatalf("create: %v", err)
	}

	removed, err := s.DeleteExpired(ctx, row.ExpiresAt+1)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed row, got %d", removed)
	}
	if _, err := s.GetSession(ctx, "h1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expired row survived, err=%v", err)
	}
}

func TestUpdateSessionDataAndPayload(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateSession(ctx, testRow("h1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := s.UpdateSessionData(ctx, "h1", map[string]interface{}{"theme": "dark"}); err != nil {
		t.Fatalf("update data: %v", err)
	}
	if err := s.UpdateAccessTokenPayload(ctx, "h1", map[string]interface{}{"role": "admin"}); err != nil {
		t.Fatalf("update payload: %v", err)
	}

	got, err := s.GetSession(ctx, "h1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SessionData["theme"] != "dark" {
		t.Fatalf("session data not replaced: %+v", got.SessionData)
	}
	if got.SessionData["ip"] != nil {
		t.Fatal("update must replace, not merge")
	}
	if got.AccessTokenPayload["role"] != "admin" {
		t.Fatalf("payload not replaced: %+v", got.AccessTokenPayload)
	}

	if err := s.UpdateSessionData(ctx, "nope", nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPing(t *testing.T) {
	s, mr := newTestStore(t)

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	mr.Close()
	if err := s.Ping(context.Background()); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable after close, got %v", err)
	}
}
