// Package memstore provides a mutex-protected in-memory storage plugin.
// It is the reference implementation of the store contract: single-process
// only, intended for tests, examples, and load harnesses.
package memstore

import (
	"context"
	"sync"

	"github.com/MrEthical07/goSession/store"
)

// Store is an in-memory [store.Plugin]. A single mutex serializes every
// operation, which trivially satisfies the row-level atomicity contract.
type Store struct {
	mu   sync.Mutex
	rows map[string]*store.Row
}

// New returns an empty in-memory plugin.
func New() *Store {
	return &Store{rows: make(map[string]*store.Row)}
}

var _ store.Plugin = (*Store)(nil)

// CreateSession implements [store.Plugin].
func (s *Store) CreateSession(_ context.Context, row *store.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[row.SessionHandle]; ok {
		return store.ErrConflict
	}
	s.rows[row.SessionHandle] = row.Clone()
	return nil
}

// GetSession implements [store.Plugin].
func (s *Store) GetSession(_ context.Context, sessionHandle string) (*store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[sessionHandle]
	if !ok {
		return nil, store.ErrNotFound
	}
	return row.Clone(), nil
}

// UpdateSessionTokens implements [store.Plugin]. The whole compare-and-swap
// runs under the store mutex.
func (s *Store) UpdateSessionTokens(
	_ context.Context,
	sessionHandle string,
	expectedCurrentHash [32]byte,
	newHash [32]byte,
	newParentHash [32]byte,
	keyVersion string,
	lastRefreshedAt int64,
) (*store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[sessionHandle]
	if !ok {
		return nil, store.ErrNotFound
	}
	if row.TokenTheftDetected || row.RefreshTokenHash != expectedCurrentHash {
		return nil, store.ErrStale
	}

	row.RefreshTokenHash = newHash
	row.ParentRefreshTokenHash = newParentHash
	row.HasParent = true
	row.KeyVersion = keyVersion
	row.LastRefreshedAt = lastRefreshedAt
	return row.Clone(), nil
}

// MarkTheftDetected implements [store.Plugin].
func (s *Store) MarkTheftDetected(_ context.Context, sessionHandle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[sessionHandle]
	if !ok {
		return store.ErrNotFound
	}
	row.TokenTheftDetected = true
	return nil
}

// DeleteSession implements [store.Plugin].
func (s *Store) DeleteSession(_ context.Context, sessionHandle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rows, sessionHandle)
	return nil
}

// DeleteAllSessionsForUser implements [store.Plugin].
func (s *Store) DeleteAllSessionsForUser(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var handles []string
	for handle, row := range s.rows {
		if row.UserID == userID {
			handles = append(handles, handle)
			delete(s.rows, handle)
		}
	}
	return handles, nil
}

// DeleteExpired implements [store.Plugin].
func (s *Store) DeleteExpired(_ context.Context, nowUnix int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for handle, row := range s.rows {
		if row.ExpiresAt <= nowUnix {
			delete(s.rows, handle)
			removed++
		}
	}
	return removed, nil
}

// UpdateSessionData implements [store.Plugin].
func (s *Store) UpdateSessionData(_ context.Context, sessionHandle string, data map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[sessionHandle]
	if !ok {
		return store.ErrNotFound
	}
	row.SessionData = cloneData(data)
	return nil
}

// UpdateAccessTokenPayload implements [store.Plugin].
func (s *Store) UpdateAccessTokenPayload(_ context.Context, sessionHandle string, payload map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[sessionHandle]
	if !ok {
		return store.ErrNotFound
	}
	row.AccessTokenPayload = cloneData(payload)
	return nil
}

// Ping implements [store.Plugin].
func (s *Store) Ping(context.Context) error { return nil }

// Len reports the number of live rows. Test helper.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// Put overwrites a row unconditionally. Test helper.
func (s *Store) Put(row *store.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.SessionHandle] = row.Clone()
}

func cloneData(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
