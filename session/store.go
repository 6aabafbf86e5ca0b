package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/store"
)

// ErrSessionNotFound is returned when the target session does not exist or
// has expired. Callers treat it as signed-out.
var ErrSessionNotFound = errors.New("session not found")

// ErrRetryExhausted is returned when the rotation compare-and-swap kept
// losing races past the configured retry budget. The condition is transient;
// callers retry the whole refresh.
var ErrRetryExhausted = errors.New("refresh rotation retry budget exhausted")

// ErrTheftDetected marks refresh-token reuse outside the grace window.
// Surfaced errors are always a [*TheftError]; match with errors.Is against
// this sentinel.
var ErrTheftDetected = errors.New("refresh token theft detected")

// TheftError carries the identity context security handlers need to force a
// full sign-out and alert the user.
type TheftError struct {
	SessionHandle string
	UserID        string
}

func (e *TheftError) Error() string {
	return fmt.Sprintf("refresh token theft detected (session %s, user %s)", e.SessionHandle, e.UserID)
}

func (e *TheftError) Unwrap() error { return ErrTheftDetected }

// RotateStatus reports which branch of the rotation state machine resolved a
// refresh.
type RotateStatus int

const (
	// RotateRotated means a fresh token pair was minted.
	RotateRotated RotateStatus = iota
	// RotateReissued means the presented secret was the grace-window parent
	// and the already-issued current pair is returned unchanged.
	RotateReissued
)

// RotateResult is the successful outcome of [Store.Rotate]. Secret is the
// current refresh secret: freshly derived on RotateRotated, re-derived from
// the presented parent on RotateReissued.
type RotateResult struct {
	Status RotateStatus
	Row    *store.Row
	Secret [32]byte
}

// Store drives session record lifecycle against a storage plugin. All
// correctness under concurrency comes from the plugin's row-level
// compare-and-swap; Store itself holds no locks.
type Store struct {
	plugin      store.Plugin
	graceWindow time.Duration
	retryLimit  int
	rotationKey []byte
}

// NewStore returns a session [Store] over the given plugin. graceWindow
// bounds how long the parent refresh hash stays acceptable after a rotation;
// retryLimit bounds internal compare-and-swap retries; rotationKey feeds the
// deterministic secret chain.
func NewStore(plugin store.Plugin, graceWindow time.Duration, retryLimit int, rotationKey []byte) *Store {
	if retryLimit < 0 {
		retryLimit = 0
	}
	return &Store{
		plugin:      plugin,
		graceWindow: graceWindow,
		retryLimit:  retryLimit,
		rotationKey: rotationKey,
	}
}

// Create persists a new session row. The handle must be fresh; a collision
// surfaces the plugin's conflict error unchanged.
func (s *Store) Create(ctx context.Context, row *store.Row) error {
	return s.plugin.CreateSession(ctx, row)
}

// Get returns the live row for a handle. Expired rows are deleted on read
// and reported as ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, sessionHandle string) (*store.Row, error) {
	row, err := s.plugin.GetSession(ctx, sessionHandle)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	if row.ExpiresAt <= time.Now().UnixMilli() {
		_ = s.plugin.DeleteSession(ctx, sessionHandle)
		return nil, ErrSessionNotFound
	}
	return row, nil
}

// Rotate runs the rotation state machine for a presented refresh secret.
// keyVersion is stamped on the row when a rotation wins, so subsequent
// access tokens carry the caller's active signing key version; pass ""
// to keep the stored version.
//
// Exactly one of the following happens:
//   - current-hash match: compare-and-swap to the derived next pair; a lost
//     race re-reads and retries within the budget, then ErrRetryExhausted.
//   - parent-hash match inside the grace window: the current pair is
//     re-derived and returned idempotently, no state change.
//   - anything else (including a parent match after the window or a row
//     already terminal): theft — the row is flagged terminal and a
//     [*TheftError] is returned.
func (s *Store) Rotate(ctx context.Context, sessionHandle string, presented [32]byte, keyVersion string) (*RotateResult, error) {
	presentedHash := internal.HashRefreshSecret(presented)

	for attempt := 0; ; attempt++ {
		row, err := s.plugin.GetSession(ctx, sessionHandle)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrSessionNotFound
			}
			return nil, err
		}

		now := time.Now()
		if row.TokenTheftDetected {
			// Terminal stays terminal, answered without touching state.
			return nil, &TheftError{SessionHandle: sessionHandle, UserID: row.UserID}
		}
		if row.ExpiresAt <= now.UnixMilli() {
			_ = s.plugin.DeleteSession(ctx, sessionHandle)
			return nil, ErrSessionNotFound
		}

		switch {
		case presentedHash == row.RefreshTokenHash:
			kid := keyVersion
			if kid == "" {
				kid = row.KeyVersion
			}
			next := internal.DeriveNextRefreshSecret(s.rotationKey, presented)
			updated, err := s.plugin.UpdateSessionTokens(
				ctx,
				sessionHandle,
				presentedHash,
				internal.HashRefreshSecret(next),
				presentedHash,
				kid,
				now.UnixMilli(),
			)
			if err == nil {
				return &RotateResult{Status: RotateRotated, Row: updated, Secret: next}, nil
			}
			if errors.Is(err, store.ErrStale) {
				// Lost the race. Re-read: a concurrent retry of the same
				// token lands on the parent branch next pass.
				if attempt >= s.retryLimit {
					return nil, ErrRetryExhausted
				}
				continue
			}
			if errors.Is(err, store.ErrNotFound) {
				return nil, ErrSessionNotFound
			}
			return nil, err

		case row.HasParent && presentedHash == row.ParentRefreshTokenHash:
			if now.After(time.UnixMilli(row.LastRefreshedAt).Add(s.graceWindow)) {
				return nil, s.flagTheft(ctx, sessionHandle, row.UserID)
			}

			current := internal.DeriveNextRefreshSecret(s.rotationKey, presented)
			if internal.HashRefreshSecret(current) != row.RefreshTokenHash {
				// Chain broken: the rotation key changed underneath an
				// in-flight retry. Not reconstructible; caller retries.
				return nil, ErrRetryExhausted
			}
			return &RotateResult{Status: RotateReissued, Row: row, Secret: current}, nil
		default:
			return nil, s.flagTheft(ctx, sessionHandle, row.UserID)
		}
	}
}

func (s *Store) flagTheft(ctx context.Context, sessionHandle, userID string) error {
	if err := s.plugin.MarkTheftDetected(ctx, sessionHandle); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return &TheftError{SessionHandle: sessionHandle, UserID: userID}
}

// Delete removes a session row. Absent rows are not an error.
func (s *Store) Delete(ctx context.Context, sessionHandle string) error {
	return s.plugin.DeleteSession(ctx, sessionHandle)
}

// DeleteAllForUser removes every session owned by userID, returning the
// revoked handles.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) ([]string, error) {
	return s.plugin.DeleteAllSessionsForUser(ctx, userID)
}

// DeleteExpired sweeps rows past their expiry.
func (s *Store) DeleteExpired(ctx context.Context) (int, error) {
	return s.plugin.DeleteExpired(ctx, time.Now().UnixMilli())
}

// UpdateSessionData replaces the opaque session data on a live row.
func (s *Store) UpdateSessionData(ctx context.Context, sessionHandle string, data map[string]interface{}) error {
	err := s.plugin.UpdateSessionData(ctx, sessionHandle, data)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// UpdateAccessTokenPayload replaces the payload embedded in subsequently
// issued access tokens.
func (s *Store) UpdateAccessTokenPayload(ctx context.Context, sessionHandle string, payload map[string]interface{}) error {
	err := s.plugin.UpdateAccessTokenPayload(ctx, sessionHandle, payload)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// Ping reports plugin availability.
func (s *Store) Ping(ctx context.Context) error {
	return s.plugin.Ping(ctx)
}
