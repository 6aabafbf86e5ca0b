package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no row exists for the requested session handle.
var ErrNotFound = errors.New("session row not found")

// ErrConflict is returned by CreateSession when the session handle already
// exists. Under correct UUID generation this indicates a caller bug.
var ErrConflict = errors.New("session handle conflict")

// ErrStale is returned by UpdateSessionTokens when the expected current hash
// no longer matches the stored value, or when the row is terminal.
var ErrStale = errors.New("stale refresh hash")

// ErrUnavailable wraps backend transport failures (connection loss, timeouts).
var ErrUnavailable = errors.New("session backend unavailable")

// Row is the persisted representation of a session. Raw tokens never appear
// here; only SHA-256 hashes of refresh secrets are stored.
type Row struct {
	SessionHandle string
	UserID        string

	RefreshTokenHash       [32]byte
	ParentRefreshTokenHash [32]byte
	HasParent              bool

	TokenTheftDetected bool

	SessionData        map[string]interface{}
	AccessTokenPayload map[string]interface{}

	AntiCSRFToken string

	// KeyVersion is the signing-key version (kid) of the most recently
	// issued access token; the grace-window reissue path re-signs with it.
	KeyVersion string

	// Unix milliseconds. Millisecond precision keeps short grace windows
	// meaningful.
	CreatedAt       int64
	ExpiresAt       int64
	LastRefreshedAt int64
}

// Clone returns a deep copy of the row. Plugins return clones so callers can
// never mutate backend state through a shared map.
func (r *Row) Clone() *Row {
	if r == nil {
		return nil
	}
	out := *r
	out.SessionData = cloneData(r.SessionData)
	out.AccessTokenPayload = cloneData(r.AccessTokenPayload)
	return &out
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

// Plugin is the storage backend contract. Every method must be atomic at the
// row level; no cross-row transactional guarantees are required.
//
// Implementations must be safe for concurrent use.
type Plugin interface {
	// CreateSession inserts a new row. Returns ErrConflict if the handle
	// already exists.
	CreateSession(ctx context.Context, row *Row) error

	// GetSession returns the row for the handle, or ErrNotFound.
	GetSession(ctx context.Context, sessionHandle string) (*Row, error)

	// UpdateSessionTokens performs the rotation compare-and-swap: the update
	// applies only while the stored current hash equals expectedCurrentHash
	// and the row is not terminal. On success the stored current hash becomes
	// newHash, the parent slot becomes newParentHash, and KeyVersion and
	// LastRefreshedAt are set. Returns the updated row, ErrStale on a lost
	// race or terminal row, or ErrNotFound.
	UpdateSessionTokens(
		ctx context.Context,
		sessionHandle string,
		expectedCurrentHash [32]byte,
		newHash [32]byte,
		newParentHash [32]byte,
		keyVersion string,
		lastRefreshedAt int64,
	) (*Row, error)

	// MarkTheftDetected flags the row terminal. Serializes with any
	// concurrent UpdateSessionTokens on the same row. Idempotent; returns
	// ErrNotFound only when no row exists.
	MarkTheftDetected(ctx context.Context, sessionHandle string) error

	// DeleteSession removes the row. Deleting an absent row is not an error.
	DeleteSession(ctx context.Context, sessionHandle string) error

	// DeleteAllSessionsForUser removes every row owned by userID and returns
	// the handles that were removed.
	DeleteAllSessionsForUser(ctx context.Context, userID string) ([]string, error)

	// DeleteExpired removes rows whose ExpiresAt is at or before nowUnix and
	// returns the number removed. Backends with native TTL expiry may treat
	// this as an index-pruning pass.
	DeleteExpired(ctx context.Context, nowUnix int64) (int, error)

	// UpdateSessionData replaces the opaque session data blob.
	UpdateSessionData(ctx context.Context, sessionHandle string, data map[string]interface{}) error

	// UpdateAccessTokenPayload replaces the opaque access-token payload used
	// for subsequently issued access tokens.
	UpdateAccessTokenPayload(ctx context.Context, sessionHandle string, payload map[string]interface{}) error

	// Ping reports point-in-time backend availability.
	Ping(ctx context.Context) error
}
