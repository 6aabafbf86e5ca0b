package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrEthical07/goSession/store"
)

// Schema is the DDL for the session table. Apply it with [Store.EnsureSchema]
// or through your own migration tooling.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_handle       TEXT PRIMARY KEY,
	user_id              TEXT NOT NULL,
	refresh_token_hash   BYTEA NOT NULL,
	parent_token_hash    BYTEA,
	token_theft_detected BOOLEAN NOT NULL DEFAULT FALSE,
	session_data         JSONB,
	access_token_payload JSONB,
	anti_csrf_token      TEXT NOT NULL DEFAULT '',
	key_version          TEXT NOT NULL DEFAULT '',
	created_at           BIGINT NOT NULL,
	expires_at           BIGINT NOT NULL,
	last_refreshed_at    BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS sessions_user_id_idx ON sessions (user_id);
CREATE INDEX IF NOT EXISTS sessions_expires_at_idx ON sessions (expires_at);
`

const rowColumns = `session_handle, user_id, refresh_token_hash, parent_token_hash,
	token_theft_detected, session_data, access_token_payload, anti_csrf_token,
	key_version, created_at, expires_at, last_refreshed_at`

// Store is a PostgreSQL session storage plugin.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a plugin backed by the given pool. The pool's lifecycle
// belongs to the caller.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ store.Plugin = (*Store)(nil)

// EnsureSchema creates the session table and indexes if absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// CreateSession inserts a new row. A primary-key violation maps to
// [store.ErrConflict].
func (s *Store) CreateSession(ctx context.Context, row *store.Row) error {
	sessionData, accessPayload, err := marshalBlobs(row.SessionData, row.AccessTokenPayload)
	if err != nil {
		return err
	}

	var parent []byte
	if row.HasParent {
		parent = row.ParentRefreshTokenHash[:]
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (`+rowColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		row.SessionHandle,
		row.UserID,
		row.RefreshTokenHash[:],
		parent,
		row.TokenTheftDetected,
		sessionData,
		accessPayload,
		row.AntiCSRFToken,
		row.KeyVersion,
		row.CreatedAt,
		row.ExpiresAt,
		row.LastRefreshedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return store.ErrConflict
		}
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// GetSession returns the row for the handle, or [store.ErrNotFound].
func (s *Store) GetSession(ctx context.Context, sessionHandle string) (*store.Row, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+rowColumns+`
		FROM sessions WHERE session_handle = $1`,
		sessionHandle,
	)
	return scanRow(row)
}

// UpdateSessionTokens performs the rotation compare-and-swap as a
// conditional UPDATE. The WHERE clause carries the expected hash and
// the theft check; a zero-row result is disambiguated with a follow-up
// existence probe.
func (s *Store) UpdateSessionTokens(
	ctx context.Context,
	sessionHandle string,
	expectedCurrentHash [32]byte,
	newHash [32]byte,
	newParentHash [32]byte,
	keyVersion string,
	lastRefreshedAt int64,
) (*store.Row, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE sessions
		SET refresh_token_hash = $3,
		    parent_token_hash = $4,
		    key_version = $5,
		    last_refreshed_at = $6
		WHERE session_handle = $1
		  AND refresh_token_hash = $2
		  AND NOT token_theft_detected
		RETURNING `+rowColumns,
		sessionHandle,
		expectedCurrentHash[:],
		newHash[:],
		newParentHash[:],
		keyVersion,
		lastRefreshedAt,
	)

	updated, err := scanRow(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	// No row matched: either the session is gone or the CAS lost.
	var exists bool
	probeErr := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM sessions WHERE session_handle = $1)`,
		sessionHandle,
	).Scan(&exists)
	if probeErr != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, probeErr)
	}
	if exists {
		return nil, store.ErrStale
	}
	return nil, store.ErrNotFound
}

// MarkTheftDetected flags the row terminal. The row-level UPDATE lock
// serializes against any in-flight rotation.
func (s *Store) MarkTheftDetected(ctx context.Context, sessionHandle string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET token_theft_detected = TRUE WHERE session_handle = $1`,
		sessionHandle,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteSession removes the row. Deleting an absent row is not an error.
func (s *Store) DeleteSession(ctx context.Context, sessionHandle string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE session_handle = $1`, sessionHandle,
	); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// DeleteAllSessionsForUser removes every row owned by userID and
// returns the deleted handles.
func (s *Store) DeleteAllSessionsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`DELETE FROM sessions WHERE user_id = $1 RETURNING session_handle`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	defer rows.Close()

	var handles []string
	for rows.Next() {
		var handle string
		if err := rows.Scan(&handle); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
		handles = append(handles, handle)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return handles, nil
}

// DeleteExpired removes rows past their absolute expiry.
func (s *Store) DeleteExpired(ctx context.Context, nowUnix int64) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at <= $1`, nowUnix,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

// UpdateSessionData replaces the opaque session data blob.
func (s *Store) UpdateSessionData(ctx context.Context, sessionHandle string, data map[string]interface{}) error {
	return s.setJSONColumn(ctx, sessionHandle, "session_data", data)
}

// UpdateAccessTokenPayload replaces the payload embedded in
// subsequently issued access tokens.
func (s *Store) UpdateAccessTokenPayload(ctx context.Context, sessionHandle string, payload map[string]interface{}) error {
	return s.setJSONColumn(ctx, sessionHandle, "access_token_payload", payload)
}

func (s *Store) setJSONColumn(ctx context.Context, sessionHandle, column string, value map[string]interface{}) error {
	blob, err := json.Marshal(value)
	if err != nil {
		return err
	}

	// column is a compile-time constant from the two callers above.
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET `+column+` = $2 WHERE session_handle = $1`,
		sessionHandle, blob,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Ping reports point-in-time database availability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func marshalBlobs(sessionData, accessPayload map[string]interface{}) ([]byte, []byte, error) {
	sd, err := json.Marshal(sessionData)
	if err != nil {
		return nil, nil, err
	}
	ap, err := json.Marshal(accessPayload)
	if err != nil {
		return nil, nil, err
	}
	return sd, ap, nil
}

func scanRow(row pgx.Row) (*store.Row, error) {
	var (
		out           store.Row
		refreshHash   []byte
		parentHash    []byte
		sessionData   []byte
		accessPayload []byte
	)

	err := row.Scan(
		&out.SessionHandle,
		&out.UserID,
		&refreshHash,
		&parentHash,
		&out.TokenTheftDetected,
		&sessionData,
		&accessPayload,
		&out.AntiCSRFToken,
		&out.KeyVersion,
		&out.CreatedAt,
		&out.ExpiresAt,
		&out.LastRefreshedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	if len(refreshHash) != len(out.RefreshTokenHash) {
		return nil, fmt.Errorf("%w: corrupt refresh hash length %d", store.ErrUnavailable, len(refreshHash))
	}
	copy(out.RefreshTokenHash[:], refreshHash)

	if len(parentHash) > 0 {
		if len(parentHash) != len(out.ParentRefreshTokenHash) {
			return nil, fmt.Errorf("%w: corrupt parent hash length %d", store.ErrUnavailable, len(parentHash))
		}
		copy(out.ParentRefreshTokenHash[:], parentHash)
		out.HasParent = true
	}

	if len(sessionData) > 0 && string(sessionData) != "null" {
		if err := json.Unmarshal(sessionData, &out.SessionData); err != nil {
			return nil, fmt.Errorf("%w: corrupt session_data: %v", store.ErrUnavailable, err)
		}
	}
	if len(accessPayload) > 0 && string(accessPayload) != "null" {
		if err := json.Unmarshal(accessPayload, &out.AccessTokenPayload); err != nil {
			return nil, fmt.Errorf("%w: corrupt access_token_payload: %v", store.ErrUnavailable, err)
		}
	}

	return &out, nil
}
