package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goSession/store"
)

const (
	casStatusNotFound int64 = 0
	casStatusStale    int64 = 1
	casStatusUpdated  int64 = 2
)

const updateTokensScript = `
local row_key = KEYS[1]
local expected = ARGV[1]
local new_hash = ARGV[2]
local new_parent = ARGV[3]
local key_version = ARGV[4]
local last_refreshed = ARGV[5]

if redis.call("EXISTS", row_key) == 0 then
  return 0
end

if redis.call("HGET", row_key, "theft") == "1" then
  return 1
end

if redis.call("HGET", row_key, "refresh_hash") ~= expected then
  return 1
end

redis.call("HSET", row_key,
  "refresh_hash", new_hash,
  "parent_hash", new_parent,
  "has_parent", "1",
  "key_version", key_version,
  "last_refreshed_at", last_refreshed)

return 2
`

var updateTokensLua = redis.NewScript(updateTokensScript)

const markTheftScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "theft", "1")
return 1
`

var markTheftLua = redis.NewScript(markTheftScript)

const deleteSessionScript = `
local user_id = redis.call("HGET", KEYS[1], "user_id")
if user_id then
  redis.call("SREM", ARGV[2] .. user_id, ARGV[1])
end
return redis.call("DEL", KEYS[1])
`

var deleteSessionLua = redis.NewScript(deleteSessionScript)

// Store is a Redis-backed session storage plugin. Rows live in hashes,
// user handle indexes in sets, and rotation runs through a Lua
// compare-and-swap.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a Redis plugin with the given key prefix. An empty prefix
// defaults to "gs".
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "gs"
	}
	return &Store{redis: client, prefix: prefix}
}

var _ store.Plugin = (*Store)(nil)

func (s *Store) rowKey(sessionHandle string) string {
	return s.prefix + ":s:" + sessionHandle
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

func (s *Store) userKeyPrefix() string {
	return s.prefix + ":u:"
}

// CreateSession inserts a new row and indexes the handle under the
// owning user. The key TTL mirrors the row's absolute expiry.
//
//	Performance: 1 EXISTS + transactional HSET/SADD/PEXPIRE pipeline.
func (s *Store) CreateSession(ctx context.Context, row *store.Row) error {
	rowKey := s.rowKey(row.SessionHandle)

	exists, err := s.redis.Exists(ctx, rowKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if exists == 1 {
		return store.ErrConflict
	}

	fields, err := encodeRow(row)
	if err != nil {
		return err
	}

	ttl := time.Duration(row.ExpiresAt-time.Now().UnixMilli()) * time.Millisecond
	if ttl <= 0 {
		ttl = time.Millisecond
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, rowKey, fields)
		pipe.PExpire(ctx, rowKey, ttl)
		pipe.SAdd(ctx, s.userKey(row.UserID), row.SessionHandle)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// GetSession returns the row for the handle, or [store.ErrNotFound].
//
//	Performance: 1 HGETALL.
func (s *Store) GetSession(ctx context.Context, sessionHandle string) (*store.Row, error) {
	fields, err := s.redis.HGetAll(ctx, s.rowKey(sessionHandle)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, store.ErrNotFound
	}
	return decodeRow(sessionHandle, fields)
}

// UpdateSessionTokens runs the rotation compare-and-swap as a single
// Lua script: the hash comparison, theft check, and slot update are one
// atomic step.
//
//	Performance: 1 EVALSHA + 1 HGETALL on success.
func (s *Store) UpdateSessionTokens(
	ctx context.Context,
	sessionHandle string,
	expectedCurrentHash [32]byte,
	newHash [32]byte,
	newParentHash [32]byte,
	keyVersion string,
	lastRefreshedAt int64,
) (*store.Row, error) {
	code, err := updateTokensLua.Run(
		ctx,
		s.redis,
		[]string{s.rowKey(sessionHandle)},
		expectedCurrentHash[:],
		newHash[:],
		newParentHash[:],
		keyVersion,
		lastRefreshedAt,
	).Int64()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	switch code {
	case casStatusNotFound:
		return nil, store.ErrNotFound
	case casStatusStale:
		return nil, store.ErrStale
	case casStatusUpdated:
		return s.GetSession(ctx, sessionHandle)
	default:
		return nil, fmt.Errorf("%w: unknown rotation script status %d", store.ErrUnavailable, code)
	}
}

// MarkTheftDetected flags the row terminal. The flag is a hash field,
// so any in-flight compare-and-swap serializes against it.
func (s *Store) MarkTheftDetected(ctx context.Context, sessionHandle string) error {
	code, err := markTheftLua.Run(ctx, s.redis, []string{s.rowKey(sessionHandle)}).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if code == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteSession removes the row and its user index entry. Deleting an
// absent row is not an error.
func (s *Store) DeleteSession(ctx context.Context, sessionHandle string) error {
	_, err := deleteSessionLua.Run(
		ctx,
		s.redis,
		[]string{s.rowKey(sessionHandle)},
		sessionHandle,
		s.userKeyPrefix(),
	).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// DeleteAllSessionsForUser removes every row indexed under userID and
// returns the handles whose rows still existed.
//
// The read and delete phases are separate commands, so a session
// created in between is not captured; it expires naturally or is caught
// by the next call.
func (s *Store) DeleteAllSessionsForUser(ctx context.Context, userID string) ([]string, error) {
	userKey := s.userKey(userID)

	handles, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if len(handles) == 0 {
		if err := s.redis.Del(ctx, userKey).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	delCmds := make([]*redis.IntCmd, len(handles))
	for i, handle := range handles {
		delCmds[i] = pipe.Del(ctx, s.rowKey(handle))
	}
	pipe.Del(ctx, userKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	removed := make([]string, 0, len(handles))
	for i, cmd := range delCmds {
		n, cmdErr := cmd.Result()
		if cmdErr != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, cmdErr)
		}
		if n > 0 {
			removed = append(removed, handles[i])
		}
	}
	return removed, nil
}

// DeleteExpired prunes user index entries whose rows Redis already
// evicted via TTL, and removes any row past its stored expiry that TTL
// missed. Admin-only O(n) sweep; not for request hot paths.
func (s *Store) DeleteExpired(ctx context.Context, nowUnix int64) (int, error) {
	pattern := s.userKeyPrefix() + "*"
	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return removed, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}

		for _, userKey := range keys {
			handles, err := s.redis.SMembers(ctx, userKey).Result()
			if err != nil {
				return removed, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
			}
			for _, handle := range handles {
				gone, err := s.pruneIfExpired(ctx, userKey, handle, nowUnix)
				if err != nil {
					return removed, err
				}
				if gone {
					removed++
				}
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}

func (s *Store) pruneIfExpired(ctx context.Context, userKey, sessionHandle string, nowUnix int64) (bool, error) {
	expiresAt, err := s.redis.HGet(ctx, s.rowKey(sessionHandle), "expires_at").Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Row already evicted by TTL; drop the dangling index entry.
			if err := s.redis.SRem(ctx, userKey, sessionHandle).Err(); err != nil {
				return false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
			}
			return true, nil
		}
		return false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}

	if expiresAt > nowUnix {
		return false, nil
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.rowKey(sessionHandle))
		pipe.SRem(ctx, userKey, sessionHandle)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return true, nil
}

// UpdateSessionData replaces the opaque session data blob.
func (s *Store) UpdateSessionData(ctx context.Context, sessionHandle string, data map[string]interface{}) error {
	return s.setJSONField(ctx, sessionHandle, "session_data", data)
}

// UpdateAccessTokenPayload replaces the payload embedded in subsequently
// issued access tokens.
func (s *Store) UpdateAccessTokenPayload(ctx context.Context, sessionHandle string, payload map[string]interface{}) error {
	return s.setJSONField(ctx, sessionHandle, "access_payload", payload)
}

func (s *Store) setJSONField(ctx context.Context, sessionHandle, field string, value map[string]interface{}) error {
	rowKey := s.rowKey(sessionHandle)

	exists, err := s.redis.Exists(ctx, rowKey).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if exists == 0 {
		return store.ErrNotFound
	}

	blob, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := s.redis.HSet(ctx, rowKey, field, blob).Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func encodeRow(row *store.Row) (map[string]interface{}, error) {
	sessionData, err := json.Marshal(row.SessionData)
	if err != nil {
		return nil, err
	}
	accessPayload, err := json.Marshal(row.AccessTokenPayload)
	if err != nil {
		return nil, err
	}

	hasParent := "0"
	if row.HasParent {
		hasParent = "1"
	}
	theft := "0"
	if row.TokenTheftDetected {
		theft = "1"
	}

	return map[string]interface{}{
		"user_id":           row.UserID,
		"refresh_hash":      row.RefreshTokenHash[:],
		"parent_hash":       row.ParentRefreshTokenHash[:],
		"has_parent":        hasParent,
		"theft":             theft,
		"session_data":      sessionData,
		"access_payload":    accessPayload,
		"anti_csrf":         row.AntiCSRFToken,
		"key_version":       row.KeyVersion,
		"created_at":        row.CreatedAt,
		"expires_at":        row.ExpiresAt,
		"last_refreshed_at": row.LastRefreshedAt,
	}, nil
}

func decodeRow(sessionHandle string, fields map[string]string) (*store.Row, error) {
	row := &store.Row{
		SessionHandle:      sessionHandle,
		UserID:             fields["user_id"],
		HasParent:          fields["has_parent"] == "1",
		TokenTheftDetected: fields["theft"] == "1",
		AntiCSRFToken:      fields["anti_csrf"],
		KeyVersion:         fields["key_version"],
	}

	if err := copyHash(row.RefreshTokenHash[:], fields["refresh_hash"], "refresh_hash"); err != nil {
		return nil, err
	}
	if row.HasParent {
		if err := copyHash(row.ParentRefreshTokenHash[:], fields["parent_hash"], "parent_hash"); err != nil {
			return nil, err
		}
	}

	for field, dst := range map[string]*int64{
		"created_at":        &row.CreatedAt,
		"expires_at":        &row.ExpiresAt,
		"last_refreshed_at": &row.LastRefreshedAt,
	} {
		if err := parseInt64Field(fields, field, dst); err != nil {
			return nil, err
		}
	}

	if blob := fields["session_data"]; blob != "" && blob != "null" {
		if err := json.Unmarshal([]byte(blob), &row.SessionData); err != nil {
			return nil, fmt.Errorf("%w: corrupt session_data: %v", store.ErrUnavailable, err)
		}
	}
	if blob := fields["access_payload"]; blob != "" && blob != "null" {
		if err := json.Unmarshal([]byte(blob), &row.AccessTokenPayload); err != nil {
			return nil, fmt.Errorf("%w: corrupt access_payload: %v", store.ErrUnavailable, err)
		}
	}

	return row, nil
}

func copyHash(dst []byte, raw, field string) error {
	if len(raw) != len(dst) {
		return fmt.Errorf("%w: corrupt %s length %d", store.ErrUnavailable, field, len(raw))
	}
	copy(dst, raw)
	return nil
}

func parseInt64Field(fields map[string]string, field string, dst *int64) error {
	raw, ok := fields[field]
	if !ok {
		return fmt.Errorf("%w: missing %s", store.ErrUnavailable, field)
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: corrupt %s: %v", store.ErrUnavailable, field, err)
	}
	*dst = v
	return nil
}
