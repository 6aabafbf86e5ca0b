package goSession

import (
	"context"
	"errors"

	"github.com/MrEthical07/goSession/session"
)

// GetSessionInformation returns the stored view of a session, with no
// token material. Expired sessions report ErrSessionNotFound.
func (e *Engine) GetSessionInformation(ctx context.Context, sessionHandle string) (*SessionInfo, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	row, err := e.sessions.Get(ctx, sessionHandle)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return &SessionInfo{
		SessionHandle:      row.SessionHandle,
		UserID:             row.UserID,
		SessionData:        row.SessionData,
		AccessTokenPayload: row.AccessTokenPayload,
		TokenTheftDetected: row.TokenTheftDetected,
		CreatedAt:          row.CreatedAt,
		ExpiresAt:          row.ExpiresAt,
		LastRefreshedAt:    row.LastRefreshedAt,
	}, nil
}

// UpdateSessionData replaces a session's server-side data blob. The
// change is visible to the next GetSessionInformation immediately.
func (e *Engine) UpdateSessionData(ctx context.Context, sessionHandle string, data map[string]interface{}) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if err := e.sessions.UpdateSessionData(ctx, sessionHandle, data); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return nil
}

// UpdateAccessTokenPayload replaces the payload embedded in access
// tokens issued from the next refresh onward. Tokens already in the
// wild keep the payload they were signed with.
func (e *Engine) UpdateAccessTokenPayload(ctx context.Context, sessionHandle string, payload map[string]interface{}) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	if err := e.sessions.UpdateAccessTokenPayload(ctx, sessionHandle, payload); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return nil
}

// Health reports point-in-time storage backend availability.
func (e *Engine) Health(ctx context.Context) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}
	return e.sessions.Ping(ctx)
}
