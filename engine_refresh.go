package goSession

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/session"
)

// Refresh exchanges a refresh token for a new token pair.
//
// The normal outcome rotates the pair: the presented refresh token
// becomes the session's parent and a fresh pair is returned. A retry of
// an already-rotated request inside the grace window is answered
// idempotently with the byte-identical pair issued to the winner.
// Replaying outside the window, or presenting an unknown token, flags
// the session stolen and returns a [*TheftError].
func (e *Engine) Refresh(ctx context.Context, refreshToken, antiCSRF string) (*SessionTokens, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	handle, secret, err := internal.DecodeRefreshToken(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrTokenMalformed, nil)
		return nil, ErrTokenMalformed
	}

	if e.config.Session.AntiCSRFMode == AntiCSRFToken {
		row, err := e.sessions.Get(ctx, handle)
		if err != nil {
			return nil, e.refreshFailure(ctx, handle, err)
		}
		if row.AntiCSRFToken != antiCSRF {
			e.metricInc(MetricRefreshFailure)
			e.emitAudit(ctx, auditEventRefreshInvalid, false, row.UserID, handle, ErrAntiCSRFMismatch, nil)
			return nil, ErrAntiCSRFMismatch
		}
	}

	res, err := e.sessions.Rotate(ctx, handle, secret, e.tokens.ActiveKeyID())
	if err != nil {
		return nil, e.refreshFailure(ctx, handle, err)
	}

	row := res.Row

	// iat is pinned to the row's LastRefreshedAt and the signature is
	// deterministic, so the grace-window reissue path reproduces the
	// winner's access token byte for byte.
	accessToken, err := e.tokens.CreateAccess(
		row.UserID,
		row.SessionHandle,
		row.AccessTokenPayload,
		row.AntiCSRFToken,
		time.UnixMilli(row.LastRefreshedAt),
		row.KeyVersion,
	)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	newRefresh, err := internal.EncodeRefreshToken(row.SessionHandle, res.Secret)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, err
	}

	switch res.Status {
	case session.RotateReissued:
		e.metricInc(MetricRefreshIdempotentReplay)
		e.emitAudit(ctx, auditEventRefreshReplay, true, row.UserID, row.SessionHandle, nil, nil)
	default:
		e.metricInc(MetricRefreshSuccess)
		e.emitAudit(ctx, auditEventRefreshSuccess, true, row.UserID, row.SessionHandle, nil, nil)
	}

	return &SessionTokens{
		SessionHandle: row.SessionHandle,
		AccessToken:   accessToken,
		RefreshToken:  newRefresh,
		AntiCSRFToken: row.AntiCSRFToken,
	}, nil
}

func (e *Engine) refreshFailure(ctx context.Context, handle string, err error) error {
	var theft *TheftError
	if errors.As(err, &theft) {
		e.metricInc(MetricTheftDetected)
		e.emitAudit(ctx, auditEventTokenTheftDetected, false, theft.UserID, theft.SessionHandle, err, nil)
		return err
	}

	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", handle, ErrSessionNotFound, nil)
		return ErrSessionNotFound
	case errors.Is(err, session.ErrRetryExhausted):
		e.metricInc(MetricRefreshRetryExhausted)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", handle, ErrTryRefreshToken, nil)
		return ErrTryRefreshToken
	default:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", handle, err, nil)
		return err
	}
}
