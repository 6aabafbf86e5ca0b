package goSession

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/store"
	"github.com/MrEthical07/goSession/token"
)

// Engine is the session lifecycle engine: it issues paired access and
// refresh tokens, verifies access tokens statelessly, rotates refresh
// tokens with theft detection, and revokes sessions.
//
// All methods are safe for concurrent use after [Builder.Build].
type Engine struct {
	config   Config
	sessions *session.Store
	tokens   *token.Manager
	audit    *auditDispatcher
	metrics  *Metrics
}

// Close stops the audit dispatcher after draining buffered events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped because the
// buffer was full in DropIfFull mode.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// CreateSession opens a new session for userID and returns the full
// credential set. accessPayload is embedded in every access token the
// session issues; sessionData stays server-side.
func (e *Engine) CreateSession(
	ctx context.Context,
	userID string,
	accessPayload map[string]interface{},
	sessionData map[string]interface{},
) (*SessionTokens, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}
	if userID == "" {
		return nil, errors.New("userID required")
	}

	handle, err := internal.NewSessionHandle()
	if err != nil {
		return nil, err
	}
	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	antiCSRF := ""
	if e.config.Session.AntiCSRFMode == AntiCSRFToken {
		antiCSRF, err = internal.NewAntiCSRFToken()
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	nowMs := now.UnixMilli()
	row := &store.Row{
		SessionHandle:      handle,
		UserID:             userID,
		RefreshTokenHash:   internal.HashRefreshSecret(secret),
		SessionData:        sessionData,
		AccessTokenPayload: accessPayload,
		AntiCSRFToken:      antiCSRF,
		KeyVersion:         e.tokens.ActiveKeyID(),
		CreatedAt:          nowMs,
		ExpiresAt:          now.Add(e.config.Session.RefreshTTL).UnixMilli(),
		LastRefreshedAt:    nowMs,
	}

	if err := e.sessions.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("session create: %w", err)
	}

	accessToken, err := e.tokens.CreateAccess(userID, handle, accessPayload, antiCSRF, time.UnixMilli(nowMs), "")
	if err != nil {
		// The orphaned row expires on its own; best effort cleanup.
		if derr := e.sessions.Delete(ctx, handle); derr != nil {
			log.Print("goSession: orphaned session cleanup failed")
		}
		return nil, err
	}

	refreshToken, err := internal.EncodeRefreshToken(handle, secret)
	if err != nil {
		if derr := e.sessions.Delete(ctx, handle); derr != nil {
			log.Print("goSession: orphaned session cleanup failed")
		}
		return nil, err
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSessionCreated, true, userID, handle, nil, nil)

	return &SessionTokens{
		SessionHandle: handle,
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		AntiCSRFToken: antiCSRF,
	}, nil
}

// VerifyAccess checks an access token and returns its identity claims.
// The check is purely cryptographic: no storage round-trip, so a token
// issued before a revocation stays valid until its (short) expiry.
//
// antiCSRF is compared against the token's bound value in AntiCSRFToken
// mode and ignored otherwise.
func (e *Engine) VerifyAccess(ctx context.Context, accessToken, antiCSRF string) (*AuthResult, error) {
	if e == nil || e.tokens == nil {
		return nil, ErrEngineNotReady
	}

	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.Observe(MetricVerifyLatency, time.Since(start))
		}
	}()

	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		mapped := mapTokenError(err)
		e.metricInc(MetricVerifyFailure)
		e.emitAudit(ctx, auditEventVerifyFailure, false, "", "", mapped, nil)
		return nil, mapped
	}

	if e.config.Session.AntiCSRFMode == AntiCSRFToken && claims.AntiCSRF != antiCSRF {
		e.metricInc(MetricVerifyFailure)
		e.emitAudit(ctx, auditEventVerifyFailure, false, claims.UID, claims.SID, ErrAntiCSRFMismatch, nil)
		return nil, ErrAntiCSRFMismatch
	}

	e.metricInc(MetricVerifySuccess)

	return &AuthResult{
		UserID:             claims.UID,
		SessionHandle:      claims.SID,
		AccessTokenPayload: claims.Payload,
	}, nil
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return ErrAccessTokenExpired
	case errors.Is(err, token.ErrSignatureInvalid):
		return ErrUnauthorized
	default:
		return ErrTokenMalformed
	}
}

func isUnavailable(err error) bool {
	return errors.Is(err, store.ErrUnavailable)
}
