package goSession

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/goSession/session"
)

// RevokeSession removes one session. Refreshes against the handle fail
// immediately; access tokens already in the wild stay valid until their
// own expiry, which is why access TTLs are kept short.
//
// Revoking an unknown handle returns ErrSessionNotFound.
func (e *Engine) RevokeSession(ctx context.Context, sessionHandle string) error {
	if e == nil || e.sessions == nil {
		return ErrEngineNotReady
	}

	// Delete is idempotent at the plugin level; probe first so callers
	// can distinguish a real revocation from a no-op.
	row, err := e.sessions.Get(ctx, sessionHandle)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return err
	}

	if err := e.sessions.Delete(ctx, sessionHandle); err != nil {
		return err
	}

	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventSessionRevoked, true, row.UserID, sessionHandle, nil, nil)
	return nil
}

// RevokeAllForUser removes every session owned by userID and returns
// the revoked handles. An unknown user revokes nothing and is not an
// error.
func (e *Engine) RevokeAllForUser(ctx context.Context, userID string) ([]string, error) {
	if e == nil || e.sessions == nil {
		return nil, ErrEngineNotReady
	}

	handles, err := e.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRevokeAll)
	e.emitAudit(ctx, auditEventUserSessionsRevoked, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"revoked_count": strconv.Itoa(len(handles)),
		}
	})
	return handles, nil
}

// RevokeExpired sweeps sessions past their absolute expiry and returns
// how many were removed. Intended to be called from a periodic job;
// backends with native TTL expiry treat it as index maintenance.
func (e *Engine) RevokeExpired(ctx context.Context) (int, error) {
	if e == nil || e.sessions == nil {
		return 0, ErrEngineNotReady
	}

	removed, err := e.sessions.DeleteExpired(ctx)
	if err != nil {
		return removed, err
	}

	if removed > 0 {
		if e.metrics != nil {
			e.metrics.Add(MetricExpiredSwept, uint64(removed))
		}
		e.emitAudit(ctx, auditEventExpiredSessionsSwept, true, "", "", nil, func() map[string]string {
			return map[string]string{
				"swept_count": strconv.Itoa(removed),
			}
		})
	}
	return removed, nil
}
