package goSession

import (
	"errors"

	"github.com/MrEthical07/goSession/session"
)

var (
	// ErrTokenMalformed is returned when a presented token cannot be
	// decoded at all (wrong framing, wrong algorithm, garbage bytes).
	ErrTokenMalformed = errors.New("token malformed")
	// ErrAccessTokenExpired is returned when an access token is valid
	// but past its expiry plus leeway. The caller should refresh.
	ErrAccessTokenExpired = errors.New("access token expired")
	// ErrSessionNotFound is returned when the referenced session does
	// not exist or has expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrTryRefreshToken is returned when a refresh lost its retry
	// budget against concurrent rotations. The caller should retry the
	// whole refresh with the token it currently holds.
	ErrTryRefreshToken = errors.New("try refresh token again")
	// ErrAntiCSRFMismatch is returned when the anti-CSRF value is
	// missing or wrong for a session running in AntiCSRFToken mode.
	ErrAntiCSRFMismatch = errors.New("anti-csrf token mismatch")
	// ErrEngineNotReady is returned when an Engine method is called on
	// a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrUnauthorized is the generic rejection for tokens that verify
	// structurally but reference revoked or foreign state.
	ErrUnauthorized = errors.New("unauthorized")
)

// ErrTokenTheftDetected is returned when a refresh token replay outside
// the grace window (or with an unknown secret) marks the session stolen.
// The concrete error is always a [*TheftError]; errors.Is against this
// sentinel matches it.
var ErrTokenTheftDetected = session.ErrTheftDetected

// TheftError carries the identity context of a theft detection so
// callers can notify the affected user. Unwraps to
// [ErrTokenTheftDetected].
type TheftError = session.TheftError
