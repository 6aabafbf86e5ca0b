package goSession

// SessionTokens is the full credential set returned by session creation
// and refresh. The refresh token appears here and nowhere else; only its
// hash ever reaches storage.
type SessionTokens struct {
	SessionHandle string
	AccessToken   string
	RefreshToken  string

	// AntiCSRFToken is empty unless the engine runs in AntiCSRFToken
	// mode.
	AntiCSRFToken string
}

// AuthResult is the outcome of a successful access-token verification.
type AuthResult struct {
	UserID        string
	SessionHandle string

	// AccessTokenPayload is the opaque payload embedded in the verified
	// token, as issued. It may lag the stored payload until the next
	// refresh.
	AccessTokenPayload map[string]interface{}
}

// SessionInfo is the introspection view of a stored session. It carries
// no token material.
type SessionInfo struct {
	SessionHandle      string
	UserID             string
	SessionData        map[string]interface{}
	AccessTokenPayload map[string]interface{}
	TokenTheftDetected bool

	// Unix milliseconds.
	CreatedAt       int64
	ExpiresAt       int64
	LastRefreshedAt int64
}

// AntiCSRFMode selects how the engine binds an anti-CSRF value to each
// session.
type AntiCSRFMode int

const (
	// AntiCSRFNone disables anti-CSRF binding.
	AntiCSRFNone AntiCSRFMode = iota

	// AntiCSRFToken mints a random per-session value at creation and
	// requires it on VerifyAccess and Refresh for the session's whole
	// lifetime.
	AntiCSRFToken

	// AntiCSRFHeader leaves enforcement to the transport layer (custom
	// header presence); the engine mints no value and checks nothing.
	AntiCSRFHeader
)
