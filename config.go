package goSession

import (
	"errors"
	"time"
)

// Config is the complete engine configuration. It is cloned by the
// Builder; mutating it after Build has no effect on a running engine.
type Config struct {
	Token   TokenConfig
	Session SessionConfig
	Keys    KeyConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

// TokenConfig controls access-token issuance and verification.
type TokenConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"

	// Leeway is the clock-skew tolerance applied to exp/iat checks.
	Leeway time.Duration

	Issuer   string
	Audience string
}

// SessionConfig controls session lifetime and the rotation protocol.
type SessionConfig struct {
	// RefreshTTL is the absolute session lifetime; no rotation extends
	// it.
	RefreshTTL time.Duration

	// GraceWindow is how long after a rotation the superseded refresh
	// token is still tolerated as a benign retry. Outside the window a
	// parent replay is theft.
	GraceWindow time.Duration

	// RotateRetryLimit bounds how many times a refresh re-reads the row
	// after losing the rotation compare-and-swap.
	RotateRetryLimit int

	AntiCSRFMode AntiCSRFMode
}

// KeyConfig holds all signing material. SigningKeys is the versioned key
// table; the kid header of every issued token names its entry, so old
// tokens keep verifying across a key rollover.
type KeyConfig struct {
	SigningKeys map[string][]byte
	ActiveKeyID string

	// VerifyKeys overrides the verification table; required for
	// ed25519 (public keys), defaulted to SigningKeys for hs256.
	VerifyKeys map[string][]byte

	// RotationKey keys the HMAC chain that derives each next refresh
	// secret from the current one. Independent from the signing keys.
	RotationKey []byte
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters and the verify-latency
// histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     5 * time.Minute,
			SigningMethod: "hs256",
			Leeway:        10 * time.Second,
		},
		Session: SessionConfig{
			RefreshTTL:       7 * 24 * time.Hour,
			GraceWindow:      10 * time.Second,
			RotateRetryLimit: 1,
			AntiCSRFMode:     AntiCSRFNone,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Keys.SigningKeys = cloneKeyMap(cfg.Keys.SigningKeys)
	out.Keys.VerifyKeys = cloneKeyMap(cfg.Keys.VerifyKeys)
	out.Keys.RotationKey = cloneBytes(cfg.Keys.RotationKey)
	return out
}

func cloneKeyMap(in map[string][]byte) map[string][]byte {
	if in == nil {
		return nil
	}
	out := make(map[string][]byte, len(in))
	for k, v := range in {
		out[k] = cloneBytes(v)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks internal consistency. Build calls it; exposed so
// callers can lint configuration ahead of time.
func (c *Config) Validate() error {
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.SigningMethod != "hs256" && c.Token.SigningMethod != "ed25519" {
		return errors.New("unsupported Token SigningMethod")
	}
	if c.Token.Leeway < 0 {
		return errors.New("Token Leeway must be >= 0")
	}

	if c.Session.RefreshTTL <= 0 {
		return errors.New("Session RefreshTTL must be > 0")
	}
	if c.Session.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("Session RefreshTTL must exceed Token AccessTTL")
	}
	if c.Session.GraceWindow < 0 {
		return errors.New("Session GraceWindow must be >= 0")
	}
	if c.Session.GraceWindow >= c.Session.RefreshTTL {
		return errors.New("Session GraceWindow must be shorter than RefreshTTL")
	}
	if c.Session.RotateRetryLimit < 0 {
		return errors.New("Session RotateRetryLimit must be >= 0")
	}
	switch c.Session.AntiCSRFMode {
	case AntiCSRFNone, AntiCSRFToken, AntiCSRFHeader:
	default:
		return errors.New("invalid Session AntiCSRFMode")
	}

	if len(c.Keys.SigningKeys) == 0 {
		return errors.New("Keys SigningKeys must contain at least one key")
	}
	if c.Keys.ActiveKeyID == "" {
		return errors.New("Keys ActiveKeyID is required")
	}
	if _, ok := c.Keys.SigningKeys[c.Keys.ActiveKeyID]; !ok {
		return errors.New("Keys ActiveKeyID must name an entry in SigningKeys")
	}
	if c.Token.SigningMethod == "hs256" {
		for kid, key := range c.Keys.SigningKeys {
			if len(key) < 32 {
				return errors.New("hs256 signing key " + kid + " must be >= 256 bits")
			}
		}
	}
	if c.Token.SigningMethod == "ed25519" && len(c.Keys.VerifyKeys) == 0 {
		return errors.New("ed25519 requires Keys VerifyKeys (public keys)")
	}
	if len(c.Keys.RotationKey) < 16 {
		return errors.New("Keys RotationKey must be >= 128 bits")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
