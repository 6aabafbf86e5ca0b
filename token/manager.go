package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the signature algorithm for access tokens.
type SigningMethod string

const (
	// MethodEd25519 signs with Ed25519 key pairs (default).
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
)

// Sentinel classification of verification failures.
var (
	// ErrMalformed is returned for tokens that cannot be parsed at all.
	ErrMalformed = errors.New("malformed access token")
	// ErrExpired is returned for structurally valid tokens past exp + leeway.
	ErrExpired = errors.New("access token expired")
	// ErrSignatureInvalid is returned for tokens whose signature does not
	// verify under any trusted key version.
	ErrSignatureInvalid = errors.New("access token signature invalid")
)

// Config holds the immutable codec configuration.
//
// SigningKeys maps key version (kid) to signing key material: the raw HMAC
// secret for hs256, or an Ed25519 private key (raw 64 bytes or PEM) for
// ed25519. VerifyKeys maps kid to verification material; for hs256 it may be
// omitted and defaults to SigningKeys. Keeping superseded versions in
// VerifyKeys is what makes rollover seamless.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	ActiveKeyID   string
	SigningKeys   map[string][]byte
	VerifyKeys    map[string][]byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Manager issues and verifies access tokens. Safe for concurrent use; all
// state is fixed at construction.
type Manager struct {
	config Config
}

// AccessClaims is the signed claim set carried by every access token.
type AccessClaims struct {
	UID      string                 `json:"uid"`
	SID      string                 `json:"sid"`
	Payload  map[string]interface{} `json:"pl,omitempty"`
	AntiCSRF string                 `json:"acsrf,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates cfg and returns a ready [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.ActiveKeyID = strings.TrimSpace(cfg.ActiveKeyID)
	if cfg.ActiveKeyID == "" {
		return nil, errors.New("active key id required")
	}
	if len(cfg.SigningKeys) == 0 {
		return nil, errors.New("signing key table required")
	}
	if _, ok := cfg.SigningKeys[cfg.ActiveKeyID]; !ok {
		return nil, errors.New("active key id not present in signing key table")
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		for kid, key := range cfg.SigningKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("signing key table contains empty kid")
			}
			if len(key) == 0 {
				return nil, fmt.Errorf("hs256 signing key for kid %q is empty", kid)
			}
		}
		if len(cfg.VerifyKeys) == 0 {
			cfg.VerifyKeys = cfg.SigningKeys
		}
	case MethodEd25519:
		for kid, key := range cfg.SigningKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("signing key table contains empty kid")
			}
			if _, err := parseEdPrivateKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 signing key for kid %q: %w", kid, err)
			}
		}
		if len(cfg.VerifyKeys) == 0 {
			return nil, errors.New("ed25519 requires a verify key table")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key table contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	if _, ok := cfg.VerifyKeys[cfg.ActiveKeyID]; !ok {
		return nil, errors.New("active key id not present in verify key table")
	}

	return &Manager{config: cfg}, nil
}

// ActiveKeyID returns the key version used for newly issued tokens.
func (m *Manager) ActiveKeyID() string {
	return m.config.ActiveKeyID
}

// AccessTTL returns the configured access token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// CreateAccess issues a signed access token for the given session identity.
//
// issuedAt pins iat (and exp = iat + TTL) explicitly, and keyID pins the
// signing key version. Both HS256 and Ed25519 signatures are deterministic,
// so reissuing with the same inputs yields a byte-identical token — the
// rotation engine relies on this to answer grace-window retries
// idempotently. Pass keyID "" to sign with the active key version.
func (m *Manager) CreateAccess(
	uid string,
	sid string,
	payload map[string]interface{},
	antiCSRF string,
	issuedAt time.Time,
	keyID string,
) (string, error) {
	if keyID == "" {
		keyID = m.config.ActiveKeyID
	}
	signKeyBytes, ok := m.config.SigningKeys[keyID]
	if !ok {
		return "", fmt.Errorf("unknown signing key version %q", keyID)
	}

	claims := AccessClaims{
		UID:      uid,
		SID:      sid,
		Payload:  payload,
		AntiCSRF: antiCSRF,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(m.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	tok := jwt.NewWithClaims(m.getMethod(), claims)
	tok.Header["kid"] = keyID

	signKey, err := m.keyBytesToSignKey(signKeyBytes)
	if err != nil {
		return "", err
	}

	return tok.SignedString(signKey)
}

// ParseAccess verifies a token against the trusted key table and returns its
// claims. Failures map to [ErrExpired], [ErrSignatureInvalid], or
// [ErrMalformed].
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.getMethod().Alg()}),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}

		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := m.config.VerifyKeys[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return m.keyBytesToVerifyKey(key)
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	claims, ok := tok.Claims.(*AccessClaims)
	if !ok || !tok.Valid {
		return nil, ErrMalformed
	}

	return claims, nil
}

func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

func (m *Manager) getMethod() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) keyBytesToSignKey(key []byte) (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPrivateKey(key)
	}
}

func (m *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
