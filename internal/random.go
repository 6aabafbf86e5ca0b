package internal

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"github.com/google/uuid"
)

const (
	handleRawSize       = 16
	refreshSecretSize   = 32
	refreshTokenRawSize = handleRawSize + refreshSecretSize
	antiCSRFRawSize     = 24
)

// NewSessionHandle returns a fresh random session handle. Handles are UUIDv4
// strings; the raw 16 bytes are embedded in refresh token framing.
func NewSessionHandle() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func NewRefreshSecret() ([refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func HashRefreshSecret(secret [refreshSecretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// DeriveNextRefreshSecret deterministically derives the successor of a
// refresh secret: HMAC-SHA256(rotationKey, secret). The chain lets a
// grace-window retry re-derive the already-issued current secret from the
// presented parent secret without any raw token ever being persisted.
// rotationKey is server-side key material and never leaves configuration.
func DeriveNextRefreshSecret(rotationKey []byte, secret [refreshSecretSize]byte) [refreshSecretSize]byte {
	mac := hmac.New(sha256.New, rotationKey)
	mac.Write(secret[:])

	var next [refreshSecretSize]byte
	copy(next[:], mac.Sum(nil))
	return next
}

// EncodeRefreshToken frames a refresh token as base64url(handle || secret),
// no padding. The handle rides inside the token so refresh never needs a
// separate lookup key.
func EncodeRefreshToken(sessionHandle string, secret [refreshSecretSize]byte) (string, error) {
	id, err := uuid.Parse(sessionHandle)
	if err != nil {
		return "", err
	}

	var raw [refreshTokenRawSize]byte
	copy(raw[:handleRawSize], id[:])
	copy(raw[handleRawSize:], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// DecodeRefreshToken reverses [EncodeRefreshToken]. Returns the session
// handle and the embedded secret.
func DecodeRefreshToken(token string) (string, [refreshSecretSize]byte, error) {
	var secret [refreshSecretSize]byte

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, err
	}
	if len(raw) != refreshTokenRawSize {
		return "", secret, errors.New("invalid refresh token size")
	}

	var id uuid.UUID
	copy(id[:], raw[:handleRawSize])
	copy(secret[:], raw[handleRawSize:])

	return id.String(), secret, nil
}

// NewAntiCSRFToken returns a random anti-CSRF token bound to a session at
// creation time.
func NewAntiCSRFToken() (string, error) {
	var raw [antiCSRFRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
