package internal

import (
	"testing"
)

func TestRefreshTokenRoundTrip(t *testing.T) {
	handle, err := NewSessionHandle()
	if err != nil {
		t.Fatalf("NewSessionHandle failed: %v", err)
	}
	secret, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret failed: %v", err)
	}

	token, err := EncodeRefreshToken(handle, secret)
	if err != nil {
		t.Fatalf("EncodeRefreshToken failed: %v", err)
	}

	gotHandle, gotSecret, err := DecodeRefreshToken(token)
	if err != nil {
		t.Fatalf("DecodeRefreshToken failed: %v", err)
	}
	if gotHandle != handle {
		t.Errorf("handle mismatch: %q vs %q", gotHandle, handle)
	}
	if gotSecret != secret {
		t.Error("secret mismatch after roundtrip")
	}
}

func TestEncodeRefreshTokenRejectsBadHandle(t *testing.T) {
	secret, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret failed: %v", err)
	}
	if _, err := EncodeRefreshToken("not-a-uuid", secret); err == nil {
		t.Fatal("expected error for malformed handle")
	}
}

func TestDeriveNextRefreshSecretDeterministic(t *testing.T) {
	key := []byte("rotation-key-material")
	secret, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret failed: %v", err)
	}

	a := DeriveNextRefreshSecret(key, secret)
	b := DeriveNextRefreshSecret(key, secret)
	if a != b {
		t.Fatal("derivation must be deterministic for the same key and secret")
	}
	if a == secret {
		t.Fatal("derived secret must differ from its parent")
	}

	c := DeriveNextRefreshSecret([]byte("different-key"), secret)
	if c == a {
		t.Fatal("derivation must depend on the rotation key")
	}
}

func TestHashRefreshSecretStable(t *testing.T) {
	secret, err := NewRefreshSecret()
	if err != nil {
		t.Fatalf("NewRefreshSecret failed: %v", err)
	}
	if HashRefreshSecret(secret) != HashRefreshSecret(secret) {
		t.Fatal("hash must be stable")
	}
}
