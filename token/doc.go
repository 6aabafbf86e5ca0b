// Package token implements the stateless access-token codec: signed,
// time-bounded JWT claims with a versioned key table.
//
// # Key rotation
//
// Signing keys are an explicit, immutable, versioned table passed in at
// construction. Rotation is "add a new version, keep old versions valid
// until outstanding tokens expire" — never in-place mutation. Verification
// accepts every version in VerifyKeys simultaneously during rollover.
//
// # Architecture boundaries
//
// This package is pure: cryptographic operations plus key lookup by
// version. It never touches storage and holds no mutable state after
// [NewManager].
package token
