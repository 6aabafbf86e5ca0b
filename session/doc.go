// Package session implements the refresh-token rotation state machine over
// a storage plugin.
//
// # Rotation protocol
//
// Each session row keeps a two-slot hash chain: the hash of the current
// refresh secret and the hash of its immediate parent. A presented secret
// that matches the current hash rotates the chain through the plugin's
// compare-and-swap. A match on the parent slot inside the grace window is a
// benign retry and is answered idempotently by re-deriving the current
// secret from the presented one. Anything else is treated as token theft:
// the row is flagged terminal atomically with detection.
//
// # Architecture boundaries
//
// This package owns rotation decisions and record lifecycle. It does NOT
// encode or sign tokens, emit audit events, or count metrics — those belong
// to the token and root packages.
//
// # What this package must NOT do
//
//   - Import goSession or token (no upward imports).
//   - Persist raw refresh secrets; only hashes cross the plugin boundary.
package session
