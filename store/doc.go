// Package store defines the persistence contract that every session storage
// backend must satisfy, together with the sentinel errors plugins use to
// report outcomes.
//
// # Contract
//
// A [Plugin] persists session rows keyed by session handle. Three operations
// carry row-level atomicity requirements: CreateSession (unique-handle
// insert), UpdateSessionTokens (compare-and-swap on the current refresh
// hash), and MarkTheftDetected. UpdateSessionTokens and MarkTheftDetected
// racing on the same row must serialize; the loser observes [ErrStale] or a
// terminal row, never a silent overwrite.
//
// # Architecture boundaries
//
// This package owns the [Plugin] interface and the [Row] record. It does NOT
// hash tokens, interpret payloads, or make rotation decisions — those
// responsibilities belong to the session and root packages.
//
// # What this package must NOT do
//
//   - Import goSession, session, or token (no upward imports).
//   - Store raw refresh tokens; plugins only ever see hashes.
package store
