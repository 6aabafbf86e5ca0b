// Package redisstore provides a Redis-backed implementation of the
// session storage plugin contract.
//
// Each session row is stored as a Redis hash under a prefixed key, with
// a per-user set indexing the user's session handles. The key TTL
// mirrors the row's absolute expiry, so Redis evicts dead sessions on
// its own; DeleteExpired only prunes index entries that outlived their
// rows.
//
// # Architecture boundaries
//
// The compare-and-swap in UpdateSessionTokens and the terminal flag in
// MarkTheftDetected run as Lua scripts, so both observe and mutate the
// row in a single atomic step. Everything above this package relies on
// that: the rotation state machine never takes its own locks.
//
// # What this package must NOT do
//
// It must not interpret token bytes, enforce the grace window, or make
// theft decisions. Those belong to the rotation engine; this package
// only compares hashes it is handed.
package redisstore
