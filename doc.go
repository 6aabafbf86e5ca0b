// Package goSession provides a session lifecycle engine: issuance,
// stateless verification, rotation, and revocation of paired JWT access
// tokens and opaque rotating refresh tokens, with token-theft detection.
//
// The package is designed for concurrent server workloads: Engine
// methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (SessionTokens, AuthResult, SessionInfo,
// MetricsSnapshot). Token signing lives in token/, the rotation state
// machine in session/, and persistence behind the store.Plugin contract
// with memory, Redis, and PostgreSQL implementations under store/.
//
// # What this package must NOT do
//
//   - Persist raw tokens anywhere: storage sees SHA-256 hashes of
//     refresh secrets and never sees access tokens at all.
//   - Touch storage on the access verification path. VerifyAccess is
//     purely cryptographic; revocation latency is bounded by the access
//     TTL, which is why access TTLs are kept short.
//   - Take process-wide locks. Rotation correctness under concurrency
//     comes entirely from the plugin's row-level compare-and-swap.
package goSession
