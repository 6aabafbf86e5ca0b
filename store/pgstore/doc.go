// Package pgstore provides a PostgreSQL-backed implementation of the
// session storage plugin contract, built on pgx connection pools.
//
// Rotation atomicity comes from a single conditional UPDATE: the
// statement compares the stored refresh hash and theft flag in its
// WHERE clause and returns the updated row, so concurrent rotations of
// the same session serialize on the row lock with no advisory locking.
//
// # What this package must NOT do
//
// No token interpretation, no grace-window arithmetic, no theft
// decisions. It stores what it is told and compares what it is handed.
package pgstore
