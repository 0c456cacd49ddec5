// Package session provides Redis-backed session persistence and compact
// binary session encoding for authentication hot paths.
//
// # Binary encoding
//
// Session records are stored in Redis as a compact binary format (currently
// schema v1). The encoder is append-only: new versions add fields but never
// reinterpret old ones.
//
// # Termination semantics
//
// [Store.DeleteAllForIdentity] runs a single Lua script over the identity's
// session set, so the returned count is exactly the number of records the
// script deleted, atomic with respect to concurrent [Store.Save] calls.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Record] model.
// It does NOT interpret tokens, evaluate roles, or enforce authentication
// policy; those responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import vkauth, jwt, or middleware (no upward imports).
//   - Perform application-level authorization decisions.
//   - Store plaintext secrets in [Record] fields.
package session
