// Package vkauth implements the authentication, session, and role-switch core
// for a recruitment administration portal. It authenticates two identity
// populations against a caller-supplied store, issues signed session tokens,
// tracks sessions in Redis, and lets privileged staff temporarily assume a
// candidate identity.
//
// # Identity model
//
// Two identity variants share a single login surface:
//
//   - Staff: administrators with one of the roles SUPERADMIN, ADMIN, GESTOR,
//     or KOMISIA. Staff may enable TOTP two-factor authentication.
//   - Candidate: applicants scoped to exactly one selection process. Candidate
//     tokens carry the candidate and process identifiers and no staff role.
//
// SUPERADMIN and ADMIN staff may switch into a candidate identity and later
// switch back; the original staff claims ride along in the token and are
// restored verbatim. Switches never nest.
//
// # Architecture boundaries
//
// The [Engine] owns every authentication decision. Identity records live
// behind the [IdentityStore] interface supplied by the caller; vkauth never
// talks to the identity database directly. Redis holds only derived,
// expirable state: session records, pending TOTP enrollments, two-factor
// login challenges, and rate-limit counters.
//
// # What this package must NOT do
//
//   - Persist identities, passwords, or TOTP secrets (the [IdentityStore] does).
//   - Render HTTP responses beyond the redirects in the middleware subpackage.
//   - Default-allow on an unknown or empty role claim.
//
// # Performance contract
//
// Token validation in JWT-only mode performs zero I/O. Strict validation adds
// a single Redis round trip and fails closed when Redis is unreachable.
package vkauth
