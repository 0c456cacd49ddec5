// Package middleware provides net/http guards for vkauth-protected routes.
//
// Guards validate the session token from the Authorization header or a
// cookie, redirect browsers on failure, and stash the decoded [vkauth.AuthResult]
// in the request context for handlers to read via [AuthFromContext].
//
// # Architecture boundaries
//
// This package depends on the engine's public API only. It never reaches
// into Redis or the identity store directly.
//
// # What this package must NOT do
//
// It must not render pages or bodies beyond the status line: failure
// handling is a redirect or a bare status code, and what the user sees
// afterwards belongs to the application.
package middleware
