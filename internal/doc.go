// Package internal contains helper utilities that are intentionally private to
// vkauth, including secure random generation and backup-code helpers.
//
// # Sub-packages
//
//   - rate: Redis-backed fixed-window rate limit primitives
//
// # What this package must NOT do
//
//   - Export types that appear in the public vkauth API.
//   - Be imported by any package outside the vkauth module.
package internal
