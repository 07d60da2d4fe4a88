// Package storage defines the key-value capability that session persistence is
// built on, and the backend variants a deployment can select at startup.
//
// # Capability
//
// A [Driver] offers Get, Set (with TTL), Remove and Keys (by prefix). Drivers
// that can replace a value atomically also implement [Swapper]; callers fall
// back to read-compare-write when it is missing.
//
// # Architecture boundaries
//
// Drivers store opaque byte slices. They do NOT decode session records, sign
// cookies or talk to an OAuth provider.
//
// # What this package must NOT do
//
//   - Import goSession, session, cookie or provider (no upward imports).
//   - Retry failed backend calls; failures surface as [ErrStorage].
package storage
