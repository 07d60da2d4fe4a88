// Package session provides storage-backed session records referenced by a
// signed cookie.
//
// # Record lifecycle
//
// [Store.Load] resolves a cookie to a [Record], [Store.Update] applies a pure
// transformation, and [Store.Save] persists it and returns the cookie value to
// send back. Records expire after the store's max age; the expiry stored in
// the record wins over the driver's TTL.
//
// # Encoding
//
// Records are stored as one schema version byte followed by JSON. Unknown
// versions decode to an error and the entry is treated as absent.
//
// # Architecture boundaries
//
// This package owns [Store] and the [Record] model. It does NOT call the OAuth
// provider or decide when tokens need refreshing; the Engine does.
//
// # What this package must NOT do
//
//   - Import goSession, provider or middleware (no upward imports).
//   - Write HTTP cookies. The middleware is the only cookie writer.
package session
