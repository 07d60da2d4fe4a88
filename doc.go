// Package goSession provides server-side sessions with OAuth2/OIDC login for
// browser-facing Go services: a signed cookie references a session record in
// pluggable storage, and the Engine drives the authorization-code flow and
// keeps access tokens fresh.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Engine], [Builder], [Config]
// and the value types around them (RefreshOutcome, RefreshJobResult,
// MetricsSnapshot). Session persistence lives in the session package, cookie
// signing in cookie, storage drivers under storage/, the OAuth client in
// provider, and login and refresh orchestration under internal/flows.
//
// # What this package must NOT do
//
//   - Read configuration from globals or the environment; Config is passed in.
//   - Write cookies or HTTP responses; that belongs to the middleware package.
//   - Hold in-process locks across requests; storage is the synchronization point.
//   - Import any sub-package that re-imports goSession (no import cycles).
//
// # Concurrency contract
//
// Ordinary saves are last-write-wins. Token refresh results are persisted with
// a revision compare-and-swap, so when an inline refresh races the batch job
// exactly one of them stores new tokens and the other observes
// [ErrRefreshTokenInvalid] or [OutcomeSuperseded].
package goSession
