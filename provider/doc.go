// Package provider talks to an OAuth2/OIDC authorization server: it builds
// authorization URLs, exchanges authorization codes and runs the refresh
// grant.
//
// Errors are classified into two sentinels. [ErrRefreshTokenInvalid] means
// the server rejected a refresh grant with 400 or 401 and the user must log in
// again. Every other failure, including transport errors and deadlines, wraps
// [ErrProvider].
//
// # What this package must NOT do
//
//   - Read or write sessions.
//   - Retry failed calls. Timeouts are set by the caller's context.
package provider
