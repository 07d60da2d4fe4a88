// Package middleware exposes the HTTP adapters that put goSession.Engine in
// front of handlers.
//
// # Middleware
//
//   - [Session] loads the session named by the request cookie, refreshes its
//     tokens when they are about to expire, and persists changes before the
//     response headers are sent. It is the only writer of the session cookie.
//   - [RequireAuth] rejects requests without a logged-in session: browsers are
//     redirected to the login route, JSON clients get 401.
//   - [RequireAPIKey] guards machine routes with a static bearer key.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself: token refresh, CSRF checks and
// persistence rules all live in the Engine and the session store.
//
// # What this package must NOT do
//
//   - Talk to the OAuth provider or storage drivers directly.
//   - Write the session cookie anywhere other than Session's commit step.
//   - Let a failed session save go unnoticed; it becomes a 500 response.
package middleware
