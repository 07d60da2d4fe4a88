// Package cookie signs session identifiers into cookie values and writes
// session cookies.
//
// # Wire format
//
// A cookie value is base64url(sessionID) "." base64url(HMAC-SHA256(secret, sessionID)),
// unpadded. Signing always uses the first secret; verification accepts any
// secret in the list, in order, so a new secret can be prepended without
// invalidating cookies issued under the previous one.
//
// Every verification failure returns [ErrSignatureInvalid]. Callers cannot
// tell a tampered signature from a malformed or empty value.
//
// # What this package must NOT do
//
//   - Carry session data in the cookie. The value is a reference only.
//   - Read or write session storage.
package cookie
