// Package internal holds helpers private to goSession: random session ids
// and OAuth state tokens.
//
// # Sub-packages
//
//   - flows: pure orchestrators for login, refresh and the batch job
//   - config: YAML and environment loading for sessiond
//   - server: the sessiond HTTP routes
//
// # What this package must NOT do
//
//   - Export types that appear in the public goSession API.
//   - Perform I/O other than reading the system random source.
package internal
