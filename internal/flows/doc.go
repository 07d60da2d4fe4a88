// Package flows contains the orchestration behind the Engine's login and
// refresh operations.
//
// Each flow function (RunExchange, RunRefresh, RunBatch) accepts a typed
// dependency struct and returns a result value describing what happened.
// Provider calls, storage and the clock all arrive through the deps, so flows
// are tested with plain fakes and the Engine stays thin.
//
// # Architecture boundaries
//
// Flow functions coordinate the session store and the token provider. They do
// NOT own either resource, and they do not emit metrics or audit events: the
// Engine maps results onto those.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goSession (to avoid import cycles).
//   - Apply provider timeouts; the Engine wraps provider calls before passing them in.
package flows
