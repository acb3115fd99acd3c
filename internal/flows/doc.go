// Package flows contains pure-function orchestrators for the token lifecycle
// and the request gate.
//
// Each flow function (RunVerify, RunRefresh, RunLogout, RunGate) accepts a
// typed dependency struct and returns a result carrying a failure kind. The
// Engine maps kinds to public errors, metrics and audit events.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the signer and the token store. They do
// NOT own either; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import tokenauth (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency interfaces.
package flows
