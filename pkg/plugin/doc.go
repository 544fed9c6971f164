// Package plugin defines the contract every Animus capability plugin must
// satisfy: the immutable descriptor fixed at registration, the mutable
// per-instance runtime state, the metrics record, the input/output envelopes,
// and the Plugin interface with its optional capability extensions.
//
// The package holds no runtime behavior of its own. Lifecycle transitions
// live in pkg/lifecycle, invocation in pkg/execution, policy checks in
// pkg/security.
package plugin
