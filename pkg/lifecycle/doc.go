// Package lifecycle owns the plugin registry and drives each plugin through
// its state machine:
//
//	inactive --Load--> loading --(Initialize ok)--> active
//	loading --(Initialize fails)--> error
//	active --Unload--> inactive
//	active --Disable--> disabled
//	disabled --Enable--> loading (re-enters the load path)
//	any --Unregister--> removed (must be inactive or disabled first)
//
// The Manager is the exclusive owner of the descriptor, instance-state and
// metrics tables; every other component reads or mutates them through its
// public operations. Plugin entry points are always invoked outside the
// Manager's lock, so a plugin may re-enter the Manager (for example disable
// itself mid-execution); repeated disable/unload is idempotent.
package lifecycle
