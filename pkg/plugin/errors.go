package plugin

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when an operation references an unknown plugin id.
	ErrNotFound = errors.New("plugin not found")

	// ErrAlreadyRegistered is returned when registering a duplicate plugin id.
	ErrAlreadyRegistered = errors.New("plugin already registered")

	// ErrNotActive is returned when execution is attempted on a plugin that is
	// disabled, inactive, or in the error state.
	ErrNotActive = errors.New("plugin not active")

	// ErrNotInactive is returned when unregistering a plugin that is neither
	// inactive nor disabled and could not be unloaded first.
	ErrNotInactive = errors.New("plugin must be inactive or disabled")

	// ErrNoHandler is returned by a bus request when no responder is bound to
	// the topic.
	ErrNoHandler = errors.New("no responder registered for topic")

	// ErrTimeout is returned by a bus request whose responder did not settle
	// before the deadline.
	ErrTimeout = errors.New("request timed out")
)

// ValidationError reports the policy violations that blocked registration.
type ValidationError struct {
	PluginID   string
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("plugin %q failed validation: %s", e.PluginID, strings.Join(e.Violations, "; "))
}

// InitializationError wraps a failure of a plugin's Initialize entry point.
// The plugin stays registered in the error state and loading may be retried.
type InitializationError struct {
	PluginID string
	Err      error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("plugin %q failed to initialize: %v", e.PluginID, e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// ExecutionError wraps a failure of a plugin's Execute entry point. A single
// bad input does not change the plugin's lifecycle status.
type ExecutionError struct {
	PluginID string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("plugin %q execution failed: %v", e.PluginID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ChainError identifies which step of an execution chain failed.
type ChainError struct {
	PluginID string
	Step     int
	Err      error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("chain step %d (plugin %q) failed: %v", e.Step, e.PluginID, e.Err)
}

func (e *ChainError) Unwrap() error { return e.Err }
