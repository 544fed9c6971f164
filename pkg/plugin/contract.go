package plugin

import "context"

// Plugin is the capability contract every Animus plugin implements.
//
// Category-specific behavior (consciousness, emotion, memory, goal, identity)
// is expressed through the optional interfaces below, probed with type
// assertions rather than inheritance.
type Plugin interface {
	// Descriptor returns the immutable identity and policy record.
	Descriptor() *Descriptor

	// Initialize prepares the plugin for execution. Called on every load.
	Initialize(ctx context.Context) error

	// Execute processes one input envelope.
	Execute(ctx context.Context, in *Input) (*Output, error)

	// Cleanup releases plugin resources. Called on every unload.
	Cleanup(ctx context.Context) error
}

// Stateful plugins are notified when the lifecycle manager merges a state
// patch on their behalf.
type Stateful interface {
	OnStateChange(state *InstanceState)
}

// Configurable plugins accept host-driven configuration.
type Configurable interface {
	Configure(cfg Configuration) error
	Configuration() Configuration
	ValidateConfiguration(cfg Configuration) bool
}

// HealthReporter plugins contribute their own health checks beyond the
// monitor's built-in probe.
type HealthReporter interface {
	Health() HealthReport
}

// MetricsReporter plugins expose internal counters to the monitor.
type MetricsReporter interface {
	Metrics() map[string]float64
}

// BundleAware plugins receive bundle-level lifecycle notifications.
type BundleAware interface {
	OnBundleEnable(bundleID string) error
	OnBundleDisable(bundleID string) error
	OnBundleConfigChange(bundleID string, overrides map[string]any) error
}
