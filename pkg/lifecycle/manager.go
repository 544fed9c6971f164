package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/animus-host/animus/pkg/events"
	"github.com/animus-host/animus/pkg/plugin"
	"github.com/animus-host/animus/pkg/security"
	"github.com/animus-host/animus/pkg/store"
)

// entry is the per-plugin record triple plus the live implementation.
type entry struct {
	desc    *plugin.Descriptor
	impl    plugin.Plugin
	state   *plugin.InstanceState
	metrics *plugin.MetricsRecord
	lastErr error
}

// Config configures a Manager.
type Config struct {
	// Evaluator validates descriptors at registration. Required.
	Evaluator *security.Evaluator

	// Emitter receives lifecycle events. Required.
	Emitter *events.Emitter

	// Store persists records across restarts. Optional; nil disables
	// durability.
	Store store.Store

	// Log is the runtime logger. Nil falls back to a default logger.
	Log *logrus.Logger
}

// Manager owns the plugin registry and the lifecycle state machine.
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string

	evaluator *security.Evaluator
	emitter   *events.Emitter
	store     store.Store
	log       *logrus.Logger
}

// NewManager creates a Manager and binds it as the evaluator's policy
// source.
func NewManager(cfg Config) *Manager {
	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}

	m := &Manager{
		entries:   make(map[string]*entry),
		evaluator: cfg.Evaluator,
		emitter:   cfg.Emitter,
		store:     cfg.Store,
		log:       log,
	}
	if m.evaluator != nil {
		m.evaluator.BindSource(m)
	}
	return m
}

// Register validates a plugin and inserts it into the registry with status
// inactive, the descriptor's default enabled flag, and a zeroed metrics
// record. Fails with a *plugin.ValidationError naming each violated
// invariant.
func (m *Manager) Register(ctx context.Context, p plugin.Plugin) error {
	if p == nil {
		return &plugin.ValidationError{Violations: []string{"plugin is nil"}}
	}
	desc := p.Descriptor()
	if desc == nil {
		return &plugin.ValidationError{Violations: []string{"descriptor is nil"}}
	}

	res := m.evaluator.Validate(desc)

	m.mu.Lock()
	if _, exists := m.entries[desc.ID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("register %q: %w", desc.ID, plugin.ErrAlreadyRegistered)
	}

	// Declared dependencies must already be in the registry.
	violations := res.Violations()
	for _, dep := range desc.Dependencies {
		if _, ok := m.entries[dep]; !ok {
			violations = append(violations, fmt.Sprintf("dependency %q is not registered", dep))
		}
	}
	if len(violations) > 0 {
		m.mu.Unlock()
		return &plugin.ValidationError{PluginID: desc.ID, Violations: violations}
	}

	for _, w := range res.Warnings {
		m.log.WithField("plugin", desc.ID).Warnf("registration warning: %s", w)
	}
	for _, p := range res.PerformanceIssues {
		m.log.WithField("plugin", desc.ID).Warnf("registration performance issue: %s", p)
	}

	e := &entry{
		desc: desc,
		impl: p,
		state: &plugin.InstanceState{
			Status:  plugin.StatusInactive,
			Enabled: desc.AutoEnable,
			Config: plugin.Configuration{
				Enabled:  desc.AutoEnable,
				Settings: make(map[string]any),
			},
			Internal:   make(map[string]any),
			Persistent: make(map[string]any),
			UpdatedAt:  time.Now(),
			Version:    desc.Version,
		},
		metrics: &plugin.MetricsRecord{},
	}
	m.entries[desc.ID] = e
	m.order = append(m.order, desc.ID)
	m.mu.Unlock()

	// Registration alone is not persisted: writing a fresh record here would
	// clobber a prior snapshot before Restore has a chance to read it.
	m.emitter.Emit(events.Event{Type: events.PluginRegistered, PluginID: desc.ID, Payload: desc})
	m.log.WithFields(logrus.Fields{
		"plugin":   desc.ID,
		"version":  desc.Version,
		"category": desc.Category,
	}).Info("plugin registered")
	return nil
}

// Unregister removes a plugin and all three of its records. An active plugin
// is unloaded first; a plugin stuck in loading is rejected.
func (m *Manager) Unregister(ctx context.Context, id string) error {
	m.mu.RLock()
	e, ok := m.entries[id]
	var status plugin.Status
	if ok {
		status = e.state.Status
	}
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unregister %q: %w", id, plugin.ErrNotFound)
	}

	if status == plugin.StatusActive {
		if err := m.Unload(ctx, id); err != nil {
			m.log.WithField("plugin", id).WithError(err).Warn("cleanup failed during unregister")
		}
	} else if status == plugin.StatusLoading {
		return fmt.Errorf("unregister %q: %w", id, plugin.ErrNotInactive)
	}

	m.mu.Lock()
	if _, ok := m.entries[id]; !ok {
		// Re-entrant unregister already finished the job.
		m.mu.Unlock()
		return nil
	}
	delete(m.entries, id)
	m.removeFromOrder(id)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Delete(ctx, id); err != nil {
			m.log.WithField("plugin", id).WithError(err).Warn("failed to delete persisted record")
		}
	}
	m.emitter.Emit(events.Event{Type: events.PluginUnregistered, PluginID: id})
	m.log.WithField("plugin", id).Info("plugin unregistered")
	return nil
}

// Load transitions a plugin through loading into active. The resource-limit
// hook runs before the plugin's Initialize entry point. On failure the
// plugin stays registered in the error state and Load may be retried.
func (m *Manager) Load(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("load %q: %w", id, plugin.ErrNotFound)
	}
	if e.state.Status == plugin.StatusActive {
		// Re-entrant load of an active plugin is a no-op.
		m.mu.Unlock()
		return nil
	}
	e.state.Status = plugin.StatusLoading
	e.state.UpdatedAt = time.Now()
	impl := e.impl
	m.mu.Unlock()

	if err := m.evaluator.EnforceResourceLimits(id); err != nil {
		m.failLoad(ctx, id, err)
		return &plugin.InitializationError{PluginID: id, Err: err}
	}

	// Initialize runs outside the lock; the plugin may re-enter the manager.
	if err := safeInitialize(ctx, impl); err != nil {
		m.failLoad(ctx, id, err)
		return &plugin.InitializationError{PluginID: id, Err: err}
	}

	m.mu.Lock()
	if e, ok := m.entries[id]; ok {
		e.state.Status = plugin.StatusActive
		e.state.UpdatedAt = time.Now()
		e.lastErr = nil
	}
	m.mu.Unlock()

	m.persist(ctx, id)
	m.emitter.Emit(events.Event{Type: events.PluginLoaded, PluginID: id})
	m.log.WithField("plugin", id).Info("plugin loaded")
	return nil
}

func (m *Manager) failLoad(ctx context.Context, id string, err error) {
	m.mu.Lock()
	if e, ok := m.entries[id]; ok {
		e.state.Status = plugin.StatusError
		e.state.UpdatedAt = time.Now()
		e.lastErr = err
	}
	m.mu.Unlock()

	m.persist(ctx, id)
	m.emitter.Emit(events.Event{Type: events.PluginError, PluginID: id, Err: err})
	m.log.WithField("plugin", id).WithError(err).Error("plugin failed to load")
}

// Unload runs the plugin's Cleanup entry point and marks it inactive. The
// transition is best-effort: the status is set even when cleanup fails so the
// plugin can be reloaded, and the cleanup error is still returned. Unloading
// an already inactive plugin is a no-op.
func (m *Manager) Unload(ctx context.Context, id string) error {
	m.mu.RLock()
	e, ok := m.entries[id]
	var impl plugin.Plugin
	var status plugin.Status
	if ok {
		impl = e.impl
		status = e.state.Status
	}
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unload %q: %w", id, plugin.ErrNotFound)
	}
	if status == plugin.StatusInactive {
		return nil
	}

	cleanupErr := safeCleanup(ctx, impl)
	if cleanupErr != nil {
		m.log.WithField("plugin", id).WithError(cleanupErr).Warn("plugin cleanup failed, marking inactive anyway")
	}

	m.mu.Lock()
	if e, ok := m.entries[id]; ok {
		e.state.Status = plugin.StatusInactive
		e.state.UpdatedAt = time.Now()
	}
	m.mu.Unlock()

	m.persist(ctx, id)
	m.emitter.Emit(events.Event{Type: events.PluginUnloaded, PluginID: id})
	m.log.WithField("plugin", id).Info("plugin unloaded")

	if cleanupErr != nil {
		return fmt.Errorf("unload %q: cleanup failed: %w", id, cleanupErr)
	}
	return nil
}

// Enable sets the enabled flag and loads the plugin when it is inactive or
// disabled.
func (m *Manager) Enable(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("enable %q: %w", id, plugin.ErrNotFound)
	}
	e.state.Enabled = true
	e.state.Config.Enabled = true
	e.state.UpdatedAt = time.Now()
	status := e.state.Status
	m.mu.Unlock()

	m.emitter.Emit(events.Event{Type: events.PluginEnabled, PluginID: id})

	if status == plugin.StatusInactive || status == plugin.StatusDisabled {
		return m.Load(ctx, id)
	}
	m.persist(ctx, id)
	return nil
}

// Disable clears the enabled flag and marks the plugin disabled without
// running cleanup: the plugin keeps its in-memory state but rejects
// execution. Disabling twice is a no-op.
func (m *Manager) Disable(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("disable %q: %w", id, plugin.ErrNotFound)
	}
	if e.state.Status == plugin.StatusDisabled && !e.state.Enabled {
		m.mu.Unlock()
		return nil
	}
	e.state.Enabled = false
	e.state.Config.Enabled = false
	e.state.Status = plugin.StatusDisabled
	e.state.UpdatedAt = time.Now()
	m.mu.Unlock()

	m.persist(ctx, id)
	m.emitter.Emit(events.Event{Type: events.PluginDisabled, PluginID: id})
	m.log.WithField("plugin", id).Info("plugin disabled")
	return nil
}

// Executable returns the plugin implementation when it is both enabled and
// active; otherwise plugin.ErrNotFound / plugin.ErrNotActive.
func (m *Manager) Executable(id string) (plugin.Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, fmt.Errorf("execute %q: %w", id, plugin.ErrNotFound)
	}
	if !e.state.Enabled || e.state.Status != plugin.StatusActive {
		return nil, fmt.Errorf("execute %q (status %s, enabled %t): %w",
			id, e.state.Status, e.state.Enabled, plugin.ErrNotActive)
	}
	return e.impl, nil
}

// RecordExecution folds an execution sample into the plugin's metrics
// record. The metrics table is owned here; the execution engine reports
// through this method rather than touching the record directly.
func (m *Manager) RecordExecution(id string, sample plugin.Sample, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return
	}
	if failed {
		e.metrics.RecordFailure(sample)
	} else {
		e.metrics.RecordSuccess(sample)
	}
}

// Policy implements security.PolicySource over the descriptor table.
func (m *Manager) Policy(id string) (*plugin.SecurityPolicy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	return &e.desc.Security, true
}

// Reporter returns a plugin's own health reporter when the implementation
// provides one. Used by the monitor for capability probing.
func (m *Manager) Reporter(id string) (plugin.HealthReporter, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	reporter, ok := e.impl.(plugin.HealthReporter)
	return reporter, ok
}

// SelfMetrics returns a plugin's self-reported counters when the
// implementation exposes them through plugin.MetricsReporter.
func (m *Manager) SelfMetrics(id string) (map[string]float64, bool) {
	m.mu.RLock()
	e, ok := m.entries[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	reporter, ok := e.impl.(plugin.MetricsReporter)
	if !ok {
		return nil, false
	}
	return reporter.Metrics(), true
}

// Emitter exposes the event emitter so collaborators emit through the same
// channel the manager uses.
func (m *Manager) Emitter() *events.Emitter { return m.emitter }

// Evaluator exposes the bound security evaluator.
func (m *Manager) Evaluator() *security.Evaluator { return m.evaluator }

func (m *Manager) removeFromOrder(id string) {
	for i, n := range m.order {
		if n == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

// safeInitialize invokes Initialize with panic recovery so a panicking
// plugin lands in the error state instead of tearing down the host.
func safeInitialize(ctx context.Context, p plugin.Plugin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("initialize panicked: %v", r)
		}
	}()
	return p.Initialize(ctx)
}

// safeCleanup invokes Cleanup with panic recovery.
func safeCleanup(ctx context.Context, p plugin.Plugin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup panicked: %v", r)
		}
	}()
	return p.Cleanup(ctx)
}
