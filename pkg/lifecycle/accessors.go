package lifecycle

import (
	"fmt"
	"time"

	"github.com/animus-host/animus/pkg/plugin"
)

// View is a read-only snapshot of one registered plugin.
type View struct {
	Descriptor *plugin.Descriptor   `json:"descriptor"`
	State      plugin.InstanceState `json:"state"`
	Metrics    plugin.MetricsRecord `json:"metrics"`
	LastError  string               `json:"last_error,omitempty"`
}

// Get returns a snapshot of one plugin.
func (m *Manager) Get(id string) (*View, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, fmt.Errorf("get %q: %w", id, plugin.ErrNotFound)
	}
	return e.view(), nil
}

// List returns snapshots of all plugins in registration order, optionally
// filtered by category.
func (m *Manager) List(categories ...plugin.Category) []*View {
	filter := make(map[plugin.Category]bool, len(categories))
	for _, c := range categories {
		filter[c] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	views := make([]*View, 0, len(m.order))
	for _, id := range m.order {
		e := m.entries[id]
		if len(filter) > 0 && !filter[e.desc.Category] {
			continue
		}
		views = append(views, e.view())
	}
	return views
}

// ListByBundle returns snapshots of all plugins owned by a bundle.
func (m *Manager) ListByBundle(bundleID string) []*View {
	m.mu.RLock()
	defer m.mu.RUnlock()

	views := make([]*View, 0)
	for _, id := range m.order {
		e := m.entries[id]
		if e.desc.BundleID == bundleID {
			views = append(views, e.view())
		}
	}
	return views
}

// Count returns the number of registered plugins.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// GetState returns a copy of a plugin's instance state.
func (m *Manager) GetState(id string) (*plugin.InstanceState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, fmt.Errorf("get state %q: %w", id, plugin.ErrNotFound)
	}
	state := cloneState(e.state)
	return &state, nil
}

// SetState merges a partial update into a plugin's instance state, bumps the
// last-update timestamp, and notifies the plugin when it implements
// plugin.Stateful. A configuration patch is validated and applied through
// plugin.Configurable when the plugin implements it. Notifications run
// outside the lock.
func (m *Manager) SetState(id string, patch plugin.StatePatch) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("set state %q: %w", id, plugin.ErrNotFound)
	}

	if patch.Config != nil {
		if c, ok := e.impl.(plugin.Configurable); ok && !c.ValidateConfiguration(*patch.Config) {
			m.mu.Unlock()
			return fmt.Errorf("set state %q: configuration rejected by plugin", id)
		}
		e.state.Config = *patch.Config
	}
	for k, v := range patch.Internal {
		if e.state.Internal == nil {
			e.state.Internal = make(map[string]any)
		}
		e.state.Internal[k] = v
	}
	for k, v := range patch.Persistent {
		if e.state.Persistent == nil {
			e.state.Persistent = make(map[string]any)
		}
		e.state.Persistent[k] = v
	}
	e.state.UpdatedAt = time.Now()

	impl := e.impl
	notify := cloneState(e.state)
	m.mu.Unlock()

	if patch.Config != nil {
		if c, ok := impl.(plugin.Configurable); ok {
			if err := c.Configure(notify.Config); err != nil {
				m.log.WithField("plugin", id).WithError(err).Warn("plugin rejected applied configuration")
			}
		}
	}
	if stateful, ok := impl.(plugin.Stateful); ok {
		stateful.OnStateChange(&notify)
	}
	return nil
}

// view builds a snapshot. Caller must hold m.mu.
func (e *entry) view() *View {
	v := &View{
		Descriptor: e.desc,
		State:      cloneState(e.state),
		Metrics:    cloneMetrics(e.metrics),
	}
	if e.lastErr != nil {
		v.LastError = e.lastErr.Error()
	}
	return v
}

func cloneState(s *plugin.InstanceState) plugin.InstanceState {
	out := *s
	out.Config.Settings = cloneMap(s.Config.Settings)
	out.Config.UserOverrides = cloneMap(s.Config.UserOverrides)
	out.Config.BundleOverrides = cloneMap(s.Config.BundleOverrides)
	out.Internal = cloneMap(s.Internal)
	out.Persistent = cloneMap(s.Persistent)
	return out
}

func cloneMetrics(m *plugin.MetricsRecord) plugin.MetricsRecord {
	out := *m
	out.History = append([]plugin.Sample(nil), m.History...)
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
