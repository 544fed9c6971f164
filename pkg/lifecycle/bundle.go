package lifecycle

import (
	"context"
	"errors"

	"github.com/animus-host/animus/pkg/plugin"
)

// EnableBundle enables every plugin owned by a bundle and fires the
// OnBundleEnable hook on plugins that implement plugin.BundleAware. Plugins
// that fail to enable are reported together; the rest still proceed.
func (m *Manager) EnableBundle(ctx context.Context, bundleID string) error {
	var errs []error
	for _, v := range m.ListByBundle(bundleID) {
		id := v.Descriptor.ID
		if err := m.Enable(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		if aware, ok := m.bundleAware(id); ok {
			if err := aware.OnBundleEnable(bundleID); err != nil {
				m.log.WithField("plugin", id).WithError(err).Warn("bundle enable hook failed")
			}
		}
	}
	return errors.Join(errs...)
}

// DisableBundle disables every plugin owned by a bundle, firing the
// OnBundleDisable hook first so plugins can wind down while still active.
func (m *Manager) DisableBundle(ctx context.Context, bundleID string) error {
	var errs []error
	for _, v := range m.ListByBundle(bundleID) {
		id := v.Descriptor.ID
		if aware, ok := m.bundleAware(id); ok {
			if err := aware.OnBundleDisable(bundleID); err != nil {
				m.log.WithField("plugin", id).WithError(err).Warn("bundle disable hook failed")
			}
		}
		if err := m.Disable(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetBundleConfig merges bundle-level overrides into every member plugin's
// configuration and notifies plugins implementing the bundle hook.
func (m *Manager) SetBundleConfig(bundleID string, overrides map[string]any) error {
	var errs []error
	for _, v := range m.ListByBundle(bundleID) {
		id := v.Descriptor.ID

		m.mu.Lock()
		if e, ok := m.entries[id]; ok {
			if e.state.Config.BundleOverrides == nil {
				e.state.Config.BundleOverrides = make(map[string]any)
			}
			for k, val := range overrides {
				e.state.Config.BundleOverrides[k] = val
			}
		}
		m.mu.Unlock()

		if aware, ok := m.bundleAware(id); ok {
			if err := aware.OnBundleConfigChange(bundleID, overrides); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) bundleAware(id string) (plugin.BundleAware, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	aware, ok := e.impl.(plugin.BundleAware)
	return aware, ok
}
