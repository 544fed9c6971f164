package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/animus-host/animus/pkg/plugin"
	"github.com/animus-host/animus/pkg/store"
)

// persist writes one plugin's record to the store, best-effort. Lifecycle
// transitions never fail because the store is down.
func (m *Manager) persist(ctx context.Context, id string) {
	if m.store == nil {
		return
	}

	m.mu.RLock()
	e, ok := m.entries[id]
	var rec store.Record
	if ok {
		state := cloneState(e.state)
		metrics := cloneMetrics(e.metrics)
		rec = store.Record{Descriptor: e.desc, State: &state, Metrics: &metrics}
	}
	m.mu.RUnlock()

	if !ok {
		return
	}
	if err := m.store.Save(ctx, id, rec); err != nil {
		m.log.WithField("plugin", id).WithError(err).Warn("failed to persist plugin record")
	}
}

// SaveSnapshot persists every registered plugin's record. Called by the
// host's snapshot scheduler and during shutdown.
func (m *Manager) SaveSnapshot(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	m.mu.RLock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	m.mu.RUnlock()

	var failed int
	for _, id := range ids {
		m.mu.RLock()
		e, ok := m.entries[id]
		var rec store.Record
		if ok {
			state := cloneState(e.state)
			metrics := cloneMetrics(e.metrics)
			rec = store.Record{Descriptor: e.desc, State: &state, Metrics: &metrics}
		}
		m.mu.RUnlock()

		if !ok {
			continue
		}
		if err := m.store.Save(ctx, id, rec); err != nil {
			failed++
			m.log.WithField("plugin", id).WithError(err).Warn("snapshot save failed")
		}
	}

	if failed > 0 {
		return fmt.Errorf("snapshot: %d of %d records failed to save", failed, len(ids))
	}
	return nil
}

// Restore merges persisted records into already-registered plugins. For each
// matching id it restores the enabled flag, configuration, persistent data
// and metrics. Status always restarts at inactive: plugin processes do not
// survive the host. A stored version differing from the registered
// descriptor's marks update drift: persistent data is kept but logged.
func (m *Manager) Restore(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	records, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, rec := range records {
		e, ok := m.entries[id]
		if !ok {
			m.log.WithField("plugin", id).Debug("persisted record has no registered plugin, skipping")
			continue
		}
		if rec.State == nil {
			continue
		}

		if rec.State.Version != "" && rec.State.Version != e.desc.Version {
			m.log.WithFields(map[string]any{
				"plugin":         id,
				"stored_version": rec.State.Version,
				"plugin_version": e.desc.Version,
			}).Warn("plugin version drift detected, keeping persistent state")
		}

		e.state.Enabled = rec.State.Enabled
		e.state.Config = rec.State.Config
		e.state.Persistent = rec.State.Persistent
		if e.state.Persistent == nil {
			e.state.Persistent = make(map[string]any)
		}
		e.state.Status = plugin.StatusInactive
		e.state.Version = e.desc.Version
		e.state.UpdatedAt = time.Now()
		if rec.Metrics != nil {
			*e.metrics = *rec.Metrics
		}
	}
	return nil
}
