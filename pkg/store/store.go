// Package store is the runtime's persistence boundary. It round-trips the
// per-plugin record (descriptor, instance state, metrics) across process
// restarts without interpreting it. Backends: SQLite, Redis, in-memory.
package store

import (
	"context"

	"github.com/animus-host/animus/pkg/plugin"
)

// Record is the durable unit for one registered plugin.
type Record struct {
	Descriptor *plugin.Descriptor    `json:"descriptor"`
	State      *plugin.InstanceState `json:"state"`
	Metrics    *plugin.MetricsRecord `json:"metrics"`
}

// Store persists plugin records keyed by plugin id.
type Store interface {
	// Save upserts the record for a plugin id.
	Save(ctx context.Context, id string, rec Record) error

	// Load returns all persisted records.
	Load(ctx context.Context) (map[string]Record, error)

	// Delete removes the record for a plugin id. Unknown ids are a no-op.
	Delete(ctx context.Context, id string) error

	// Close releases backend resources.
	Close() error
}
