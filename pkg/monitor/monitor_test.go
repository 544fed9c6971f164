package monitor

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animus-host/animus/pkg/lifecycle"
	"github.com/animus-host/animus/pkg/plugin"
)

// fakeSource is a canned registry window for health tests.
type fakeSource struct {
	views     []*lifecycle.View
	reporters map[string]plugin.HealthReporter
}

func (f *fakeSource) List(...plugin.Category) []*lifecycle.View { return f.views }

func (f *fakeSource) Get(id string) (*lifecycle.View, error) {
	for _, v := range f.views {
		if v.Descriptor.ID == id {
			return v, nil
		}
	}
	return nil, fmt.Errorf("get %q: %w", id, plugin.ErrNotFound)
}

func (f *fakeSource) Reporter(id string) (plugin.HealthReporter, bool) {
	r, ok := f.reporters[id]
	return r, ok
}

type fakeReporter struct {
	report plugin.HealthReport
}

func (r *fakeReporter) Health() plugin.HealthReport { return r.report }

func view(id string, status plugin.Status, samples ...plugin.Sample) *lifecycle.View {
	return &lifecycle.View{
		Descriptor: &plugin.Descriptor{ID: id, Name: id, Version: "1.0.0", Category: plugin.CategoryUtility},
		State:      plugin.InstanceState{Status: status, Enabled: true},
		Metrics:    plugin.MetricsRecord{History: samples},
	}
}

func TestMonitor_ExecutionSample(t *testing.T) {
	m := New(&fakeSource{}, NewMetrics(prometheus.NewRegistry()), nil)

	m.StartExecution("echo")
	sample := m.EndExecution("echo", 40*time.Millisecond, 10, 20, false)

	assert.Equal(t, 40*time.Millisecond, sample.Duration)
	assert.Equal(t, 10, sample.InputSize)
	assert.Equal(t, 20, sample.OutputSize)
	assert.False(t, sample.Timestamp.IsZero())
	assert.GreaterOrEqual(t, sample.MemoryBytes, int64(0))
}

func TestMonitor_EndWithoutStart(t *testing.T) {
	m := New(&fakeSource{}, nil, nil)
	sample := m.EndExecution("phantom", time.Millisecond, 0, 0, true)
	assert.Equal(t, time.Millisecond, sample.Duration)
	assert.Zero(t, sample.MemoryBytes)
}

func TestMonitor_PluginHealth(t *testing.T) {
	src := &fakeSource{
		views: []*lifecycle.View{
			view("steady", plugin.StatusActive),
			view("broken", plugin.StatusError),
		},
	}
	src.views[1].LastError = "initialize panicked"
	m := New(src, nil, nil)

	healthy := m.PluginHealth("steady")
	assert.Equal(t, plugin.HealthHealthy, healthy.Status)
	require.Len(t, healthy.Checks, 1)
	assert.Equal(t, "basic_functionality", healthy.Checks[0].Name)
	assert.Equal(t, plugin.CheckPass, healthy.Checks[0].Result)

	unhealthy := m.PluginHealth("broken")
	assert.Equal(t, plugin.HealthUnhealthy, unhealthy.Status)
	assert.Equal(t, plugin.CheckFail, unhealthy.Checks[0].Result)
	assert.Equal(t, "initialize panicked", unhealthy.Checks[0].Detail)

	unknown := m.PluginHealth("nobody")
	assert.Equal(t, plugin.HealthUnknown, unknown.Status)
	assert.Empty(t, unknown.Checks)
}

func TestMonitor_PluginHealthMergesSelfReport(t *testing.T) {
	src := &fakeSource{
		views: []*lifecycle.View{view("introspective", plugin.StatusActive)},
		reporters: map[string]plugin.HealthReporter{
			"introspective": &fakeReporter{report: plugin.HealthReport{
				Status: plugin.HealthDegraded,
				Checks: []plugin.HealthCheck{{Name: "cache_warm", Result: plugin.CheckWarn}},
			}},
		},
	}
	m := New(src, nil, nil)

	report := m.PluginHealth("introspective")
	// The plugin's own degraded verdict wins over the passing basic probe.
	assert.Equal(t, plugin.HealthDegraded, report.Status)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "cache_warm", report.Checks[1].Name)
}

func TestMonitor_SystemHealth(t *testing.T) {
	mb := int64(1024 * 1024)
	tests := []struct {
		name   string
		views  []*lifecycle.View
		status plugin.HealthState
		active int
	}{
		{
			name:   "empty runtime is healthy",
			status: plugin.HealthHealthy,
		},
		{
			name: "active plugins within ceilings",
			views: []*lifecycle.View{
				view("a", plugin.StatusActive, plugin.Sample{MemoryBytes: 100 * mb, CPUPercent: 10}),
				view("b", plugin.StatusInactive),
			},
			status: plugin.HealthHealthy,
			active: 1,
		},
		{
			name: "memory sum above ceiling degrades",
			views: []*lifecycle.View{
				view("a", plugin.StatusActive, plugin.Sample{MemoryBytes: 600 * mb}),
				view("b", plugin.StatusActive, plugin.Sample{MemoryBytes: 600 * mb}),
			},
			status: plugin.HealthDegraded,
			active: 2,
		},
		{
			name: "cpu sum above ceiling degrades",
			views: []*lifecycle.View{
				view("a", plugin.StatusActive, plugin.Sample{CPUPercent: 50}),
				view("b", plugin.StatusActive, plugin.Sample{CPUPercent: 45}),
			},
			status: plugin.HealthDegraded,
			active: 2,
		},
		{
			name: "any errored plugin is unhealthy even when sums are fine",
			views: []*lifecycle.View{
				view("a", plugin.StatusActive, plugin.Sample{MemoryBytes: mb, CPUPercent: 1}),
				view("b", plugin.StatusError),
			},
			status: plugin.HealthUnhealthy,
			active: 1,
		},
		{
			name: "unhealthy wins over degraded",
			views: []*lifecycle.View{
				view("a", plugin.StatusActive, plugin.Sample{MemoryBytes: 2000 * mb}),
				view("b", plugin.StatusError),
			},
			status: plugin.HealthUnhealthy,
			active: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(&fakeSource{views: tt.views}, nil, nil)
			report := m.SystemHealth()
			assert.Equal(t, tt.status, report.Status)
			assert.Equal(t, len(tt.views), report.Plugins)
			assert.Equal(t, tt.active, report.ActivePlugins)
		})
	}
}

func TestMonitor_SystemHealthUsesLatestSample(t *testing.T) {
	mb := int64(1024 * 1024)
	// Older samples above the ceiling do not count; only the latest does.
	v := view("a", plugin.StatusActive,
		plugin.Sample{MemoryBytes: 5000 * mb},
		plugin.Sample{MemoryBytes: 10 * mb},
	)
	m := New(&fakeSource{views: []*lifecycle.View{v}}, nil, nil)

	report := m.SystemHealth()
	assert.Equal(t, plugin.HealthHealthy, report.Status)
	assert.Equal(t, 10*mb, report.MemoryBytes)
}
