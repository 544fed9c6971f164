// Package monitor records per-invocation timing and memory samples and
// aggregates per-plugin and system-wide health. It never mutates the
// lifecycle manager's metrics table; the execution engine reports samples
// there itself.
package monitor

import (
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/animus-host/animus/pkg/lifecycle"
	"github.com/animus-host/animus/pkg/plugin"
)

// SystemMemoryCeilingMB is the summed plugin memory above which the system
// reports degraded.
const SystemMemoryCeilingMB = 1024

// SystemCPUCeilingPercent is the summed plugin cpu above which the system
// reports degraded.
const SystemCPUCeilingPercent = 80.0

// Source is the monitor's read-only window into the registry. Implemented by
// lifecycle.Manager.
type Source interface {
	List(categories ...plugin.Category) []*lifecycle.View
	Get(id string) (*lifecycle.View, error)
	Reporter(id string) (plugin.HealthReporter, bool)
}

// inflight is the start sample of one execution. One measurement per plugin
// id at a time; a second concurrent execution of the same id overwrites the
// first's start sample.
type inflight struct {
	startedAt time.Time
	heapAlloc uint64
}

// Monitor records execution samples and answers health queries.
type Monitor struct {
	mu       sync.Mutex
	inflight map[string]inflight

	source  Source
	metrics *Metrics
	log     *logrus.Logger
}

// New creates a Monitor. metrics may be nil when Prometheus reporting is
// disabled.
func New(source Source, metrics *Metrics, log *logrus.Logger) *Monitor {
	if log == nil {
		log = logrus.New()
	}
	return &Monitor{
		inflight: make(map[string]inflight),
		source:   source,
		metrics:  metrics,
		log:      log,
	}
}

// StartExecution records the start timestamp and memory sample for one
// invocation of a plugin.
func (m *Monitor) StartExecution(pluginID string) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.mu.Lock()
	m.inflight[pluginID] = inflight{startedAt: time.Now(), heapAlloc: ms.HeapAlloc}
	m.mu.Unlock()
}

// EndExecution closes the in-flight measurement and returns the sample. The
// memory delta is logged here; folding the sample into the metrics record is
// the execution engine's job.
func (m *Monitor) EndExecution(pluginID string, duration time.Duration, inputSize, outputSize int, failed bool) plugin.Sample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.mu.Lock()
	start, ok := m.inflight[pluginID]
	delete(m.inflight, pluginID)
	m.mu.Unlock()

	sample := plugin.Sample{
		Timestamp:  time.Now(),
		Duration:   duration,
		InputSize:  inputSize,
		OutputSize: outputSize,
	}
	if ok && ms.HeapAlloc >= start.heapAlloc {
		sample.MemoryBytes = int64(ms.HeapAlloc - start.heapAlloc)
	}

	if m.metrics != nil {
		status := "success"
		if failed {
			status = "error"
		}
		m.metrics.ExecutionsTotal.WithLabelValues(pluginID, status).Inc()
		m.metrics.ExecutionDuration.WithLabelValues(pluginID).Observe(duration.Seconds())
		m.metrics.ExecutionMemoryBytes.WithLabelValues(pluginID).Observe(float64(sample.MemoryBytes))
	}

	m.log.WithFields(logrus.Fields{
		"plugin":       pluginID,
		"duration_ms":  duration.Milliseconds(),
		"memory_delta": sample.MemoryBytes,
	}).Debug("execution sample recorded")

	return sample
}

// PluginHealth reports the health of one plugin. The built-in probe is
// basic_functionality, passing for any registered plugin that is not in the
// error state; plugins implementing plugin.HealthReporter contribute their
// own checks on top.
func (m *Monitor) PluginHealth(pluginID string) plugin.HealthReport {
	view, err := m.source.Get(pluginID)
	if err != nil {
		return plugin.HealthReport{Status: plugin.HealthUnknown}
	}

	report := plugin.HealthReport{Status: plugin.HealthHealthy}
	basic := plugin.HealthCheck{Name: "basic_functionality", Result: plugin.CheckPass}
	if view.State.Status == plugin.StatusError {
		report.Status = plugin.HealthUnhealthy
		basic.Result = plugin.CheckFail
		basic.Detail = view.LastError
	}
	report.Checks = append(report.Checks, basic)

	if reporter, ok := m.source.Reporter(pluginID); ok {
		own := probeReporter(reporter)
		report.Checks = append(report.Checks, own.Checks...)
		if worse(own.Status, report.Status) {
			report.Status = own.Status
		}
	}
	return report
}

// SystemHealth aggregates health across all registered plugins: active
// count, summed memory and cpu from the latest samples. Degraded when sums
// exceed the ceilings; unhealthy when any plugin is in the error state.
// Unhealthy always wins over degraded.
func (m *Monitor) SystemHealth() SystemReport {
	views := m.source.List()

	report := SystemReport{
		Status:    plugin.HealthHealthy,
		Timestamp: time.Now(),
		Plugins:   len(views),
	}

	anyErrored := false
	for _, v := range views {
		switch v.State.Status {
		case plugin.StatusActive:
			report.ActivePlugins++
		case plugin.StatusError:
			anyErrored = true
		}
		if n := len(v.Metrics.History); n > 0 {
			last := v.Metrics.History[n-1]
			report.MemoryBytes += last.MemoryBytes
			report.CPUPercent += last.CPUPercent
		}
	}

	if float64(report.MemoryBytes) > SystemMemoryCeilingMB*1024*1024 || report.CPUPercent > SystemCPUCeilingPercent {
		report.Status = plugin.HealthDegraded
	}
	if anyErrored {
		report.Status = plugin.HealthUnhealthy
	}

	if m.metrics != nil {
		m.metrics.RegisteredPlugins.Set(float64(report.Plugins))
		m.metrics.ActivePlugins.Set(float64(report.ActivePlugins))
	}
	return report
}

// SystemReport summarizes runtime-wide health.
type SystemReport struct {
	Status        plugin.HealthState `json:"status"`
	Timestamp     time.Time          `json:"timestamp"`
	Plugins       int                `json:"plugins"`
	ActivePlugins int                `json:"active_plugins"`
	MemoryBytes   int64              `json:"memory_bytes"`
	CPUPercent    float64            `json:"cpu_percent"`
}

// probeReporter calls a plugin's own Health with panic recovery.
func probeReporter(r plugin.HealthReporter) (report plugin.HealthReport) {
	defer func() {
		if rec := recover(); rec != nil {
			report = plugin.HealthReport{
				Status: plugin.HealthUnhealthy,
				Checks: []plugin.HealthCheck{{Name: "self_report", Result: plugin.CheckFail, Detail: "health probe panicked"}},
			}
		}
	}()
	return r.Health()
}

// worse reports whether a is a worse state than b.
func worse(a, b plugin.HealthState) bool {
	rank := func(s plugin.HealthState) int {
		switch s {
		case plugin.HealthHealthy:
			return 0
		case plugin.HealthUnknown:
			return 1
		case plugin.HealthDegraded:
			return 2
		case plugin.HealthUnhealthy:
			return 3
		}
		return 0
	}
	return rank(a) > rank(b)
}
