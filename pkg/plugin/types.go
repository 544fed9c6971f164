package plugin

import (
	"time"
)

// Category classifies what cognitive concern a plugin serves.
type Category string

const (
	CategoryConsciousness Category = "consciousness"
	CategoryEmotion       Category = "emotion"
	CategoryMemory        Category = "memory"
	CategoryGoal          Category = "goal"
	CategoryIdentity      Category = "identity"
	CategoryCore          Category = "core"
	CategoryUtility       Category = "utility"
)

// ValidCategories enumerates every accepted category value.
var ValidCategories = map[Category]bool{
	CategoryConsciousness: true,
	CategoryEmotion:       true,
	CategoryMemory:        true,
	CategoryGoal:          true,
	CategoryIdentity:      true,
	CategoryCore:          true,
	CategoryUtility:       true,
}

// Kind describes how a plugin is packaged and installed.
type Kind string

const (
	KindIndividual Kind = "individual"
	KindBundled    Kind = "bundled"
	KindCore       Kind = "core"
)

// SecurityLevel is the declared trust tier of a plugin.
type SecurityLevel string

const (
	SecurityLevelLow      SecurityLevel = "low"
	SecurityLevelMedium   SecurityLevel = "medium"
	SecurityLevelHigh     SecurityLevel = "high"
	SecurityLevelCritical SecurityLevel = "critical"
)

// rank orders security levels for at-least comparisons.
func (l SecurityLevel) rank() int {
	switch l {
	case SecurityLevelLow:
		return 1
	case SecurityLevelMedium:
		return 2
	case SecurityLevelHigh:
		return 3
	case SecurityLevelCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether l grants at least the trust of other.
func (l SecurityLevel) AtLeast(other SecurityLevel) bool {
	return l.rank() >= other.rank()
}

// Valid reports whether l is one of the four defined levels.
func (l SecurityLevel) Valid() bool {
	return l.rank() > 0
}

// PermissionScope is the access breadth a named permission grants.
type PermissionScope string

const (
	ScopeRead    PermissionScope = "read"
	ScopeWrite   PermissionScope = "write"
	ScopeExecute PermissionScope = "execute"
	ScopeAdmin   PermissionScope = "admin"
)

// Permission is a single named grant in a plugin's security policy.
type Permission struct {
	Name  string          `yaml:"name" json:"name"`
	Scope PermissionScope `yaml:"scope" json:"scope"`
}

// ResourceLimits are the declared ceilings for a plugin. Enforcement is
// advisory at this layer; the host applies OS/process level constraints
// through the security evaluator's resource-limit hook.
type ResourceLimits struct {
	MaxMemoryMB        int `yaml:"max_memory_mb" json:"max_memory_mb"`
	MaxCPUPercent      int `yaml:"max_cpu_percent" json:"max_cpu_percent"`
	MaxStorageMB       int `yaml:"max_storage_mb" json:"max_storage_mb"`
	MaxNetworkRequests int `yaml:"max_network_requests" json:"max_network_requests"`
	TimeoutMS          int `yaml:"timeout_ms" json:"timeout_ms"`
}

// SecurityPolicy is the declared security posture of a plugin.
type SecurityPolicy struct {
	Level          SecurityLevel  `yaml:"level" json:"level"`
	Permissions    []Permission   `yaml:"permissions" json:"permissions"`
	Sandbox        bool           `yaml:"sandbox" json:"sandbox"`
	Limits         ResourceLimits `yaml:"limits" json:"limits"`
	AllowedAPIs    []string       `yaml:"allowed_apis" json:"allowed_apis"`
	TrustedOrigins []string       `yaml:"trusted_origins" json:"trusted_origins"`
}

// HasPermission reports whether the policy declares a permission by name.
func (p *SecurityPolicy) HasPermission(name string) bool {
	for _, perm := range p.Permissions {
		if perm.Name == name {
			return true
		}
	}
	return false
}

// Descriptor is the immutable identity and policy record for a plugin.
// It is fixed at registration; the runtime never mutates it.
type Descriptor struct {
	ID           string         `yaml:"id" json:"id"`
	Name         string         `yaml:"name" json:"name"`
	Version      string         `yaml:"version" json:"version"`
	Category     Category       `yaml:"category" json:"category"`
	Kind         Kind           `yaml:"kind" json:"kind"`
	BundleID     string         `yaml:"bundle_id,omitempty" json:"bundle_id,omitempty"`
	Dependencies []string       `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	AutoEnable   bool           `yaml:"auto_enable" json:"auto_enable"`
	Security     SecurityPolicy `yaml:"security" json:"security"`
}

// Status is the lifecycle state of a registered plugin.
type Status string

const (
	StatusInactive Status = "inactive"
	StatusLoading  Status = "loading"
	StatusActive   Status = "active"
	StatusError    Status = "error"
	StatusDisabled Status = "disabled"
)

// Configuration is the layered configuration for a plugin instance.
type Configuration struct {
	Enabled         bool           `json:"enabled"`
	Settings        map[string]any `json:"settings,omitempty"`
	UserOverrides   map[string]any `json:"user_overrides,omitempty"`
	BundleOverrides map[string]any `json:"bundle_overrides,omitempty"`
}

// InstanceState is the mutable runtime record for a registered plugin.
// Internal holds short-lived data; Persistent survives restarts through the
// store collaborator.
type InstanceState struct {
	Status     Status         `json:"status"`
	Enabled    bool           `json:"enabled"`
	Config     Configuration  `json:"config"`
	Internal   map[string]any `json:"internal,omitempty"`
	Persistent map[string]any `json:"persistent,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Version    string         `json:"version"`
}

// StatePatch is a partial update merged into an InstanceState by the
// lifecycle manager. Nil fields are left untouched.
type StatePatch struct {
	Config     *Configuration `json:"config,omitempty"`
	Internal   map[string]any `json:"internal,omitempty"`
	Persistent map[string]any `json:"persistent,omitempty"`
}

// MaxHistorySamples bounds the per-plugin performance history.
const MaxHistorySamples = 100

// Sample is one timestamped performance measurement.
type Sample struct {
	Timestamp   time.Time     `json:"timestamp"`
	Duration    time.Duration `json:"duration"`
	MemoryBytes int64         `json:"memory_bytes"`
	CPUPercent  float64       `json:"cpu_percent"`
	InputSize   int           `json:"input_size"`
	OutputSize  int           `json:"output_size"`
}

// MetricsRecord accumulates per-plugin execution telemetry.
type MetricsRecord struct {
	ExecutionCount uint64        `json:"execution_count"`
	ErrorCount     uint64        `json:"error_count"`
	AvgExecution   time.Duration `json:"avg_execution"`
	LastExecutedAt time.Time     `json:"last_executed_at"`
	History        []Sample      `json:"history,omitempty"`
}

// RecordSuccess folds a successful execution into the record using the
// rolling average avg = (avg*(n-1)+d)/n.
func (m *MetricsRecord) RecordSuccess(s Sample) {
	m.ExecutionCount++
	n := time.Duration(m.ExecutionCount)
	m.AvgExecution = (m.AvgExecution*(n-1) + s.Duration) / n
	m.LastExecutedAt = s.Timestamp
	m.appendSample(s)
}

// RecordFailure folds a failed execution into the record. Failures count
// against ErrorCount and do not move the rolling average.
func (m *MetricsRecord) RecordFailure(s Sample) {
	m.ErrorCount++
	m.LastExecutedAt = s.Timestamp
	m.appendSample(s)
}

func (m *MetricsRecord) appendSample(s Sample) {
	m.History = append(m.History, s)
	if len(m.History) > MaxHistorySamples {
		m.History = m.History[len(m.History)-MaxHistorySamples:]
	}
}

// HealthState summarizes plugin or system health.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
	HealthUnknown   HealthState = "unknown"
)

// CheckResult is the outcome of a single named health check.
type CheckResult string

const (
	CheckPass CheckResult = "pass"
	CheckFail CheckResult = "fail"
	CheckWarn CheckResult = "warn"
)

// HealthCheck is one named probe result.
type HealthCheck struct {
	Name   string      `json:"name"`
	Result CheckResult `json:"result"`
	Detail string      `json:"detail,omitempty"`
}

// HealthReport is the health of one plugin.
type HealthReport struct {
	Status HealthState   `json:"status"`
	Checks []HealthCheck `json:"checks,omitempty"`
}
