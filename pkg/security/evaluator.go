package security

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/animus-host/animus/pkg/plugin"
)

// MemoryCeilingMB is the system-wide memory limit a single plugin may not
// exceed. Declaring more is flagged as a performance issue, not a hard error.
const MemoryCeilingMB = 1024

// Issue is a single finding from descriptor validation.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Field == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// Result is the outcome of validating one descriptor. Valid is true iff
// Errors and SecurityIssues are both empty; warnings and performance issues
// never block registration.
type Result struct {
	Valid             bool    `json:"valid"`
	Errors            []Issue `json:"errors,omitempty"`
	Warnings          []Issue `json:"warnings,omitempty"`
	SecurityIssues    []Issue `json:"security_issues,omitempty"`
	PerformanceIssues []Issue `json:"performance_issues,omitempty"`
}

// Violations flattens blocking findings into messages suitable for a
// ValidationError.
func (r *Result) Violations() []string {
	out := make([]string, 0, len(r.Errors)+len(r.SecurityIssues))
	for _, i := range r.Errors {
		out = append(out, i.String())
	}
	for _, i := range r.SecurityIssues {
		out = append(out, i.String())
	}
	return out
}

// PolicySource resolves a registered plugin's security policy. Implemented by
// the lifecycle manager, which owns the descriptor table.
type PolicySource interface {
	Policy(pluginID string) (*plugin.SecurityPolicy, bool)
}

// LimitEnforcer applies process-level constraints matching a plugin's
// declared limits. The default enforcer only logs; hosts with real sandboxing
// substitute their own.
type LimitEnforcer func(pluginID string, limits plugin.ResourceLimits) error

// Evaluator checks descriptors and permissions against the reference policy.
type Evaluator struct {
	mu       sync.RWMutex
	source   PolicySource
	enforcer LimitEnforcer
	log      *logrus.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLimitEnforcer replaces the advisory default enforcer.
func WithLimitEnforcer(fn LimitEnforcer) Option {
	return func(e *Evaluator) { e.enforcer = fn }
}

// NewEvaluator creates an evaluator. Bind the registry's policy source with
// BindSource before permission checks; Validate needs no source.
func NewEvaluator(log *logrus.Logger, opts ...Option) *Evaluator {
	if log == nil {
		log = logrus.New()
	}
	e := &Evaluator{log: log}
	e.enforcer = func(pluginID string, limits plugin.ResourceLimits) error {
		e.log.WithFields(logrus.Fields{
			"plugin":     pluginID,
			"memory_mb":  limits.MaxMemoryMB,
			"timeout_ms": limits.TimeoutMS,
		}).Debug("advisory resource limits applied")
		return nil
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Validate checks a descriptor against the reference policy. Pure: no side
// effects, no registry access.
func (e *Evaluator) Validate(desc *plugin.Descriptor) *Result {
	res := &Result{}

	if desc == nil {
		res.Errors = append(res.Errors, Issue{Message: "descriptor is nil"})
		return res
	}

	// Required fields.
	if desc.ID == "" {
		res.Errors = append(res.Errors, Issue{Field: "id", Message: "plugin id is required"})
	} else if !plugin.IsValidID(desc.ID) {
		res.Errors = append(res.Errors, Issue{Field: "id", Message: "plugin id must be lowercase alphanumeric with hyphens"})
	}
	if desc.Name == "" {
		res.Errors = append(res.Errors, Issue{Field: "name", Message: "plugin name is required"})
	}
	if desc.Version == "" {
		res.Errors = append(res.Errors, Issue{Field: "version", Message: "version is required"})
	} else if !plugin.IsValidSemver(desc.Version) {
		res.Errors = append(res.Errors, Issue{Field: "version", Message: fmt.Sprintf("invalid semver: %s", desc.Version)})
	}
	if desc.Category == "" {
		res.Errors = append(res.Errors, Issue{Field: "category", Message: "category is required"})
	} else if !plugin.ValidCategories[desc.Category] {
		res.Errors = append(res.Errors, Issue{Field: "category", Message: fmt.Sprintf("invalid category: %s", desc.Category)})
	}
	if !desc.Security.Level.Valid() {
		res.Errors = append(res.Errors, Issue{Field: "security.level", Message: fmt.Sprintf("invalid security level: %s", desc.Security.Level)})
	}

	// Individually-typed plugins must declare no dependencies.
	if desc.Kind == plugin.KindIndividual && len(desc.Dependencies) > 0 {
		res.Errors = append(res.Errors, Issue{Field: "dependencies", Message: "individual plugins must not declare dependencies"})
	}

	// Category invariants.
	if desc.Category == plugin.CategoryIdentity && desc.Security.Level != plugin.SecurityLevelCritical {
		res.SecurityIssues = append(res.SecurityIssues, Issue{
			Field:   "security.level",
			Message: "identity plugins require security level critical",
		})
	}
	if desc.Category == plugin.CategoryGoal && isAutonomous(desc.ID) && !desc.Security.Level.AtLeast(plugin.SecurityLevelHigh) {
		res.SecurityIssues = append(res.SecurityIssues, Issue{
			Field:   "security.level",
			Message: "autonomous goal plugins require security level high or critical",
		})
	}

	// Low-trust plugins carrying permissions deserve scrutiny, not rejection.
	if desc.Security.Level == plugin.SecurityLevelLow && len(desc.Security.Permissions) > 0 {
		res.Warnings = append(res.Warnings, Issue{
			Field:   "security.permissions",
			Message: "low security level with declared permissions",
		})
	}

	// Memory ceiling is a performance concern.
	if desc.Security.Limits.MaxMemoryMB > MemoryCeilingMB {
		res.PerformanceIssues = append(res.PerformanceIssues, Issue{
			Field:   "security.limits.max_memory_mb",
			Message: fmt.Sprintf("declared memory limit %d MB exceeds ceiling of %d MB", desc.Security.Limits.MaxMemoryMB, MemoryCeilingMB),
		})
	}

	res.Valid = len(res.Errors) == 0 && len(res.SecurityIssues) == 0
	return res
}

// BindSource attaches the registry's policy source. The lifecycle manager
// binds itself once at composition time.
func (e *Evaluator) BindSource(source PolicySource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.source = source
}

func (e *Evaluator) policy(pluginID string) (*plugin.SecurityPolicy, bool) {
	e.mu.RLock()
	source := e.source
	e.mu.RUnlock()
	if source == nil {
		return nil, false
	}
	return source.Policy(pluginID)
}

// CheckPermission reports whether a registered plugin declares the named
// permission. Unknown plugins hold no permissions.
func (e *Evaluator) CheckPermission(pluginID, permission string) bool {
	policy, ok := e.policy(pluginID)
	if !ok {
		return false
	}
	return policy.HasPermission(permission)
}

// EnforceResourceLimits invokes the resource-limit hook for a registered
// plugin. Called once per load and once per execution.
func (e *Evaluator) EnforceResourceLimits(pluginID string) error {
	policy, ok := e.policy(pluginID)
	if !ok {
		return fmt.Errorf("enforce limits: %w: %s", plugin.ErrNotFound, pluginID)
	}
	return e.enforcer(pluginID, policy.Limits)
}

// isAutonomous reports whether a plugin id marks the plugin as acting
// without user initiation.
func isAutonomous(id string) bool {
	return strings.Contains(id, "autonomous")
}
