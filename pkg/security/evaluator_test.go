package security

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animus-host/animus/pkg/plugin"
)

func validDescriptor() *plugin.Descriptor {
	return &plugin.Descriptor{
		ID:       "note-taker",
		Name:     "Note Taker",
		Version:  "1.2.3",
		Category: plugin.CategoryMemory,
		Kind:     plugin.KindIndividual,
		Security: plugin.SecurityPolicy{Level: plugin.SecurityLevelMedium},
	}
}

func TestEvaluator_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*plugin.Descriptor)
		valid    bool
		errors   int
		security int
		warnings int
		perf     int
	}{
		{
			name:   "valid descriptor",
			mutate: func(*plugin.Descriptor) {},
			valid:  true,
		},
		{
			name:   "missing id",
			mutate: func(d *plugin.Descriptor) { d.ID = "" },
			errors: 1,
		},
		{
			name:   "uppercase id",
			mutate: func(d *plugin.Descriptor) { d.ID = "NoteTaker" },
			errors: 1,
		},
		{
			name:   "missing name",
			mutate: func(d *plugin.Descriptor) { d.Name = "" },
			errors: 1,
		},
		{
			name:   "bad semver",
			mutate: func(d *plugin.Descriptor) { d.Version = "v1.2" },
			errors: 1,
		},
		{
			name:   "unknown category",
			mutate: func(d *plugin.Descriptor) { d.Category = "telepathy" },
			errors: 1,
		},
		{
			name:   "unknown security level",
			mutate: func(d *plugin.Descriptor) { d.Security.Level = "maximum" },
			errors: 1,
		},
		{
			name: "individual with dependencies",
			mutate: func(d *plugin.Descriptor) {
				d.Dependencies = []string{"other"}
			},
			errors: 1,
		},
		{
			name: "identity below critical",
			mutate: func(d *plugin.Descriptor) {
				d.Category = plugin.CategoryIdentity
				d.Security.Level = plugin.SecurityLevelHigh
			},
			security: 1,
		},
		{
			name: "identity at critical",
			mutate: func(d *plugin.Descriptor) {
				d.Category = plugin.CategoryIdentity
				d.Security.Level = plugin.SecurityLevelCritical
			},
			valid: true,
		},
		{
			name: "autonomous goal below high",
			mutate: func(d *plugin.Descriptor) {
				d.ID = "autonomous-planner"
				d.Category = plugin.CategoryGoal
				d.Security.Level = plugin.SecurityLevelMedium
			},
			security: 1,
		},
		{
			name: "autonomous goal at high",
			mutate: func(d *plugin.Descriptor) {
				d.ID = "autonomous-planner"
				d.Category = plugin.CategoryGoal
				d.Security.Level = plugin.SecurityLevelHigh
			},
			valid: true,
		},
		{
			name: "non-autonomous goal stays unconstrained",
			mutate: func(d *plugin.Descriptor) {
				d.ID = "weekly-review"
				d.Category = plugin.CategoryGoal
				d.Security.Level = plugin.SecurityLevelLow
			},
			valid: true,
		},
		{
			name: "low level with permissions warns",
			mutate: func(d *plugin.Descriptor) {
				d.Security.Level = plugin.SecurityLevelLow
				d.Security.Permissions = []plugin.Permission{{Name: "fs.read", Scope: plugin.ScopeRead}}
			},
			valid:    true,
			warnings: 1,
		},
		{
			name: "memory above ceiling flags performance",
			mutate: func(d *plugin.Descriptor) {
				d.Security.Limits.MaxMemoryMB = MemoryCeilingMB + 1
			},
			valid: true,
			perf:  1,
		},
	}

	e := NewEvaluator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := validDescriptor()
			tt.mutate(desc)

			res := e.Validate(desc)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Len(t, res.Errors, tt.errors)
			assert.Len(t, res.SecurityIssues, tt.security)
			assert.Len(t, res.Warnings, tt.warnings)
			assert.Len(t, res.PerformanceIssues, tt.perf)
		})
	}
}

func TestEvaluator_ValidateNil(t *testing.T) {
	e := NewEvaluator(nil)
	res := e.Validate(nil)
	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
}

func TestResult_Violations(t *testing.T) {
	res := &Result{
		Errors:         []Issue{{Field: "id", Message: "plugin id is required"}},
		SecurityIssues: []Issue{{Message: "untrusted"}},
		Warnings:       []Issue{{Message: "noise"}},
	}
	got := res.Violations()
	assert.Equal(t, []string{"id: plugin id is required", "untrusted"}, got)
}

// staticSource is a fixed policy table for permission tests.
type staticSource map[string]*plugin.SecurityPolicy

func (s staticSource) Policy(id string) (*plugin.SecurityPolicy, bool) {
	p, ok := s[id]
	return p, ok
}

func TestEvaluator_CheckPermission(t *testing.T) {
	e := NewEvaluator(nil)
	e.BindSource(staticSource{
		"scribe": {
			Level: plugin.SecurityLevelMedium,
			Permissions: []plugin.Permission{
				{Name: "fs.read", Scope: plugin.ScopeRead},
			},
		},
	})

	assert.True(t, e.CheckPermission("scribe", "fs.read"))
	assert.False(t, e.CheckPermission("scribe", "fs.write"))
	assert.False(t, e.CheckPermission("ghost", "fs.read"))
}

func TestEvaluator_CheckPermissionWithoutSource(t *testing.T) {
	e := NewEvaluator(nil)
	assert.False(t, e.CheckPermission("anyone", "anything"))
}

func TestEvaluator_EnforceResourceLimits(t *testing.T) {
	var gotID string
	var gotLimits plugin.ResourceLimits
	e := NewEvaluator(nil, WithLimitEnforcer(func(id string, limits plugin.ResourceLimits) error {
		gotID = id
		gotLimits = limits
		return nil
	}))
	e.BindSource(staticSource{
		"heavy": {
			Level:  plugin.SecurityLevelHigh,
			Limits: plugin.ResourceLimits{MaxMemoryMB: 256, TimeoutMS: 500},
		},
	})

	require.NoError(t, e.EnforceResourceLimits("heavy"))
	assert.Equal(t, "heavy", gotID)
	assert.Equal(t, 256, gotLimits.MaxMemoryMB)

	err := e.EnforceResourceLimits("ghost")
	assert.ErrorIs(t, err, plugin.ErrNotFound)
}

func TestEvaluator_EnforcerFailureSurfaces(t *testing.T) {
	boom := errors.New("cgroup write failed")
	e := NewEvaluator(nil, WithLimitEnforcer(func(string, plugin.ResourceLimits) error {
		return boom
	}))
	e.BindSource(staticSource{"heavy": {Level: plugin.SecurityLevelHigh}})

	assert.ErrorIs(t, e.EnforceResourceLimits("heavy"), boom)
}
