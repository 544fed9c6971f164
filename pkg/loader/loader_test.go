package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animus-host/animus/pkg/plugin"
)

const echoScript = `
counter = 0

function initialize()
  counter = 1
end

function execute(input)
  counter = counter + 1
  return { type = "echoed", data = input.data, success = true, metadata = { calls = counter } }
end

function cleanup()
  counter = 0
end
`

func writePlugin(t *testing.T, root, id, script string) string {
	t.Helper()
	dir := filepath.Join(root, id)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	desc := &plugin.Descriptor{
		ID:         id,
		Name:       "Plugin " + id,
		Version:    "1.0.0",
		Category:   plugin.CategoryUtility,
		Kind:       plugin.KindIndividual,
		AutoEnable: true,
		Security:   plugin.SecurityPolicy{Level: plugin.SecurityLevelLow},
	}
	require.NoError(t, plugin.SaveManifest(desc, filepath.Join(dir, plugin.ManifestFile)))
	if script != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, ScriptFile), []byte(script), 0o644))
	}
	return dir
}

func TestLoader_Discover(t *testing.T) {
	root := t.TempDir()
	writePlugin(t, root, "echo", echoScript)
	writePlugin(t, root, "mirror", echoScript)

	// Malformed directories are skipped, not fatal.
	writePlugin(t, root, "script-less", "")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray-file"), []byte("x"), 0o644))

	l := New([]string{root, filepath.Join(root, "does-not-exist")}, nil)
	found, err := l.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 2)

	ids := []string{found[0].Descriptor().ID, found[1].Descriptor().ID}
	assert.ElementsMatch(t, []string{"echo", "mirror"}, ids)
}

func TestLuaPlugin_Lifecycle(t *testing.T) {
	root := t.TempDir()
	dir := writePlugin(t, root, "echo", echoScript)

	l := New(nil, nil)
	p, err := l.Load(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, p.Initialize(ctx))
	defer p.Cleanup(ctx)

	out, err := p.Execute(ctx, &plugin.Input{Type: "say", Data: "hello"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "echoed", out.Type)
	assert.Equal(t, "hello", out.Data)
	require.NotNil(t, out.Metadata)
	assert.Equal(t, float64(2), out.Metadata["calls"])

	out, err = p.Execute(ctx, &plugin.Input{Type: "say", Data: "again"})
	require.NoError(t, err)
	assert.Equal(t, float64(3), out.Metadata["calls"])
}

func TestLuaPlugin_StructuredData(t *testing.T) {
	script := `
function execute(input)
  return {
    type = "summary",
    data = { items = { "a", "b" }, total = 2 },
    success = true,
  }
end
`
	root := t.TempDir()
	dir := writePlugin(t, root, "shaper", script)

	l := New(nil, nil)
	p, err := l.Load(dir)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, p.Initialize(ctx))
	defer p.Cleanup(ctx)

	out, err := p.Execute(ctx, &plugin.Input{Type: "shape", Data: map[string]any{"n": 2}})
	require.NoError(t, err)

	data, ok := out.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(2), data["total"])
	assert.Equal(t, []any{"a", "b"}, data["items"])
}

func TestLuaPlugin_ReportedFailure(t *testing.T) {
	script := `
function execute(input)
  return { success = false, error = "cannot comply" }
end
`
	root := t.TempDir()
	dir := writePlugin(t, root, "refuser", script)

	l := New(nil, nil)
	p, err := l.Load(dir)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, p.Initialize(ctx))
	defer p.Cleanup(ctx)

	_, err = p.Execute(ctx, &plugin.Input{Type: "do"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot comply")
}

func TestLuaPlugin_MissingExecute(t *testing.T) {
	root := t.TempDir()
	dir := writePlugin(t, root, "mute", `function initialize() end`)

	l := New(nil, nil)
	p, err := l.Load(dir)
	require.NoError(t, err)

	err = p.Initialize(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute")
}

func TestLuaPlugin_ExecuteBeforeInitialize(t *testing.T) {
	root := t.TempDir()
	dir := writePlugin(t, root, "eager", echoScript)

	l := New(nil, nil)
	p, err := l.Load(dir)
	require.NoError(t, err)

	_, err = p.Execute(context.Background(), &plugin.Input{Type: "x"})
	assert.Error(t, err)
}

func TestLuaPlugin_CleanupIdempotent(t *testing.T) {
	root := t.TempDir()
	dir := writePlugin(t, root, "tidy", echoScript)

	l := New(nil, nil)
	p, err := l.Load(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, p.Initialize(ctx))
	require.NoError(t, p.Cleanup(ctx))
	require.NoError(t, p.Cleanup(ctx))
}
