// Package loader discovers plugins on the filesystem. A plugin directory
// carries a plugin.yaml descriptor and a plugin.lua script; the loader turns
// each into a plugin.Plugin backed by a sandboxed Lua state.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/animus-host/animus/pkg/plugin"
)

// ScriptFile is the plugin entry-point script looked for next to the
// manifest.
const ScriptFile = "plugin.lua"

// Loader discovers scripted plugins from a set of directories.
type Loader struct {
	dirs []string
	log  *logrus.Logger
}

// New creates a loader over the given plugin directories.
func New(dirs []string, log *logrus.Logger) *Loader {
	if log == nil {
		log = logrus.New()
	}
	return &Loader{dirs: dirs, log: log}
}

// Discover scans the plugin directories and returns one plugin per
// well-formed plugin directory. Malformed directories are logged and
// skipped; discovery keeps going.
func (l *Loader) Discover(ctx context.Context) ([]plugin.Plugin, error) {
	var found []plugin.Plugin

	for _, dir := range l.dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			l.log.Debugf("plugin directory does not exist: %s", dir)
			continue
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			l.log.Warnf("failed to read plugin directory %s: %v", dir, err)
			continue
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return found, err
			}

			pluginDir := filepath.Join(dir, entry.Name())
			p, err := l.Load(pluginDir)
			if err != nil {
				l.log.Warnf("failed to load plugin from %s: %v", pluginDir, err)
				continue
			}
			found = append(found, p)
		}
	}

	return found, nil
}

// Load builds a plugin from a single directory.
func (l *Loader) Load(dir string) (plugin.Plugin, error) {
	desc, err := plugin.LoadManifestFromDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}

	script := filepath.Join(dir, ScriptFile)
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("plugin %q has no %s: %w", desc.ID, ScriptFile, err)
	}

	l.log.WithFields(logrus.Fields{
		"plugin":  desc.ID,
		"version": desc.Version,
		"dir":     dir,
	}).Info("discovered plugin")

	return NewLuaPlugin(desc, script), nil
}
