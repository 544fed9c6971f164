package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the descriptor file name looked for in a plugin directory.
const ManifestFile = "plugin.yaml"

var (
	semverRegex   = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)
	pluginIDRegex = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

// LoadManifest loads and parses a plugin descriptor from a YAML file.
func LoadManifest(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var desc Descriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	return &desc, nil
}

// LoadManifestFromDir loads a plugin descriptor from a directory.
func LoadManifestFromDir(dir string) (*Descriptor, error) {
	return LoadManifest(filepath.Join(dir, ManifestFile))
}

// SaveManifest writes a plugin descriptor to a YAML file.
func SaveManifest(desc *Descriptor, path string) error {
	data, err := yaml.Marshal(desc)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return nil
}

// IsValidSemver checks whether a version string follows semantic versioning.
func IsValidSemver(version string) bool {
	return semverRegex.MatchString(version)
}

// IsValidID checks whether a plugin id is lowercase alphanumeric with
// hyphens (e.g. "emotion-mirror").
func IsValidID(id string) bool {
	return pluginIDRegex.MatchString(id)
}
