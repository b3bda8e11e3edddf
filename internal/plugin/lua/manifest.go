package lua

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// ManifestFile is the optional manifest inside a directory plugin.
const ManifestFile = "plugin.json"

// DefaultMain is the entry script of a directory plugin without a manifest.
const DefaultMain = "init.lua"

// Manifest describes a directory plugin.
type Manifest struct {
	// Name is informational; the registry name comes from registration.
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`

	// Main is the entry script relative to the plugin directory.
	Main string `json:"main"`

	// Options are defaults merged beneath the registered plugin options.
	Options map[string]any `json:"options,omitempty"`

	dir string
}

// namePattern validates plugin names.
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*[a-z0-9]$|^[a-z]$`)

// semverPattern validates version strings (simplified semver).
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// LoadManifest reads and validates dir/plugin.json.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	m.dir = dir
	m.applyDefaults()

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// manifestFor returns the manifest of a directory plugin, or a minimal one
// when the directory has no plugin.json.
func manifestFor(dir string) (*Manifest, error) {
	m, err := LoadManifest(dir)
	if errors.Is(err, os.ErrNotExist) {
		m = &Manifest{Name: filepath.Base(dir), dir: dir}
		m.applyDefaults()
		return m, nil
	}
	return m, err
}

// applyDefaults sets default values for optional fields.
func (m *Manifest) applyDefaults() {
	if m.Main == "" {
		m.Main = DefaultMain
	}
	if m.Version == "" {
		m.Version = "0.0.0"
	}
}

// Validate checks that the manifest is valid.
func (m *Manifest) Validate() error {
	if m.Name != "" && !namePattern.MatchString(m.Name) {
		return fmt.Errorf("%w: name %q must be lowercase alphanumeric with hyphens", ErrInvalidManifest, m.Name)
	}
	if !semverPattern.MatchString(m.Version) {
		return fmt.Errorf("%w: version %q is not semver", ErrInvalidManifest, m.Version)
	}
	if filepath.Ext(m.Main) != ".lua" {
		return fmt.Errorf("%w: main %q must be a .lua file", ErrInvalidManifest, m.Main)
	}
	if filepath.IsAbs(m.Main) || !filepath.IsLocal(m.Main) {
		return fmt.Errorf("%w: main %q must stay inside the plugin directory", ErrInvalidManifest, m.Main)
	}
	return nil
}

// Dir returns the plugin directory.
func (m *Manifest) Dir() string {
	return m.dir
}

// MainPath returns the full path to the entry script.
func (m *Manifest) MainPath() string {
	return filepath.Join(m.dir, m.Main)
}
