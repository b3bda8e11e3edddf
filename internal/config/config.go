// Package config loads plughost runtime configuration files.
//
// A configuration file carries the plugin manager flags, the Lua plugin
// search paths and the list of plugins to register at startup. Files are
// TOML or YAML, chosen by extension:
//
//	plugin_paths = ["./plugins"]
//
//	[manager]
//	throw_on_invalid_target = true
//	event_prefix = "plugins"
//
//	[[plugins]]
//	name = "greeter"
//	target = "./plugins/greeter.lua"
//
//	[plugins.options]
//	greeting = "hello"
//
// Environment variables prefixed with PLUGHOST_ override the manager flags
// after the file is read.
package config

import (
	"path/filepath"
	"strings"

	"github.com/dshills/plughost/internal/plugin"
)

// File is a decoded configuration file.
type File struct {
	// Manager holds the dispatch and bus command flags.
	Manager plugin.ManagerConfig `json:"manager" toml:"manager" yaml:"manager"`

	// PluginPaths are searched in order for relative Lua plugin targets.
	PluginPaths []string `json:"pluginPaths,omitempty" toml:"plugin_paths" yaml:"pluginPaths,omitempty" jsonschema:"description=Search paths for Lua plugin targets"`

	// Plugins are registered in order by Apply.
	Plugins []PluginSpec `json:"plugins,omitempty" toml:"plugins" yaml:"plugins,omitempty" validate:"dive"`

	path string
}

// PluginSpec describes one plugin to register.
type PluginSpec struct {
	Name string `json:"name" toml:"name" yaml:"name" validate:"required" jsonschema:"required"`

	// Target defaults to Name when empty.
	Target string `json:"target,omitempty" toml:"target" yaml:"target,omitempty"`

	// Enabled leaves the plugin enabled when nil.
	Enabled *bool `json:"enabled,omitempty" toml:"enabled" yaml:"enabled,omitempty"`

	Options map[string]any `json:"options,omitempty" toml:"options" yaml:"options,omitempty" validate:"-"`
}

// RegisterConfig converts the entry to a manager registration.
func (s PluginSpec) RegisterConfig() plugin.RegisterConfig {
	return plugin.RegisterConfig{
		Name:    s.Name,
		Target:  s.Target,
		Options: s.Options,
	}
}

// Default returns a configuration with the default manager flags and no
// plugins.
func Default() *File {
	return &File{Manager: plugin.DefaultManagerConfig()}
}

// Path returns the file the configuration was loaded from, if any.
func (f *File) Path() string {
	return f.path
}

// Dir returns the directory of the loaded file, or "" for an in-memory
// configuration.
func (f *File) Dir() string {
	if f.path == "" {
		return ""
	}
	return filepath.Dir(f.path)
}

// Plugin returns the plugin entry with the given name.
func (f *File) Plugin(name string) (PluginSpec, bool) {
	for _, ps := range f.Plugins {
		if ps.Name == name {
			return ps, true
		}
	}
	return PluginSpec{}, false
}

// resolvePaths anchors ./ and ../ targets and search paths at the
// configuration file's directory.
func (f *File) resolvePaths() {
	dir := f.Dir()
	if dir == "" {
		return
	}
	for i, p := range f.PluginPaths {
		if isRelative(p) {
			f.PluginPaths[i] = filepath.Join(dir, p)
		}
	}
	for i, ps := range f.Plugins {
		if isRelative(ps.Target) {
			f.Plugins[i].Target = filepath.Join(dir, ps.Target)
		}
	}
}

func isRelative(p string) bool {
	return strings.HasPrefix(p, "./") || strings.HasPrefix(p, "../")
}
