package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnvPrefix is the default prefix of override variables.
const EnvPrefix = "PLUGHOST_"

// EnvLoader overrides configuration fields from environment variables.
type EnvLoader struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvLoader creates an override loader for the given prefix.
// The prefix should include the trailing underscore (e.g., "PLUGHOST_").
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{prefix: prefix, lookup: os.LookupEnv}
}

// NewEnvLoaderWithLookup creates a loader reading variables from lookup
// instead of the process environment.
func NewEnvLoaderWithLookup(prefix string, lookup func(string) (string, bool)) *EnvLoader {
	return &EnvLoader{prefix: prefix, lookup: lookup}
}

type envField struct {
	name  string
	apply func(f *File, value string) error
}

var envFields = []envField{
	{"THROW_ON_INVALID_TARGET", boolField(func(f *File) *bool { return &f.Manager.ThrowOnInvalidTarget })},
	{"THROW_ON_INVALID_METHOD", boolField(func(f *File) *bool { return &f.Manager.ThrowOnInvalidMethod })},
	{"NO_EVENT_ADD", boolField(func(f *File) *bool { return &f.Manager.NoEventAdd })},
	{"NO_EVENT_REMOVAL", boolField(func(f *File) *bool { return &f.Manager.NoEventRemoval })},
	{"EVENT_PREFIX", func(f *File, value string) error {
		f.Manager.EventPrefix = value
		return nil
	}},
	{"PLUGIN_PATHS", func(f *File, value string) error {
		paths, err := parseList(value)
		if err != nil {
			return err
		}
		f.PluginPaths = paths
		return nil
	}},
}

// Names returns the variable names the loader reads, in application order.
func (l *EnvLoader) Names() []string {
	names := make([]string, len(envFields))
	for i, field := range envFields {
		names[i] = l.prefix + field.name
	}
	return names
}

// Apply overrides f with every variable that is set.
// Note: Empty string values are treated as valid values, not as unset.
func (l *EnvLoader) Apply(f *File) error {
	for _, field := range envFields {
		name := l.prefix + field.name
		value, ok := l.lookup(name)
		if !ok {
			continue
		}
		if err := field.apply(f, value); err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidEnv, name, value, err)
		}
	}
	return nil
}

func boolField(get func(*File) *bool) func(*File, string) error {
	return func(f *File, value string) error {
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		*get(f) = b
		return nil
	}
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "on", "1":
		return true, nil
	case "false", "no", "off", "0", "":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean")
}

// parseList accepts a JSON array or an OS path list.
func parseList(s string) ([]string, error) {
	if strings.HasPrefix(strings.TrimSpace(s), "[") {
		var list []string
		if err := json.Unmarshal([]byte(s), &list); err != nil {
			return nil, err
		}
		return list, nil
	}
	if s == "" {
		return nil, nil
	}
	return filepath.SplitList(s), nil
}
