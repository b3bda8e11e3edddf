package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/plughost/internal/plugin"
)

// MemFS is an in-memory file system for testing.
type MemFS map[string]string

func (m MemFS) ReadFile(path string) ([]byte, error) {
	data, ok := m[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return []byte(data), nil
}

func noEnv(string) (string, bool) { return "", false }

func envMap(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func newTestLoader(files MemFS, env map[string]string) *Loader {
	return NewLoader(WithFS(files), WithEnv(NewEnvLoaderWithLookup(EnvPrefix, envMap(env))))
}

const tomlConfig = `
plugin_paths = ["./plugins", "/opt/plugins"]

[manager]
throw_on_invalid_target = true
event_prefix = "host:plugins"

[[plugins]]
name = "greeter"
target = "./plugins/greeter.lua"

[plugins.options]
greeting = "hello"
retries = 3

[[plugins]]
name = "audit"
enabled = false
`

const yamlConfig = `
pluginPaths:
  - ./plugins
manager:
  throwOnInvalidMethod: true
  noEventAdd: true
plugins:
  - name: greeter
    target: ../shared/greeter.lua
    options:
      greeting: hello
      nested:
        level: 2
  - name: audit
    enabled: false
`

func TestFormatOf(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"plughost.toml", FormatTOML, false},
		{"plughost.TOML", FormatTOML, false},
		{"plughost.yaml", FormatYAML, false},
		{"plughost.yml", FormatYAML, false},
		{"plughost.json", "", true},
		{"plughost", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := FormatOf(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad_TOML(t *testing.T) {
	l := newTestLoader(MemFS{"/etc/plughost/plughost.toml": tomlConfig}, nil)

	f, err := l.Load("/etc/plughost/plughost.toml")
	require.NoError(t, err)

	assert.Equal(t, "/etc/plughost/plughost.toml", f.Path())
	assert.True(t, f.Manager.ThrowOnInvalidTarget)
	assert.False(t, f.Manager.ThrowOnInvalidMethod)
	assert.Equal(t, "host:plugins", f.Manager.EventPrefix)
	assert.Equal(t, []string{"/etc/plughost/plugins", "/opt/plugins"}, f.PluginPaths)

	require.Len(t, f.Plugins, 2)
	greeter := f.Plugins[0]
	assert.Equal(t, "greeter", greeter.Name)
	assert.Equal(t, "/etc/plughost/plugins/greeter.lua", greeter.Target)
	assert.Nil(t, greeter.Enabled)
	assert.Equal(t, "hello", greeter.Options["greeting"])
	assert.EqualValues(t, 3, greeter.Options["retries"])

	audit, ok := f.Plugin("audit")
	require.True(t, ok)
	require.NotNil(t, audit.Enabled)
	assert.False(t, *audit.Enabled)
	assert.Empty(t, audit.Target)
}

func TestLoad_YAML(t *testing.T) {
	l := newTestLoader(MemFS{"/srv/app/plughost.yaml": yamlConfig}, nil)

	f, err := l.Load("/srv/app/plughost.yaml")
	require.NoError(t, err)

	assert.True(t, f.Manager.ThrowOnInvalidMethod)
	assert.True(t, f.Manager.NoEventAdd)
	assert.Equal(t, plugin.DefaultEventPrefix, f.Manager.EventPrefix)
	assert.Equal(t, []string{"/srv/app/plugins"}, f.PluginPaths)

	require.Len(t, f.Plugins, 2)
	assert.Equal(t, "/srv/shared/greeter.lua", f.Plugins[0].Target)
	assert.Equal(t, map[string]any{"level": 2}, f.Plugins[0].Options["nested"])
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	l := newTestLoader(MemFS{"/a.yaml": "", "/b.toml": ""}, nil)

	for _, path := range []string{"/a.yaml", "/b.toml"} {
		f, err := l.Load(path)
		require.NoError(t, err, path)
		assert.Equal(t, plugin.DefaultManagerConfig(), f.Manager)
		assert.Empty(t, f.Plugins)
	}
}

func TestLoad_Errors(t *testing.T) {
	files := MemFS{
		"/bad.toml":     "[manager\nthrow_on_invalid_target = true",
		"/unknown.toml": "[manager]\nthrow_on_invalid_taget = true\n",
		"/bad.yaml":     "plugins:\n  - name: a\n   target: b\n",
		"/unknown.yaml": "manager:\n  noEventAd: true\n",
		"/noname.yaml":  "plugins:\n  - target: ./a.lua\n",
		"/dup.toml":     "[[plugins]]\nname = \"a\"\n[[plugins]]\nname = \"a\"\n",
		"/prefix.yaml":  "manager:\n  eventPrefix: \"plugins:*\"\n",
	}
	l := newTestLoader(files, nil)

	t.Run("missing file", func(t *testing.T) {
		_, err := l.Load("/nope.toml")
		assert.ErrorIs(t, err, ErrFileNotFound)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := l.Load("/config.ini")
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})

	for _, path := range []string{"/bad.toml", "/unknown.toml", "/bad.yaml", "/unknown.yaml"} {
		t.Run("parse "+path, func(t *testing.T) {
			_, err := l.Load(path)
			var perr *ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, path, perr.Path)
			assert.Positive(t, perr.Line)
		})
	}

	validation := map[string]string{
		"/noname.yaml": "plugins[0].name",
		"/dup.toml":    "plugins[1].name",
		"/prefix.yaml": "manager.eventPrefix",
	}
	for path, field := range validation {
		t.Run("validate "+path, func(t *testing.T) {
			_, err := l.Load(path)
			assert.ErrorIs(t, err, ErrValidationFailed)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, field, verr.Path)
		})
	}
}

func TestLoad_NonStrictIgnoresUnknownKeys(t *testing.T) {
	l := NewLoader(
		WithFS(MemFS{"/c.yaml": "manager:\n  future: 1\n  noEventRemoval: true\n"}),
		WithEnv(nil),
		WithStrict(false),
	)

	f, err := l.Load("/c.yaml")
	require.NoError(t, err)
	assert.True(t, f.Manager.NoEventRemoval)
}

func TestLoad_RealFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plughost.toml")
	require.NoError(t, os.WriteFile(path, []byte(tomlConfig), 0o644))
	t.Setenv("PLUGHOST_NO_EVENT_REMOVAL", "yes")

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, f.Dir())
	assert.True(t, f.Manager.NoEventRemoval)
	assert.Equal(t, filepath.Join(dir, "plugins", "greeter.lua"), f.Plugins[0].Target)
}

func TestEnvLoader_Apply(t *testing.T) {
	env := map[string]string{
		"PLUGHOST_THROW_ON_INVALID_TARGET": "on",
		"PLUGHOST_THROW_ON_INVALID_METHOD": "1",
		"PLUGHOST_NO_EVENT_ADD":            "false",
		"PLUGHOST_EVENT_PREFIX":            "ext",
		"PLUGHOST_PLUGIN_PATHS":            `["./a", "/b"]`,
	}
	l := newTestLoader(MemFS{"/p/c.toml": tomlConfig}, env)

	f, err := l.Load("/p/c.toml")
	require.NoError(t, err)

	assert.True(t, f.Manager.ThrowOnInvalidTarget)
	assert.True(t, f.Manager.ThrowOnInvalidMethod)
	assert.False(t, f.Manager.NoEventAdd)
	assert.Equal(t, "ext", f.Manager.EventPrefix)
	// Overrides are not anchored at the file's directory.
	assert.Equal(t, []string{"./a", "/b"}, f.PluginPaths)
}

func TestEnvLoader_PathList(t *testing.T) {
	list := "/a" + string(os.PathListSeparator) + "/b"
	e := NewEnvLoaderWithLookup("X_", envMap(map[string]string{"X_PLUGIN_PATHS": list}))

	f := Default()
	require.NoError(t, e.Apply(f))
	assert.Equal(t, []string{"/a", "/b"}, f.PluginPaths)
}

func TestEnvLoader_InvalidValue(t *testing.T) {
	e := NewEnvLoaderWithLookup(EnvPrefix, envMap(map[string]string{"PLUGHOST_NO_EVENT_ADD": "maybe"}))

	err := e.Apply(Default())
	assert.ErrorIs(t, err, ErrInvalidEnv)
	assert.Contains(t, err.Error(), "PLUGHOST_NO_EVENT_ADD")
}

func TestEnvLoader_Names(t *testing.T) {
	names := NewEnvLoaderWithLookup(EnvPrefix, noEnv).Names()
	assert.Contains(t, names, "PLUGHOST_THROW_ON_INVALID_TARGET")
	assert.Contains(t, names, "PLUGHOST_PLUGIN_PATHS")
}

func TestParse_InMemory(t *testing.T) {
	l := NewLoader(WithEnv(nil))

	f, err := l.Parse("inline", FormatYAML, []byte("plugins:\n  - name: a\n    target: ./a.lua\n"))
	require.NoError(t, err)
	assert.Empty(t, f.Path())
	assert.Empty(t, f.Dir())
	assert.Equal(t, "./a.lua", f.Plugins[0].Target)

	_, err = l.Parse("inline", Format("ini"), nil)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSchema(t *testing.T) {
	data, err := Schema()
	require.NoError(t, err)

	s := string(data)
	assert.Contains(t, s, `"pluginPaths"`)
	assert.Contains(t, s, `"plugins"`)
	assert.Contains(t, s, `"throwOnInvalidTarget"`)
	assert.Contains(t, s, `"plughost configuration"`)
}

func echo() *plugin.MethodSet {
	return plugin.NewMethodSet().Add("echo", func(_ context.Context, args ...any) (any, error) {
		return args, nil
	})
}

func TestApply(t *testing.T) {
	modules := plugin.NewModuleLoader()
	modules.RegisterInstance("echo", echo())
	m := plugin.NewManager(plugin.WithLoader(modules))

	off := false
	f := &File{
		Manager: plugin.DefaultManagerConfig(),
		Plugins: []PluginSpec{
			{Name: "a", Target: "echo", Options: map[string]any{"k": "v"}},
			{Name: "missing"},
			{Name: "b", Target: "echo", Enabled: &off},
		},
	}

	err := f.Apply(context.Background(), m)
	require.Error(t, err)
	assert.ErrorIs(t, err, plugin.ErrModuleNotFound)
	assert.Contains(t, err.Error(), "plugins[1] (missing)")

	assert.Equal(t, []string{"a", "b"}, m.ListPluginNames(plugin.FilterAll))
	assert.Equal(t, []string{"a"}, m.ListPluginNames(plugin.FilterEnabled))

	opts, ok := m.Options("a")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"k": "v"}, opts)
}

func TestSync(t *testing.T) {
	modules := plugin.NewModuleLoader()
	modules.RegisterInstance("echo", echo())
	m := plugin.NewManager(plugin.WithLoader(modules))
	ctx := context.Background()

	first := &File{Plugins: []PluginSpec{{Name: "a", Target: "echo"}, {Name: "b", Target: "echo"}}}
	require.NoError(t, first.Apply(ctx, m))

	second := &File{Plugins: []PluginSpec{{Name: "c", Target: "echo"}, {Name: "a", Target: "echo"}}}
	require.NoError(t, second.Sync(ctx, m))

	assert.Equal(t, []string{"c", "a"}, m.ListPluginNames(plugin.FilterAll))
}

func TestValidationError(t *testing.T) {
	err := error(&ValidationError{Path: "plugins[0].name", Message: "failed \"required\" constraint"})
	assert.True(t, errors.Is(err, ErrValidationFailed))
	assert.Equal(t, `plugins[0].name: failed "required" constraint`, err.Error())
}
