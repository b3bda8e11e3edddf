package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greeterModule = `
local M = {}

function M.add(a, b)
  return a + b
end

function M.greet(who)
  return "hello " .. who
end

function M.stamp(env)
  env.payload.seen = (env.payload.seen or 0) + 1
  env.payload.by = env.pluginName
end

return M
`

const configFile = `
plugin_paths = ["./plugins"]

[manager]
throw_on_invalid_method = true

[[plugins]]
name = "one"
target = "greeter"

[[plugins]]
name = "two"
target = "./plugins/greeter.lua"

[[plugins]]
name = "off"
target = "greeter"
enabled = false
`

func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "plugins"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugins", "greeter.lua"), []byte(greeterModule), 0o644))
	path := filepath.Join(dir, "plughost.toml")
	require.NoError(t, os.WriteFile(path, []byte(configFile), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand("test", "none", "today")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInvoke(t *testing.T) {
	cfg := writeFixture(t)

	out, err := execute(t, "invoke", "-c", cfg, "add", "2", "3")
	require.NoError(t, err)

	var res []any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, []any{float64(5), float64(5)}, res)
}

func TestInvokeTargetAndQuery(t *testing.T) {
	cfg := writeFixture(t)

	out, err := execute(t, "invoke", "-c", cfg, "--target", "two", "greet", "world")
	require.NoError(t, err)
	assert.Equal(t, `"hello world"`, strings.TrimSpace(out))

	out, err = execute(t, "invoke", "-c", cfg, "--query", "1", "greet", "you")
	require.NoError(t, err)
	assert.Equal(t, "hello you", strings.TrimSpace(out))
}

func TestInvokeAsync(t *testing.T) {
	cfg := writeFixture(t)

	out, err := execute(t, "invoke", "-c", cfg, "--async", "--target", "one", "add", "1", "1")
	require.NoError(t, err)
	assert.Equal(t, "2", strings.TrimSpace(out))
}

func TestInvokeUnknownMethodFails(t *testing.T) {
	cfg := writeFixture(t)

	_, err := execute(t, "invoke", "-c", cfg, "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestEvent(t *testing.T) {
	cfg := writeFixture(t)

	out, err := execute(t, "event", "-c", cfg, "stamp", "--set", "seen=10", "--pass", "meta.source=cli")
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.EqualValues(t, 12, payload["seen"])
	assert.Equal(t, "two", payload["by"])
	assert.Equal(t, map[string]any{"source": "cli"}, payload["meta"])

	out, err = execute(t, "event", "-c", cfg, "stamp", "--target", "one", "--query", "by")
	require.NoError(t, err)
	assert.Equal(t, "one", strings.TrimSpace(out))
}

func TestEventInvalidAssignment(t *testing.T) {
	cfg := writeFixture(t)

	_, err := execute(t, "event", "-c", cfg, "stamp", "--set", "novalue")
	assert.ErrorContains(t, err, "path=value")
}

func TestRequest(t *testing.T) {
	cfg := writeFixture(t)

	out, err := execute(t, "request", "-c", cfg, "get:names", "disabled")
	require.NoError(t, err)
	assert.JSONEq(t, `["off"]`, out)

	out, err = execute(t, "request", "-c", cfg, "has:plugin", `"two"`)
	require.NoError(t, err)
	assert.Equal(t, "true", strings.TrimSpace(out))

	out, err = execute(t, "request", "-c", cfg, "invoke:async", `["one"]`, "greet", "bus")
	require.NoError(t, err)
	assert.Equal(t, `"hello bus"`, strings.TrimSpace(out))
}

func TestList(t *testing.T) {
	cfg := writeFixture(t)

	out, err := execute(t, "list", "-c", cfg)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[1], "one")
	assert.Contains(t, lines[1], "enabled")
	assert.Contains(t, lines[1], "add, greet, stamp")
	assert.Contains(t, lines[3], "off")
	assert.Contains(t, lines[3], "disabled")

	out, err = execute(t, "list", "-c", cfg, "--disabled")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 2)

	_, err = execute(t, "list", "-c", cfg, "--enabled", "--disabled")
	assert.Error(t, err)
}

func TestListWithoutConfig(t *testing.T) {
	out, err := execute(t, "list")
	require.NoError(t, err)
	assert.Equal(t, "no plugins", strings.TrimSpace(out))
}

func TestSchemaCommand(t *testing.T) {
	out, err := execute(t, "schema")
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &schema))
	assert.Equal(t, "plughost configuration", schema["title"])
}

func TestLogFlags(t *testing.T) {
	_, err := execute(t, "list", "--log-level", "loud")
	assert.ErrorContains(t, err, "--log-level")

	_, err = execute(t, "list", "--log-format", "xml")
	assert.ErrorContains(t, err, "--log-format")

	_, err = execute(t, "list", "--log-level", "debug", "--log-format", "json")
	assert.NoError(t, err)
}

func TestWatchReloadsOnChange(t *testing.T) {
	cfg := writeFixture(t)
	script := filepath.Join(filepath.Dir(cfg), "plugins", "greeter.lua")

	cmd := newRootCommand("test", "none", "today")
	out := &syncBuffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"watch", "-c", cfg, "--debounce", "20ms"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "watching 3 plugin(s)")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(script, []byte(greeterModule+"\n-- edited\n"), 0o644))

	require.Eventually(t, func() bool {
		s := out.String()
		return strings.Contains(s, "one: reloaded") && strings.Contains(s, "two: reloaded")
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
