package lua

import "errors"

// Errors for Lua plugin loading and execution.
var (
	// ErrStateClosed is returned when operating on a closed state.
	ErrStateClosed = errors.New("lua state is closed")

	// ErrScriptNotFound is returned when a target resolves to no script.
	ErrScriptNotFound = errors.New("lua plugin script not found")

	// ErrNotModule is returned when a script does not return a table.
	ErrNotModule = errors.New("lua plugin script must return a table")

	// ErrInvalidManifest is returned for a malformed plugin.json.
	ErrInvalidManifest = errors.New("invalid plugin manifest")

	// ErrNoEventbus is raised inside Lua when a plugin uses the eventbus
	// while the manager has none bound.
	ErrNoEventbus = errors.New("no eventbus bound")
)
