package plugin

import (
	"context"
	"maps"

	"github.com/mitchellh/copystructure"

	"github.com/dshills/plughost/internal/event"
)

// EntryType records how an entry's capability was obtained.
type EntryType int

const (
	// TypeInstance means the caller supplied a constructed capability.
	TypeInstance EntryType = iota

	// TypeModule means the target was resolved as a module name.
	TypeModule

	// TypePath means the target was resolved as a file system path.
	TypePath
)

// String returns a string representation of the entry type.
func (t EntryType) String() string {
	switch t {
	case TypeInstance:
		return "instance"
	case TypeModule:
		return "require-module"
	case TypePath:
		return "require-path"
	default:
		return "unknown"
	}
}

// Entry is the registry's record for one plugin.
type Entry struct {
	name     string
	typ      EntryType
	target   string
	instance Capability
	enabled  bool
	scope    *event.Scope
	options  map[string]any
}

// Name returns the plugin's unique name.
func (e *Entry) Name() string { return e.name }

// Type returns how the capability was obtained.
func (e *Entry) Type() EntryType { return e.typ }

// Target returns the resolution string; empty for TypeInstance.
func (e *Entry) Target() string { return e.target }

// Instance returns the capability object.
func (e *Entry) Instance() Capability { return e.instance }

// Enabled reports whether dispatch includes this entry.
func (e *Entry) Enabled() bool { return e.enabled }

// Scope returns the entry's event scope, or nil when no bus is bound.
func (e *Entry) Scope() *event.Scope { return e.scope }

// Options returns a deep copy of the entry's options.
func (e *Entry) Options() map[string]any { return cloneMap(e.options) }

// method looks up a dispatchable method.
func (e *Entry) method(name string) (Method, bool) {
	return e.instance.Methods().Get(name)
}

// hook returns the lifecycle callback for name, preferring the Loadable and
// Unloadable interfaces over a same-named MethodSet entry.
func (e *Entry) hook(name string) (Method, bool) {
	switch name {
	case HookLoad:
		if l, ok := e.instance.(Loadable); ok {
			return EventMethod(l.OnPluginLoad), true
		}
	case HookUnload:
		if u, ok := e.instance.(Unloadable); ok {
			return EventMethod(u.OnPluginUnload), true
		}
	}
	return e.method(name)
}

// eventbus returns the scope as a Bus, avoiding a typed nil.
func (e *Entry) eventbus() event.Bus {
	if e.scope == nil {
		return nil
	}
	return e.scope
}

// rebind revokes the current scope and, when bus is non-nil, allocates a
// fresh one on it.
func (e *Entry) rebind(bus event.Bus) error {
	var err error
	if e.scope != nil {
		err = e.scope.RevokeAll()
		e.scope = nil
	}
	if bus != nil {
		e.scope = event.NewScope(bus)
	}
	return err
}

// MethodPair names one callable member of one plugin.
type MethodPair struct {
	Plugin string `json:"plugin"`
	Method string `json:"method"`
}

// call invokes fn and converts panics and errors into *InvocationError.
func call(ctx context.Context, plugin, method string, fn Method, args []any) (res any, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = &InvocationError{Plugin: plugin, Method: method, Err: panicError(r)}
		}
	}()

	res, err = fn(ctx, args...)
	if err != nil {
		return nil, &InvocationError{Plugin: plugin, Method: method, Err: err}
	}
	if f, ok := res.(*Future); ok && f == nil {
		return nil, nil
	}
	return res, nil
}

type pluginPanic struct {
	value any
}

func (p pluginPanic) Error() string { return ErrPluginPanic.Error() + ": " + stringify(p.value) }

func (p pluginPanic) Is(target error) bool { return target == ErrPluginPanic }

func panicError(v any) error {
	if err, ok := v.(error); ok {
		return pluginPanic{value: err.Error()}
	}
	return pluginPanic{value: v}
}

// cloneMap deep-copies m, falling back to a shallow copy for values
// copystructure cannot walk.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c, err := copystructure.Copy(m)
	if err != nil {
		return maps.Clone(m)
	}
	return c.(map[string]any)
}
