package plugin

import (
	"fmt"
	"maps"

	"github.com/dshills/plughost/internal/event"
)

// Payload keys attached after an event dispatch completes.
const (
	InvocationCountKey = "invocationCount"
	InvokedPluginsKey  = "invokedPlugins"
)

// Envelope is the shared carrier passed to event-style methods. One
// envelope is created per dispatch and handed by reference to every
// target, so mutations made by one plugin are visible to the next.
type Envelope struct {
	// Payload is the data threaded through the dispatch.
	Payload map[string]any

	// Eventbus is the current target's event scope, or nil when the manager
	// has no bus bound.
	Eventbus event.Bus

	// PluginName is the name of the plugin currently being invoked.
	PluginName string

	// PluginOptions is a copy of the current plugin's options.
	PluginOptions map[string]any
}

// newEnvelope builds a command-style envelope: a deep copy of copyProps
// with the top-level keys of passthruProps shared by reference.
func newEnvelope(copyProps, passthruProps map[string]any) *Envelope {
	payload := cloneMap(copyProps)
	if payload == nil {
		payload = make(map[string]any, len(passthruProps))
	}
	maps.Copy(payload, passthruProps)
	return &Envelope{Payload: payload}
}

// newDataEnvelope builds a simple-style envelope that either deep-copies
// data or uses it directly.
func newDataEnvelope(data map[string]any, copyData bool) *Envelope {
	switch {
	case data == nil:
		data = make(map[string]any)
	case copyData:
		data = cloneMap(data)
	}
	return &Envelope{Payload: data}
}

// bind sets the per-invocation fields for entry.
func (env *Envelope) bind(e *Entry) {
	env.Eventbus = e.eventbus()
	env.PluginName = e.name
	env.PluginOptions = cloneMap(e.options)
}

// finish clears the per-invocation fields and records the invocation
// metadata on the payload.
func (env *Envelope) finish(invoked []string) {
	env.Eventbus = nil
	env.PluginName = ""
	env.PluginOptions = nil
	if invoked == nil {
		invoked = []string{}
	}
	env.Payload[InvocationCountKey] = len(invoked)
	env.Payload[InvokedPluginsKey] = invoked
}

// Get returns a payload value.
func (env *Envelope) Get(key string) (any, bool) {
	v, ok := env.Payload[key]
	return v, ok
}

// Set stores a payload value.
func (env *Envelope) Set(key string, value any) {
	env.Payload[key] = value
}

func stringify(v any) string {
	return fmt.Sprintf("%v", v)
}
