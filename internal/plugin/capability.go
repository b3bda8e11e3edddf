package plugin

import (
	"context"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Lifecycle hook names. A capability may implement them either through
// Loadable/Unloadable or as entries of its MethodSet.
const (
	HookLoad   = "onPluginLoad"
	HookUnload = "onPluginUnload"
)

// Method is one callable member of a capability.
//
// Methods invoked by the event protocols receive a single *Envelope argument.
type Method func(ctx context.Context, args ...any) (any, error)

// EventMethod adapts an envelope handler to a Method.
func EventMethod(fn func(ctx context.Context, env *Envelope) error) Method {
	return func(ctx context.Context, args ...any) (any, error) {
		if len(args) != 1 {
			return nil, invalid("args", "event method expects one envelope, got %d arguments", len(args))
		}
		env, ok := args[0].(*Envelope)
		if !ok {
			return nil, invalid("args", "event method expects *Envelope, got %T", args[0])
		}
		return nil, fn(ctx, env)
	}
}

// Capability is a plugin instance. It declares its callable members up
// front; the registry never inspects the value beyond Methods.
type Capability interface {
	Methods() *MethodSet
}

// Loadable is implemented by capabilities that want to be notified right
// after registration. It is the plugin's chance to subscribe to
// env.Eventbus.
type Loadable interface {
	OnPluginLoad(ctx context.Context, env *Envelope) error
}

// Unloadable is implemented by capabilities that want to be notified right
// before removal, while env.Eventbus is still live.
type Unloadable interface {
	OnPluginUnload(ctx context.Context, env *Envelope) error
}

// MethodSet is an insertion-ordered mapping of method name to Method.
// A *MethodSet is itself a Capability. The zero value is not usable; a nil
// *MethodSet behaves as an empty set.
type MethodSet struct {
	methods *orderedmap.OrderedMap[string, Method]
}

var _ Capability = (*MethodSet)(nil)

// NewMethodSet creates an empty method set.
func NewMethodSet() *MethodSet {
	return &MethodSet{methods: orderedmap.New[string, Method]()}
}

// Add declares a method. Re-adding a name replaces the function but keeps
// its original position. Nil functions are ignored.
func (s *MethodSet) Add(name string, fn Method) *MethodSet {
	if fn != nil && name != "" {
		s.methods.Set(name, fn)
	}
	return s
}

// AddEvent declares an event-style method.
func (s *MethodSet) AddEvent(name string, fn func(ctx context.Context, env *Envelope) error) *MethodSet {
	return s.Add(name, EventMethod(fn))
}

// Get returns the method with the given name.
func (s *MethodSet) Get(name string) (Method, bool) {
	if s == nil {
		return nil, false
	}
	return s.methods.Get(name)
}

// Has reports whether the set declares name.
func (s *MethodSet) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// Names returns method names in declaration order.
func (s *MethodSet) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, s.methods.Len())
	for pair := s.methods.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Len returns the number of declared methods.
func (s *MethodSet) Len() int {
	if s == nil {
		return 0
	}
	return s.methods.Len()
}

// Methods implements Capability.
func (s *MethodSet) Methods() *MethodSet {
	return s
}
