package lua

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// State wraps a gopher-lua state for one plugin script.
//
// gopher-lua's LState is not goroutine-safe. A State must only be used from
// the goroutine that owns the plugin manager. Calls may nest: a Lua method
// can reach Go code that calls back into the same State.
type State struct {
	L *lua.LState

	callDepth int
	closed    bool
}

// StateOption configures a State.
type StateOption func(*lua.Options)

// WithCallStackSize sets the Lua call stack size.
func WithCallStackSize(n int) StateOption {
	return func(o *lua.Options) {
		o.CallStackSize = n
	}
}

// WithRegistrySize sets the initial Lua registry size.
func WithRegistrySize(n int) StateOption {
	return func(o *lua.Options) {
		o.RegistrySize = n
	}
}

// NewState creates a Lua state with the standard libraries opened.
func NewState(opts ...StateOption) *State {
	o := lua.Options{}
	for _, opt := range opts {
		opt(&o)
	}
	return &State{L: lua.NewState(o)}
}

// DoFile runs a script and returns its first return value.
func (s *State) DoFile(ctx context.Context, path string) (lua.LValue, error) {
	if s.closed {
		return lua.LNil, ErrStateClosed
	}

	fn, err := s.L.LoadFile(path)
	if err != nil {
		return lua.LNil, err
	}
	results, err := s.Call(ctx, fn)
	if err != nil {
		return lua.LNil, err
	}
	if len(results) == 0 {
		return lua.LNil, nil
	}
	return results[0], nil
}

// DoString runs a chunk and returns its first return value.
func (s *State) DoString(ctx context.Context, code string) (lua.LValue, error) {
	if s.closed {
		return lua.LNil, ErrStateClosed
	}

	fn, err := s.L.LoadString(code)
	if err != nil {
		return lua.LNil, err
	}
	results, err := s.Call(ctx, fn)
	if err != nil {
		return lua.LNil, err
	}
	if len(results) == 0 {
		return lua.LNil, nil
	}
	return results[0], nil
}

// Call calls fn with args and returns every value it returned.
// Returns an empty slice (not nil) if the function returns no values.
//
// ctx bounds the outermost call only; nested calls run under it.
func (s *State) Call(ctx context.Context, fn *lua.LFunction, args ...lua.LValue) (results []lua.LValue, err error) {
	if s.closed {
		return nil, ErrStateClosed
	}

	if s.callDepth == 0 && ctx != nil {
		s.L.SetContext(ctx)
		defer s.L.RemoveContext()
	}
	s.callDepth++
	defer func() { s.callDepth-- }()

	// Record stack top before pushing anything
	stackTop := s.L.GetTop()

	s.L.Push(fn)
	for _, arg := range args {
		s.L.Push(arg)
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("lua panic: %v", r)
			}
		}()
		err = s.L.PCall(len(args), lua.MultRet, nil)
	}()
	if err != nil {
		s.L.SetTop(stackTop)
		return nil, err
	}

	// Collect return values (only the new values added after the call)
	nRet := s.L.GetTop() - stackTop
	if nRet <= 0 {
		return []lua.LValue{}, nil
	}
	results = make([]lua.LValue, nRet)
	for i := range nRet {
		results[i] = s.L.Get(stackTop + i + 1)
	}
	s.L.Pop(nRet)

	return results, nil
}

// IsClosed returns true if the state has been closed.
func (s *State) IsClosed() bool {
	return s.closed
}

// Close releases the Lua state. Later calls return ErrStateClosed.
func (s *State) Close() error {
	if s.closed {
		return nil
	}
	s.L.Close()
	s.closed = true
	return nil
}
