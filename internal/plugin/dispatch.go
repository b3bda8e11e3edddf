package plugin

import (
	"context"
)

// EventRequest describes an InvokeSyncEvent call.
type EventRequest struct {
	// Method is the event method to invoke.
	Method string

	// Target selects plugins; nil means every registered plugin.
	Target []string

	// CopyProps are deep-copied into the payload.
	CopyProps map[string]any

	// PassthruProps are set on the payload by reference, after CopyProps.
	PassthruProps map[string]any
}

// tally counts how a dispatch resolved its target.
type tally struct {
	found   int
	invoked []string
}

// candidates returns the names a target selects: every registered name in
// registration order when target is nil, otherwise target itself.
func (m *Manager) candidates(target []string) []string {
	if target == nil {
		return m.names()
	}
	return target
}

// each calls fn for every enabled candidate exposing method. A non-nil
// error from fn stops the walk.
func (m *Manager) each(target []string, method string, fn func(*Entry, Method) error) (tally, error) {
	var t tally
	for _, name := range m.candidates(target) {
		entry, ok := m.plugins.Get(name)
		if !ok || !entry.enabled {
			continue
		}
		t.found++

		mth, ok := entry.method(method)
		if !ok {
			continue
		}
		t.invoked = append(t.invoked, name)
		if err := fn(entry, mth); err != nil {
			return t, err
		}
	}

	if len(t.invoked) == 0 {
		m.logger.Debug("dispatch invoked nothing", "method", method, "found", t.found)
	}
	return t, nil
}

// checkPolicy applies the opt-in error policy to a finished dispatch.
func (m *Manager) checkPolicy(method string, target []string, t tally) error {
	if m.config.ThrowOnInvalidTarget && t.found == 0 {
		return &NoTargetError{Method: method, Targets: target}
	}
	if m.config.ThrowOnInvalidMethod && len(t.invoked) == 0 {
		return &NoMethodError{Method: method, Targets: target}
	}
	return nil
}

// collect invokes method on the selected plugins and returns every non-nil
// result in order.
func (m *Manager) collect(ctx context.Context, target []string, method string, args []any) ([]any, error) {
	if method == "" {
		return nil, invalid("method", "required")
	}

	var results []any
	t, err := m.each(target, method, func(e *Entry, fn Method) error {
		res, err := call(ctx, e.name, method, fn, args)
		if err != nil {
			return err
		}
		if res != nil {
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := m.checkPolicy(method, target, t); err != nil {
		return nil, err
	}
	return results, nil
}

// InvokeSync calls method with args on every enabled plugin selected by
// target that exposes it, in order. target nil selects every plugin in
// registration order; unknown names are skipped.
//
// The result is nil when nothing returned a value, the value itself when
// exactly one plugin did, and a []any in invocation order otherwise.
func (m *Manager) InvokeSync(ctx context.Context, target []string, method string, args ...any) (any, error) {
	results, err := m.collect(ctx, target, method, args)
	if err != nil {
		return nil, err
	}
	return aggregate(results), nil
}

// InvokeAsync behaves like InvokeSync but always returns a single Future.
// Plugin calls are issued in order on the calling goroutine; results that
// are themselves *Future are awaited concurrently. Every failure, including
// validation and error-policy failures, rejects the returned Future.
func (m *Manager) InvokeAsync(ctx context.Context, target []string, method string, args ...any) *Future {
	results, err := m.collect(ctx, target, method, args)
	if err != nil {
		return Rejected(err)
	}
	return settleAll(ctx, results)
}

// InvokeSyncEvent passes one shared Envelope to every selected plugin
// exposing req.Method and returns the envelope payload, with the
// invocation count and invoked plugin names attached.
func (m *Manager) InvokeSyncEvent(ctx context.Context, req EventRequest) (map[string]any, error) {
	if req.Method == "" {
		return nil, invalid("method", "required")
	}
	env := newEnvelope(req.CopyProps, req.PassthruProps)
	return m.dispatchEvent(ctx, env, req.Method, req.Target)
}

// DispatchEvent is the single-payload form of InvokeSyncEvent. When
// copyData is false the plugins receive data itself, so the caller sees
// their mutations; otherwise they work on a deep copy. No target names
// selects every plugin.
func (m *Manager) DispatchEvent(ctx context.Context, method string, data map[string]any, copyData bool, target ...string) (map[string]any, error) {
	if method == "" {
		return nil, invalid("method", "required")
	}
	if len(target) == 0 {
		target = nil
	}
	env := newDataEnvelope(data, copyData)
	return m.dispatchEvent(ctx, env, method, target)
}

func (m *Manager) dispatchEvent(ctx context.Context, env *Envelope, method string, target []string) (map[string]any, error) {
	t, err := m.each(target, method, func(e *Entry, fn Method) error {
		env.bind(e)
		_, err := call(ctx, e.name, method, fn, []any{env})
		return err
	})
	if err != nil {
		return nil, err
	}
	if err := m.checkPolicy(method, target, t); err != nil {
		return nil, err
	}

	env.finish(t.invoked)
	return env.Payload, nil
}

// aggregate applies the result-arity rule.
func aggregate(results []any) any {
	switch len(results) {
	case 0:
		return nil
	case 1:
		return results[0]
	default:
		return results
	}
}
