package lua

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/plughost/internal/event"
	"github.com/dshills/plughost/internal/event/topic"
)

// eventbusTable exposes bus to Lua as a table of functions:
//
//	id = eventbus.on(topic, fn [, {priority = n, once = bool}])
//	id = eventbus.once(topic, fn)
//	ok = eventbus.off(id)
//	eventbus.emit(topic, ...)
//	results = eventbus.request(topic, ...)
//
// Subscriptions go through the plugin's scope, so removing the plugin
// revokes them.
func (p *Plugin) eventbusTable(bus event.Bus) *lua.LTable {
	L := p.state.L
	t := L.NewTable()

	t.RawSetString("on", L.NewFunction(func(L *lua.LState) int {
		return p.luaSubscribe(L, bus, false)
	}))
	t.RawSetString("once", L.NewFunction(func(L *lua.LState) int {
		return p.luaSubscribe(L, bus, true)
	}))

	t.RawSetString("off", L.NewFunction(func(L *lua.LState) int {
		id := L.CheckString(1)
		sub, ok := p.subs[id]
		if !ok {
			L.Push(lua.LFalse)
			return 1
		}
		delete(p.subs, id)
		L.Push(lua.LBool(bus.Unsubscribe(sub) == nil))
		return 1
	}))

	t.RawSetString("emit", L.NewFunction(func(L *lua.LState) int {
		name, args := p.publishArgs(L)
		if err := bus.Emit(p.luaContext(L), name, args...); err != nil {
			L.RaiseError("emit %s: %s", name, err.Error())
		}
		return 0
	}))

	t.RawSetString("request", L.NewFunction(func(L *lua.LState) int {
		name, args := p.publishArgs(L)
		results, err := bus.Request(p.luaContext(L), name, args...)
		if err != nil {
			L.RaiseError("request %s: %s", name, err.Error())
			return 0
		}
		L.Push(p.bridge.ToLuaValue(results))
		return 1
	}))

	return t
}

func (p *Plugin) luaSubscribe(L *lua.LState, bus event.Bus, once bool) int {
	pattern := topic.Topic(L.CheckString(1))
	fn := L.CheckFunction(2)

	var opts []event.SubscriptionOption
	if once {
		opts = append(opts, event.WithOnce())
	}
	if conf, ok := L.Get(3).(*lua.LTable); ok {
		if n, ok := conf.RawGetString("priority").(lua.LNumber); ok {
			opts = append(opts, event.WithPriority(event.Priority(n)))
		}
		if lua.LVAsBool(conf.RawGetString("once")) {
			opts = append(opts, event.WithOnce())
		}
	}
	opts = append(opts, event.WithOwner(p))

	sub, err := bus.Subscribe(pattern, p.luaHandler(fn), opts...)
	if err != nil {
		L.RaiseError("subscribe %s: %s", pattern, err.Error())
		return 0
	}
	p.pruneSubs()
	p.subs[sub.ID()] = sub
	L.Push(lua.LString(sub.ID()))
	return 1
}

// luaHandler adapts a Lua function to an event.Handler. The handler returns
// the function's first result.
func (p *Plugin) luaHandler(fn *lua.LFunction) event.Handler {
	return func(ctx context.Context, args ...any) (any, error) {
		largs := make([]lua.LValue, len(args))
		for i, a := range args {
			largs[i] = p.bridge.ToLuaValue(a)
		}
		results, err := p.state.Call(ctx, fn, largs...)
		if err != nil {
			return nil, fmt.Errorf("lua handler in %s: %w", p.path, err)
		}
		if len(results) == 0 {
			return nil, nil
		}
		return p.bridge.ToGoValue(results[0]), nil
	}
}

func (p *Plugin) publishArgs(L *lua.LState) (topic.Topic, []any) {
	name := topic.Topic(L.CheckString(1))
	args := make([]any, 0, L.GetTop()-1)
	for i := 2; i <= L.GetTop(); i++ {
		args = append(args, p.bridge.ToGoValue(L.Get(i)))
	}
	return name, args
}

func (p *Plugin) luaContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
