package lua

import (
	"fmt"
	"math"
	"reflect"

	lua "github.com/yuin/gopher-lua"
)

// Bridge provides utilities for Go-Lua interoperability.
type Bridge struct {
	L *lua.LState
}

// NewBridge creates a new Bridge for the given Lua state.
func NewBridge(L *lua.LState) *Bridge {
	return &Bridge{L: L}
}

// ToGoValue converts a Lua value to a Go value. Integral numbers become
// int, other numbers float64, tables []any or map[string]any, and userdata
// its wrapped Go value.
func (b *Bridge) ToGoValue(lv lua.LValue) any {
	return b.toGoValueWithVisited(lv, make(map[*lua.LTable]bool))
}

// toGoValueWithVisited converts a Lua value to a Go value, tracking visited tables.
func (b *Bridge) toGoValueWithVisited(lv lua.LValue, visited map[*lua.LTable]bool) any {
	if lv == nil {
		return nil
	}

	switch v := lv.(type) {
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		f := float64(v)
		if f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64 {
			return int(f)
		}
		return f
	case lua.LString:
		return string(v)
	case *lua.LTable:
		// Check for circular reference
		if visited[v] {
			return nil
		}
		visited[v] = true
		defer delete(visited, v)
		return b.tableToGoWithVisited(v, visited)
	case *lua.LUserData:
		return v.Value
	default:
		// nil, functions, threads and channels have no Go equivalent
		return nil
	}
}

// tableToGoWithVisited converts a Lua table with circular reference tracking.
func (b *Bridge) tableToGoWithVisited(t *lua.LTable, visited map[*lua.LTable]bool) any {
	// Check if it's an array (sequential integer keys starting at 1)
	isArray := true
	maxN := 0
	count := 0
	t.ForEach(func(k, _ lua.LValue) {
		count++
		if kn, ok := k.(lua.LNumber); ok {
			n := int(kn)
			if float64(n) == float64(kn) && n > 0 {
				maxN = max(maxN, n)
				return
			}
		}
		isArray = false
	})

	if isArray && maxN > 0 && count == maxN {
		arr := make([]any, maxN)
		for i := 1; i <= maxN; i++ {
			arr[i-1] = b.toGoValueWithVisited(t.RawGetInt(i), visited)
		}
		return arr
	}

	m := make(map[string]any, count)
	t.ForEach(func(k, v lua.LValue) {
		m[tableKey(k)] = b.toGoValueWithVisited(v, visited)
	})
	return m
}

func tableKey(k lua.LValue) string {
	switch kv := k.(type) {
	case lua.LString:
		return string(kv)
	case lua.LNumber:
		return fmt.Sprintf("%v", float64(kv))
	default:
		return k.String()
	}
}

// ToLuaValue converts a Go value to a Lua value.
func (b *Bridge) ToLuaValue(v any) lua.LValue {
	if v == nil {
		return lua.LNil
	}

	switch val := v.(type) {
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int8:
		return lua.LNumber(val)
	case int16:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint:
		return lua.LNumber(val)
	case uint8:
		return lua.LNumber(val)
	case uint16:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []byte:
		return lua.LString(val)
	case []any:
		return b.sliceToTable(val)
	case []string:
		t := b.L.CreateTable(len(val), 0)
		for i, s := range val {
			t.RawSetInt(i+1, lua.LString(s))
		}
		return t
	case map[string]any:
		return b.mapToTable(val)
	case lua.LValue:
		return val
	default:
		return b.reflectToLua(v)
	}
}

// sliceToTable converts a Go slice to a Lua table (array).
func (b *Bridge) sliceToTable(s []any) *lua.LTable {
	t := b.L.CreateTable(len(s), 0)
	for i, v := range s {
		t.RawSetInt(i+1, b.ToLuaValue(v))
	}
	return t
}

// mapToTable converts a Go map to a Lua table.
func (b *Bridge) mapToTable(m map[string]any) *lua.LTable {
	t := b.L.CreateTable(0, len(m))
	for k, v := range m {
		t.RawSetString(k, b.ToLuaValue(v))
	}
	return t
}

// reflectToLua uses reflection to convert arbitrary Go values. Pointers,
// funcs and channels are wrapped as userdata so they survive a round trip.
func (b *Bridge) reflectToLua(v any) lua.LValue {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return lua.LNil
	}

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		t := b.L.CreateTable(rv.Len(), 0)
		for i := 0; i < rv.Len(); i++ {
			t.RawSetInt(i+1, b.ToLuaValue(rv.Index(i).Interface()))
		}
		return t

	case reflect.Map:
		t := b.L.CreateTable(0, rv.Len())
		for _, key := range rv.MapKeys() {
			t.RawSet(b.ToLuaValue(key.Interface()), b.ToLuaValue(rv.MapIndex(key).Interface()))
		}
		return t

	case reflect.Struct:
		return b.structToTable(rv)

	case reflect.String:
		return lua.LString(rv.String())

	default:
		ud := b.L.NewUserData()
		ud.Value = v
		return ud
	}
}

// structToTable converts a Go struct to a Lua table.
func (b *Bridge) structToTable(rv reflect.Value) *lua.LTable {
	t := b.L.NewTable()
	rt := rv.Type()

	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if field.PkgPath != "" {
			continue // Skip unexported fields
		}

		// Use json tag if available, otherwise field name
		name := field.Name
		if tag := field.Tag.Get("json"); tag != "" && tag != "-" {
			for j := 0; j < len(tag); j++ {
				if tag[j] == ',' {
					tag = tag[:j]
					break
				}
			}
			if tag != "" {
				name = tag
			}
		}

		t.RawSetString(name, b.ToLuaValue(rv.Field(i).Interface()))
	}

	return t
}

// origin remembers the Go map a table was built from and the Lua values
// first stored under each key.
type origin struct {
	m      map[string]any
	values map[string]lua.LValue
}

// Tracker converts Go maps to Lua tables and later writes changes made in
// Lua back into the same Go maps. Nested maps keep their identity, so a
// map shared by reference with the caller sees the mutation. Values Lua
// left untouched keep their original Go type.
type Tracker struct {
	b       *Bridge
	origins map[*lua.LTable]*origin
}

// NewTracker creates a tracker on b.
func (b *Bridge) NewTracker() *Tracker {
	return &Tracker{b: b, origins: make(map[*lua.LTable]*origin)}
}

// Table converts m, recording every nested map.
func (tr *Tracker) Table(m map[string]any) *lua.LTable {
	t := tr.b.L.CreateTable(0, len(m))
	o := &origin{m: m, values: make(map[string]lua.LValue, len(m))}
	tr.origins[t] = o

	for k, v := range m {
		var lv lua.LValue
		if sub, ok := v.(map[string]any); ok && sub != nil {
			if existing := tr.lookup(sub); existing != nil {
				lv = existing
			} else {
				lv = tr.Table(sub)
			}
		} else {
			lv = tr.b.ToLuaValue(v)
		}
		o.values[k] = lv
		t.RawSetString(k, lv)
	}
	return t
}

func (tr *Tracker) lookup(m map[string]any) *lua.LTable {
	for t, o := range tr.origins {
		if reflect.ValueOf(o.m).UnsafePointer() == reflect.ValueOf(m).UnsafePointer() {
			return t
		}
	}
	return nil
}

// WriteBack applies the contents of t to the map it was built from and
// returns that map. Tables that did not come from Table are converted.
func (tr *Tracker) WriteBack(t *lua.LTable) map[string]any {
	o, ok := tr.origins[t]
	if !ok {
		m, _ := tr.b.ToGoValue(t).(map[string]any)
		return m
	}
	tr.writeBack(t, o, make(map[*lua.LTable]bool))
	return o.m
}

func (tr *Tracker) writeBack(t *lua.LTable, o *origin, done map[*lua.LTable]bool) {
	if done[t] {
		return
	}
	done[t] = true

	seen := make(map[string]bool)
	t.ForEach(func(k, v lua.LValue) {
		key := tableKey(k)
		seen[key] = true

		if vt, ok := v.(*lua.LTable); ok {
			if sub, ok := tr.origins[vt]; ok {
				tr.writeBack(vt, sub, done)
				o.m[key] = sub.m
				return
			}
		}
		if prev, ok := o.values[key]; ok && prev == v {
			return
		}
		o.m[key] = tr.b.ToGoValue(v)
	})

	for k := range o.m {
		if seen[k] {
			continue
		}
		// A nil value has no slot in a Lua table.
		if prev, ok := o.values[k]; ok && prev == lua.LNil {
			continue
		}
		delete(o.m, k)
	}
}

// WrapGoFunc wraps a Go function for use in Lua.
// The Go function takes and returns Go values.
func (b *Bridge) WrapGoFunc(fn func(args []any) (any, error)) lua.LGFunction {
	return func(L *lua.LState) int {
		nArgs := L.GetTop()
		args := make([]any, nArgs)
		for i := 1; i <= nArgs; i++ {
			args[i-1] = b.ToGoValue(L.Get(i))
		}

		result, err := fn(args)
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}

		if result == nil {
			return 0
		}
		L.Push(b.ToLuaValue(result))
		return 1
	}
}
