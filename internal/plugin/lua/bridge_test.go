package lua

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	glua "github.com/yuin/gopher-lua"
)

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()
	L := glua.NewState()
	t.Cleanup(L.Close)
	return NewBridge(L)
}

func TestBridgeToGoValue(t *testing.T) {
	bridge := newTestBridge(t)

	tests := []struct {
		name     string
		input    glua.LValue
		expected any
	}{
		{"nil", glua.LNil, nil},
		{"true", glua.LTrue, true},
		{"false", glua.LFalse, false},
		{"integer", glua.LNumber(42), 42},
		{"negative", glua.LNumber(-7), -7},
		{"float", glua.LNumber(3.14), 3.14},
		{"string", glua.LString("hello"), "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, bridge.ToGoValue(tt.input))
		})
	}
}

func TestBridgeToGoValueTable(t *testing.T) {
	bridge := newTestBridge(t)
	require.NoError(t, bridge.L.DoString(`
		arr = {1, "two", true}
		obj = {name = "x", nested = {n = 1.5}}
		holes = {[1] = "a", [3] = "c"}
		cyc = {}
		cyc.self = cyc
	`))

	assert.Equal(t, []any{1, "two", true}, bridge.ToGoValue(bridge.L.GetGlobal("arr")))
	assert.Equal(t, map[string]any{"name": "x", "nested": map[string]any{"n": 1.5}}, bridge.ToGoValue(bridge.L.GetGlobal("obj")))
	assert.Equal(t, map[string]any{"1": "a", "3": "c"}, bridge.ToGoValue(bridge.L.GetGlobal("holes")))
	assert.Equal(t, map[string]any{"self": nil}, bridge.ToGoValue(bridge.L.GetGlobal("cyc")))
}

func TestBridgeToLuaValue(t *testing.T) {
	bridge := newTestBridge(t)

	assert.Equal(t, glua.LNil, bridge.ToLuaValue(nil))
	assert.Equal(t, glua.LNumber(5), bridge.ToLuaValue(uint8(5)))
	assert.Equal(t, glua.LString("b"), bridge.ToLuaValue([]byte("b")))

	tbl, ok := bridge.ToLuaValue([]string{"a", "b"}).(*glua.LTable)
	require.True(t, ok)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, glua.LString("b"), tbl.RawGetInt(2))

	type point struct {
		X      int `json:"x"`
		Y      int
		hidden int
	}
	st, ok := bridge.ToLuaValue(point{X: 1, Y: 2, hidden: 3}).(*glua.LTable)
	require.True(t, ok)
	assert.Equal(t, glua.LNumber(1), st.RawGetString("x"))
	assert.Equal(t, glua.LNumber(2), st.RawGetString("Y"))
	assert.Equal(t, glua.LNil, st.RawGetString("hidden"))
}

func TestBridgePointersRoundTrip(t *testing.T) {
	bridge := newTestBridge(t)
	type handle struct{ n int }
	h := &handle{n: 1}

	lv := bridge.ToLuaValue(h)
	_, ok := lv.(*glua.LUserData)
	require.True(t, ok)
	assert.Same(t, h, bridge.ToGoValue(lv))
}

func TestBridgeWrapGoFunc(t *testing.T) {
	bridge := newTestBridge(t)
	bridge.L.SetGlobal("sum", bridge.L.NewFunction(bridge.WrapGoFunc(func(args []any) (any, error) {
		total := 0
		for _, a := range args {
			total += a.(int)
		}
		return total, nil
	})))
	bridge.L.SetGlobal("fail", bridge.L.NewFunction(bridge.WrapGoFunc(func([]any) (any, error) {
		return nil, errors.New("nope")
	})))

	require.NoError(t, bridge.L.DoString(`result = sum(1, 2, 3)`))
	assert.Equal(t, glua.LNumber(6), bridge.L.GetGlobal("result"))

	err := bridge.L.DoString(`fail()`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestTrackerWritesBackInPlace(t *testing.T) {
	bridge := newTestBridge(t)
	shared := map[string]any{"seen": false}
	payload := map[string]any{
		"count":  1,
		"shared": shared,
		"names":  []string{"a"},
		"gone":   "x",
		"empty":  nil,
	}

	tr := bridge.NewTracker()
	tbl := tr.Table(payload)
	bridge.L.SetGlobal("p", tbl)
	require.NoError(t, bridge.L.DoString(`
		p.count = p.count + 1
		p.shared.seen = true
		p.gone = nil
		p.added = {1, 2}
	`))

	out := tr.WriteBack(tbl)
	assert.Equal(t, 2, out["count"])
	assert.Equal(t, true, shared["seen"])
	assert.Equal(t, []string{"a"}, out["names"], "untouched values keep their Go type")
	assert.NotContains(t, out, "gone")
	assert.Contains(t, out, "empty")
	assert.Equal(t, []any{1, 2}, out["added"])

	out["shared"].(map[string]any)["again"] = 1
	assert.Equal(t, 1, shared["again"])
	payload["marker"] = true
	assert.Equal(t, true, out["marker"])
}
