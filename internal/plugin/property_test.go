package plugin

import (
	"context"
	"fmt"
	"testing"

	"pgregory.net/rapid"
)

// TestDispatchOrderProperty checks that every protocol visits exactly the
// enabled, method-exposing plugins of the target, in target order.
func TestDispatchOrderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		m := NewManager()

		n := rapid.IntRange(0, 8).Draw(t, "plugins")
		pool := []string{"ghost"}
		type shape struct{ enabled, exposes bool }
		shapes := make(map[string]shape, n)

		for i := range n {
			name := fmt.Sprintf("p%d", i)
			s := shape{
				enabled: rapid.Bool().Draw(t, "enabled"),
				exposes: rapid.Bool().Draw(t, "exposes"),
			}
			shapes[name] = s
			pool = append(pool, name)

			ms := NewMethodSet().Add("other", constMethod(nil))
			if s.exposes {
				ms.Add("visit", constMethod(name))
				ms.AddEvent("visitEvent", func(_ context.Context, env *Envelope) error {
					seen, _ := env.Payload["seen"].([]string)
					env.Payload["seen"] = append(seen, env.PluginName)
					return nil
				})
			}
			if err := m.Register(ctx, RegisterConfig{Name: name, Instance: ms}); err != nil {
				t.Fatalf("register %s: %v", name, err)
			}
			m.SetEnabled(name, s.enabled)
		}

		var target []string
		if rapid.Bool().Draw(t, "explicitTarget") {
			target = rapid.SliceOfN(rapid.SampledFrom(pool), 0, 10).Draw(t, "target")
		}

		order := target
		if order == nil {
			order = m.ListPluginNames(FilterAll)
		}
		want := []string{}
		for _, name := range order {
			if s, ok := shapes[name]; ok && s.enabled && s.exposes {
				want = append(want, name)
			}
		}

		res, err := m.InvokeSync(ctx, target, "visit")
		if err != nil {
			t.Fatalf("InvokeSync: %v", err)
		}
		assertArity(t, want, res)

		res, err = m.InvokeAsync(ctx, target, "visit").Await(ctx)
		if err != nil {
			t.Fatalf("InvokeAsync: %v", err)
		}
		assertArity(t, want, res)

		payload, err := m.InvokeSyncEvent(ctx, EventRequest{Method: "visitEvent", Target: target})
		if err != nil {
			t.Fatalf("InvokeSyncEvent: %v", err)
		}
		invoked := payload[InvokedPluginsKey].([]string)
		if fmt.Sprint(invoked) != fmt.Sprint(want) {
			t.Fatalf("event visited %v, want %v", invoked, want)
		}
		if payload[InvocationCountKey] != len(want) {
			t.Fatalf("invocation count %v, want %d", payload[InvocationCountKey], len(want))
		}
	})
}

func assertArity(t *rapid.T, want []string, res any) {
	switch len(want) {
	case 0:
		if res != nil {
			t.Fatalf("got %v, want nil", res)
		}
	case 1:
		if res != want[0] {
			t.Fatalf("got %v, want %q", res, want[0])
		}
	default:
		list, ok := res.([]any)
		if !ok || len(list) != len(want) {
			t.Fatalf("got %v, want %v", res, want)
		}
		for i := range want {
			if list[i] != want[i] {
				t.Fatalf("result %d = %v, want %q", i, list[i], want[i])
			}
		}
	}
}
