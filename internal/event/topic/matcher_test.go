package topic

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatcher_AddRemove(t *testing.T) {
	m := NewMatcher()

	m.Add("plugins:add")
	m.Add("plugins:add")
	m.Add("plugins:remove")
	m.Add("")

	assert.Equal(t, 2, m.Count())
	assert.True(t, m.Has("plugins:add"))

	m.Remove("plugins:add")
	m.Remove("does:not:exist")

	assert.False(t, m.Has("plugins:add"))
	assert.True(t, m.Has("plugins:remove"))
	assert.Equal(t, 1, m.Count())
}

func TestMatcher_Match(t *testing.T) {
	m := NewMatcher()
	m.Add("plugins:add")
	m.Add("plugins:*")
	m.Add("plugins:**")
	m.Add("**")
	m.Add("app:saved")

	got := m.Match("plugins:add")
	assert.ElementsMatch(t, []Topic{"plugins:add", "plugins:*", "plugins:**", "**"}, got)

	got = m.Match("plugins:add:all")
	assert.ElementsMatch(t, []Topic{"plugins:**", "**"}, got)

	assert.Nil(t, m.Match(""))
}

func TestMatcher_MatchReportsPatternOnce(t *testing.T) {
	m := NewMatcher()
	m.Add("**:**")

	got := m.Match("a:b:c")
	assert.Equal(t, []Topic{"**:**"}, got)
}

func TestMatcher_Clear(t *testing.T) {
	m := NewMatcher()
	m.Add("a:b")
	m.Clear()

	assert.Equal(t, 0, m.Count())
	assert.Empty(t, m.Match("a:b"))
}

func TestMatcher_Concurrent(t *testing.T) {
	m := NewMatcher()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Add("plugins:*")
				_ = m.Match("plugins:add")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, m.Count())
}
