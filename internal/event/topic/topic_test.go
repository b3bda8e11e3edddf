package topic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopic_Segments(t *testing.T) {
	tests := []struct {
		topic    Topic
		expected []string
	}{
		{Topic("plugins:invoke:sync"), []string{"plugins", "invoke", "sync"}},
		{Topic("plugins:add"), []string{"plugins", "add"}},
		{Topic("single"), []string{"single"}},
		{Topic(""), nil},
	}

	for _, tt := range tests {
		t.Run(tt.topic.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.topic.Segments())
		})
	}
}

func TestTopic_Child(t *testing.T) {
	assert.Equal(t, Topic("plugins:add"), Topic("plugins").Child("add"))
	assert.Equal(t, Topic("add"), Topic("").Child("add"))
	assert.Equal(t, Topic("a:b:c"), Join("a", "b", "c"))
}

func TestTopic_HasPrefix(t *testing.T) {
	tests := []struct {
		topic  Topic
		prefix Topic
		want   bool
	}{
		{"plugins:add", "plugins", true},
		{"plugins:add", "plugins:add", true},
		{"pluginsx:add", "plugins", false},
		{"plugins:add", "", true},
		{"app:saved", "plugins", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.topic)+"/"+string(tt.prefix), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.topic.HasPrefix(tt.prefix))
		})
	}
}

func TestTopic_IsValid(t *testing.T) {
	assert.True(t, Topic("plugins:add").IsValid())
	assert.True(t, Topic("a").IsValid())
	assert.False(t, Topic("").IsValid())
	assert.False(t, Topic(":add").IsValid())
	assert.False(t, Topic("plugins::add").IsValid())
	assert.False(t, Topic("plugins:").IsValid())
}

func TestTopic_IsWildcard(t *testing.T) {
	assert.True(t, Topic("plugins:*").IsWildcard())
	assert.True(t, Topic("**").IsWildcard())
	assert.False(t, Topic("plugins:add").IsWildcard())
}

func TestTopic_Matches(t *testing.T) {
	tests := []struct {
		topic   Topic
		pattern Topic
		want    bool
	}{
		{"plugins:add", "plugins:add", true},
		{"plugins:add", "plugins:*", true},
		{"plugins:add:all", "plugins:*", false},
		{"plugins:add:all", "plugins:**", true},
		{"plugins", "plugins:**", true},
		{"app:saved", "*:saved", true},
		{"app:file:saved", "**:saved", true},
		{"app:saved", "**", true},
		{"app:saved", "plugins:**", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.topic)+"~"+string(tt.pattern), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.topic.Matches(tt.pattern))
		})
	}
}
