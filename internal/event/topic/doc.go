// Package topic provides hierarchical topic names and pattern matching for the
// plugin bus.
//
// # Topic Format
//
// Topics use colon-separated segments, the same shape as the manager's
// command surface:
//
//	plugins:add
//	plugins:invoke:sync:event
//	app:buffer:saved
//
// # Wildcards
//
//   - "*" matches exactly one segment
//   - "**" matches zero or more segments
//
// Examples:
//
//	plugins:*          matches plugins:add, plugins:remove (not plugins:add:all)
//	plugins:**         matches every command under the plugins prefix
//	*:saved            matches app:saved, file:saved
//	**                 matches everything
//
// # Usage
//
//	m := topic.NewMatcher()
//	m.Add(topic.Topic("app:*"))
//	m.Add(topic.Topic("app:saved"))
//
//	matches := m.Match(topic.Topic("app:saved"))
//	// matches contains both patterns
package topic
