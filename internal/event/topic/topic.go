package topic

import "strings"

// Topic is a colon-separated event name, optionally containing wildcards
// when used as a subscription pattern.
type Topic string

// Wildcard constants for pattern matching.
const (
	// WildcardSingle matches exactly one segment.
	WildcardSingle = "*"

	// WildcardMulti matches zero or more segments.
	WildcardMulti = "**"

	// Separator is the character used to separate topic segments.
	Separator = ":"
)

// String returns the topic as a string.
func (t Topic) String() string {
	return string(t)
}

// Segments returns the topic split by the separator.
func (t Topic) Segments() []string {
	if t == "" {
		return nil
	}
	return strings.Split(string(t), Separator)
}

// Child returns a child topic by appending a segment.
//
// Example: "plugins".Child("add") -> "plugins:add"
func (t Topic) Child(segment string) Topic {
	if t == "" {
		return Topic(segment)
	}
	return Topic(string(t) + Separator + segment)
}

// HasPrefix reports whether the topic starts with the given prefix on a
// segment boundary.
func (t Topic) HasPrefix(prefix Topic) bool {
	if prefix == "" {
		return true
	}
	s, p := string(t), string(prefix)
	if !strings.HasPrefix(s, p) {
		return false
	}
	if len(s) == len(p) {
		return true
	}
	return strings.HasPrefix(s[len(p):], Separator)
}

// IsWildcard returns true if the topic contains any wildcard segment.
func (t Topic) IsWildcard() bool {
	for _, seg := range t.Segments() {
		if seg == WildcardSingle || seg == WildcardMulti {
			return true
		}
	}
	return false
}

// IsValid returns true if the topic is non-empty and has no empty segments.
func (t Topic) IsValid() bool {
	if t == "" {
		return false
	}
	for _, seg := range t.Segments() {
		if seg == "" {
			return false
		}
	}
	return true
}

// Matches returns true if this topic matches the given pattern.
func (t Topic) Matches(pattern Topic) bool {
	return matchSegments(t.Segments(), pattern.Segments())
}

func matchSegments(topic, pattern []string) bool {
	ti, pi := 0, 0

	for pi < len(pattern) {
		if pattern[pi] == WildcardMulti {
			for ti <= len(topic) {
				if matchSegments(topic[ti:], pattern[pi+1:]) {
					return true
				}
				ti++
			}
			return false
		}

		if ti >= len(topic) {
			return false
		}

		if pattern[pi] != WildcardSingle && pattern[pi] != topic[ti] {
			return false
		}
		ti++
		pi++
	}

	return ti == len(topic)
}

// Join joins multiple segments into a topic.
func Join(segments ...string) Topic {
	return Topic(strings.Join(segments, Separator))
}
