package topic

import "sync"

// Matcher indexes subscription patterns in a segment trie so that the
// patterns matching a concrete topic can be found without scanning them all.
// It is safe for concurrent use.
type Matcher struct {
	mu   sync.RWMutex
	root *trieNode
}

type trieNode struct {
	children map[string]*trieNode
	patterns []Topic
}

func newTrieNode() *trieNode {
	return &trieNode{children: make(map[string]*trieNode)}
}

// NewMatcher creates an empty matcher.
func NewMatcher() *Matcher {
	return &Matcher{root: newTrieNode()}
}

// Add adds a pattern. Adding an existing pattern is a no-op.
func (m *Matcher) Add(pattern Topic) {
	if pattern == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	node := m.root
	for _, seg := range pattern.Segments() {
		if node.children[seg] == nil {
			node.children[seg] = newTrieNode()
		}
		node = node.children[seg]
	}

	for _, p := range node.patterns {
		if p == pattern {
			return
		}
	}
	node.patterns = append(node.patterns, pattern)
}

// Remove removes a pattern if present.
func (m *Matcher) Remove(pattern Topic) {
	if pattern == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	node := m.root
	for _, seg := range pattern.Segments() {
		if node.children[seg] == nil {
			return
		}
		node = node.children[seg]
	}

	for i, p := range node.patterns {
		if p == pattern {
			node.patterns = append(node.patterns[:i], node.patterns[i+1:]...)
			return
		}
	}
}

// Has returns true if the exact pattern was added.
func (m *Matcher) Has(pattern Topic) bool {
	if pattern == "" {
		return false
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	node := m.root
	for _, seg := range pattern.Segments() {
		if node.children[seg] == nil {
			return false
		}
		node = node.children[seg]
	}

	for _, p := range node.patterns {
		if p == pattern {
			return true
		}
	}
	return false
}

// Match returns all patterns that match the given concrete topic. A pattern
// reachable through several wildcard paths is reported once.
func (m *Matcher) Match(eventTopic Topic) []Topic {
	if eventTopic == "" {
		return nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Topic
	seen := make(map[Topic]bool)
	m.matchRecursive(m.root, eventTopic.Segments(), 0, seen, &matches)
	return matches
}

func (m *Matcher) matchRecursive(node *trieNode, segments []string, depth int, seen map[Topic]bool, matches *[]Topic) {
	if node == nil {
		return
	}

	if depth == len(segments) {
		for _, p := range node.patterns {
			if !seen[p] {
				seen[p] = true
				*matches = append(*matches, p)
			}
		}
		// ** may match zero trailing segments
		if child := node.children[WildcardMulti]; child != nil {
			m.matchRecursive(child, segments, depth, seen, matches)
		}
		return
	}

	if child := node.children[segments[depth]]; child != nil {
		m.matchRecursive(child, segments, depth+1, seen, matches)
	}

	if child := node.children[WildcardSingle]; child != nil {
		m.matchRecursive(child, segments, depth+1, seen, matches)
	}

	if child := node.children[WildcardMulti]; child != nil {
		for i := depth; i <= len(segments); i++ {
			m.matchRecursive(child, segments, i, seen, matches)
		}
	}
}

// Count returns the number of patterns in the matcher.
func (m *Matcher) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	var walk func(*trieNode)
	walk = func(n *trieNode) {
		count += len(n.patterns)
		for _, child := range n.children {
			walk(child)
		}
	}
	walk(m.root)
	return count
}

// Clear removes all patterns.
func (m *Matcher) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.root = newTrieNode()
}
