package graph

import (
	"strings"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
)

// SearchByText returns every node whose title, abstract or one of whose field
// tags contains query, ignoring case. Results follow insertion order. A blank
// query matches nothing.
func (s *Store) SearchByText(query string) []common.Node {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []common.Node
	for _, id := range s.order {
		n := s.nodes[id]
		if matchesText(n, q) {
			out = append(out, cloneNode(n))
		}
	}
	return out
}

func matchesText(n common.Node, q string) bool {
	if strings.Contains(strings.ToLower(n.Title), q) {
		return true
	}
	if strings.Contains(strings.ToLower(n.Abstract), q) {
		return true
	}
	for _, f := range n.Fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
