package graph

import (
	"slices"
	"strings"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
)

// Neighbourhood runs a breadth-first traversal from id over undirected
// adjacency (an edge in either direction joins its endpoints), at most depth
// hops out. It returns the visited nodes that exist in the store, the start
// included, and every edge traversed on the way. Each node is expanded once,
// so cycles terminate.
func (s *Store) Neighbourhood(id string, depth int) common.Subgraph {
	if depth < 0 {
		depth = 0
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := common.Subgraph{
		Nodes: []common.Node{},
		Edges: []common.Edge{},
	}

	dist := map[string]int{id: 0}
	queue := []string{id}
	seenEdges := make(map[int]struct{})

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if n, ok := s.nodes[cur]; ok {
			result.Nodes = append(result.Nodes, cloneNode(n))
		}

		d := dist[cur]
		if d >= depth {
			continue
		}

		for _, idx := range s.incidentLocked(cur) {
			e := s.edges[idx]
			if _, ok := seenEdges[idx]; !ok {
				seenEdges[idx] = struct{}{}
				result.Edges = append(result.Edges, e)
			}

			other := e.Target
			if e.Target == cur {
				other = e.Source
			}
			if _, ok := dist[other]; ok {
				continue
			}
			dist[other] = d + 1
			queue = append(queue, other)
		}
	}

	return result
}

func (s *Store) incidentLocked(id string) []int {
	out := s.out[id]
	in := s.in[id]
	all := make([]int, 0, len(out)+len(in))
	all = append(all, out...)
	all = append(all, in...)
	return all
}

// CausalDensity counts the edges pointing at id and leaving id.
func (s *Store) CausalDensity(id string) common.Density {
	s.mu.RLock()
	defer s.mu.RUnlock()

	in := len(s.in[id])
	out := len(s.out[id])
	return common.Density{
		Incoming: in,
		Outgoing: out,
		Total:    in + out,
	}
}

// DetectRings searches, from every node as a start, the directed paths of at
// most minLength+1 hops that return to the start with at least minLength
// hops. A node is never repeated within one path, but the same ring is
// reported once per start node on it and once per parallel edge, so the
// count is rotation-inclusive. Use UniqueRings to collapse rotations.
//
// The search is exhaustive. It is meant for graphs of tens to low hundreds
// of nodes.
func (s *Store) DetectRings(minLength int) [][]string {
	if minLength < 1 {
		minLength = 1
	}
	maxLen := minLength + 1

	s.mu.RLock()
	defer s.mu.RUnlock()

	rings := [][]string{}
	for _, start := range s.order {
		path := []string{start}
		onPath := map[string]bool{start: true}

		var walk func(cur string)
		walk = func(cur string) {
			for _, idx := range s.out[cur] {
				next := s.edges[idx].Target
				if next == start {
					if len(path) >= minLength {
						rings = append(rings, slices.Clone(path))
					}
					continue
				}
				if onPath[next] || len(path) >= maxLen {
					continue
				}
				path = append(path, next)
				onPath[next] = true
				walk(next)
				path = path[:len(path)-1]
				delete(onPath, next)
			}
		}
		walk(start)
	}
	return rings
}

// UniqueRings drops rings that are rotations of a ring seen earlier.
func UniqueRings(rings [][]string) [][]string {
	seen := make(map[string]struct{}, len(rings))
	out := make([][]string, 0, len(rings))
	for _, ring := range rings {
		key := canonicalRing(ring)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ring)
	}
	return out
}

func canonicalRing(ring []string) string {
	if len(ring) == 0 {
		return ""
	}
	minIdx := 0
	for i, id := range ring {
		if id < ring[minIdx] {
			minIdx = i
		}
	}
	rotated := make([]string, 0, len(ring))
	rotated = append(rotated, ring[minIdx:]...)
	rotated = append(rotated, ring[:minIdx]...)
	return strings.Join(rotated, "\x00")
}
