package graph

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Snapshotter persists a full graph snapshot. Implementations live in
// pkg/store.
type Snapshotter interface {
	SaveSnapshot(ctx context.Context, snap common.Snapshot) error
}

// Store is the knowledge graph: nodes keyed by id and an append-only list of
// typed directed edges with incoming/outgoing indexes.
//
// Store is safe for concurrent use. Readers share a read lock; every mutation
// takes the write lock, so at most one mutation is in flight at a time.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]common.Node
	order []string
	edges []common.Edge
	out   map[string][]int
	in    map[string][]int

	snapshotter Snapshotter
	dirty       chan struct{}
	pending     atomic.Bool
	saveMu      sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithSnapshotter makes every mutation schedule a snapshot write through s.
// Writes happen in RunSnapshots (debounced) or Flush.
func WithSnapshotter(s Snapshotter) StoreOption {
	return func(st *Store) {
		st.snapshotter = s
	}
}

// NewStore creates an empty graph.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		nodes: make(map[string]common.Node),
		out:   make(map[string][]int),
		in:    make(map[string][]int),
		dirty: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// AddNode upserts node by id, assigning a fresh id when none is set, and
// returns the stored copy. An existing node with the same id is overwritten.
func (s *Store) AddNode(node common.Node) common.Node {
	node = prepareNode(node)

	s.mu.Lock()
	s.putLocked(node)
	s.mu.Unlock()

	s.markDirty()
	return cloneNode(node)
}

// AddNodeIfAbsent inserts node only when its id is not yet present. The
// existence check and the insert happen under one lock. It returns the stored
// node and whether it was inserted.
func (s *Store) AddNodeIfAbsent(node common.Node) (common.Node, bool) {
	node = prepareNode(node)

	s.mu.Lock()
	if existing, ok := s.nodes[node.ID]; ok {
		s.mu.Unlock()
		return cloneNode(existing), false
	}
	s.putLocked(node)
	s.mu.Unlock()

	s.markDirty()
	return cloneNode(node), true
}

// AddEdge appends a typed edge without checking that either endpoint exists.
// Duplicate edges are stored as given; use HasEdge to avoid redundant writes.
func (s *Store) AddEdge(source, target, relation string) common.Edge {
	edge := common.Edge{
		Source:    source,
		Target:    target,
		Type:      relation,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.appendEdgeLocked(edge)
	s.mu.Unlock()

	s.markDirty()
	return edge
}

// HasEdge reports whether an edge with exactly this source, target and type exists.
func (s *Store) HasEdge(source, target, relation string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, idx := range s.out[source] {
		e := s.edges[idx]
		if e.Target == target && e.Type == relation {
			return true
		}
	}
	return false
}

// GetNode returns the node with the given id. The boolean is false on a miss.
func (s *Store) GetNode(id string) (common.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.nodes[id]
	if !ok {
		return common.Node{}, false
	}
	return cloneNode(n), true
}

// HasNode reports whether id is present.
func (s *Store) HasNode(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.nodes[id]
	return ok
}

// AllNodes returns every node in insertion order.
func (s *Store) AllNodes() []common.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]common.Node, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneNode(s.nodes[id]))
	}
	return out
}

// Edges returns a copy of every edge in insertion order.
func (s *Store) Edges() []common.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.edges)
}

// Stats holds the size of the graph.
type Stats struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// Stats returns node and edge counts.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Nodes: len(s.nodes), Edges: len(s.edges)}
}

func (s *Store) putLocked(node common.Node) {
	if _, ok := s.nodes[node.ID]; !ok {
		s.order = append(s.order, node.ID)
	}
	s.nodes[node.ID] = node
}

func (s *Store) appendEdgeLocked(edge common.Edge) {
	idx := len(s.edges)
	s.edges = append(s.edges, edge)
	s.out[edge.Source] = append(s.out[edge.Source], idx)
	s.in[edge.Target] = append(s.in[edge.Target], idx)
}

func prepareNode(node common.Node) common.Node {
	if node.ID == "" {
		node.ID = gonanoid.Must()
	}
	if node.Kind == "" {
		node.Kind = common.KindPaper
	}
	return cloneNode(node)
}

func cloneNode(n common.Node) common.Node {
	n.Fields = slices.Clone(n.Fields)
	n.Authors = slices.Clone(n.Authors)
	return n
}
