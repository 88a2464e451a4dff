package graph

import (
	"context"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
)

func nodeIDs(nodes []common.Node) []string {
	ids := make([]string, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)
	return ids
}

func buildStore(ids []string, edges [][2]string) *Store {
	s := NewStore()
	for _, id := range ids {
		s.AddNode(common.Node{ID: id, Title: "Paper " + id})
	}
	for _, e := range edges {
		s.AddEdge(e[0], e[1], "cites")
	}
	return s
}

func TestAddNode_AssignsIDAndUpserts(t *testing.T) {
	s := NewStore()

	created := s.AddNode(common.Node{Title: "Untitled"})
	if created.ID == "" {
		t.Fatal("expected an id to be assigned")
	}
	if created.Kind != common.KindPaper {
		t.Fatalf("got kind %q, want %q", created.Kind, common.KindPaper)
	}

	s.AddNode(common.Node{ID: created.ID, Title: "Renamed", CitationCount: 7})
	got, ok := s.GetNode(created.ID)
	if !ok {
		t.Fatal("expected node to exist")
	}
	if got.Title != "Renamed" || got.CitationCount != 7 {
		t.Fatalf("upsert did not overwrite metadata: %+v", got)
	}
	if n := len(s.AllNodes()); n != 1 {
		t.Fatalf("got %d nodes after upsert, want 1", n)
	}
}

func TestGetNode_Miss(t *testing.T) {
	s := NewStore()
	if _, ok := s.GetNode("missing"); ok {
		t.Fatal("expected miss for unknown id")
	}
}

func TestAddNodeIfAbsent(t *testing.T) {
	s := NewStore()
	if _, inserted := s.AddNodeIfAbsent(common.Node{ID: "a", Title: "first"}); !inserted {
		t.Fatal("expected first insert to succeed")
	}
	existing, inserted := s.AddNodeIfAbsent(common.Node{ID: "a", Title: "second"})
	if inserted {
		t.Fatal("expected second insert to be rejected")
	}
	if existing.Title != "first" {
		t.Fatalf("got title %q, want %q", existing.Title, "first")
	}
}

func TestAddNodeIfAbsent_Concurrent(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.AddNodeIfAbsent(common.Node{ID: "same"}); ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if inserted != 1 {
		t.Fatalf("got %d inserts, want 1", inserted)
	}
}

func TestAddEdge_ForwardReference(t *testing.T) {
	s := NewStore()
	e := s.AddEdge("a", "not-yet", "builds_on")
	if e.Source != "a" || e.Target != "not-yet" || e.Type != "builds_on" {
		t.Fatalf("unexpected edge: %+v", e)
	}
	if !s.HasEdge("a", "not-yet", "builds_on") {
		t.Fatal("expected HasEdge to find the edge")
	}
	if s.HasEdge("a", "not-yet", "cites") {
		t.Fatal("HasEdge must match on relation type")
	}
	s.AddEdge("a", "not-yet", "builds_on")
	if got := s.Stats().Edges; got != 2 {
		t.Fatalf("duplicates are stored as given, got %d edges", got)
	}
}

func TestNeighbourhood_DepthZero(t *testing.T) {
	s := buildStore([]string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}})

	sub := s.Neighbourhood("a", 0)
	if got := nodeIDs(sub.Nodes); !slices.Equal(got, []string{"a"}) {
		t.Fatalf("got nodes %v, want [a]", got)
	}
	if len(sub.Edges) != 0 {
		t.Fatalf("got %d edges, want 0", len(sub.Edges))
	}

	missing := s.Neighbourhood("zzz", 0)
	if len(missing.Nodes) != 0 || len(missing.Edges) != 0 {
		t.Fatalf("expected empty subgraph for missing start, got %+v", missing)
	}
}

func TestNeighbourhood_UndirectedAndBounded(t *testing.T) {
	// a -> b <- c -> d -> e
	s := buildStore(
		[]string{"a", "b", "c", "d", "e"},
		[][2]string{{"a", "b"}, {"c", "b"}, {"c", "d"}, {"d", "e"}},
	)

	tests := []struct {
		depth int
		want  []string
	}{
		{depth: 1, want: []string{"a", "b"}},
		{depth: 2, want: []string{"a", "b", "c"}},
		{depth: 3, want: []string{"a", "b", "c", "d"}},
		{depth: 10, want: []string{"a", "b", "c", "d", "e"}},
	}
	for _, tc := range tests {
		got := nodeIDs(s.Neighbourhood("a", tc.depth).Nodes)
		if !slices.Equal(got, tc.want) {
			t.Fatalf("depth %d: got %v, want %v", tc.depth, got, tc.want)
		}
	}
}

func TestNeighbourhood_Monotonic(t *testing.T) {
	s := buildStore(
		[]string{"a", "b", "c", "d", "e", "f"},
		[][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}, {"c", "d"}, {"e", "d"}, {"f", "f"}},
	)
	for _, start := range []string{"a", "d", "f"} {
		for d1 := 0; d1 < 4; d1++ {
			small := nodeIDs(s.Neighbourhood(start, d1).Nodes)
			large := nodeIDs(s.Neighbourhood(start, d1+1).Nodes)
			for _, id := range small {
				if !slices.Contains(large, id) {
					t.Fatalf("start %s: node %s at depth %d missing at depth %d", start, id, d1, d1+1)
				}
			}
		}
	}
}

func TestNeighbourhood_TerminatesOnCycles(t *testing.T) {
	s := buildStore([]string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}, {"c", "a"}, {"a", "a"}})
	sub := s.Neighbourhood("a", 50)
	if got := nodeIDs(sub.Nodes); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Fatalf("got nodes %v", got)
	}
	if len(sub.Edges) != 4 {
		t.Fatalf("got %d edges, want 4", len(sub.Edges))
	}
}

func ringContains(rings [][]string, members ...string) bool {
	for _, ring := range rings {
		ok := len(ring) == len(members)
		for _, m := range members {
			if !slices.Contains(ring, m) {
				ok = false
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func TestDetectRings_Triangle(t *testing.T) {
	s := buildStore([]string{"A", "B", "C"}, [][2]string{{"A", "B"}, {"B", "C"}, {"C", "A"}})
	rings := s.DetectRings(3)
	if !ringContains(rings, "A", "B", "C") {
		t.Fatalf("expected ring A,B,C in %v", rings)
	}
	// Reported once per start node.
	if len(rings) != 3 {
		t.Fatalf("got %d rings, want 3 rotations", len(rings))
	}
	if unique := UniqueRings(rings); len(unique) != 1 {
		t.Fatalf("got %d unique rings, want 1", len(unique))
	}
}

func TestDetectRings_Acyclic(t *testing.T) {
	s := buildStore([]string{"A", "B", "C", "D"}, [][2]string{{"A", "B"}, {"B", "C"}, {"A", "C"}, {"C", "D"}})
	if rings := s.DetectRings(3); len(rings) != 0 {
		t.Fatalf("expected no rings, got %v", rings)
	}
}

func TestDetectRings_FourCycle(t *testing.T) {
	edges := [][2]string{{"A", "B"}, {"B", "C"}, {"C", "D"}, {"D", "A"}}
	s := buildStore([]string{"A", "B", "C", "D"}, edges)
	if rings := s.DetectRings(3); len(rings) == 0 {
		t.Fatal("expected at least one ring")
	}

	broken := buildStore([]string{"A", "B", "C", "D"}, edges[:3])
	if rings := broken.DetectRings(3); len(rings) != 0 {
		t.Fatalf("expected no rings after removing an edge, got %v", rings)
	}
}

func TestDetectRings_RespectsLengthBounds(t *testing.T) {
	// two-cycle is shorter than minLength 3
	s := buildStore([]string{"A", "B"}, [][2]string{{"A", "B"}, {"B", "A"}})
	if rings := s.DetectRings(3); len(rings) != 0 {
		t.Fatalf("expected no rings for 2-cycle with minLength 3, got %v", rings)
	}
	if rings := s.DetectRings(2); len(rings) != 2 {
		t.Fatalf("got %d rings for 2-cycle with minLength 2, want 2", len(rings))
	}

	// six-cycle is longer than minLength+1
	ids := []string{"1", "2", "3", "4", "5", "6"}
	var edges [][2]string
	for i := range ids {
		edges = append(edges, [2]string{ids[i], ids[(i+1)%len(ids)]})
	}
	long := buildStore(ids, edges)
	if rings := long.DetectRings(3); len(rings) != 0 {
		t.Fatalf("expected six-cycle to exceed the search bound, got %v", rings)
	}
	if rings := long.DetectRings(5); len(rings) == 0 {
		t.Fatal("expected six-cycle within bound for minLength 5")
	}
}

func TestSearchByText(t *testing.T) {
	s := NewStore()
	s.AddNode(common.Node{ID: "p1", Title: "Attention Is All You Need"})
	s.AddNode(common.Node{ID: "p2", Title: "Deep Residual Learning", Abstract: "We present a residual ATTENTION-free framework"})
	s.AddNode(common.Node{ID: "p3", Title: "Graph Networks", Fields: []string{"Machine Learning"}})

	tests := []struct {
		query string
		want  []string
	}{
		{query: "attention", want: []string{"p1", "p2"}},
		{query: "machine learning", want: []string{"p3"}},
		{query: "quantum", want: nil},
		{query: "   ", want: nil},
	}
	for _, tc := range tests {
		var got []string
		for _, n := range s.SearchByText(tc.query) {
			got = append(got, n.ID)
		}
		if !slices.Equal(got, tc.want) {
			t.Fatalf("query %q: got %v, want %v", tc.query, got, tc.want)
		}
	}
}

func TestCausalDensity(t *testing.T) {
	s := buildStore([]string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"c", "b"}, {"b", "a"}})
	got := s.CausalDensity("b")
	want := common.Density{Incoming: 2, Outgoing: 1, Total: 3}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if d := s.CausalDensity("nobody"); d.Total != 0 {
		t.Fatalf("got %+v for unknown node, want zero", d)
	}
}

type recordingSnapshotter struct {
	mu    sync.Mutex
	saved []common.Snapshot
}

func (r *recordingSnapshotter) SaveSnapshot(_ context.Context, snap common.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, snap)
	return nil
}

func (r *recordingSnapshotter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saved)
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := buildStore([]string{"a", "b"}, [][2]string{{"a", "b"}})
	snap := s.Snapshot()

	restored := NewStore()
	restored.Restore(snap)
	if got := nodeIDs(restored.AllNodes()); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("got nodes %v after restore", got)
	}
	if d := restored.CausalDensity("a"); d.Outgoing != 1 {
		t.Fatalf("indexes not rebuilt on restore: %+v", d)
	}
}

func TestFlush_WritesOnlyWhenDirty(t *testing.T) {
	rec := &recordingSnapshotter{}
	s := NewStore(WithSnapshotter(rec))
	ctx := context.Background()

	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if rec.count() != 0 {
		t.Fatal("clean store must not be written")
	}

	s.AddNode(common.Node{ID: "a"})
	s.AddEdge("a", "b", "cites")
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if rec.count() != 1 {
		t.Fatalf("got %d snapshots, want 1", rec.count())
	}
	if len(rec.saved[0].Nodes) != 1 || len(rec.saved[0].Edges) != 1 {
		t.Fatalf("unexpected snapshot contents: %+v", rec.saved[0])
	}
}

func TestRunSnapshots_FlushesOnShutdown(t *testing.T) {
	rec := &recordingSnapshotter{}
	s := NewStore(WithSnapshotter(rec))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.RunSnapshots(ctx, time.Hour)
		close(done)
	}()

	s.AddNode(common.Node{ID: "a"})
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunSnapshots did not return after cancellation")
	}
	if rec.count() != 1 {
		t.Fatalf("got %d snapshots, want 1 final flush", rec.count())
	}
}
