package common

import "time"

// Provenance tags for nodes.
const (
	SourceSeeded     = "seeded"
	SourceDiscovered = "discovered"
)

// Node kinds.
const (
	KindPaper  = "paper"
	KindAuthor = "author"
)

// Node is an entity of the knowledge graph, usually a paper and occasionally
// an author. The identifier is stable once assigned; every other field may be
// replaced by a later upsert with the same ID.
type Node struct {
	ID            string   `json:"id"`
	Kind          string   `json:"kind,omitempty"`
	Title         string   `json:"title"`
	Abstract      string   `json:"abstract,omitempty"`
	Year          int      `json:"year,omitempty"`
	CitationCount int      `json:"citation_count,omitempty"`
	Fields        []string `json:"fields,omitempty"`
	Authors       []string `json:"authors,omitempty"`
	Source        string   `json:"source,omitempty"`
	URL           string   `json:"url,omitempty"`
}

// Edge is a typed directed relation between two node ids. Endpoints are not
// required to exist, so an edge may point at a node that is added later.
//
// Relations are free-form; common values are "cites", "builds_on",
// "challenges" and "related".
type Edge struct {
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// Subgraph is the result of a bounded traversal.
type Subgraph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Density counts the edges touching a node.
type Density struct {
	Incoming int `json:"incoming"`
	Outgoing int `json:"outgoing"`
	Total    int `json:"total"`
}

// Snapshot is the serialisable form of the whole graph.
type Snapshot struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`
	Nodes   []Node    `json:"nodes"`
	Edges   []Edge    `json:"edges"`
}

// SnapshotVersion is written into every Snapshot produced by this build.
const SnapshotVersion = 1

// Artifact is an append-only record produced by a caste worker: a hypothesis,
// a judgement or an alert. SourceTitle is denormalised for display.
type Artifact struct {
	Kind        string    `json:"kind"`
	Text        string    `json:"text"`
	WorkerID    string    `json:"worker_id"`
	SourceID    string    `json:"source_id"`
	SourceTitle string    `json:"source_title"`
	Epoch       int64     `json:"epoch"`
	Timestamp   time.Time `json:"timestamp"`
}

// Artifact kinds.
const (
	ArtifactHypothesis = "hypothesis"
	ArtifactJudgement  = "judgement"
	ArtifactAlert      = "alert"
	ArtifactMarket     = "market"
)

// Market is a two-sided prediction market opened by the Pricer. PriceYes and
// PriceNo always sum to 1. Trades stay empty here; settlement happens elsewhere.
type Market struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	Question  string    `json:"question"`
	PriceYes  float64   `json:"price_yes"`
	PriceNo   float64   `json:"price_no"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Epoch     int64     `json:"epoch"`
	Trades    []Trade   `json:"trades"`
}

// Trade is a single position taken on a Market.
type Trade struct {
	Trader string    `json:"trader"`
	Side   string    `json:"side"`
	Amount float64   `json:"amount"`
	At     time.Time `json:"at"`
}
