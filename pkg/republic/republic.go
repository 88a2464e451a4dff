// Package republic runs the caste scheduler: three independently paced
// worker loops that analyse, investigate and price the nodes of a knowledge
// graph and feed what they discover back into each other's queues.
package republic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/ai"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/forensic"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/graph"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/logger"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/logger/ring"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/search"
)

// Caste is one of the three worker roles.
type Caste int

const (
	Reasoner Caste = iota
	Investigator
	Pricer

	casteCount = 3
)

// Castes lists every caste in start order.
var Castes = []Caste{Reasoner, Investigator, Pricer}

func (c Caste) String() string {
	switch c {
	case Reasoner:
		return "reasoner"
	case Investigator:
		return "investigator"
	case Pricer:
		return "pricer"
	default:
		return fmt.Sprintf("caste(%d)", int(c))
	}
}

// ParseCaste is the inverse of Caste.String.
func ParseCaste(s string) (Caste, bool) {
	for _, c := range Castes {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// examinedKey marks that a caste has processed a node.
type examinedKey struct {
	caste Caste
	id    string
}

// Config holds pacing and discovery parameters.
type Config struct {
	// Delay after each processed item, per caste.
	ReasonerPace     time.Duration
	InvestigatorPace time.Duration
	PricerPace       time.Duration

	// Delay before a caste's first iteration, staggering the start.
	ReasonerStart     time.Duration
	InvestigatorStart time.Duration
	PricerStart       time.Duration

	// IdleBackoff is how long an empty-queue loop sleeps before re-checking.
	IdleBackoff time.Duration
	// PatrolInterval is the minimum time between two Investigator patrols.
	PatrolInterval time.Duration
	// CallTimeout bounds a single generation or search call (0 disables).
	CallTimeout time.Duration

	NeighbourhoodDepth    int
	ForensicThreshold     float64
	RingMinLength         int
	HighCitationThreshold int

	MaxQueries      int
	ResultsPerQuery int
	SearchSources   []string

	// MaxArtifacts caps each artifact log; the oldest entries are dropped.
	MaxArtifacts int
	// LogCapacity is the number of system log lines kept for Status.
	LogCapacity int
}

// DefaultConfig returns the production pacing.
func DefaultConfig() Config {
	return Config{
		ReasonerPace:          8 * time.Second,
		InvestigatorPace:      12 * time.Second,
		PricerPace:            15 * time.Second,
		ReasonerStart:         0,
		InvestigatorStart:     2 * time.Second,
		PricerStart:           4 * time.Second,
		IdleBackoff:           5 * time.Second,
		PatrolInterval:        time.Minute,
		CallTimeout:           2 * time.Minute,
		NeighbourhoodDepth:    2,
		ForensicThreshold:     40,
		RingMinLength:         3,
		HighCitationThreshold: 1000,
		MaxQueries:            2,
		ResultsPerQuery:       5,
		MaxArtifacts:          1000,
		LogCapacity:           ring.DefaultCapacity,
	}
}

func (c Config) pace(caste Caste) time.Duration {
	switch caste {
	case Investigator:
		return c.InvestigatorPace
	case Pricer:
		return c.PricerPace
	default:
		return c.ReasonerPace
	}
}

func (c Config) start(caste Caste) time.Duration {
	switch caste {
	case Investigator:
		return c.InvestigatorStart
	case Pricer:
		return c.PricerStart
	default:
		return c.ReasonerStart
	}
}

// ArtifactPublisher receives every artifact and market as it is recorded.
type ArtifactPublisher interface {
	PublishArtifact(ctx context.Context, artifact common.Artifact) error
	PublishMarket(ctx context.Context, market common.Market) error
}

// Lease guards exclusive ownership of the graph across processes.
type Lease interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// ForensicScorer rates the credibility of a node.
type ForensicScorer func(node common.Node) forensic.Report

// Vitals are the scheduler's running counters.
type Vitals struct {
	PapersAnalysed     int   `json:"papers_analysed"`
	PapersInvestigated int   `json:"papers_investigated"`
	PapersPriced       int   `json:"papers_priced"`
	PapersDiscovered   int   `json:"papers_discovered"`
	Hypotheses         int   `json:"hypotheses"`
	Judgements         int   `json:"judgements"`
	Markets            int   `json:"markets"`
	Alerts             int   `json:"alerts"`
	Links              int   `json:"links"`
	GenerationCalls    int   `json:"generation_calls"`
	GenerationFailures int   `json:"generation_failures"`
	TokensUsed         int   `json:"tokens_used"`
	Patrols            int   `json:"patrols"`
	RingsDetected      int   `json:"rings_detected"`
	Anomalies          int   `json:"anomalies"`
	Errors             int   `json:"errors"`
	Skipped            int   `json:"skipped"`
	StartedAt          int64 `json:"started_at,omitempty"`
}

// Engine is the caste scheduler.
//
// Thread Safety: Safe for concurrent use. Scheduler state (queues, examined
// markers, artifact logs, markets, vitals) is guarded by one mutex; the graph
// guards itself.
type Engine struct {
	cfg       Config
	graph     *graph.Store
	gen       ai.Generator
	searcher  search.Searcher
	score     ForensicScorer
	publisher ArtifactPublisher
	lease     Lease

	history *ring.RingLogger
	log     *logger.Logger

	mu         sync.Mutex
	alive      bool
	epoch      int64
	queues     [casteCount]*fifo
	examined   map[examinedKey]struct{}
	hypotheses []common.Artifact
	judgements []common.Artifact
	alerts     []common.Artifact
	markets    []common.Market
	vitals     Vitals
	lastPatrol time.Time

	stop chan struct{}
	done chan struct{}
}

// NewEngineParams configures an Engine. Graph and Generator are required.
// Searcher, Publisher and Lease are optional. Forensic defaults to
// forensic.Score.
type NewEngineParams struct {
	Graph     *graph.Store
	Generator ai.Generator
	Searcher  search.Searcher
	Forensic  ForensicScorer
	Publisher ArtifactPublisher
	Lease     Lease
	Config    Config
}

// NewEngine creates a sleeping scheduler.
func NewEngine(params NewEngineParams) (*Engine, error) {
	if params.Graph == nil {
		return nil, errors.New("republic: graph is required")
	}
	if params.Generator == nil {
		return nil, errors.New("republic: generator is required")
	}

	cfg := params.Config
	def := DefaultConfig()
	if cfg.MaxQueries <= 0 {
		cfg.MaxQueries = def.MaxQueries
	}
	if cfg.ResultsPerQuery <= 0 {
		cfg.ResultsPerQuery = def.ResultsPerQuery
	}
	if cfg.NeighbourhoodDepth <= 0 {
		cfg.NeighbourhoodDepth = def.NeighbourhoodDepth
	}
	if cfg.RingMinLength <= 0 {
		cfg.RingMinLength = def.RingMinLength
	}
	if cfg.MaxArtifacts <= 0 {
		cfg.MaxArtifacts = def.MaxArtifacts
	}

	score := params.Forensic
	if score == nil {
		score = forensic.Score
	}

	history := ring.NewRingLogger(cfg.LogCapacity)
	e := &Engine{
		cfg:       cfg,
		graph:     params.Graph,
		gen:       params.Generator,
		searcher:  params.Searcher,
		score:     score,
		publisher: params.Publisher,
		lease:     params.Lease,
		history:   history,
		log:       logger.New(history, logger.Global()),
		examined:  make(map[examinedKey]struct{}),
	}
	for i := range e.queues {
		e.queues[i] = newFIFO()
	}
	return e, nil
}

// Awaken seeds every queue from a full graph scan and starts the three
// loops. The loops live until Sleep is called or ctx ends; in-flight
// collaborator calls use ctx. Awakening an awake engine is a no-op.
//
// Loops of an earlier run that are still finishing their item are waited
// for first, so a caste never has two loops.
func (e *Engine) Awaken(ctx context.Context) error {
	for {
		e.mu.Lock()
		if e.alive {
			e.mu.Unlock()
			return nil
		}
		prev := e.done
		e.mu.Unlock()

		if prev == nil {
			break
		}
		select {
		case <-prev:
		case <-ctx.Done():
			return ctx.Err()
		}

		e.mu.Lock()
		same := e.done == prev
		e.mu.Unlock()
		if same {
			break
		}
	}

	if e.lease != nil {
		if err := e.lease.Acquire(ctx); err != nil {
			return fmt.Errorf("acquiring graph lease: %w", err)
		}
	}

	nodes := e.graph.AllNodes()

	e.mu.Lock()
	if e.alive {
		e.mu.Unlock()
		return nil
	}
	for _, n := range nodes {
		e.enqueueAllLocked(n.ID)
	}
	e.alive = true
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	e.vitals.StartedAt = time.Now().Unix()
	stop, done := e.stop, e.done
	e.mu.Unlock()

	e.log.Info("[Republic] Awakened", "nodes", len(nodes))

	var wg sync.WaitGroup
	for _, c := range Castes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.run(ctx, c, stop)
		}()
	}
	go func() {
		wg.Wait()
		e.windDown(done)
	}()
	return nil
}

// windDown runs once every loop of a run has returned. It clears alive when
// the loops ended with their context rather than through Sleep, releases
// the lease and then closes done.
func (e *Engine) windDown(done chan struct{}) {
	e.mu.Lock()
	if e.alive && e.done == done {
		e.alive = false
		e.mu.Unlock()
		e.log.Info("[Republic] Loops ended with their context")
	} else {
		e.mu.Unlock()
	}

	if e.lease != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := e.lease.Release(ctx); err != nil {
			e.log.Error("[Republic] Failed to release graph lease", "err", err)
		}
		cancel()
	}

	close(done)
	e.log.Info("[Republic] Asleep")
}

// Sleep signals the loops to stop and waits until they have returned. Loops
// finish the item they are working on. When ctx ends first Sleep returns
// ctx.Err(); the loops keep winding down in the background and the lease is
// released once they have.
func (e *Engine) Sleep(ctx context.Context) error {
	e.mu.Lock()
	if !e.alive {
		done := e.done
		e.mu.Unlock()
		return waitDone(ctx, done)
	}
	e.alive = false
	close(e.stop)
	done := e.done
	e.mu.Unlock()

	e.log.Info("[Republic] Going to sleep")
	return waitDone(ctx, done)
}

func waitDone(ctx context.Context, done <-chan struct{}) error {
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Alive reports whether the loops are running.
func (e *Engine) Alive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alive
}

// Ingest adds node to the graph and queues it for every caste.
func (e *Engine) Ingest(node common.Node) common.Node {
	if node.Source == "" {
		node.Source = common.SourceSeeded
	}
	stored := e.graph.AddNode(node)

	e.mu.Lock()
	e.enqueueAllLocked(stored.ID)
	e.mu.Unlock()

	e.log.Info("[Republic] Ingested", "node", stored.ID, "title", stored.Title)
	return stored
}

// Examined reports whether caste has processed id.
func (e *Engine) Examined(c Caste, id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.examined[examinedKey{caste: c, id: id}]
	return ok
}

// QueueLen returns the number of pending ids for caste.
func (e *Engine) QueueLen(c Caste) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queues[c].len()
}

// run is the loop of one caste.
func (e *Engine) run(ctx context.Context, c Caste, stop <-chan struct{}) {
	if !pause(ctx, stop, e.cfg.start(c)) {
		return
	}

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		id, ok := e.pop(c)
		if !ok {
			if c == Investigator {
				e.maybePatrol()
			}
			if !pause(ctx, stop, e.cfg.IdleBackoff) {
				return
			}
			continue
		}

		e.process(ctx, c, id)

		if !pause(ctx, stop, e.cfg.pace(c)) {
			return
		}
	}
}

// pause sleeps for d and reports false when the loop should exit instead.
func pause(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-stop:
			return false
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-stop:
		return false
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// process handles one queue item. A panic is contained to the item.
func (e *Engine) process(ctx context.Context, c Caste, id string) {
	defer func() {
		if r := recover(); r != nil {
			e.mu.Lock()
			e.vitals.Errors++
			e.mu.Unlock()
			e.log.Error("[Republic] Processing failed", "caste", c, "node", id, "panic", r)
		}
	}()

	node, ok := e.graph.GetNode(id)
	if !ok || !e.markExamined(c, id) {
		e.mu.Lock()
		e.vitals.Skipped++
		e.mu.Unlock()
		return
	}

	switch c {
	case Reasoner:
		e.reason(ctx, node)
	case Investigator:
		e.investigate(ctx, node)
	case Pricer:
		e.price(ctx, node)
	}
}

// markExamined records (c, id) and reports false when it was already there.
func (e *Engine) markExamined(c Caste, id string) bool {
	key := examinedKey{caste: c, id: id}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, done := e.examined[key]; done {
		return false
	}
	e.examined[key] = struct{}{}
	return true
}

// generate calls the generation collaborator and accounts for the call. A
// failed call is logged and returns ok=false.
func (e *Engine) generate(ctx context.Context, c Caste, node common.Node, persona, prompt string) (string, bool) {
	if e.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
	}

	gen, err := e.gen.Generate(ctx, persona, prompt)

	e.mu.Lock()
	e.vitals.GenerationCalls++
	e.vitals.TokensUsed += gen.TokensUsed
	if err != nil {
		e.vitals.GenerationFailures++
	}
	e.mu.Unlock()

	if err != nil {
		e.log.Warn("[Republic] Generation failed", "caste", c, "persona", persona, "node", node.ID, "err", err)
		return "", false
	}
	return gen.Text, true
}
