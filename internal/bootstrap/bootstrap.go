// Package bootstrap assembles the graph, trust layer and scheduler from the
// environment. Both binaries share it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/internal/db"
	"github.com/Meugenn/knowledge-graph-sub001/internal/storage"
	"github.com/Meugenn/knowledge-graph-sub001/internal/util"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/ai"
	oai "github.com/Meugenn/knowledge-graph-sub001/pkg/ai/ollama"
	gai "github.com/Meugenn/knowledge-graph-sub001/pkg/ai/openai"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/graph"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/leaselock"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/logger"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/republic"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/search"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/store"
	pgxstore "github.com/Meugenn/knowledge-graph-sub001/pkg/store/pgx"
	s3store "github.com/Meugenn/knowledge-graph-sub001/pkg/store/s3"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/store/sqlite"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/trism"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Runtime is everything a binary needs to run the scheduler.
type Runtime struct {
	Graph  *graph.Store
	Trism  *trism.Layer
	Engine *republic.Engine

	// Backend is the unguarded generation client, kept for its metrics.
	Backend ai.Generator
	// Storage is nil when snapshots are disabled.
	Storage store.SnapshotStorage
	// Lease is nil unless snapshots live in Postgres.
	Lease *leaselock.Holder

	closers []func()
}

// Options carries the pieces that differ between binaries.
type Options struct {
	Publisher republic.ArtifactPublisher
}

// Setup builds a Runtime. The graph is restored from the configured snapshot
// backend before the engine is created.
func Setup(ctx context.Context, opts Options) (*Runtime, error) {
	rt := &Runtime{}

	snapshots, pool, err := rt.openSnapshotStorage(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}

	var storeOpts []graph.StoreOption
	if snapshots != nil {
		rt.Storage = snapshots
		storeOpts = append(storeOpts, graph.WithSnapshotter(snapshots))
	}
	rt.Graph = graph.NewStore(storeOpts...)

	if rt.Storage != nil {
		if _, err := store.RestoreGraph(ctx, rt.Storage, rt.Graph); err != nil {
			rt.Close()
			return nil, fmt.Errorf("restoring graph: %w", err)
		}
	}

	rt.Trism = trism.New(rt.Graph, TrismConfig())

	rt.Backend, err = NewGenerator()
	if err != nil {
		rt.Close()
		return nil, err
	}

	params := republic.NewEngineParams{
		Graph:     rt.Graph,
		Generator: trism.NewGuardedGenerator(rt.Backend, rt.Trism),
		Publisher: opts.Publisher,
		Config:    RepublicConfig(),
	}
	if s := NewSearcher(); s != nil {
		params.Searcher = s
	}
	if pool != nil {
		rt.Lease = leaselock.New(pool).Holder("graph_snapshot:"+snapshotName(), leaselock.Options{
			TTL:         util.GetEnvDuration("LEASE_TTL", 2*time.Minute),
			TokenPrefix: "republic-",
		})
		params.Lease = rt.Lease
	}

	rt.Engine, err = republic.NewEngine(params)
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// RunSnapshots persists graph changes until ctx ends.
func (rt *Runtime) RunSnapshots(ctx context.Context) {
	if rt.Storage == nil {
		return
	}
	rt.Graph.RunSnapshots(ctx, util.GetEnvDuration("SNAPSHOT_DEBOUNCE", 5*time.Second))
}

// LogMetrics logs and resets the backend's token usage, if it tracks any.
func (rt *Runtime) LogMetrics(format func(ms int64) string) {
	reporter, ok := rt.Backend.(ai.MetricsReporter)
	if !ok {
		return
	}
	metrics := reporter.GetMetrics()
	logger.Info(
		"[AI] Metrics",
		"requests", metrics.Requests,
		"failures", metrics.Failures,
		"input_tokens", metrics.InputTokens,
		"output_tokens", metrics.OutputTokens,
		"total_tokens", metrics.TotalTokens,
		"duration", format(metrics.DurationMs),
	)
	reporter.ResetMetrics()
}

// Close releases connections in reverse order of creation.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func snapshotName() string {
	return util.GetEnvString("SNAPSHOT_NAME", store.DefaultName)
}

func (rt *Runtime) openSnapshotStorage(ctx context.Context) (store.SnapshotStorage, *pgxpool.Pool, error) {
	backend := strings.ToLower(util.GetEnvString("SNAPSHOT_BACKEND", "sqlite"))
	name := snapshotName()

	switch backend {
	case "none", "":
		logger.Warn("[Store] Snapshots disabled, the graph lives in memory only")
		return nil, nil, nil
	case "sqlite":
		s, err := sqlite.Open(ctx, util.GetEnvString("SNAPSHOT_PATH", "republic.db"), name)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite snapshots: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = s.Close() })
		logger.Info("[Store] Using sqlite snapshots", "name", name)
		return s, nil, nil
	case "postgres":
		url := util.GetEnv("DATABASE_URL")
		if url == "" {
			return nil, nil, errors.New("DATABASE_URL is required for postgres snapshots")
		}
		if err := db.Migrate(url); err != nil {
			return nil, nil, fmt.Errorf("migrating database: %w", err)
		}
		pool, err := pgxpool.New(ctx, url)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		rt.closers = append(rt.closers, pool.Close)
		logger.Info("[Store] Using postgres snapshots", "name", name)
		return pgxstore.NewSnapshotStorage(pool, pgxstore.WithName(name)), pool, nil
	case "s3":
		client, err := storage.NewS3Client(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("creating s3 client: %w", err)
		}
		s, err := s3store.NewSnapshotStorage(s3store.NewSnapshotStorageParams{
			Client: client,
			Bucket: storage.Bucket(),
			Prefix: util.GetEnvString("SNAPSHOT_PREFIX", "snapshots"),
			Name:   name,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("[Store] Using s3 snapshots", "bucket", storage.Bucket(), "key", s.Key())
		return s, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown SNAPSHOT_BACKEND %q", backend)
	}
}

// NewGenerator creates the generation backend selected by AI_ADAPTER.
func NewGenerator() (ai.Generator, error) {
	parallel := int64(util.GetEnvInt("AI_PARALLEL_REQ", 4))
	timeout := util.GetEnvDuration("AI_TIMEOUT", 2*time.Minute)

	switch util.GetEnvString("AI_ADAPTER", "openai") {
	case "ollama":
		client, err := oai.NewGenerationClient(oai.NewGenerationClientParams{
			Model:                 util.GetEnv("AI_CHAT_MODEL"),
			BaseURL:               util.GetEnv("AI_CHAT_URL"),
			ApiKey:                util.GetEnv("AI_CHAT_KEY"),
			MaxConcurrentRequests: parallel,
			Timeout:               timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("creating ollama client: %w", err)
		}
		return client, nil
	default:
		return gai.NewGenerationClient(gai.NewGenerationClientParams{
			Model:                 util.GetEnv("AI_CHAT_MODEL"),
			ChatURL:               util.GetEnv("AI_CHAT_URL"),
			ChatKey:               util.GetEnv("AI_CHAT_KEY"),
			MaxConcurrentRequests: parallel,
			MaxRetries:            util.GetEnvInt("AI_MAX_RETRIES", 3),
			Timeout:               timeout,
		}), nil
	}
}

// NewSearcher aggregates the providers named in SEARCH_SOURCES. It returns
// nil when none is enabled, which disables discovery.
func NewSearcher() *search.Aggregator {
	var providers []search.Provider
	for _, name := range util.GetEnvList("SEARCH_SOURCES", []string{"semantic_scholar", "openalex", "huggingface"}) {
		switch strings.ToLower(name) {
		case "semantic_scholar", "semanticscholar":
			providers = append(providers, search.NewSemanticScholar(search.NewSemanticScholarParams{
				BaseURL:           util.GetEnv("SEMANTIC_SCHOLAR_URL"),
				APIKey:            util.GetEnv("SEMANTIC_SCHOLAR_KEY"),
				RequestsPerSecond: util.GetEnvFloat("SEMANTIC_SCHOLAR_RPS", 0),
			}))
		case "openalex":
			providers = append(providers, search.NewOpenAlex(search.NewOpenAlexParams{
				BaseURL:           util.GetEnv("OPENALEX_URL"),
				Mailto:            util.GetEnv("OPENALEX_MAILTO"),
				RequestsPerSecond: util.GetEnvFloat("OPENALEX_RPS", 0),
			}))
		case "huggingface", "hf":
			providers = append(providers, search.NewHuggingFace(search.NewHuggingFaceParams{
				BaseURL:           util.GetEnv("HF_URL"),
				Token:             util.GetEnv("HF_TOKEN"),
				RequestsPerSecond: util.GetEnvFloat("HF_RPS", 0),
			}))
		default:
			logger.Warn("[Search] Unknown search source, ignoring", "source", name)
		}
	}
	if len(providers) == 0 {
		logger.Warn("[Search] No search sources enabled, discovery is off")
		return nil
	}
	return search.NewAggregator(
		providers,
		search.WithPerSourceLimit(util.GetEnvInt("SEARCH_PER_SOURCE", 5)),
		search.WithCacheTTL(util.GetEnvDuration("SEARCH_CACHE_TTL", 10*time.Minute)),
	)
}

// RepublicConfig reads the scheduler pacing from REPUBLIC_* variables.
func RepublicConfig() republic.Config {
	def := republic.DefaultConfig()
	return republic.Config{
		ReasonerPace:          util.GetEnvDuration("REPUBLIC_REASONER_PACE", def.ReasonerPace),
		InvestigatorPace:      util.GetEnvDuration("REPUBLIC_INVESTIGATOR_PACE", def.InvestigatorPace),
		PricerPace:            util.GetEnvDuration("REPUBLIC_PRICER_PACE", def.PricerPace),
		ReasonerStart:         util.GetEnvDuration("REPUBLIC_REASONER_START", def.ReasonerStart),
		InvestigatorStart:     util.GetEnvDuration("REPUBLIC_INVESTIGATOR_START", def.InvestigatorStart),
		PricerStart:           util.GetEnvDuration("REPUBLIC_PRICER_START", def.PricerStart),
		IdleBackoff:           util.GetEnvDuration("REPUBLIC_IDLE_BACKOFF", def.IdleBackoff),
		PatrolInterval:        util.GetEnvDuration("REPUBLIC_PATROL_INTERVAL", def.PatrolInterval),
		CallTimeout:           util.GetEnvDuration("REPUBLIC_CALL_TIMEOUT", def.CallTimeout),
		NeighbourhoodDepth:    util.GetEnvInt("REPUBLIC_NEIGHBOURHOOD_DEPTH", def.NeighbourhoodDepth),
		ForensicThreshold:     util.GetEnvFloat("REPUBLIC_FORENSIC_THRESHOLD", def.ForensicThreshold),
		RingMinLength:         util.GetEnvInt("REPUBLIC_RING_MIN_LENGTH", def.RingMinLength),
		HighCitationThreshold: util.GetEnvInt("REPUBLIC_HIGH_CITATIONS", def.HighCitationThreshold),
		MaxQueries:            util.GetEnvInt("REPUBLIC_MAX_QUERIES", def.MaxQueries),
		ResultsPerQuery:       util.GetEnvInt("REPUBLIC_RESULTS_PER_QUERY", def.ResultsPerQuery),
		SearchSources:         util.GetEnvList("REPUBLIC_SEARCH_SOURCES", def.SearchSources),
		MaxArtifacts:          util.GetEnvInt("REPUBLIC_MAX_ARTIFACTS", def.MaxArtifacts),
		LogCapacity:           util.GetEnvInt("REPUBLIC_LOG_CAPACITY", def.LogCapacity),
	}
}

// TrismConfig reads the trust thresholds from TRISM_* variables.
func TrismConfig() trism.Config {
	def := trism.DefaultConfig()
	return trism.Config{
		FailureScore:        util.GetEnvFloat("TRISM_FAILURE_SCORE", def.FailureScore),
		SuccessDecay:        util.GetEnvFloat("TRISM_SUCCESS_DECAY", def.SuccessDecay),
		ThrottleThreshold:   util.GetEnvFloat("TRISM_THROTTLE_THRESHOLD", def.ThrottleThreshold),
		QuarantineThreshold: util.GetEnvFloat("TRISM_QUARANTINE_THRESHOLD", def.QuarantineThreshold),
		KillThreshold:       util.GetEnvFloat("TRISM_KILL_THRESHOLD", def.KillThreshold),
		MaxEntities:         util.GetEnvInt("TRISM_MAX_ENTITIES", def.MaxEntities),
		NoEntityScore:       util.GetEnvFloat("TRISM_NO_ENTITY_SCORE", def.NoEntityScore),
		DriftWindow:         util.GetEnvInt("TRISM_DRIFT_WINDOW", def.DriftWindow),
		DriftHistory:        util.GetEnvInt("TRISM_DRIFT_HISTORY", def.DriftHistory),
		ThrottleDelay:       util.GetEnvDuration("TRISM_THROTTLE_DELAY", def.ThrottleDelay),
	}
}
