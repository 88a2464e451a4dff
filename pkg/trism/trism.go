// Package trism scores generated text for fabrication and behavioural drift
// and escalates misbehaving content sources through a circuit breaker.
package trism

import (
	"sync"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/logger"
)

// Corpus is the read-only view of the knowledge graph used to verify
// entities mentioned in generated text.
type Corpus interface {
	SearchByText(query string) []common.Node
}

// Config holds the scoring and escalation parameters.
type Config struct {
	// FailureScore is the combined score below which an evaluation counts as
	// a failure (default: 0.3).
	FailureScore float64
	// SuccessDecay is subtracted from the failure count on success (default: 0.5).
	SuccessDecay float64

	ThrottleThreshold   float64 // default: 3
	QuarantineThreshold float64 // default: 5
	KillThreshold       float64 // default: 8

	// MaxEntities caps the entities checked per evaluation (default: 20).
	MaxEntities int
	// NoEntityScore is the hallucination score when nothing can be checked (default: 0.8).
	NoEntityScore float64

	// DriftWindow is how many recent token sets the newest output is compared
	// with (default: 3). DriftHistory is how many are kept (default: 10).
	DriftWindow  int
	DriftHistory int

	// ThrottleDelay is how long GuardedGenerator waits before calling a
	// throttled source (default: 2s).
	ThrottleDelay time.Duration
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		FailureScore:        0.3,
		SuccessDecay:        0.5,
		ThrottleThreshold:   3,
		QuarantineThreshold: 5,
		KillThreshold:       8,
		MaxEntities:         20,
		NoEntityScore:       0.8,
		DriftWindow:         3,
		DriftHistory:        10,
		ThrottleDelay:       2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureScore <= 0 {
		c.FailureScore = d.FailureScore
	}
	if c.SuccessDecay <= 0 {
		c.SuccessDecay = d.SuccessDecay
	}
	if c.ThrottleThreshold <= 0 {
		c.ThrottleThreshold = d.ThrottleThreshold
	}
	if c.QuarantineThreshold <= 0 {
		c.QuarantineThreshold = d.QuarantineThreshold
	}
	if c.KillThreshold <= 0 {
		c.KillThreshold = d.KillThreshold
	}
	if c.MaxEntities <= 0 {
		c.MaxEntities = d.MaxEntities
	}
	if c.NoEntityScore <= 0 {
		c.NoEntityScore = d.NoEntityScore
	}
	if c.DriftWindow <= 0 {
		c.DriftWindow = d.DriftWindow
	}
	if c.DriftHistory < c.DriftWindow {
		c.DriftHistory = max(d.DriftHistory, c.DriftWindow)
	}
	if c.ThrottleDelay < 0 {
		c.ThrottleDelay = 0
	}
	return c
}

// Details carries the evidence behind an evaluation.
type Details struct {
	Entities            []string `json:"entities"`
	Unverified          []string `json:"unverified"`
	SuspiciousPrecision bool     `json:"suspicious_precision"`
	SelfReference       bool     `json:"self_reference"`
	DriftSimilarity     float64  `json:"drift_similarity"`
	DriftCompared       int      `json:"drift_compared"`
	Failures            float64  `json:"failures"`
}

// Evaluation is the result of Evaluate.
type Evaluation struct {
	SourceID           string    `json:"source_id"`
	HallucinationScore float64   `json:"hallucination_score"`
	DriftScore         float64   `json:"drift_score"`
	CombinedScore      float64   `json:"combined_score"`
	Action             Level     `json:"action"`
	Details            Details   `json:"details"`
	EvaluatedAt        time.Time `json:"evaluated_at"`
}

// Layer is the trust layer. It owns the circuit-breaker and drift state of
// every content source.
//
// Thread Safety: Safe for concurrent use.
type Layer struct {
	cfg    Config
	corpus Corpus

	mu       sync.Mutex
	breakers map[string]*BreakerState
	drift    map[string][]tokenSet
}

// New creates a trust layer that verifies entities against corpus. A nil
// corpus verifies nothing, so every entity counts as unverified.
func New(corpus Corpus, cfg Config) *Layer {
	return &Layer{
		cfg:      cfg.withDefaults(),
		corpus:   corpus,
		breakers: make(map[string]*BreakerState),
		drift:    make(map[string][]tokenSet),
	}
}

// Config returns the effective configuration.
func (l *Layer) Config() Config {
	return l.cfg
}

// Evaluate scores content produced by sourceID, records the result on the
// source's drift history and circuit breaker, and returns the outcome. The
// action equals the breaker level after the update.
func (l *Layer) Evaluate(sourceID, content string) Evaluation {
	h := l.checkHallucination(content)
	tokens := tokenize(content)

	l.mu.Lock()
	driftScore, similarity, compared := l.recordDriftLocked(sourceID, tokens)
	combined := (h.score + driftScore) / 2
	state := l.recordLocked(sourceID, combined < l.cfg.FailureScore)
	l.mu.Unlock()

	eval := Evaluation{
		SourceID:           sourceID,
		HallucinationScore: h.score,
		DriftScore:         driftScore,
		CombinedScore:      combined,
		Action:             state.Level,
		Details: Details{
			Entities:            h.entities,
			Unverified:          h.unverified,
			SuspiciousPrecision: h.suspiciousPrecision,
			SelfReference:       h.selfReference,
			DriftSimilarity:     similarity,
			DriftCompared:       compared,
			Failures:            state.Failures,
		},
		EvaluatedAt: state.UpdatedAt,
	}

	if state.Level != LevelNormal {
		logger.Debug("[TRiSM] Source escalated",
			"source", sourceID,
			"level", state.Level,
			"failures", state.Failures,
			"combined", combined,
		)
	}
	return eval
}

// Reset clears breaker and drift state for the given sources, or for every
// source when none is given.
func (l *Layer) Reset(sourceIDs ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(sourceIDs) == 0 {
		l.breakers = make(map[string]*BreakerState)
		l.drift = make(map[string][]tokenSet)
		logger.Info("[TRiSM] All circuit breakers reset")
		return
	}
	for _, id := range sourceIDs {
		delete(l.breakers, id)
		delete(l.drift, id)
		logger.Info("[TRiSM] Circuit breaker reset", "source", id)
	}
}
