package republic

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/ai"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const publishTimeout = 5 * time.Second

func workerID(c Caste, persona string) string {
	return c.String() + "/" + persona
}

// record appends one artifact per text to the log for kind and publishes them.
func (e *Engine) record(kind string, texts []string, worker string, node common.Node) []common.Artifact {
	if len(texts) == 0 {
		return nil
	}

	now := time.Now().UTC()
	out := make([]common.Artifact, 0, len(texts))

	e.mu.Lock()
	for _, text := range texts {
		e.epoch++
		a := common.Artifact{
			Kind:        kind,
			Text:        text,
			WorkerID:    worker,
			SourceID:    node.ID,
			SourceTitle: node.Title,
			Epoch:       e.epoch,
			Timestamp:   now,
		}
		switch kind {
		case common.ArtifactHypothesis:
			e.hypotheses = appendCapped(e.hypotheses, a, e.cfg.MaxArtifacts)
			e.vitals.Hypotheses++
		case common.ArtifactJudgement:
			e.judgements = appendCapped(e.judgements, a, e.cfg.MaxArtifacts)
			e.vitals.Judgements++
		case common.ArtifactAlert:
			e.alerts = appendCapped(e.alerts, a, e.cfg.MaxArtifacts)
			e.vitals.Alerts++
		}
		out = append(out, a)
	}
	e.mu.Unlock()

	for _, a := range out {
		e.log.Info("[Republic] "+a.Kind, "worker", worker, "node", node.ID, "text", a.Text)
		e.publishArtifact(a)
	}
	return out
}

// openMarkets turns market specs into markets on node.
func (e *Engine) openMarkets(specs []ai.MarketSpec, worker string, node common.Node) []common.Market {
	if len(specs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	out := make([]common.Market, 0, len(specs))

	e.mu.Lock()
	for _, s := range specs {
		e.epoch++
		yes := math.Round(s.Probability*100) / 10000
		m := common.Market{
			ID:        gonanoid.Must(),
			SourceID:  node.ID,
			Question:  s.Question,
			PriceYes:  yes,
			PriceNo:   1 - yes,
			CreatedBy: worker,
			CreatedAt: now,
			Epoch:     e.epoch,
			Trades:    []common.Trade{},
		}
		e.markets = appendCapped(e.markets, m, e.cfg.MaxArtifacts)
		e.vitals.Markets++
		out = append(out, m)
	}
	e.mu.Unlock()

	for _, m := range out {
		e.log.Info("[Republic] market", "worker", worker, "node", node.ID, "question", m.Question, "yes", m.PriceYes)
		if e.publisher != nil {
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			if err := e.publisher.PublishMarket(ctx, m); err != nil {
				e.log.Warn("[Republic] Publishing market failed", "market", m.ID, "err", err)
			}
			cancel()
		}
	}
	return out
}

func (e *Engine) publishArtifact(a common.Artifact) {
	if e.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := e.publisher.PublishArtifact(ctx, a); err != nil {
		e.log.Warn("[Republic] Publishing artifact failed", "kind", a.Kind, "node", a.SourceID, "err", err)
	}
}

// appendCapped appends v and drops the oldest entries beyond limit.
func appendCapped[T any](s []T, v T, limit int) []T {
	s = append(s, v)
	if limit > 0 && len(s) > limit {
		s = slices.Clone(s[len(s)-limit:])
	}
	return s
}

// Hypotheses returns a copy of the hypothesis log, oldest first.
func (e *Engine) Hypotheses() []common.Artifact {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.hypotheses)
}

// Judgements returns a copy of the judgement log, oldest first.
func (e *Engine) Judgements() []common.Artifact {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.judgements)
}

// Alerts returns a copy of the alert log, oldest first.
func (e *Engine) Alerts() []common.Artifact {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.alerts)
}

// Markets returns a copy of every open market, oldest first.
func (e *Engine) Markets() []common.Market {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]common.Market, len(e.markets))
	for i, m := range e.markets {
		m.Trades = slices.Clone(m.Trades)
		out[i] = m
	}
	return out
}
