package republic

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/ai"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/forensic"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/graph"
)

// AlertMarker opens every escalation prompt.
const AlertMarker = "SECURITY ALERT"

// investigate scores node and escalates to the audit persona when the score
// is below the threshold or the verdict is suspicious.
func (e *Engine) investigate(ctx context.Context, node common.Node) {
	rep := e.score(node)

	e.mu.Lock()
	e.vitals.PapersInvestigated++
	e.mu.Unlock()

	if rep.Score >= e.cfg.ForensicThreshold && rep.Verdict != forensic.VerdictSuspicious {
		e.log.Debug("[Republic] Forensic pass", "node", node.ID, "score", rep.Score, "verdict", rep.Verdict)
		return
	}

	e.log.Warn("[Republic] Forensic escalation", "node", node.ID, "score", rep.Score, "verdict", rep.Verdict)
	text, ok := e.generate(ctx, Investigator, node, ai.PersonaSecurityAudit, auditPrompt(node, rep))
	if !ok {
		return
	}
	e.record(common.ArtifactAlert, ai.ExtractTagged(text, ai.TagAlert), workerID(Investigator, ai.PersonaSecurityAudit), node)
}

func auditPrompt(node common.Node, rep forensic.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: forensic scan flagged paper %s\n", AlertMarker, node.ID)
	fmt.Fprintf(&b, "Credibility score: %.1f/100 (%s)\n", rep.Score, rep.Verdict)
	fmt.Fprintf(&b, "Hedging terms: %d, overclaiming terms: %d\n", rep.HedgeCount, rep.DeonticCount)
	if len(rep.Signals) > 0 {
		fmt.Fprintf(&b, "Evidence present: %s\n", strings.Join(rep.Signals, ", "))
	} else {
		b.WriteString("Evidence present: none of methods, data or code\n")
	}
	b.WriteString("\n# Paper\n")
	describeNode(&b, node)
	return b.String()
}

// PatrolReport is the outcome of one patrol.
type PatrolReport struct {
	Rings     [][]string `json:"rings"`
	Unique    [][]string `json:"unique"`
	Anomalies []string   `json:"anomalies"`
}

// maybePatrol runs Patrol when PatrolInterval has passed since the last one.
func (e *Engine) maybePatrol() {
	e.mu.Lock()
	if !e.lastPatrol.IsZero() && time.Since(e.lastPatrol) < e.cfg.PatrolInterval {
		e.mu.Unlock()
		return
	}
	e.lastPatrol = time.Now()
	e.mu.Unlock()

	e.Patrol()
}

// Patrol looks for citation rings and for highly cited nodes with no edges
// at all. Findings are logged and counted, never queued.
func (e *Engine) Patrol() PatrolReport {
	rings := e.graph.DetectRings(e.cfg.RingMinLength)
	rep := PatrolReport{
		Rings:  rings,
		Unique: graph.UniqueRings(rings),
	}

	for _, n := range e.graph.AllNodes() {
		if n.CitationCount < e.cfg.HighCitationThreshold || e.cfg.HighCitationThreshold <= 0 {
			continue
		}
		if e.graph.CausalDensity(n.ID).Total == 0 {
			rep.Anomalies = append(rep.Anomalies, n.ID)
		}
	}

	e.mu.Lock()
	e.vitals.Patrols++
	e.vitals.RingsDetected += len(rep.Unique)
	e.vitals.Anomalies += len(rep.Anomalies)
	e.mu.Unlock()

	for _, r := range rep.Unique {
		e.log.Warn("[Republic] Citation ring", "length", len(r), "members", strings.Join(r, " -> "))
	}
	for _, id := range rep.Anomalies {
		e.log.Warn("[Republic] Isolated high-citation node", "node", id)
	}
	e.log.Info("[Republic] Patrol finished", "rings", len(rep.Rings), "unique", len(rep.Unique), "anomalies", len(rep.Anomalies))
	return rep
}
