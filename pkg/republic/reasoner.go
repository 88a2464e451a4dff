package republic

import (
	"context"
	"fmt"
	"strings"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/ai"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
)

const maxContextNodes = 12

// reason runs the Reasoner on node: a deep analysis for hypotheses, queries
// and links, then a critical review of those hypotheses, then discovery.
func (e *Engine) reason(ctx context.Context, node common.Node) {
	sub := e.graph.Neighbourhood(node.ID, e.cfg.NeighbourhoodDepth)

	var hypotheses, queries []string
	if text, ok := e.generate(ctx, Reasoner, node, ai.PersonaDeepAnalysis, analysisPrompt(node, sub)); ok {
		hypotheses = ai.ExtractTagged(text, ai.TagHypothesis)
		queries = ai.ExtractTagged(text, ai.TagQuery)
		e.record(common.ArtifactHypothesis, hypotheses, workerID(Reasoner, ai.PersonaDeepAnalysis), node)
		e.applyLinks(node, ai.ExtractLinks(text))
	}

	if text, ok := e.generate(ctx, Reasoner, node, ai.PersonaCriticalReview, reviewPrompt(node, hypotheses)); ok {
		judgements := ai.ExtractTagged(text, ai.TagJudgement)
		e.record(common.ArtifactJudgement, judgements, workerID(Reasoner, ai.PersonaCriticalReview), node)
	}

	if len(queries) == 0 {
		if kw := ai.TitleKeywords(node.Title, 6); len(kw) > 0 {
			queries = []string{strings.Join(kw, " ")}
		}
	}
	e.countAnalysed()
	e.discover(ctx, node, queries)
}

func (e *Engine) countAnalysed() {
	e.mu.Lock()
	e.vitals.PapersAnalysed++
	e.mu.Unlock()
}

// applyLinks resolves each link target by title search and writes the typed
// edge unless it already exists.
func (e *Engine) applyLinks(node common.Node, links []ai.LinkSpec) {
	for _, l := range links {
		matches := e.graph.SearchByText(l.Target)
		if len(matches) == 0 {
			continue
		}
		target := matches[0]
		if target.ID == node.ID && len(matches) > 1 {
			target = matches[1]
		}
		if target.ID == node.ID || e.graph.HasEdge(node.ID, target.ID, l.Relation) {
			continue
		}
		e.graph.AddEdge(node.ID, target.ID, l.Relation)

		e.mu.Lock()
		e.vitals.Links++
		e.mu.Unlock()
		e.log.Info("[Republic] Linked", "source", node.ID, "relation", l.Relation, "target", target.ID)
	}
}

func describeNode(b *strings.Builder, n common.Node) {
	fmt.Fprintf(b, "Title: %s\n", n.Title)
	fmt.Fprintf(b, "ID: %s\n", n.ID)
	if n.Year > 0 {
		fmt.Fprintf(b, "Year: %d\n", n.Year)
	}
	if n.CitationCount > 0 {
		fmt.Fprintf(b, "Citations: %d\n", n.CitationCount)
	}
	if len(n.Fields) > 0 {
		fmt.Fprintf(b, "Fields: %s\n", strings.Join(n.Fields, ", "))
	}
	if len(n.Authors) > 0 {
		fmt.Fprintf(b, "Authors: %s\n", strings.Join(n.Authors, ", "))
	}
	if n.Abstract != "" {
		fmt.Fprintf(b, "Abstract: %s\n", n.Abstract)
	}
}

func analysisPrompt(node common.Node, sub common.Subgraph) string {
	var b strings.Builder
	b.WriteString("# Paper\n")
	describeNode(&b, node)

	titles := make(map[string]string, len(sub.Nodes))
	for _, n := range sub.Nodes {
		titles[n.ID] = n.Title
	}

	b.WriteString("\n# Neighbourhood\n")
	listed := 0
	for _, n := range sub.Nodes {
		if n.ID == node.ID {
			continue
		}
		if listed == maxContextNodes {
			break
		}
		fmt.Fprintf(&b, "- %s", n.Title)
		if n.Year > 0 {
			fmt.Fprintf(&b, " (%d)", n.Year)
		}
		b.WriteString("\n")
		listed++
	}
	if listed == 0 {
		b.WriteString("(no connected papers yet)\n")
	}

	if len(sub.Edges) > 0 {
		b.WriteString("\n# Relations\n")
		for i, ed := range sub.Edges {
			if i == maxContextNodes {
				break
			}
			fmt.Fprintf(&b, "- %s -[%s]-> %s\n", titleOr(titles, ed.Source), ed.Type, titleOr(titles, ed.Target))
		}
	}
	return b.String()
}

func titleOr(titles map[string]string, id string) string {
	if t := titles[id]; t != "" {
		return t
	}
	return id
}

func reviewPrompt(node common.Node, hypotheses []string) string {
	var b strings.Builder
	b.WriteString("# Paper\n")
	describeNode(&b, node)
	b.WriteString("\n# Hypotheses under review\n")
	if len(hypotheses) == 0 {
		b.WriteString("(none proposed; review the paper's own claims)\n")
	}
	for _, h := range hypotheses {
		fmt.Fprintf(&b, "- %s\n", h)
	}
	return b.String()
}
