package republic

import (
	"context"
	"strings"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/search"
)

// discover runs up to MaxQueries searches and adds up to ResultsPerQuery
// unseen results per query to the graph. Every new node is queued for all
// three castes. No edges are written: a discovered node stays unconnected
// until an artifact links it. It returns the ids added.
func (e *Engine) discover(ctx context.Context, origin common.Node, queries []string) []string {
	if e.searcher == nil {
		return nil
	}

	var added []string
	run := 0
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if run == e.cfg.MaxQueries {
			break
		}
		run++

		recs, err := e.search(ctx, q)
		if err != nil {
			e.log.Warn("[Republic] Search failed", "query", q, "node", origin.ID, "err", err)
			continue
		}

		for i, r := range recs {
			if i == e.cfg.ResultsPerQuery {
				break
			}
			r = search.EnsureID(r)
			if strings.TrimSpace(r.Title) == "" || e.graph.HasNode(r.ID) {
				continue
			}

			stored, inserted := e.graph.AddNodeIfAbsent(recordToNode(r))
			if !inserted {
				continue
			}

			e.mu.Lock()
			e.enqueueAllLocked(stored.ID)
			e.vitals.PapersDiscovered++
			e.mu.Unlock()

			added = append(added, stored.ID)
			e.log.Info("[Republic] Discovered", "node", stored.ID, "title", stored.Title, "via", origin.ID, "query", q)
		}
	}
	return added
}

func (e *Engine) search(ctx context.Context, q string) ([]search.Record, error) {
	if e.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.CallTimeout)
		defer cancel()
	}
	return e.searcher.Search(ctx, q, e.cfg.SearchSources)
}

func recordToNode(r search.Record) common.Node {
	return common.Node{
		ID:            r.ID,
		Kind:          common.KindPaper,
		Title:         strings.TrimSpace(r.Title),
		Abstract:      r.Abstract,
		Year:          r.Year,
		CitationCount: r.CitationCount,
		Fields:        r.Fields,
		Authors:       r.Authors,
		Source:        common.SourceDiscovered,
		URL:           r.URL,
	}
}
