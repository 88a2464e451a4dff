package republic

import (
	"context"
	"strings"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/ai"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
)

// price opens markets on node and uses the cross-reference persona to find
// queries for discovery.
func (e *Engine) price(ctx context.Context, node common.Node) {
	var b strings.Builder
	b.WriteString("# Paper\n")
	describeNode(&b, node)
	prompt := b.String()

	if text, ok := e.generate(ctx, Pricer, node, ai.PersonaCostFeasibility, prompt); ok {
		e.openMarkets(ai.ExtractMarkets(text), workerID(Pricer, ai.PersonaCostFeasibility), node)
	}

	e.mu.Lock()
	e.vitals.PapersPriced++
	e.mu.Unlock()

	text, ok := e.generate(ctx, Pricer, node, ai.PersonaCrossReference, prompt)
	if !ok {
		return
	}
	e.discover(ctx, node, ai.ExtractTagged(text, ai.TagQuery))
}
