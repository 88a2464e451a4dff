package trism

import (
	"context"
	"errors"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/ai"
	"github.com/Meugenn/knowledge-graph-sub001/pkg/logger"
)

var (
	// ErrSourceKilled is returned for a source at the kill level. Only Reset
	// brings it back.
	ErrSourceKilled = errors.New("trism: content source killed")
	// ErrSourceQuarantined is returned when output was withheld because its
	// source is quarantined.
	ErrSourceQuarantined = errors.New("trism: content source quarantined")
)

// GuardedGenerator wraps an ai.Generator with the trust layer. The persona
// is the content source id.
//
// A killed source is refused without calling the backend. A throttled one is
// called after ThrottleDelay. Every response is evaluated; when the resulting
// level is quarantine or kill the text is withheld and an error returned.
// Quarantined sources keep being called so that good output can bring them
// back down.
type GuardedGenerator struct {
	next  ai.Generator
	layer *Layer
	delay time.Duration
}

// NewGuardedGenerator wraps next with layer.
func NewGuardedGenerator(next ai.Generator, layer *Layer) *GuardedGenerator {
	return &GuardedGenerator{
		next:  next,
		layer: layer,
		delay: layer.Config().ThrottleDelay,
	}
}

// Generate implements ai.Generator.
func (g *GuardedGenerator) Generate(
	ctx context.Context,
	persona string,
	prompt string,
	opts ...ai.GenerateOption,
) (ai.Generation, error) {
	switch g.layer.Level(persona) {
	case LevelKill:
		return ai.Generation{}, ErrSourceKilled
	case LevelThrottle:
		if g.delay > 0 {
			timer := time.NewTimer(g.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ai.Generation{}, ctx.Err()
			case <-timer.C:
			}
		}
	}

	gen, err := g.next.Generate(ctx, persona, prompt, opts...)
	if err != nil {
		return gen, err
	}

	eval := g.layer.Evaluate(persona, gen.Text)
	switch eval.Action {
	case LevelKill:
		logger.Warn("[TRiSM] Output withheld, source killed", "source", persona, "combined", eval.CombinedScore)
		return ai.Generation{TokensUsed: gen.TokensUsed}, ErrSourceKilled
	case LevelQuarantine:
		logger.Warn("[TRiSM] Output withheld, source quarantined", "source", persona, "combined", eval.CombinedScore)
		return ai.Generation{TokensUsed: gen.TokensUsed}, ErrSourceQuarantined
	}
	return gen, nil
}

// Layer returns the trust layer behind g.
func (g *GuardedGenerator) Layer() *Layer {
	return g.layer
}
