package trism

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenSet map[string]struct{}

// tokenize lowercases content and keeps the distinct word-like tokens
// longer than two characters.
func tokenize(content string) tokenSet {
	set := make(tokenSet)
	for _, w := range strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		if utf8.RuneCountInString(w) > 2 {
			set[w] = struct{}{}
		}
	}
	return set
}

// jaccard is |a∩b| / |a∪b|. Two empty sets are identical.
func jaccard(a, b tokenSet) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// driftScore maps the average similarity with recent outputs to a score.
// Very low similarity reads as erratic, very high as stuck repeating itself.
func driftScore(similarity float64) float64 {
	switch {
	case similarity < 0.1:
		return 0.3
	case similarity > 0.9:
		return 0.4
	default:
		return 0.5 + 0.5*similarity
	}
}

// recordDriftLocked scores tokens against the recent history of sourceID and
// then appends them, trimming the history. The first observation of a source
// scores 1.
func (l *Layer) recordDriftLocked(sourceID string, tokens tokenSet) (score, similarity float64, compared int) {
	history := l.drift[sourceID]

	score = 1
	if len(history) > 0 {
		recent := history[max(0, len(history)-l.cfg.DriftWindow):]
		total := 0.0
		for _, past := range recent {
			total += jaccard(tokens, past)
		}
		compared = len(recent)
		similarity = total / float64(compared)
		score = driftScore(similarity)
	}

	history = append(history, tokens)
	if over := len(history) - l.cfg.DriftHistory; over > 0 {
		history = append(history[:0:0], history[over:]...)
	}
	l.drift[sourceID] = history
	return score, similarity, compared
}
