// Package forensic estimates how credible a paper looks from its metadata
// alone.
package forensic

import (
	"math"
	"strings"
	"unicode"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/common"
)

// Verdict buckets a credibility score.
type Verdict string

const (
	VerdictCredible   Verdict = "credible"
	VerdictUncertain  Verdict = "uncertain"
	VerdictSuspicious Verdict = "suspicious"
)

// Report is the result of Score.
type Report struct {
	Score        float64  `json:"score"`
	Verdict      Verdict  `json:"verdict"`
	HedgeCount   int      `json:"hedge_count"`
	DeonticCount int      `json:"deontic_count"`
	Signals      []string `json:"signals"`
}

var hedgeWords = map[string]struct{}{
	"may": {}, "might": {}, "could": {}, "possibly": {}, "perhaps": {},
	"suggest": {}, "suggests": {}, "appears": {}, "appear": {}, "likely": {},
	"potentially": {}, "preliminary": {}, "indicate": {}, "indicates": {},
}

var deonticWords = map[string]struct{}{
	"must": {}, "should": {}, "shall": {}, "always": {}, "never": {},
	"definitely": {}, "prove": {}, "proves": {}, "proven": {},
	"guarantee": {}, "guarantees": {}, "undeniably": {}, "revolutionary": {},
	"unprecedented": {}, "certainly": {},
}

var structuralSignals = []struct {
	name  string
	terms []string
}{
	{name: "methods", terms: []string{"method", "methodology", "experiment", "protocol", "evaluate", "evaluation"}},
	{name: "data", terms: []string{"dataset", "data", "benchmark", "corpus", "samples"}},
	{name: "code", terms: []string{"code", "github", "implementation", "open-source", "open source", "repository"}},
}

const (
	baseScore          = 50.0
	signalBonus        = 10.0
	missingTextPenalty = 20.0
	overclaimPenalty   = 30.0
	citationBonusCap   = 20.0

	credibleFrom  = 60.0
	uncertainFrom = 35.0
)

// Score rates node on a 0-100 scale. Overclaiming language relative to
// hedged language lowers the score; methods, data and code signals and an
// established citation record raise it.
func Score(node common.Node) Report {
	text := strings.ToLower(node.Title + " " + node.Abstract + " " + strings.Join(node.Fields, " "))

	var rep Report
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-'
	}) {
		if _, ok := hedgeWords[w]; ok {
			rep.HedgeCount++
		}
		if _, ok := deonticWords[w]; ok {
			rep.DeonticCount++
		}
	}

	score := baseScore
	for _, sig := range structuralSignals {
		for _, term := range sig.terms {
			if strings.Contains(text, term) {
				rep.Signals = append(rep.Signals, sig.name)
				score += signalBonus
				break
			}
		}
	}

	if strings.TrimSpace(node.Abstract) == "" {
		score -= missingTextPenalty
	}

	if rep.DeonticCount > 0 {
		ratio := float64(rep.DeonticCount) / float64(rep.DeonticCount+rep.HedgeCount+1)
		score -= overclaimPenalty * ratio
	}

	if node.CitationCount > 0 {
		score += math.Min(citationBonusCap, 4*math.Log10(float64(node.CitationCount)+1))
	}

	rep.Score = math.Round(math.Max(0, math.Min(100, score))*10) / 10
	rep.Verdict = verdictFor(rep.Score)
	return rep
}

func verdictFor(score float64) Verdict {
	switch {
	case score >= credibleFrom:
		return VerdictCredible
	case score >= uncertainFrom:
		return VerdictUncertain
	default:
		return VerdictSuspicious
	}
}
