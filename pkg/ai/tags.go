package ai

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Line tags the personas are asked to emit.
const (
	TagHypothesis  = "HYPOTHESIS"
	TagJudgement   = "JUDGEMENT"
	TagQuery       = "QUERY"
	TagAlert       = "ALERT"
	TagMarket      = "MARKET"
	TagProbability = "PROBABILITY"
	TagLink        = "LINK"
)

// DefaultProbability is used for a market whose probability line is missing
// or does not parse.
const DefaultProbability = 50.0

var tagPatterns sync.Map

// tagPattern matches "TAG: value" at the start of a line, tolerating list
// bullets and markdown bold around the tag.
func tagPattern(tag string) *regexp.Regexp {
	if p, ok := tagPatterns.Load(tag); ok {
		return p.(*regexp.Regexp)
	}
	p := regexp.MustCompile(`(?i)^\s*(?:[-*•]|\d+[.)])?\s*(?:\*\*|__)?` + regexp.QuoteMeta(tag) + `(?:\*\*|__)?\s*:\s*(?:\*\*|__)?\s*(.*?)\s*$`)
	actual, _ := tagPatterns.LoadOrStore(tag, p)
	return actual.(*regexp.Regexp)
}

func matchTag(line, tag string) (string, bool) {
	m := tagPattern(tag).FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	value := strings.TrimSpace(strings.Trim(m[1], "*_"))
	return value, true
}

// ExtractTagged returns the values of every "TAG: value" line in text, in
// order. Matching on the tag is case-insensitive; empty values are dropped.
func ExtractTagged(text, tag string) []string {
	var out []string
	for line := range strings.Lines(text) {
		value, ok := matchTag(line, tag)
		if !ok || value == "" {
			continue
		}
		out = append(out, value)
	}
	return out
}

// MarketSpec is a market question with its yes probability in [0, 100].
type MarketSpec struct {
	Question    string
	Probability float64
}

// ExtractMarkets pairs every MARKET line with the first PROBABILITY line that
// follows it before the next MARKET line. A missing or unparsable
// probability becomes DefaultProbability.
func ExtractMarkets(text string) []MarketSpec {
	var (
		out     []MarketSpec
		current *MarketSpec
	)
	flush := func() {
		if current != nil {
			out = append(out, *current)
			current = nil
		}
	}

	for line := range strings.Lines(text) {
		if q, ok := matchTag(line, TagMarket); ok {
			flush()
			if q != "" {
				current = &MarketSpec{Question: q, Probability: DefaultProbability}
			}
			continue
		}
		if p, ok := matchTag(line, TagProbability); ok && current != nil {
			current.Probability = ParseProbability(p)
			flush()
		}
	}
	flush()
	return out
}

var numberPattern = regexp.MustCompile(`\d+(?:\.\d+)?|\.\d+`)

// ParseProbability reads a percentage from s. "72", "72%" and "0.72" all give
// 72. Without a percent sign any value of at most 1 is a fraction, so "1"
// and "1.0" both give 100 while "1%" gives 1. The result is clamped to
// [0, 100]; anything unparsable gives DefaultProbability.
func ParseProbability(s string) float64 {
	raw := numberPattern.FindString(s)
	if raw == "" {
		return DefaultProbability
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) {
		return DefaultProbability
	}
	if !strings.Contains(s, "%") && v <= 1 {
		v *= 100
	}
	return math.Max(0, math.Min(100, v))
}

// LinkSpec is a relation the model proposed towards a node identified by a
// title fragment.
type LinkSpec struct {
	Relation string
	Target   string
}

// DefaultRelation is used for a LINK line without a relation part.
const DefaultRelation = "related"

// ExtractLinks parses "LINK: relation | title fragment" lines. A line
// without a separator is taken as a bare title fragment.
func ExtractLinks(text string) []LinkSpec {
	var out []LinkSpec
	for _, value := range ExtractTagged(text, TagLink) {
		relation, target, found := strings.Cut(value, "|")
		if !found {
			target, relation = relation, DefaultRelation
		}
		relation = normaliseRelation(relation)
		target = strings.Trim(strings.TrimSpace(target), `"'`)
		if target == "" {
			continue
		}
		out = append(out, LinkSpec{Relation: relation, Target: target})
	}
	return out
}

func normaliseRelation(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-'
	}), "_")
	if s == "" {
		return DefaultRelation
	}
	return s
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "from": {}, "into": {},
	"that": {}, "this": {}, "are": {}, "you": {}, "all": {}, "our": {},
	"via": {}, "using": {}, "towards": {}, "toward": {}, "what": {},
	"how": {}, "why": {}, "its": {}, "their": {}, "over": {}, "under": {},
	"need": {}, "is": {}, "of": {}, "on": {}, "in": {}, "a": {}, "an": {},
}

// TitleKeywords returns up to max lowercase content words from title, in
// order and without repeats.
func TitleKeywords(title string, max int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-')
	}) {
		w = strings.Trim(w, "-")
		if len(w) < 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}
