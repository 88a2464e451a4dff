package trism

import (
	"regexp"
	"strings"
)

var (
	// "Vaswani et al. (2017)", "Smith and Jones (2020)", "LeCun (1998)"
	citationPattern = regexp.MustCompile(`\b([A-Z][\p{L}'\-]+(?:\s+et\s+al\.?|\s+(?:and|&)\s+[A-Z][\p{L}'\-]+)?)\s*\((\d{4})\)`)
	// two or more capitalised words in a row
	properNounPattern = regexp.MustCompile(`\b[A-Z][\p{Ll}\d\-]+(?:\s+[A-Z][\p{Ll}\d\-]+)+\b`)
	precisePattern    = regexp.MustCompile(`\b\d+\.\d{3,}\b`)
	selfRefPattern    = regexp.MustCompile(`(?i)\b(?:as i (?:mentioned|said|noted|stated|explained)(?: earlier| before| previously)?|in my (?:previous|earlier|last) (?:response|answer|analysis|message|reply)|as (?:previously|already) (?:stated|mentioned|discussed)|as we discussed|i previously (?:noted|mentioned|said))\b`)
)

const suspiciousPrecisionCount = 5

type hallucinationResult struct {
	score               float64
	entities            []string
	unverified          []string
	suspiciousPrecision bool
	selfReference       bool
}

// extractEntities returns citation-shaped mentions and capitalised
// multi-word phrases in order of appearance, deduplicated and capped.
func extractEntities(content string, limit int) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(e string) {
		e = strings.TrimSpace(e)
		if e == "" || len(out) >= limit {
			return
		}
		key := strings.ToLower(e)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}

	for _, m := range citationPattern.FindAllStringSubmatch(content, -1) {
		add(citationName(m[1]))
	}
	for _, m := range properNounPattern.FindAllString(content, -1) {
		add(m)
	}
	return out
}

// citationName reduces a citation mention to the searchable surname.
func citationName(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, " et al"); i >= 0 {
		s = s[:i]
	}
	for _, sep := range []string{" and ", " & "} {
		if i := strings.Index(s, sep); i >= 0 {
			s = s[:i]
		}
	}
	return s
}

func (l *Layer) checkHallucination(content string) hallucinationResult {
	res := hallucinationResult{
		entities:            extractEntities(content, l.cfg.MaxEntities),
		suspiciousPrecision: len(precisePattern.FindAllString(content, -1)) > suspiciousPrecisionCount,
		selfReference:       selfRefPattern.MatchString(content),
	}

	if len(res.entities) == 0 {
		res.score = l.cfg.NoEntityScore
		return res
	}

	verified := 0
	for _, e := range res.entities {
		if l.corpus != nil && len(l.corpus.SearchByText(e)) > 0 {
			verified++
			continue
		}
		res.unverified = append(res.unverified, e)
	}
	res.score = float64(verified) / float64(len(res.entities))
	return res
}
