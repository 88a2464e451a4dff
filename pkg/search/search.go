// Package search queries external literature sources for candidate papers.
package search

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrNoSources is returned when none of the requested sources is configured.
var ErrNoSources = errors.New("search: no matching sources configured")

// Record is one candidate returned by a source. Only Title is guaranteed.
type Record struct {
	ID            string   `json:"id,omitempty"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors,omitempty"`
	Year          int      `json:"year,omitempty"`
	Abstract      string   `json:"abstract,omitempty"`
	CitationCount int      `json:"citation_count,omitempty"`
	Fields        []string `json:"fields,omitempty"`
	URL           string   `json:"url,omitempty"`
	Source        string   `json:"source"`
}

// Searcher is the search collaborator used by discovery. Sources selects
// providers by name; an empty list means every configured provider.
// Failures of individual sources are tolerated as long as one succeeds.
type Searcher interface {
	Search(ctx context.Context, query string, sources []string) ([]Record, error)
}

// Provider is a single search backend.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]Record, error)
}

// StableID derives an id from a normalised title for records whose source
// did not provide one.
func StableID(title string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(title)), " ")
	sum := sha1.Sum([]byte(norm))
	return "title:" + hex.EncodeToString(sum[:8])
}

// EnsureID fills r.ID from the title when it is empty.
func EnsureID(r Record) Record {
	if strings.TrimSpace(r.ID) == "" {
		r.ID = StableID(r.Title)
	}
	return r
}
