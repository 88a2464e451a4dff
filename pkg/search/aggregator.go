package search

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/logger"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Aggregator fans a query out to several providers and merges what comes
// back. It implements Searcher.
//
// Identical concurrent queries share one round of provider calls, and
// results are cached for a short time.
type Aggregator struct {
	providers  []Provider
	limit      int
	ttl        time.Duration
	maxEntries int

	group singleflight.Group

	cacheMu sync.Mutex
	cache   map[string]cachedResult
}

type cachedResult struct {
	records []Record
	expires time.Time
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithPerSourceLimit sets how many records each provider is asked for (default: 5).
func WithPerSourceLimit(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.limit = n
		}
	}
}

// WithCacheSize caps the number of cached queries (default: 512).
func WithCacheSize(n int) AggregatorOption {
	return func(a *Aggregator) {
		if n > 0 {
			a.maxEntries = n
		}
	}
}

// WithCacheTTL sets how long results are reused (default: 10m, 0 disables).
func WithCacheTTL(ttl time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		a.ttl = ttl
	}
}

func NewAggregator(providers []Provider, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		providers:  providers,
		limit:      5,
		ttl:        10 * time.Minute,
		maxEntries: 512,
		cache:      make(map[string]cachedResult),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Sources lists the names of the configured providers.
func (a *Aggregator) Sources() []string {
	names := make([]string, 0, len(a.providers))
	for _, p := range a.providers {
		names = append(names, p.Name())
	}
	return names
}

// Search queries the selected providers concurrently. Failing providers are
// logged and skipped; an error is returned only when all of them fail.
func (a *Aggregator) Search(ctx context.Context, query string, sources []string) ([]Record, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	selected := a.selectProviders(sources)
	if len(selected) == 0 {
		return nil, ErrNoSources
	}

	names := make([]string, 0, len(selected))
	for _, p := range selected {
		names = append(names, p.Name())
	}
	key := strings.ToLower(query) + "\x00" + strings.Join(names, ",")

	if recs, ok := a.cached(key); ok {
		return recs, nil
	}

	v, err, _ := a.group.Do(key, func() (any, error) {
		recs, err := a.fanOut(ctx, query, selected)
		if err != nil {
			return nil, err
		}
		a.store(key, recs)
		return recs, nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(v.([]Record)), nil
}

func (a *Aggregator) selectProviders(sources []string) []Provider {
	if len(sources) == 0 {
		return a.providers
	}
	var out []Provider
	for _, p := range a.providers {
		if slices.Contains(sources, p.Name()) {
			out = append(out, p)
		}
	}
	return out
}

func (a *Aggregator) fanOut(ctx context.Context, query string, providers []Provider) ([]Record, error) {
	results := make([][]Record, len(providers))
	errs := make([]error, len(providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range providers {
		g.Go(func() error {
			recs, err := p.Search(gctx, query, a.limit)
			if err != nil {
				logger.Warn("[Search] Source failed", "source", p.Name(), "query", query, "err", err)
				errs[i] = err
				return nil
			}
			results[i] = recs
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(providers) {
		return nil, errors.Join(errs...)
	}

	return merge(results, a.limit*len(providers)), nil
}

// merge interleaves provider results, fills missing ids and drops records
// whose id or normalised title was already seen.
func merge(results [][]Record, limit int) []Record {
	seen := make(map[string]struct{})
	var out []Record
	for i := 0; ; i++ {
		progressed := false
		for _, recs := range results {
			if i >= len(recs) {
				continue
			}
			progressed = true
			r := EnsureID(recs[i])
			titleKey := StableID(r.Title)
			if _, ok := seen[r.ID]; ok {
				continue
			}
			if _, ok := seen[titleKey]; ok {
				continue
			}
			seen[r.ID] = struct{}{}
			seen[titleKey] = struct{}{}
			out = append(out, r)
			if limit > 0 && len(out) == limit {
				return out
			}
		}
		if !progressed {
			return out
		}
	}
}

func (a *Aggregator) cached(key string) ([]Record, bool) {
	if a.ttl <= 0 {
		return nil, false
	}
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()

	c, ok := a.cache[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(c.expires) {
		delete(a.cache, key)
		return nil, false
	}
	return slices.Clone(c.records), true
}

// store caches recs under key. Expired entries are swept first; when the
// cache is still full the entry closest to expiry makes room.
func (a *Aggregator) store(key string, recs []Record) {
	if a.ttl <= 0 {
		return
	}
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()

	now := time.Now()
	if _, ok := a.cache[key]; !ok && len(a.cache) >= a.maxEntries {
		for k, c := range a.cache {
			if now.After(c.expires) {
				delete(a.cache, k)
			}
		}
		if len(a.cache) >= a.maxEntries {
			oldest, first := "", true
			for k, c := range a.cache {
				if first || c.expires.Before(a.cache[oldest].expires) {
					oldest, first = k, false
				}
			}
			delete(a.cache, oldest)
		}
	}
	a.cache[key] = cachedResult{records: recs, expires: now.Add(a.ttl)}
}
