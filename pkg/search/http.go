package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 8 << 20

type httpSource struct {
	client  *http.Client
	limiter *rate.Limiter
	headers map[string]string
}

func newHTTPSource(client *http.Client, perSecond float64, headers map[string]string) httpSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if perSecond <= 0 {
		perSecond = 1
	}
	return httpSource{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		headers: headers,
	}
}

// getJSON waits for the rate limiter, performs a GET and parses the body.
func (s httpSource) getJSON(ctx context.Context, url string) (gjson.Result, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return gjson.Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return gjson.Result{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gjson.Result{}, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, req.URL.Host)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("invalid JSON from %s", req.URL.Host)
	}
	return gjson.ParseBytes(body), nil
}

func stringList(results []gjson.Result) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		if s := r.String(); s != "" {
			out = append(out, s)
		}
	}
	return out
}
