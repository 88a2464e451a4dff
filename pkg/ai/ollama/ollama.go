package ollama

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/ai"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// GenerationClient implements ai.Generator using a (possibly remote) Ollama
// server as the backend.
type GenerationClient struct {
	model   string
	timeout time.Duration

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	Client *api.Client
}

// NewGenerationClientParams contains configuration options for creating a new
// GenerationClient.
type NewGenerationClientParams struct {
	Model string

	BaseURL string
	ApiKey  string

	MaxConcurrentRequests int64
	Timeout               time.Duration
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewGenerationClient creates an Ollama-backed generator. It connects to the
// server at BaseURL, or to the default local server when BaseURL is empty.
func NewGenerationClient(
	params NewGenerationClientParams,
) (*GenerationClient, error) {
	var (
		u   *url.URL
		err error
	)

	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	headers := map[string]string{}
	if params.ApiKey != "" {
		headers["Authorization"] = "Bearer " + params.ApiKey
	}
	httpClient := &http.Client{
		Transport: &headerTransport{
			headers: headers,
			rt:      http.DefaultTransport,
		},
	}

	var cli *api.Client
	if u != nil {
		cli = api.NewClient(u, httpClient)
	} else {
		cli, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, err
		}
	}

	parallel := params.MaxConcurrentRequests
	if parallel <= 0 {
		parallel = 1
	}

	return &GenerationClient{
		model:   params.Model,
		timeout: params.Timeout,

		reqLock: semaphore.NewWeighted(parallel),

		Client: cli,
	}, nil
}
