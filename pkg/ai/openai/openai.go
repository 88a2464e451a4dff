package openai

import (
	"sync"
	"time"

	"github.com/Meugenn/knowledge-graph-sub001/pkg/ai"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/sync/semaphore"
)

// GenerationClient implements ai.Generator against any OpenAI-compatible
// chat completions endpoint.
//
// A GenerationClient should be created using NewGenerationClient.
type GenerationClient struct {
	model   string
	chatURL string
	timeout time.Duration

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	ChatClient *openai.Client
}

// NewGenerationClientParams defines the configuration parameters for creating
// a new GenerationClient.
//
// ChatURL and ChatKey configure the chat/completion API endpoint. An empty
// ChatURL means the official OpenAI API. Timeout bounds a single request; 0
// leaves deadlines to the caller's context.
type NewGenerationClientParams struct {
	Model   string
	ChatURL string
	ChatKey string

	MaxConcurrentRequests int64
	MaxRetries            int
	Timeout               time.Duration
}

// NewGenerationClient creates a GenerationClient configured with the provided
// parameters.
//
// Example:
//
//	client := openai.NewGenerationClient(openai.NewGenerationClientParams{
//		Model:   "gpt-4o-mini",
//		ChatKey: os.Getenv("AI_CHAT_KEY"),
//	})
func NewGenerationClient(params NewGenerationClientParams) *GenerationClient {
	parallel := params.MaxConcurrentRequests
	if parallel <= 0 {
		parallel = 4
	}

	return &GenerationClient{
		model:   params.Model,
		chatURL: params.ChatURL,
		timeout: params.Timeout,

		reqLock: semaphore.NewWeighted(parallel),

		ChatClient: newOpenaiClient(params.ChatURL, params.ChatKey, params.MaxRetries),
	}
}

func newOpenaiClient(
	baseURL string,
	apiKey string,
	maxRetries int,
) *openai.Client {
	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}

	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}
	if maxRetries >= 0 {
		options = append(options, option.WithMaxRetries(maxRetries))
	}

	client := openai.NewClient(options...)

	return &client
}
