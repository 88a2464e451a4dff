package search

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	SourceSemanticScholar = "semantic_scholar"
	SourceOpenAlex        = "openalex"
	SourceHuggingFace     = "huggingface"
)

// SemanticScholar searches the Semantic Scholar Graph API.
type SemanticScholar struct {
	baseURL string
	http    httpSource
}

// NewSemanticScholarParams configures SemanticScholar. BaseURL defaults to
// the public API. Without an API key the public limit is about one request
// per second.
type NewSemanticScholarParams struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

func NewSemanticScholar(params NewSemanticScholarParams) *SemanticScholar {
	base := params.BaseURL
	if base == "" {
		base = "https://api.semanticscholar.org"
	}
	return &SemanticScholar{
		baseURL: strings.TrimRight(base, "/"),
		http:    newHTTPSource(params.HTTPClient, params.RequestsPerSecond, map[string]string{"x-api-key": params.APIKey}),
	}
}

func (s *SemanticScholar) Name() string { return SourceSemanticScholar }

func (s *SemanticScholar) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("fields", "paperId,title,abstract,year,citationCount,authors,fieldsOfStudy,url")

	res, err := s.http.getJSON(ctx, s.baseURL+"/graph/v1/paper/search?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("semantic scholar: %w", err)
	}

	var out []Record
	res.Get("data").ForEach(func(_, p gjson.Result) bool {
		r := Record{
			Title:         strings.TrimSpace(p.Get("title").String()),
			Abstract:      p.Get("abstract").String(),
			Year:          int(p.Get("year").Int()),
			CitationCount: int(p.Get("citationCount").Int()),
			Authors:       stringList(p.Get("authors.#.name").Array()),
			Fields:        stringList(p.Get("fieldsOfStudy").Array()),
			URL:           p.Get("url").String(),
			Source:        SourceSemanticScholar,
		}
		if id := p.Get("paperId").String(); id != "" {
			r.ID = "s2:" + id
		}
		if r.Title != "" {
			out = append(out, r)
		}
		return true
	})
	return out, nil
}

// OpenAlex searches the OpenAlex works index.
type OpenAlex struct {
	baseURL string
	mailto  string
	http    httpSource
}

// NewOpenAlexParams configures OpenAlex. Mailto joins the polite pool.
type NewOpenAlexParams struct {
	BaseURL           string
	Mailto            string
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

func NewOpenAlex(params NewOpenAlexParams) *OpenAlex {
	base := params.BaseURL
	if base == "" {
		base = "https://api.openalex.org"
	}
	rps := params.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	return &OpenAlex{
		baseURL: strings.TrimRight(base, "/"),
		mailto:  params.Mailto,
		http:    newHTTPSource(params.HTTPClient, rps, nil),
	}
}

func (o *OpenAlex) Name() string { return SourceOpenAlex }

func (o *OpenAlex) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	q := url.Values{}
	q.Set("search", query)
	q.Set("per-page", strconv.Itoa(limit))
	if o.mailto != "" {
		q.Set("mailto", o.mailto)
	}

	res, err := o.http.getJSON(ctx, o.baseURL+"/works?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("openalex: %w", err)
	}

	var out []Record
	res.Get("results").ForEach(func(_, w gjson.Result) bool {
		title := w.Get("title").String()
		if title == "" {
			title = w.Get("display_name").String()
		}
		r := Record{
			Title:         strings.TrimSpace(title),
			Abstract:      invertedAbstract(w.Get("abstract_inverted_index")),
			Year:          int(w.Get("publication_year").Int()),
			CitationCount: int(w.Get("cited_by_count").Int()),
			Authors:       stringList(w.Get("authorships.#.author.display_name").Array()),
			Fields:        stringList(w.Get("concepts.#.display_name").Array()),
			URL:           w.Get("doi").String(),
			Source:        SourceOpenAlex,
		}
		if id := w.Get("id").String(); id != "" {
			r.ID = "openalex:" + id[strings.LastIndex(id, "/")+1:]
		}
		if r.Title != "" {
			out = append(out, r)
		}
		return true
	})
	return out, nil
}

// invertedAbstract rebuilds text from OpenAlex's word -> positions index.
func invertedAbstract(idx gjson.Result) string {
	if !idx.IsObject() {
		return ""
	}
	type placed struct {
		pos  int
		word string
	}
	var words []placed
	idx.ForEach(func(word, positions gjson.Result) bool {
		for _, p := range positions.Array() {
			words = append(words, placed{pos: int(p.Int()), word: word.String()})
		}
		return true
	})
	sort.Slice(words, func(i, j int) bool { return words[i].pos < words[j].pos })

	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.word
	}
	return strings.Join(parts, " ")
}

// HuggingFace searches the Hugging Face Hub model registry. Models are
// returned as records titled by their repository id.
type HuggingFace struct {
	baseURL string
	http    httpSource
}

type NewHuggingFaceParams struct {
	BaseURL           string
	Token             string
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

func NewHuggingFace(params NewHuggingFaceParams) *HuggingFace {
	base := params.BaseURL
	if base == "" {
		base = "https://huggingface.co"
	}
	rps := params.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	headers := map[string]string{}
	if params.Token != "" {
		headers["Authorization"] = "Bearer " + params.Token
	}
	return &HuggingFace{
		baseURL: strings.TrimRight(base, "/"),
		http:    newHTTPSource(params.HTTPClient, rps, headers),
	}
}

func (h *HuggingFace) Name() string { return SourceHuggingFace }

func (h *HuggingFace) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	q := url.Values{}
	q.Set("search", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sort", "likes")

	res, err := h.http.getJSON(ctx, h.baseURL+"/api/models?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("huggingface: %w", err)
	}

	var out []Record
	res.ForEach(func(_, m gjson.Result) bool {
		id := m.Get("id").String()
		if id == "" {
			id = m.Get("modelId").String()
		}
		if id == "" {
			return true
		}
		r := Record{
			ID:            "hf:" + id,
			Title:         id,
			CitationCount: int(m.Get("likes").Int()),
			URL:           h.baseURL + "/" + id,
			Source:        SourceHuggingFace,
		}
		if tag := m.Get("pipeline_tag").String(); tag != "" {
			r.Fields = []string{tag}
		}
		if author, _, ok := strings.Cut(id, "/"); ok {
			r.Authors = []string{author}
		}
		out = append(out, r)
		return true
	})
	return out, nil
}
