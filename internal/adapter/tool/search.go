package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"genesis-ai/internal/domain"
)

const maxSearchBodySize = 512 * 1024 // 512KB

// SearchTool searches the web via a SearXNG-compatible instance.
type SearchTool struct {
	client     *http.Client
	baseURL    string
	maxResults int
	logger     *slog.Logger
}

// NewSearchTool creates the web search tool against the given instance URL.
func NewSearchTool(baseURL string, maxResults int, timeout time.Duration, logger *slog.Logger) *SearchTool {
	if maxResults <= 0 {
		maxResults = 5
	}
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &SearchTool{
		client:     &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		maxResults: maxResults,
		logger:     logger,
	}
}

func (t *SearchTool) Name() string { return "search_web" }

func (t *SearchTool) Description() string {
	return "Search the web for a query. Returns a list of results with title, URL and snippet."
}

func (t *SearchTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {
					"type": "string",
					"description": "The search query."
				},
				"num_results": {
					"type": "integer",
					"minimum": 1,
					"maximum": 10,
					"description": "How many results to return, defaults to 5."
				}
			},
			"required": ["query"]
		}`),
	}
}

type searchParams struct {
	Query      string `json:"query"`
	NumResults int    `json:"num_results"`
}

// searchResponse models the relevant portion of the SearXNG JSON response.
type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// SearchResult is one entry returned to the model.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

func (t *SearchTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.search_web", t.logger, params,
		func(ctx context.Context, span trace.Span, p searchParams) (any, error) {
			if strings.TrimSpace(p.Query) == "" {
				return ErrResult("query is required")
			}
			count := p.NumResults
			if count <= 0 || count > t.maxResults {
				count = t.maxResults
			}

			results, err := t.search(ctx, p.Query, count)
			if err != nil {
				return nil, err
			}
			if len(results) == 0 {
				return fmt.Sprintf("No results found for %q.", p.Query), nil
			}
			return results, nil
		},
	)
}

func (t *SearchTool) search(ctx context.Context, query string, count int) ([]SearchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/search", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	q := req.URL.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("pageno", "1")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	results := make([]SearchResult, 0, count)
	for _, r := range parsed.Results {
		if len(results) >= count {
			break
		}
		results = append(results, SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Content,
		})
	}
	return results, nil
}
