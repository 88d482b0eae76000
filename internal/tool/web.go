package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/sghr/warden/internal/model"
)

const (
	tavilyAPIURL     = "https://api.tavily.com/search"
	duckduckgoAPIURL = "https://api.duckduckgo.com/"

	webRequestTimeout  = 20 * time.Second
	resultContentChars = 400
	resultTitleChars   = 120
)

// WebTool performs web searches through the Tavily API when an API key is
// configured, falling back to the DuckDuckGo instant-answer API otherwise.
type WebTool struct {
	maxResults int
	tavilyKey  string
	httpClient *http.Client

	// Base URLs are fields so tests can point the tool at a local server.
	tavilyURL     string
	duckduckgoURL string
}

// NewWebTool creates a web tool capped at maxResults results per query
// (clamped to 1..10). The Tavily key is read from TAVILY_API_KEY.
func NewWebTool(maxResults int) *WebTool {
	return &WebTool{
		maxResults:    maxResults,
		tavilyKey:     os.Getenv("TAVILY_API_KEY"),
		httpClient:    &http.Client{Timeout: webRequestTimeout},
		tavilyURL:     tavilyAPIURL,
		duckduckgoURL: duckduckgoAPIURL,
	}
}

// Run searches for the "query" argument. An optional "max_results" argument
// overrides the configured cap; both are clamped to 1..10.
func (t *WebTool) Run(args map[string]any) model.ActionResult {
	query := stringArg(args, "query")
	if query == "" {
		return model.Failure(model.ErrTypeInvalidArgs, "query is required")
	}

	maxResults := intArg(args, "max_results", t.maxResults)
	maxResults = clamp(maxResults, 1, 10)

	if t.tavilyKey != "" {
		return t.searchTavily(query, maxResults)
	}
	return t.searchDuckDuckGo(query, maxResults)
}

type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

func (t *WebTool) searchTavily(query string, maxResults int) model.ActionResult {
	reqBody, err := json.Marshal(map[string]any{
		"api_key":      t.tavilyKey,
		"query":        query,
		"max_results":  maxResults,
		"search_depth": "basic",
	})
	if err != nil {
		return model.Failure(model.ErrTypeWeb, err.Error())
	}

	resp, err := t.httpClient.Post(t.tavilyURL, "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return model.Failure(model.ErrTypeWeb, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Failure(model.ErrTypeWeb, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return model.Failure(model.ErrTypeWeb, fmt.Sprintf("tavily status %d: %s", resp.StatusCode, body))
	}

	var data struct {
		Results []searchResult `json:"results"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return model.Failure(model.ErrTypeWeb, err.Error())
	}

	results := make([]searchResult, 0, maxResults)
	for _, item := range data.Results {
		if len(results) >= maxResults {
			break
		}
		item.Content = truncate(item.Content, resultContentChars)
		results = append(results, item)
	}

	return model.ActionResult{
		OK:      true,
		Payload: map[string]any{"provider": "tavily", "results": results},
	}
}

func (t *WebTool) searchDuckDuckGo(query string, maxResults int) model.ActionResult {
	params := url.Values{
		"q":             {query},
		"format":        {"json"},
		"no_html":       {"1"},
		"skip_disambig": {"1"},
	}

	resp, err := t.httpClient.Get(t.duckduckgoURL + "?" + params.Encode())
	if err != nil {
		return model.Failure(model.ErrTypeWeb, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Failure(model.ErrTypeWeb, err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return model.Failure(model.ErrTypeWeb, fmt.Sprintf("duckduckgo status %d", resp.StatusCode))
	}

	var data struct {
		RelatedTopics []struct {
			Text     string `json:"Text"`
			FirstURL string `json:"FirstURL"`
		} `json:"RelatedTopics"`
		Heading      string `json:"Heading"`
		AbstractURL  string `json:"AbstractURL"`
		AbstractText string `json:"AbstractText"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return model.Failure(model.ErrTypeWeb, err.Error())
	}

	results := make([]searchResult, 0, maxResults)
	for _, topic := range data.RelatedTopics {
		if topic.FirstURL == "" {
			continue
		}
		results = append(results, searchResult{
			Title:   truncate(topic.Text, resultTitleChars),
			URL:     topic.FirstURL,
			Content: truncate(topic.Text, resultContentChars),
		})
		if len(results) >= maxResults {
			break
		}
	}
	if len(results) == 0 && data.AbstractURL != "" {
		results = append(results, searchResult{
			Title:   data.Heading,
			URL:     data.AbstractURL,
			Content: truncate(data.AbstractText, resultContentChars),
		})
	}

	return model.ActionResult{
		OK:      true,
		Payload: map[string]any{"provider": "duckduckgo", "results": results},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
