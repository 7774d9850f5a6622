package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// textSearchSkipDirs names directories text/codebase search never descends
// into, mirroring the same exclusion list validatePathWithinProject's
// callers already apply informally via .gitignore-adjacent conventions.
var textSearchSkipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, ".venv": true,
	"dist": true, "build": true, "target": true,
}

type textSearchMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// grepProject walks the project tree from "." and returns every line
// matching pattern, capped at maxResults. Grounded on ReadManyFilesTool's
// own filesystem-walking texture, generalized from glob expansion to a
// line-by-line regexp scan.
func grepProject(ctx context.Context, pattern string, maxResults int) ([]textSearchMatch, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	var matches []textSearchMatch
	walkErr := filepath.Walk(".", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if len(matches) >= maxResults {
			return filepath.SkipAll
		}
		if info.IsDir() {
			if textSearchSkipDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Size() > 2<<20 {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if re.MatchString(line) {
				matches = append(matches, textSearchMatch{Path: path, Line: lineNo, Text: strings.TrimSpace(line)})
				if len(matches) >= maxResults {
					break
				}
			}
		}
		return nil
	})
	if walkErr != nil && walkErr != filepath.SkipAll {
		return matches, walkErr
	}
	return matches, nil
}

type textSearchInput struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

func textSearchSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query":       map[string]any{"type": "string", "description": "Regular expression to search for"},
			"max_results": map[string]any{"type": "integer", "description": "Maximum number of matches to return (default 50)"},
		},
		"required": []string{"query"},
	}
}

func runTextSearch(ctx context.Context, input string) (string, error) {
	var params textSearchInput
	if err := json.Unmarshal([]byte(input), &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	if strings.TrimSpace(params.Query) == "" {
		return "", fmt.Errorf("query must not be empty")
	}
	maxResults := params.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}
	matches, err := grepProject(ctx, params.Query, maxResults)
	if err != nil {
		return "", err
	}
	out, _ := json.Marshal(matches)
	return string(out), nil
}

// AceTextSearchTool backs ace-text_search: a literal/regexp line scan over
// the project tree.
type AceTextSearchTool struct{}

func (t AceTextSearchTool) Name() string { return "ace-text_search" }
func (t AceTextSearchTool) Description() string {
	return "Searches file contents across the project for lines matching a regular expression. The input should be a JSON object with a 'query' field and optionally 'max_results' (default 50)."
}
func (t AceTextSearchTool) ParameterSchema() map[string]any { return textSearchSchema() }
func (t AceTextSearchTool) Call(ctx context.Context, input string) (string, error) {
	return runTextSearch(ctx, input)
}
func (t AceTextSearchTool) Format(input, result string, err error) string {
	return "Text Search\n" + treeFinalPrefix + result
}

// AceSemanticSearchTool backs ace-semantic_search. The codebase embedding
// indexer that would back true semantic search is an external collaborator
// explicitly out of scope (spec §1); this degrades to the same line-scan
// ace-text_search performs rather than fabricate an embeddings pipeline, so
// the tool name the model expects still exists and returns something
// useful instead of erroring.
type AceSemanticSearchTool struct{}

func (t AceSemanticSearchTool) Name() string { return "ace-semantic_search" }
func (t AceSemanticSearchTool) Description() string {
	return "Searches the codebase for content related to a query. Falls back to a textual scan when no semantic index is configured. The input should be a JSON object with a 'query' field and optionally 'max_results' (default 50)."
}
func (t AceSemanticSearchTool) ParameterSchema() map[string]any { return textSearchSchema() }
func (t AceSemanticSearchTool) Call(ctx context.Context, input string) (string, error) {
	return runTextSearch(ctx, input)
}
func (t AceSemanticSearchTool) Format(input, result string, err error) string {
	return "Semantic Search\n" + treeFinalPrefix + result
}

// CodebaseSearchTool backs codebase-search, the natural-language-query
// sibling of ace-semantic_search named separately in spec §4.3's built-in
// tool list. Same out-of-scope-indexer fallback applies.
type CodebaseSearchTool struct{}

func (t CodebaseSearchTool) Name() string { return "codebase-search" }
func (t CodebaseSearchTool) Description() string {
	return "Searches the codebase for content related to a natural-language query. Falls back to a textual scan when no semantic index is configured. The input should be a JSON object with a 'query' field and optionally 'max_results' (default 50)."
}
func (t CodebaseSearchTool) ParameterSchema() map[string]any { return textSearchSchema() }
func (t CodebaseSearchTool) Call(ctx context.Context, input string) (string, error) {
	return runTextSearch(ctx, input)
}
func (t CodebaseSearchTool) Format(input, result string, err error) string {
	return "Codebase Search\n" + treeFinalPrefix + result
}
