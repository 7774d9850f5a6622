// Package fileedit implements the fuzzy search-replace and line-range edit
// operations of spec §4.5, grounded on the teacher's tools.go ReplaceTextTool
// (a simple global string replace) expanded into the full sliding-window
// similarity search, over-escape correction, structure analysis, and
// Prettier-formatting pipeline the specification requires.
package fileedit

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DefaultSimilarityThreshold is used when the config does not override it.
const DefaultSimilarityThreshold = 0.75

const earlyExitSimilarity = 0.95
const maxCandidates = 10
const prefilterMinWindowLines = 5
const prefilterMinFirstLineSimilarity = 0.2
const diagnosticsDeadline = 2500 * time.Millisecond

// Diagnostic is one IDE diagnostic attached to an edit result.
type Diagnostic struct {
	Severity string
	Message  string
	Line     int
}

// SnapshotWriter is the SnapshotStore collaborator: before any mutation the
// engine records a pre-image for (sessionID, messageIndex, path).
type SnapshotWriter interface {
	BackupFile(sessionID string, messageIndex int, path string, existed bool, contentBefore *string) error
}

// DiagnosticsProvider is the LSPManager collaborator used for step 11 of
// edit_search and the equivalent step of edit. Implementations must return
// within the engine's own deadline; a slow or erroring provider degrades to
// no diagnostics rather than failing the edit, per spec §4.5.11 and the
// LSPUnavailable error kind.
type DiagnosticsProvider interface {
	GetDiagnostics(ctx context.Context, path string) ([]Diagnostic, error)
}

// Formatter resolves and runs Prettier (or an equivalent) for a file
// extension. A nil Formatter, or one that returns ok=false, leaves the
// written content unformatted; no warning is added to the edit result.
type Formatter interface {
	Format(ctx context.Context, path string, content string) (formatted string, ok bool)
}

// UndoLogger appends an undo-log entry naming the tool and the modified
// relative paths, per spec §4.5's common invariants.
type UndoLogger interface {
	LogEdit(tool string, paths []string)
}

// Engine implements both FileEditEngine entry points.
type Engine struct {
	SimilarityThreshold float64
	Snapshots           SnapshotWriter
	Diagnostics         DiagnosticsProvider
	Formatter           Formatter
	Undo                UndoLogger
}

// New constructs an Engine with the default similarity threshold.
func New(snapshots SnapshotWriter, diagnostics DiagnosticsProvider, formatter Formatter, undo UndoLogger) *Engine {
	return &Engine{
		SimilarityThreshold: DefaultSimilarityThreshold,
		Snapshots:           snapshots,
		Diagnostics:         diagnostics,
		Formatter:           formatter,
		Undo:                undo,
	}
}

func (e *Engine) threshold() float64 {
	if e.SimilarityThreshold <= 0 {
		return DefaultSimilarityThreshold
	}
	return e.SimilarityThreshold
}

// EditSearchInput is one fuzzy search-replace request.
type EditSearchInput struct {
	Path           string
	SearchContent  string
	ReplaceContent string
	Occurrence     int // 1-indexed; 0 means "must be unique"
	ContextLines   int
}

// EditRangeInput is one line-range edit request.
type EditRangeInput struct {
	Path         string
	StartLine    int // 1-indexed, inclusive
	EndLine      int // 1-indexed, inclusive
	NewContent   string
	ContextLines int
}

// EditResult is returned for each input in a batch.
type EditResult struct {
	Path        string
	Preview     string
	Warnings    []string
	Diagnostics []Diagnostic
	Formatted   bool
}

// ToolError is returned when an edit cannot be applied; it carries the
// diagnostic text the model should see (closest-match percentages, diff,
// match-line listing), matching spec §4.5 steps 6-7.
type ToolError struct {
	Message string
}

func (e *ToolError) Error() string { return e.Message }

// EditSearchBatch runs each input in sequence, so later relative paths may
// resolve against an earlier item's resolved absolute path as context, per
// spec §4.5's batch semantics.
func (e *Engine) EditSearchBatch(ctx context.Context, sessionID string, messageIndex int, inputs []EditSearchInput) ([]EditResult, error) {
	results := make([]EditResult, 0, len(inputs))
	for _, in := range inputs {
		res, err := e.EditSearch(ctx, sessionID, messageIndex, in)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// EditSearch implements the fuzzy search-replace algorithm of spec §4.5.
func (e *Engine) EditSearch(ctx context.Context, sessionID string, messageIndex int, in EditSearchInput) (EditResult, error) {
	if in.ContextLines <= 0 {
		in.ContextLines = 8
	}

	original, existed, err := readFileIfExists(in.Path)
	if err != nil {
		return EditResult{}, fmt.Errorf("reading %s: %w", in.Path, err)
	}
	if !existed {
		return EditResult{}, &ToolError{Message: fmt.Sprintf("file does not exist: %s", in.Path)}
	}

	fileLF := normalizeLF(original)
	searchLF := normalizeLF(in.SearchContent)
	replaceLF := normalizeLF(in.ReplaceContent)

	fileLines := strings.Split(fileLF, "\n")
	searchLines := strings.Split(searchLF, "\n")

	matches := findCandidates(fileLines, searchLines, e.threshold())

	if len(matches) == 0 {
		if unSearch, unReplace, ok := tryOverEscape(searchLF, replaceLF); ok {
			searchLines = strings.Split(unSearch, "\n")
			replaceLF = unReplace
			matches = findCandidates(fileLines, searchLines, e.threshold())
		}
	}

	if len(matches) == 0 {
		return EditResult{}, &ToolError{Message: diagnosticMessage(fileLines, searchLines)}
	}

	var chosen candidate
	if len(matches) > 1 {
		if in.Occurrence <= 0 {
			return EditResult{}, &ToolError{Message: ambiguousMatchMessage(matches)}
		}
		if in.Occurrence > len(matches) {
			return EditResult{}, &ToolError{Message: fmt.Sprintf("occurrence %d requested but only %d matches found", in.Occurrence, len(matches))}
		}
		chosen = matches[in.Occurrence-1]
	} else {
		chosen = matches[0]
	}

	replaceLines := strings.Split(replaceLF, "\n")
	realignIndentation(replaceLines, fileLines[chosen.start:chosen.end+1])

	newLines := make([]string, 0, len(fileLines)-len(searchLines)+len(replaceLines))
	newLines = append(newLines, fileLines[:chosen.start]...)
	newLines = append(newLines, replaceLines...)
	newLines = append(newLines, fileLines[chosen.end+1:]...)

	newContent := strings.Join(newLines, "\n")

	warnings := analyzeStructure(fileLines[chosen.start:chosen.end+1], replaceLines)

	return e.finishWrite(ctx, sessionID, messageIndex, "filesystem-edit_search", in.Path, original, existed, newContent, chosen.start+1, in.ContextLines, warnings)
}

// EditRange implements the line-range edit of spec §4.5.
func (e *Engine) EditRange(ctx context.Context, sessionID string, messageIndex int, in EditRangeInput) (EditResult, error) {
	if in.ContextLines <= 0 {
		in.ContextLines = 8
	}

	original, existed, err := readFileIfExists(in.Path)
	if err != nil {
		return EditResult{}, fmt.Errorf("reading %s: %w", in.Path, err)
	}
	if !existed {
		return EditResult{}, &ToolError{Message: fmt.Sprintf("file does not exist: %s", in.Path)}
	}

	fileLF := normalizeLF(original)
	fileLines := strings.Split(fileLF, "\n")

	if in.StartLine < 1 || in.EndLine < in.StartLine || in.EndLine > len(fileLines) {
		return EditResult{}, &ToolError{Message: fmt.Sprintf("invalid line range %d-%d for file of %d lines", in.StartLine, in.EndLine, len(fileLines))}
	}

	newContentLF := normalizeLF(in.NewContent)
	replaceLines := strings.Split(newContentLF, "\n")

	newLines := make([]string, 0, len(fileLines))
	newLines = append(newLines, fileLines[:in.StartLine-1]...)
	newLines = append(newLines, replaceLines...)
	newLines = append(newLines, fileLines[in.EndLine:]...)
	newContent := strings.Join(newLines, "\n")

	warnings := analyzeStructure(fileLines[in.StartLine-1:in.EndLine], replaceLines)

	return e.finishWrite(ctx, sessionID, messageIndex, "filesystem-edit", in.Path, original, existed, newContent, in.StartLine, in.ContextLines, warnings)
}

func (e *Engine) finishWrite(ctx context.Context, sessionID string, messageIndex int, tool, path, original string, existed bool, newContent string, previewStartLine, contextLines int, warnings []string) (EditResult, error) {
	if e.Snapshots != nil {
		var before *string
		if existed {
			before = &original
		}
		if err := e.Snapshots.BackupFile(sessionID, messageIndex, path, existed, before); err != nil {
			// Best-effort backup per spec's SnapshotFailure kind: logged, never
			// blocks the edit it protects.
			warnings = append(warnings, fmt.Sprintf("snapshot backup failed: %v", err))
		}
	}

	formatted := false
	finalContent := newContent
	if e.Formatter != nil {
		if out, ok := e.Formatter.Format(ctx, path, newContent); ok {
			finalContent = out
			formatted = true
		}
	}

	if err := os.WriteFile(path, []byte(finalContent), 0o644); err != nil {
		return EditResult{}, fmt.Errorf("writing %s: %w", path, err)
	}

	if e.Undo != nil {
		e.Undo.LogEdit(tool, []string{path})
	}

	var diags []Diagnostic
	if e.Diagnostics != nil {
		dctx, cancel := context.WithTimeout(ctx, diagnosticsDeadline)
		defer cancel()
		if got, err := e.Diagnostics.GetDiagnostics(dctx, path); err == nil {
			if len(got) > 10 {
				got = got[:10]
			}
			diags = got
		}
	}

	preview := buildPreview(finalContent, previewStartLine, contextLines)

	return EditResult{
		Path:        path,
		Preview:     preview,
		Warnings:    warnings,
		Diagnostics: diags,
		Formatted:   formatted,
	}, nil
}

func readFileIfExists(path string) (content string, existed bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(b), true, nil
}

func normalizeLF(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func leadingWhitespace(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[:i]
}

// realignIndentation adjusts each replacement line's leading indentation to
// equal the corresponding original matched line's leading indentation,
// preserving whitespace-sensitive grammars even when the search block itself
// carried drifted (e.g. over-indented) whitespace. Lines beyond the matched
// window's length keep whatever indentation the replacement already has,
// since there is no original line to realign against.
func realignIndentation(replaceLines, matchedLines []string) {
	for i := range replaceLines {
		if i >= len(matchedLines) {
			break
		}
		indent := leadingWhitespace(matchedLines[i])
		replaceLines[i] = indent + strings.TrimLeft(replaceLines[i], " \t")
	}
}

type candidate struct {
	start, end int
	score      float64
}

func findCandidates(fileLines, searchLines []string, threshold float64) []candidate {
	n := len(searchLines)
	if n == 0 || n > len(fileLines) {
		return nil
	}

	var candidates []candidate
	for start := 0; start+n <= len(fileLines); start++ {
		if n >= prefilterMinWindowLines {
			firstSim := diceSimilarity(fileLines[start], searchLines[0])
			if firstSim < prefilterMinFirstLineSimilarity {
				continue
			}
		}

		window := strings.Join(fileLines[start:start+n], "\n")
		search := strings.Join(searchLines, "\n")
		score := diceSimilarity(window, search)
		if score < threshold {
			continue
		}

		c := candidate{start: start, end: start + n - 1, score: score}
		if score >= earlyExitSimilarity {
			// A near-exact window wins outright over weaker earlier candidates.
			candidates = []candidate{c}
			break
		}
		candidates = append(candidates, c)
		if len(candidates) >= maxCandidates {
			break
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	return candidates
}

// tryOverEscape detects a search string escaped one level too deeply
// (\\n, \\\\") and retries with one level unescaped, applying the same
// transform to the replacement, per spec §4.5 step 5.
func tryOverEscape(search, replace string) (string, string, bool) {
	if !strings.Contains(search, `\\n`) && !strings.Contains(search, `\\"`) && !strings.Contains(search, `\\\\`) {
		return "", "", false
	}
	unescape := func(s string) string {
		s = strings.ReplaceAll(s, `\\n`, "\n")
		s = strings.ReplaceAll(s, `\\t`, "\t")
		s = strings.ReplaceAll(s, `\\"`, `"`)
		s = strings.ReplaceAll(s, `\\\\`, `\`)
		return s
	}
	return unescape(search), unescape(replace), true
}

func diagnosticMessage(fileLines, searchLines []string) string {
	n := len(searchLines)
	if n == 0 || n > len(fileLines) {
		return "search content is empty or longer than the file"
	}

	type scored struct {
		start int
		score float64
	}
	var all []scored
	search := strings.Join(searchLines, "\n")
	for start := 0; start+n <= len(fileLines); start++ {
		window := strings.Join(fileLines[start:start+n], "\n")
		all = append(all, scored{start: start, score: diceSimilarity(window, search)})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	if len(all) > 3 {
		all = all[:3]
	}

	var b strings.Builder
	b.WriteString("no match found for search content; closest windows:\n")
	for _, s := range all {
		window := strings.Join(fileLines[s.start:s.start+n], "\n")
		b.WriteString(fmt.Sprintf("  line %d: %.0f%% match\n", s.start+1, s.score*100))
		if len(all) > 0 && s.score == all[0].score {
			dmp := diffmatchpatch.New()
			diffs := dmp.DiffMain(search, window, false)
			b.WriteString(dmp.DiffPrettyText(diffs))
			b.WriteString("\n")
		}
	}
	b.WriteString("Check whitespace, indentation, and surrounding context, then retry.")
	return b.String()
}

func ambiguousMatchMessage(matches []candidate) string {
	var b strings.Builder
	b.WriteString("multiple matches found; specify occurrence:\n")
	for i, m := range matches {
		b.WriteString(fmt.Sprintf("  occurrence %d: line %d (%.0f%% match)\n", i+1, m.start+1, m.score*100))
	}
	return b.String()
}

func buildPreview(content string, startLine, contextLines int) string {
	lines := strings.Split(content, "\n")
	from := startLine - contextLines
	if from < 1 {
		from = 1
	}
	to := startLine + contextLines
	if to > len(lines) {
		to = len(lines)
	}
	var b strings.Builder
	for i := from; i <= to; i++ {
		fmt.Fprintf(&b, "%d→%s\n", i, lines[i-1])
	}
	return b.String()
}

// defaultPrettierFormatter shells out to a real prettier binary when present
// on PATH, matching SPEC_FULL.md §13's Prettier decision: a stdlib os/exec
// call against the real formatter rather than a hand-rolled reimplementation.
type defaultPrettierFormatter struct {
	binary string
}

// NewPrettierFormatter resolves "prettier" on PATH once; Format becomes a
// no-op (ok=false) when it cannot be found.
func NewPrettierFormatter() Formatter {
	path, err := exec.LookPath("prettier")
	if err != nil {
		return &defaultPrettierFormatter{}
	}
	return &defaultPrettierFormatter{binary: path}
}

// NewPrettierFormatterAt uses a configured binary path instead of resolving
// "prettier" on PATH, for FileEditConfig.PrettierPath overrides.
func NewPrettierFormatterAt(path string) Formatter {
	if path == "" {
		return NewPrettierFormatter()
	}
	return &defaultPrettierFormatter{binary: path}
}

func (f *defaultPrettierFormatter) Format(ctx context.Context, path string, content string) (string, bool) {
	if f.binary == "" {
		return "", false
	}
	ext := filepath.Ext(path)
	switch ext {
	case ".js", ".jsx", ".ts", ".tsx", ".json", ".css", ".scss", ".html", ".md", ".yaml", ".yml":
	default:
		return "", false
	}

	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	cmd := exec.CommandContext(cctx, f.binary, "--stdin-filepath", path)
	cmd.Stdin = strings.NewReader(content)
	out, err := cmd.Output()
	if err != nil {
		return "", false
	}
	return string(out), true
}
