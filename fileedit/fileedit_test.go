package fileedit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshots struct {
	calls []struct {
		path    string
		existed bool
		before  *string
	}
}

func (f *fakeSnapshots) BackupFile(sessionID string, messageIndex int, path string, existed bool, contentBefore *string) error {
	f.calls = append(f.calls, struct {
		path    string
		existed bool
		before  *string
	}{path, existed, contentBefore})
	return nil
}

type fakeUndo struct {
	tools []string
	paths [][]string
}

func (u *fakeUndo) LogEdit(tool string, paths []string) {
	u.tools = append(u.tools, tool)
	u.paths = append(u.paths, paths)
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// S1 — search-replace with whitespace drift preserves the original
// indentation on the first replaced line.
func TestEditSearchPreservesIndentationOnWhitespaceDrift(t *testing.T) {
	original := "function foo() {\n  const x = 1;\n  return x;\n}\n"
	path := writeTemp(t, original)

	snap := &fakeSnapshots{}
	undo := &fakeUndo{}
	e := New(snap, nil, nil, undo)

	search := "function foo() {\n    const x = 1;\n    return x;\n  }"
	replace := "function foo() {\n    const x = 2;\n    return x;\n  }"

	_, err := e.EditSearch(context.Background(), "sess-1", 3, EditSearchInput{
		Path:           path,
		SearchContent:  search,
		ReplaceContent: replace,
		Occurrence:     1,
	})
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "function foo() {\n  const x = 2;\n  return x;\n}\n", string(got))

	require.Len(t, snap.calls, 1)
	assert.True(t, snap.calls[0].existed)
	require.NotNil(t, snap.calls[0].before)
	assert.Equal(t, original, *snap.calls[0].before)

	require.Len(t, undo.tools, 1)
	assert.Equal(t, "filesystem-edit_search", undo.tools[0])
}

func TestEditSearchNoMatchReturnsDiagnosticToolError(t *testing.T) {
	path := writeTemp(t, "const a = 1;\nconst b = 2;\n")
	e := New(nil, nil, nil, nil)

	_, err := e.EditSearch(context.Background(), "sess", 1, EditSearchInput{
		Path:          path,
		SearchContent: "totally unrelated content that will not match anything",
	})
	require.Error(t, err)
	var toolErr *ToolError
	assert.ErrorAs(t, err, &toolErr)
	assert.Contains(t, toolErr.Message, "no match found")
}

func TestEditSearchUniqueSingleLineMatchSucceeds(t *testing.T) {
	content := "x := 1\ny := 1\nz := 1\n"
	path := writeTemp(t, content)
	e := New(nil, nil, nil, nil)

	_, err := e.EditSearch(context.Background(), "sess", 1, EditSearchInput{
		Path:          path,
		SearchContent: "y := 1",
	})
	require.NoError(t, err) // single match for "y := 1" — unambiguous
}

// Near-duplicate (not identical) windows stay below the 0.95 early-exit
// threshold, so the scan keeps going and surfaces all of them as candidates.
func TestEditSearchAmbiguousOccurrenceRequiresSelection(t *testing.T) {
	content := "process(a, b)\nother()\nprocess(a, c)\nanother()\nprocess(a, d)\n"
	path := writeTemp(t, content)
	e := New(nil, nil, nil, nil)

	_, err := e.EditSearch(context.Background(), "sess", 1, EditSearchInput{
		Path:          path,
		SearchContent: "process(a, x)",
	})
	require.Error(t, err)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Contains(t, toolErr.Message, "multiple matches found")

	_, err = e.EditSearch(context.Background(), "sess", 1, EditSearchInput{
		Path:           path,
		SearchContent:  "process(a, x)",
		ReplaceContent: "process(a, z)",
		Occurrence:     2,
	})
	require.NoError(t, err)

	got, _ := os.ReadFile(path)
	assert.Contains(t, string(got), "process(a, z)")
}

func TestEditSearchNonexistentFileIsToolError(t *testing.T) {
	e := New(nil, nil, nil, nil)
	_, err := e.EditSearch(context.Background(), "sess", 1, EditSearchInput{
		Path:          filepath.Join(t.TempDir(), "missing.go"),
		SearchContent: "x",
	})
	var toolErr *ToolError
	assert.ErrorAs(t, err, &toolErr)
}

func TestEditSearchOverEscapeCorrection(t *testing.T) {
	content := "line one\nline two\nline three\n"
	path := writeTemp(t, content)
	e := New(nil, nil, nil, nil)

	// Search string escaped one level too deep relative to the actual
	// newline-containing content.
	res, err := e.EditSearch(context.Background(), "sess", 1, EditSearchInput{
		Path:           path,
		SearchContent:  `line one\\nline two`,
		ReplaceContent: `line ONE\\nline TWO`,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Preview)

	got, _ := os.ReadFile(path)
	assert.Contains(t, string(got), "line ONE")
	assert.Contains(t, string(got), "line TWO")
}

func TestEditRangeReplacesLines(t *testing.T) {
	content := "one\ntwo\nthree\nfour\n"
	path := writeTemp(t, content)
	e := New(nil, nil, nil, nil)

	res, err := e.EditRange(context.Background(), "sess", 1, EditRangeInput{
		Path:       path,
		StartLine:  2,
		EndLine:    3,
		NewContent: "TWO\nTHREE",
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	got, _ := os.ReadFile(path)
	assert.Equal(t, "one\nTWO\nTHREE\nfour\n", string(got))
}

func TestEditRangeInvalidRangeIsToolError(t *testing.T) {
	path := writeTemp(t, "one\ntwo\n")
	e := New(nil, nil, nil, nil)

	_, err := e.EditRange(context.Background(), "sess", 1, EditRangeInput{
		Path:       path,
		StartLine:  5,
		EndLine:    6,
		NewContent: "x",
	})
	var toolErr *ToolError
	assert.ErrorAs(t, err, &toolErr)
}

func TestEditRangeFlagsBracketImbalance(t *testing.T) {
	path := writeTemp(t, "func f() {\n  return 1\n}\n")
	e := New(nil, nil, nil, nil)

	res, err := e.EditRange(context.Background(), "sess", 1, EditRangeInput{
		Path:       path,
		StartLine:  2,
		EndLine:    2,
		NewContent: "  return 1}",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Warnings)
}

func TestEditSearchBatchStopsOnFirstError(t *testing.T) {
	path := writeTemp(t, "a := 1\n")
	e := New(nil, nil, nil, nil)

	results, err := e.EditSearchBatch(context.Background(), "sess", 1, []EditSearchInput{
		{Path: path, SearchContent: "a := 1", ReplaceContent: "a := 2"},
		{Path: path, SearchContent: "does not exist anywhere in file"},
	})
	require.Error(t, err)
	assert.Len(t, results, 1)
}

func TestBuildPreviewFormatsLineNumbers(t *testing.T) {
	preview := buildPreview("a\nb\nc\n", 2, 1)
	assert.Contains(t, preview, "1→a")
	assert.Contains(t, preview, "2→b")
	assert.Contains(t, preview, "3→c")
}

func TestNormalizeLFCollapsesCRLFAndCR(t *testing.T) {
	assert.Equal(t, "a\nb\nc", normalizeLF("a\r\nb\rc"))
}
