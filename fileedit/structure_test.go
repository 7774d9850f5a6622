package fileedit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBracketBalanceWarningDetectsUnclosed(t *testing.T) {
	assert.Equal(t, "", bracketBalanceWarning("func f() { return 1 }"))
	assert.Contains(t, bracketBalanceWarning("func f() { return 1"), "unclosed bracket")
	assert.Contains(t, bracketBalanceWarning("func f() }"), "unbalanced bracket")
}

func TestTagBalanceWarningDetectsUnclosedAndUnopened(t *testing.T) {
	assert.Equal(t, "", tagBalanceWarning("<div><span>hi</span></div>"))
	assert.Equal(t, "", tagBalanceWarning("no tags here"))
	assert.Contains(t, tagBalanceWarning("<div><span>hi</div>"), "unclosed tag")
	assert.Contains(t, tagBalanceWarning("<div>hi</div></span>"), "unopened closing tag")
}

func TestTagBalanceWarningIgnoresSelfClosing(t *testing.T) {
	assert.Equal(t, "", tagBalanceWarning(`<img src="x.png"/>`))
}

func TestIndentationWarningDetectsMixedTabsAndSpaces(t *testing.T) {
	lines := []string{"\tfoo();", "    bar();"}
	assert.Contains(t, indentationWarning(lines), "mixed tabs and spaces")
}

func TestIndentationWarningDetectsSuddenDedent(t *testing.T) {
	lines := []string{"                        deeply.nested();", "a();"}
	assert.Contains(t, indentationWarning(lines), "sudden dedent")
}

func TestIndentationWarningCleanIndentationHasNoWarning(t *testing.T) {
	lines := []string{"func f() {", "  return 1", "}"}
	assert.Equal(t, "", indentationWarning(lines))
}

func TestAnalyzeStructureCollectsMultipleWarnings(t *testing.T) {
	before := []string{"func f() {"}
	after := []string{"func f() {", "\tfoo();", "    bar();"}
	warnings := analyzeStructure(before, after)
	assert.NotEmpty(t, warnings)
}
