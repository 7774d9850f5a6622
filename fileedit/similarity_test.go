package fileedit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiceSimilarityIdenticalStrings(t *testing.T) {
	assert.Equal(t, 1.0, diceSimilarity("const x = 1;", "const x = 1;"))
}

func TestDiceSimilarityIgnoresWhitespaceDrift(t *testing.T) {
	score := diceSimilarity("function foo() {   const x = 1; }", "function foo() { const x = 1; }")
	assert.Equal(t, 1.0, score)
}

func TestDiceSimilarityCompletelyDifferentStringsScoresLow(t *testing.T) {
	score := diceSimilarity("const x = 1;", "totally unrelated content here")
	assert.Less(t, score, 0.3)
}

func TestDiceSimilarityShortStringsRequireExactMatch(t *testing.T) {
	assert.Equal(t, 1.0, diceSimilarity("a", "a"))
	assert.Equal(t, 0.0, diceSimilarity("a", "b"))
}

func TestCollapseWhitespaceNormalizesRuns(t *testing.T) {
	assert.Equal(t, "a b c", collapseWhitespace("  a   b\tc  \n"))
}
