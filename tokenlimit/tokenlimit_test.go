package tokenlimit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMultimodal(t *testing.T) {
	assert.False(t, IsMultimodal(nil))
	assert.False(t, IsMultimodal([]ContentPart{{Type: "text", Text: "hi"}}))
	assert.True(t, IsMultimodal([]ContentPart{{Type: "text"}, {Type: "image", Text: "base64..."}}))
	assert.True(t, IsMultimodal([]ContentPart{{Type: "document"}}))
}

func TestValidateTokenLimitDefaultsMaxWhenNonPositive(t *testing.T) {
	l := New()
	assert.True(t, l.ValidateTokenLimit("short text", 0))
	assert.True(t, l.ValidateTokenLimit("short text", -5))
}

func TestValidateTokenLimitRejectsOversizedContent(t *testing.T) {
	l := New()
	big := strings.Repeat("word ", 1000)
	assert.False(t, l.ValidateTokenLimit(big, 10))
}

func TestCountTokensIsPositiveForNonEmptyString(t *testing.T) {
	l := New()
	assert.Greater(t, l.CountTokens("hello world"), 0)
	assert.Equal(t, 0, l.CountTokens(""))
}

func TestWrapToolResultPassesThroughWhenUnderLimit(t *testing.T) {
	l := New()
	result := l.WrapToolResultWithTokenLimit("small output", "terminal-execute", DefaultMax, nil)
	assert.Equal(t, "small output", result)
}

func TestWrapToolResultPassesThroughMultimodalRegardlessOfSize(t *testing.T) {
	l := New()
	big := strings.Repeat("x", 1_000_000)
	result := l.WrapToolResultWithTokenLimit(big, "websearch-fetch", 10, []ContentPart{{Type: "image", Text: "base64"}})
	assert.Equal(t, big, result)
}

func TestWrapToolResultTruncatesAndNamesTool(t *testing.T) {
	l := New()
	big := strings.Repeat("word ", 5000)
	result := l.WrapToolResultWithTokenLimit(big, "terminal-execute", 50, nil)

	assert.Contains(t, result, "[TRUNCATED]")
	assert.Contains(t, result, "terminal-execute")
	assert.Less(t, l.CountTokens(result), l.CountTokens(big))
}
