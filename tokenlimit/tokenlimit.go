// Package tokenlimit counts and truncates tool output before it goes back to
// the model, using a model-neutral tokenizer with a character-based fallback.
package tokenlimit

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultMax is the limit used when a caller does not supply an explicit one.
// The tool scheduler always passes DefaultMax; the config's
// TokenLimits.ToolResultTokenLimit setting is not read.
const DefaultMax = 100_000

// ContentPart mirrors the tool wire format of spec §6: a result's content
// array may contain non-text entries (image/document) that must never be
// truncated because truncation would corrupt their base64 payload.
type ContentPart struct {
	Type string // "text" | "image" | "document"
	Text string
}

// Limiter counts tokens with a cached tiktoken encoding and falls back to a
// chars/4 estimate if the encoding could not be loaded (e.g. offline first
// run before the BPE ranks file is cached).
type Limiter struct {
	mu   sync.Mutex
	enc  *tiktoken.Tiktoken
	once sync.Once
}

// New constructs a Limiter. Loading the encoding is deferred to first use so
// constructing one is never itself fallible.
func New() *Limiter {
	return &Limiter{}
}

func (l *Limiter) encoding() *tiktoken.Tiktoken {
	l.once.Do(func() {
		enc, err := tiktoken.GetEncoding("o200k_base")
		if err != nil {
			slog.Warn("tokenlimit: failed to load tiktoken encoding, using char estimate", "error", err)
			return
		}
		l.enc = enc
	})
	return l.enc
}

// CountTokens returns the token count of s using the cached encoding, or the
// ceil(len(s)/4) estimate spec §4.9 names when the encoding is unavailable.
func (l *Limiter) CountTokens(s string) int {
	if enc := l.encoding(); enc != nil {
		l.mu.Lock()
		defer l.mu.Unlock()
		return len(enc.Encode(s, nil, nil))
	}
	return int(math.Ceil(float64(len(s)) / 4))
}

// ValidateTokenLimit reports whether content fits within max (DefaultMax if
// max <= 0).
func (l *Limiter) ValidateTokenLimit(content string, max int) bool {
	if max <= 0 {
		max = DefaultMax
	}
	return l.CountTokens(content) <= max
}

// IsMultimodal reports whether any part carries non-text content; such
// results must pass through untouched per spec §4.9.
func IsMultimodal(parts []ContentPart) bool {
	for _, p := range parts {
		if p.Type != "" && p.Type != "text" {
			return true
		}
	}
	return false
}

// WrapToolResultWithTokenLimit truncates result to max-100 tokens and appends
// a notice naming the tool, original size and limit, unless parts indicate a
// multimodal result (in which case result passes through unchanged).
func (l *Limiter) WrapToolResultWithTokenLimit(result string, toolName string, max int, parts []ContentPart) string {
	if max <= 0 {
		max = DefaultMax
	}
	if IsMultimodal(parts) {
		return result
	}

	total := l.CountTokens(result)
	if total <= max {
		return result
	}

	budget := max - 100
	if budget < 0 {
		budget = 0
	}

	enc := l.encoding()
	var truncated string
	if enc != nil {
		ids := enc.Encode(result, nil, nil)
		if budget < len(ids) {
			ids = ids[:budget]
		}
		truncated = enc.Decode(ids)
	} else {
		// chars/4 estimate inverted: keep budget*4 runes.
		runes := []rune(result)
		cut := budget * 4
		if cut > len(runes) {
			cut = len(runes)
		}
		truncated = string(runes[:cut])
	}

	notice := fmt.Sprintf("\n\n[TRUNCATED] %s output truncated: %d tokens -> %d token limit", toolName, total, max)
	return truncated + notice
}
