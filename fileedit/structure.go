package fileedit

import (
	"fmt"
	"regexp"
	"strings"
)

// analyzeStructure implements spec §4.5.1: bracket balance, HTML/JSX/XML tag
// balance, and indentation anomalies for the edited region. Warnings are
// advisory and never block the write.
func analyzeStructure(before, after []string) []string {
	var warnings []string

	afterText := strings.Join(after, "\n")
	if msg := bracketBalanceWarning(afterText); msg != "" {
		warnings = append(warnings, msg)
	}
	if msg := tagBalanceWarning(afterText); msg != "" {
		warnings = append(warnings, msg)
	}
	if msg := indentationWarning(after); msg != "" {
		warnings = append(warnings, msg)
	}

	return warnings
}

func bracketBalanceWarning(s string) string {
	pairs := map[rune]rune{'}': '{', ')': '(', ']': '['}
	var stack []rune
	for _, r := range s {
		switch r {
		case '{', '(', '[':
			stack = append(stack, r)
		case '}', ')', ']':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[r] {
				return fmt.Sprintf("unbalanced bracket %q in edited region", r)
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		return fmt.Sprintf("%d unclosed bracket(s) in edited region", len(stack))
	}
	return ""
}

var openTagRe = regexp.MustCompile(`<([a-zA-Z][\w:-]*)(\s[^<>]*)?(?:/>|>)`)
var closeTagRe = regexp.MustCompile(`</([a-zA-Z][\w:-]*)\s*>`)

func tagBalanceWarning(s string) string {
	if !strings.Contains(s, "<") {
		return ""
	}

	var openers []string
	for _, m := range openTagRe.FindAllStringSubmatch(s, -1) {
		if strings.HasSuffix(m[0], "/>") {
			continue // self-closing
		}
		openers = append(openers, m[1])
	}
	var closers []string
	for _, m := range closeTagRe.FindAllStringSubmatch(s, -1) {
		closers = append(closers, m[1])
	}

	// Match closers against openers in LIFO order.
	stack := append([]string(nil), openers...)
	var unopened []string
	for _, c := range closers {
		found := false
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i] == c {
				stack = append(stack[:i], stack[i+1:]...)
				found = true
				break
			}
		}
		if !found {
			unopened = append(unopened, c)
		}
	}

	switch {
	case len(stack) > 0 && len(unopened) > 0:
		return fmt.Sprintf("unclosed tag(s) %v and unopened closing tag(s) %v in edited region", stack, unopened)
	case len(stack) > 0:
		return fmt.Sprintf("unclosed tag(s) %v in edited region", stack)
	case len(unopened) > 0:
		return fmt.Sprintf("unopened closing tag(s) %v in edited region", unopened)
	default:
		return ""
	}
}

func indentationWarning(lines []string) string {
	sawTab := false
	sawSpace := false
	prevIndent := -1
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		indent := leadingWhitespace(l)
		if strings.Contains(indent, "\t") {
			sawTab = true
		}
		if strings.Contains(indent, " ") {
			sawSpace = true
		}
		if prevIndent >= 0 && len(indent) < prevIndent-8 {
			return "sudden dedent in edited region; verify block structure"
		}
		prevIndent = len(indent)
	}
	if sawTab && sawSpace {
		return "mixed tabs and spaces in edited region"
	}
	return ""
}
