package fileedit

import "strings"

// diceSimilarity scores two strings in [0,1] using the Sørensen-Dice
// bigram coefficient over whitespace-collapsed text. Documented as the open
// similarity-metric choice in SPEC_FULL.md §13: no string-similarity
// dependency appears anywhere in the retrieved example pack, so this is a
// deliberate stdlib-only implementation rather than an omission.
func diceSimilarity(a, b string) float64 {
	a = collapseWhitespace(a)
	b = collapseWhitespace(b)
	if a == b {
		return 1
	}
	if len(a) < 2 || len(b) < 2 {
		if a == b {
			return 1
		}
		return 0
	}

	bigramsA := bigramSet(a)
	bigramsB := bigramSet(b)

	var intersection int
	for bg, countA := range bigramsA {
		if countB, ok := bigramsB[bg]; ok {
			if countA < countB {
				intersection += countA
			} else {
				intersection += countB
			}
		}
	}

	totalA := 0
	for _, c := range bigramsA {
		totalA += c
	}
	totalB := 0
	for _, c := range bigramsB {
		totalB += c
	}
	if totalA+totalB == 0 {
		return 0
	}
	return 2 * float64(intersection) / float64(totalA+totalB)
}

func bigramSet(s string) map[string]int {
	runes := []rune(s)
	m := make(map[string]int, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		m[string(runes[i:i+2])]++
	}
	return m
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
