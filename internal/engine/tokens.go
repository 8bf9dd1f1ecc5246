package engine

import "unicode"

// EstimateTokens approximates the token cost of a message the way the
// billing side counts it: every CJK rune is one token, and every run of
// four non-CJK characters rounds up to one token.
func EstimateTokens(s string) int {
	cjk := 0
	other := 0
	for _, r := range s {
		if isCJK(r) {
			cjk++
		} else {
			other++
		}
	}
	return cjk + (other+3)/4
}

// TruncateToTokens cuts s down so its estimated token count does not
// exceed limit, appending a marker when anything was removed. A limit of
// zero or less disables truncation.
func TruncateToTokens(s string, limit int) string {
	if limit <= 0 || EstimateTokens(s) <= limit {
		return s
	}
	runes := []rune(s)
	used := 0
	ascii := 0
	end := 0
	for i, r := range runes {
		cost := 0
		if isCJK(r) {
			cost = 1
		} else {
			ascii++
			if ascii%4 == 1 {
				cost = 1
			}
		}
		if used+cost > limit {
			break
		}
		used += cost
		end = i + 1
	}
	return string(runes[:end]) + "...(truncated)"
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
