package ratelimit

import (
	"math"
	"strings"
	"unicode"
)

// EstimateTokens approximates how many tokens a provider will bill for text.
// Latin-ish scripts average about four characters per token; CJK scripts are
// closer to one token per rune. Blank text costs nothing, any other text
// costs at least one token.
func EstimateTokens(text string) int64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}

	var weight float64
	for _, r := range text {
		if isCJK(r) {
			weight++
		} else {
			weight += 0.25
		}
	}

	tokens := int64(math.Ceil(weight))
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
