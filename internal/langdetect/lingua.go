// Package langdetect wraps lingua-go behind a small helper used by the
// recursive splitter to decide whether a segment is already written in the
// requested target language.
package langdetect

import (
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// DetectISO6391 returns the two-letter code of the detected language, or ""
// when the sample is too short or the detector is not confident.
func DetectISO6391(text string) string {
	sample := strings.TrimSpace(text)
	if sample == "" {
		return ""
	}

	letterCount := 0
	for _, r := range sample {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < 6 {
		return ""
	}

	language, exists := getDetector().DetectLanguageOf(sample)
	if !exists {
		return ""
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return ""
	}
	return code
}

// IsLanguage reports whether text is confidently detected as langCode.
// Short or ambiguous samples report false.
func IsLanguage(text, langCode string) bool {
	want := strings.ToLower(strings.TrimSpace(langCode))
	if len(want) != 2 {
		return false
	}
	detected := DetectISO6391(text)
	return detected != "" && detected == want
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithPreloadedLanguageModels().
			Build()
	})
	return detector
}
