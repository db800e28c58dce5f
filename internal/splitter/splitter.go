// Package splitter rescues translation requests a provider refuses to
// honor whole. It recursively carves the text into smaller pieces (language
// boundaries, then sentences, then words, then midpoints, finally single
// characters), translates each piece, and reassembles the result with
// whitespace preserved exactly. Pieces that cannot be translated at all are
// kept verbatim so the caller gets a partial result instead of a failure.
package splitter

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"horse.fit/lingo/internal/langdetect"
)

// maxDepth caps the recursion; segments deeper than this come back untranslated.
const maxDepth = 5

// TranslateFunc performs one provider call for a piece of text. The caller
// binds language pair and provider before handing it over.
type TranslateFunc func(ctx context.Context, text string) (string, error)

type segment struct {
	text             string
	needsTranslation bool
	isWhitespace     bool
}

var (
	urlPattern     = regexp.MustCompile(`^(?:https?://|www\.)\S+$`)
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	numericPattern = regexp.MustCompile(`^[\d.,:%+\-/*=()#°$€£¥ ]+$`)
)

type Splitter struct {
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Splitter {
	return &Splitter{logger: logger}
}

// Translate attempts fn on text and, when fn fails with a moderation or
// size rejection, descends through the splitting strategies. Non-rejection
// errors propagate unchanged.
func (s *Splitter) Translate(ctx context.Context, text, targetLang string, fn TranslateFunc) (string, error) {
	if s == nil || fn == nil {
		return text, nil
	}
	return s.translate(ctx, text, targetLang, fn, 0)
}

func (s *Splitter) translate(ctx context.Context, text, targetLang string, fn TranslateFunc, depth int) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	translated, err := fn(ctx, text)
	if err == nil {
		return translated, nil
	}
	if !IsSplittable(err) {
		return "", err
	}
	if depth >= maxDepth {
		s.logger.Debug().Int("depth", depth).Msg("split depth exhausted; keeping segment verbatim")
		return text, nil
	}

	if depth == 0 {
		if segments, ok := segmentByLanguage(text, targetLang); ok {
			return s.translateSegments(ctx, segments, targetLang, fn, depth+1)
		}
	}
	if depth <= 1 {
		if segments, ok := splitSentences(text); ok {
			return s.translateSegments(ctx, segments, targetLang, fn, depth+1)
		}
	}
	if depth <= 2 {
		if segments, ok := splitWhitespaceRuns(text); ok {
			return s.translateSegments(ctx, segments, targetLang, fn, depth+1)
		}
	}
	if depth <= 3 {
		if segments, ok := splitMidpoint(text); ok {
			return s.translateSegments(ctx, segments, targetLang, fn, depth+1)
		}
	}
	if len([]rune(text)) > 1 {
		return s.translateByCharacter(ctx, text, fn), nil
	}

	// Single character that still fails: keep it rather than abort.
	return text, nil
}

func (s *Splitter) translateSegments(ctx context.Context, segments []segment, targetLang string, fn TranslateFunc, depth int) (string, error) {
	var out strings.Builder
	for _, seg := range segments {
		if seg.isWhitespace || !seg.needsTranslation {
			out.WriteString(seg.text)
			continue
		}
		translated, err := s.translate(ctx, seg.text, targetLang, fn, depth)
		if err != nil {
			return "", err
		}
		out.WriteString(translated)
	}
	return out.String(), nil
}

// translateByCharacter is the last resort: every non-whitespace rune is
// translated on its own, and runes the provider still refuses stay as-is.
func (s *Splitter) translateByCharacter(ctx context.Context, text string, fn TranslateFunc) string {
	var out strings.Builder
	for _, r := range text {
		if unicode.IsSpace(r) {
			out.WriteRune(r)
			continue
		}
		translated, err := fn(ctx, string(r))
		if err != nil {
			out.WriteRune(r)
			continue
		}
		out.WriteString(translated)
	}
	return out.String()
}

// segmentByLanguage groups the text into runs that need translation and
// runs that do not (numbers, URLs, emails, text already in the target
// language). It reports false when the whole text collapses into a single
// run, because that would make no progress.
func segmentByLanguage(text, targetLang string) ([]segment, bool) {
	tokens, ok := splitWhitespaceRuns(text)
	if !ok {
		return nil, false
	}

	segments := make([]segment, 0, len(tokens))
	for _, token := range tokens {
		if token.isWhitespace {
			// Whitespace glues onto the previous segment so joins stay exact.
			if len(segments) > 0 {
				segments[len(segments)-1].text += token.text
			} else {
				segments = append(segments, token)
			}
			continue
		}

		needs := tokenNeedsTranslation(token.text, targetLang)
		if len(segments) > 0 && !segments[len(segments)-1].isWhitespace &&
			segments[len(segments)-1].needsTranslation == needs {
			segments[len(segments)-1].text += token.text
			continue
		}
		segments = append(segments, segment{text: token.text, needsTranslation: needs})
	}

	if len(segments) < 2 {
		onlySegment := len(segments) == 1 && segments[0].needsTranslation
		if onlySegment {
			return nil, false
		}
	}
	return segments, true
}

func tokenNeedsTranslation(token, targetLang string) bool {
	if numericPattern.MatchString(token) {
		return false
	}
	if urlPattern.MatchString(token) || emailPattern.MatchString(token) {
		return false
	}
	if langdetect.IsLanguage(token, targetLang) {
		return false
	}
	return true
}

// splitSentences cuts after runs of terminal punctuation, keeping the
// punctuation attached to its sentence. Reports false for a single piece.
func splitSentences(text string) ([]segment, bool) {
	runes := []rune(text)
	var segments []segment
	start := 0
	i := 0
	for i < len(runes) {
		if isTerminalPunct(runes[i]) {
			for i < len(runes) && isTerminalPunct(runes[i]) {
				i++
			}
			// Trailing whitespace after the punctuation run stays with
			// the sentence so concatenation reproduces the original.
			for i < len(runes) && unicode.IsSpace(runes[i]) {
				i++
			}
			segments = append(segments, segment{text: string(runes[start:i]), needsTranslation: true})
			start = i
			continue
		}
		i++
	}
	if start < len(runes) {
		segments = append(segments, segment{text: string(runes[start:]), needsTranslation: true})
	}
	if len(segments) < 2 {
		return nil, false
	}
	return segments, true
}

func isTerminalPunct(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？', '…', ';', '；':
		return true
	}
	return false
}

// splitWhitespaceRuns splits into alternating whitespace and
// non-whitespace runs. Reports false when there is nothing to split.
func splitWhitespaceRuns(text string) ([]segment, bool) {
	runes := []rune(text)
	var segments []segment
	start := 0
	for i := 1; i <= len(runes); i++ {
		if i == len(runes) || unicode.IsSpace(runes[i]) != unicode.IsSpace(runes[start]) {
			run := string(runes[start:i])
			segments = append(segments, segment{
				text:             run,
				needsTranslation: !isAllSpace(run),
				isWhitespace:     isAllSpace(run),
			})
			start = i
		}
	}
	if len(segments) < 2 {
		return nil, false
	}
	return segments, true
}

// splitMidpoint cuts near the middle, preferring a whitespace boundary
// within ten runes of it. Reports false for texts of two runes or fewer.
func splitMidpoint(text string) ([]segment, bool) {
	runes := []rune(text)
	if len(runes) <= 2 {
		return nil, false
	}

	mid := len(runes) / 2
	cut := mid
	for offset := 0; offset <= 10; offset++ {
		if mid+offset < len(runes) && unicode.IsSpace(runes[mid+offset]) {
			cut = mid + offset
			break
		}
		if mid-offset > 0 && unicode.IsSpace(runes[mid-offset]) {
			cut = mid - offset
			break
		}
	}
	if cut <= 0 || cut >= len(runes) {
		cut = mid
	}

	return []segment{
		{text: string(runes[:cut]), needsTranslation: true},
		{text: string(runes[cut:]), needsTranslation: true},
	}, true
}

func isAllSpace(text string) bool {
	for _, r := range text {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
