package splitter

import (
	"errors"
	"strings"
)

var (
	// ErrContentRejected marks a provider refusal on moderation grounds.
	ErrContentRejected = errors.New("provider rejected content")
	// ErrPayloadTooLarge marks a provider refusal on size grounds.
	ErrPayloadTooLarge = errors.New("provider rejected payload size")
)

// splittableMarkers are lowercase fragments seen in moderation and
// size-limit refusals across providers. Providers that cannot classify
// their own errors still get rescued when the message matches.
var splittableMarkers = []string{
	"content_filter",
	"content filter",
	"content management policy",
	"content moderation",
	"flagged as potentially violating",
	"payload too large",
	"request entity too large",
	"maximum context length",
	"too many tokens",
	"text too long",
	"input too long",
}

// IsSplittable reports whether err is a rejection class the recursive
// splitter can work around. Every other error propagates unchanged.
func IsSplittable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrContentRejected) || errors.Is(err, ErrPayloadTooLarge) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range splittableMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
