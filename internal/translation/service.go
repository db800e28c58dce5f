package translation

import "context"

// Provider translates free-form text between languages.
type Provider interface {
	Translate(ctx context.Context, req TranslateRequest) (*TranslateResponse, error)
	Name() string
	SupportedLanguages() []string
}

// TranslateRequest describes one translation request.
type TranslateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"` // ISO 639-1 (for example: "zh", "en")
	TargetLang string `json:"target_lang"`
	Provider   string `json:"provider,omitempty"` // empty = registry default
}

// TranslateResponse contains translated text and provider metadata.
type TranslateResponse struct {
	Text         string `json:"text"`
	SourceLang   string `json:"source_lang"`
	TargetLang   string `json:"target_lang"`
	ProviderName string `json:"provider_name"`
	Origin       string `json:"origin"` // provider, cache, memory, split, passthrough
	LatencyMs    int64  `json:"latency_ms"`
}

// Response origins.
const (
	OriginProvider    = "provider"
	OriginCache       = "cache"
	OriginMemory      = "memory"
	OriginSplit       = "split"
	OriginPassthrough = "passthrough"
)
