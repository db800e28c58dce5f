package limits

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/lingo/internal/ratelimit"
)

func TestParseValid(t *testing.T) {
	raw := []byte(`{
		"providers":[
			{"provider":"local","request_limit":60,"token_limit":100000,"window_seconds":60},
			{"provider":"deepl","request_limit":10,"token_limit":50000,"window_seconds":60}
		]
	}`)

	entries, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Provider != "local" || entries[0].TokenLimit != 100000 {
		t.Fatalf("entries[0] = %+v, want local/100000", entries[0])
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "missing providers", raw: `{}`},
		{name: "zero request limit", raw: `{"providers":[{"provider":"local","request_limit":0,"token_limit":1,"window_seconds":60}]}`},
		{name: "unknown field", raw: `{"providers":[{"provider":"local","request_limit":1,"token_limit":1,"window_seconds":60,"burst":5}]}`},
		{name: "blank provider", raw: `{"providers":[{"provider":"  ","request_limit":1,"token_limit":1,"window_seconds":60}]}`},
		{name: "duplicate provider", raw: `{"providers":[{"provider":"local","request_limit":1,"token_limit":1,"window_seconds":60},{"provider":"LOCAL","request_limit":2,"token_limit":2,"window_seconds":60}]}`},
		{name: "trailing content", raw: `{"providers":[]} {}`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Parse([]byte(tc.raw)); err == nil {
				t.Fatalf("Parse accepted invalid input %q", tc.raw)
			}
		})
	}
}

func TestApplyConfiguresLimiter(t *testing.T) {
	limiter := ratelimit.New(10, zerolog.Nop())
	entries := []ProviderLimit{
		{Provider: "local", RequestLimit: 5, TokenLimit: 1000, WindowSeconds: 60},
	}

	if err := Apply(limiter, entries); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}

	usage, err := limiter.Usage("local")
	if err != nil {
		t.Fatalf("Usage returned error: %v", err)
	}
	if usage.Window != time.Minute {
		t.Fatalf("Window = %v, want 1m", usage.Window)
	}
}

func TestApplyRejectsBadLimits(t *testing.T) {
	limiter := ratelimit.New(10, zerolog.Nop())
	entries := []ProviderLimit{
		{Provider: "local", RequestLimit: -1, TokenLimit: 1000, WindowSeconds: 60},
	}

	err := Apply(limiter, entries)
	if err == nil || !strings.Contains(err.Error(), "local") {
		t.Fatalf("Apply error = %v, want configure failure naming the provider", err)
	}
}
