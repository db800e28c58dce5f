// Package limits loads per-provider rate limit overrides from a JSON file
// validated against an embedded schema.
package limits

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"horse.fit/lingo/internal/ratelimit"
)

//go:embed provider_limits.schema.json
var providerLimitsSchemaJSON string

// ProviderLimit is one provider's rate limit override.
type ProviderLimit struct {
	Provider      string `json:"provider"`
	RequestLimit  int    `json:"request_limit"`
	TokenLimit    int64  `json:"token_limit"`
	WindowSeconds int    `json:"window_seconds"`
}

type limitsFile struct {
	Providers []ProviderLimit `json:"providers"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// LoadFile reads and validates a provider limits file.
func LoadFile(path string) ([]ProviderLimit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider limits file: %w", err)
	}
	entries, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse provider limits file %s: %w", path, err)
	}
	return entries, nil
}

// Parse validates raw JSON against the embedded schema and decodes it.
func Parse(raw []byte) ([]ProviderLimit, error) {
	value, err := decodeStrictJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("decode limits JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize limits JSON: %w", err)
	}

	var file limitsFile
	if err := json.Unmarshal(normalized, &file); err != nil {
		return nil, fmt.Errorf("unmarshal limits: %w", err)
	}

	if err := validateSemantics(file.Providers); err != nil {
		return nil, err
	}
	return file.Providers, nil
}

// Apply configures the limiter with every entry.
func Apply(limiter *ratelimit.Limiter, entries []ProviderLimit) error {
	if limiter == nil {
		return fmt.Errorf("limiter is nil")
	}
	for _, entry := range entries {
		err := limiter.Configure(entry.Provider, ratelimit.Limits{
			RequestLimit: entry.RequestLimit,
			TokenLimit:   entry.TokenLimit,
			Window:       time.Duration(entry.WindowSeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("configure provider %q: %w", entry.Provider, err)
		}
	}
	return nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("provider_limits.schema.json", strings.NewReader(providerLimitsSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("provider_limits.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("limits file is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("limits file contains trailing content")
	}

	return value, nil
}

func validateSemantics(entries []ProviderLimit) error {
	seen := make(map[string]struct{}, len(entries))
	for i, entry := range entries {
		name := strings.ToLower(strings.TrimSpace(entry.Provider))
		if name == "" {
			return fmt.Errorf("providers[%d].provider must not be empty", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("providers[%d]: duplicate provider %q", i, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
