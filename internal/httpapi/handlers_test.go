package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"horse.fit/lingo/internal/cache"
	"horse.fit/lingo/internal/connectivity"
	"horse.fit/lingo/internal/memory"
	"horse.fit/lingo/internal/ratelimit"
	"horse.fit/lingo/internal/translation"
)

type fakeProvider struct {
	fn func(req translation.TranslateRequest) (string, error)
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) SupportedLanguages() []string { return []string{"en", "es"} }

func (p *fakeProvider) Translate(_ context.Context, req translation.TranslateRequest) (*translation.TranslateResponse, error) {
	text, err := p.fn(req)
	if err != nil {
		return nil, err
	}
	return &translation.TranslateResponse{
		Text:         text,
		SourceLang:   req.SourceLang,
		TargetLang:   req.TargetLang,
		ProviderName: "fake",
		Origin:       translation.OriginProvider,
	}, nil
}

func newTestServer(t *testing.T, fn func(req translation.TranslateRequest) (string, error)) *Server {
	t.Helper()

	registry := translation.NewRegistry("fake")
	if err := registry.Register(&fakeProvider{fn: fn}); err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	manager, err := translation.NewManager(
		registry,
		ratelimit.New(10, zerolog.Nop()),
		cache.New(32, 1<<20, time.Minute, zerolog.Nop()),
		memory.New(32, time.Hour, nil, zerolog.Nop()),
		nil,
		translation.ManagerConfig{
			DefaultLimits: ratelimit.Limits{
				RequestLimit: 100,
				TokenLimit:   100000,
				Window:       time.Minute,
			},
			RetryQueue: connectivity.QueueConfig{
				MaxSize:    4,
				MaxRetries: 1,
				DelayBase:  time.Second,
				DelayMax:   time.Minute,
			},
		},
		zerolog.Nop(),
	)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	return NewServer(manager, zerolog.Nop(), Options{})
}

func newJSONContext(method, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) apiEnvelope {
	t.Helper()
	var envelope apiEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return envelope
}

func TestHandleTranslate(t *testing.T) {
	server := newTestServer(t, func(req translation.TranslateRequest) (string, error) {
		return strings.ToUpper(req.Text), nil
	})

	c, rec := newJSONContext(http.MethodPost, "/api/v1/translate", `{"text":"hola","source_lang":"es","target_lang":"en"}`)
	if err := server.handleTranslate(c); err != nil {
		t.Fatalf("handleTranslate returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}

	envelope := decodeEnvelope(t, rec)
	if !envelope.Success {
		t.Fatalf("envelope = %+v, want success", envelope)
	}
	data, ok := envelope.Data.(map[string]any)
	if !ok || data["text"] != "HOLA" {
		t.Fatalf("data = %+v, want translated text", envelope.Data)
	}
}

func TestHandleTranslateValidation(t *testing.T) {
	server := newTestServer(t, func(req translation.TranslateRequest) (string, error) {
		return req.Text, nil
	})

	c, rec := newJSONContext(http.MethodPost, "/api/v1/translate", `{"text":"  ","target_lang":"en"}`)
	if err := server.handleTranslate(c); err != nil {
		t.Fatalf("handleTranslate returned error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleTranslateQueuesOfflineFailures(t *testing.T) {
	server := newTestServer(t, func(translation.TranslateRequest) (string, error) {
		return "", errors.New("dial tcp 127.0.0.1:8845: connection refused")
	})

	c, rec := newJSONContext(http.MethodPost, "/api/v1/translate", `{"text":"hola","source_lang":"es","target_lang":"en"}`)
	if err := server.handleTranslate(c); err != nil {
		t.Fatalf("handleTranslate returned error: %v", err)
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", rec.Code, rec.Body.String())
	}

	envelope := decodeEnvelope(t, rec)
	data, ok := envelope.Data.(map[string]any)
	if !ok || data["queued"] != true {
		t.Fatalf("data = %+v, want queued=true", envelope.Data)
	}
}

func TestHandleProviderUsageUnknown(t *testing.T) {
	server := newTestServer(t, func(req translation.TranslateRequest) (string, error) {
		return req.Text, nil
	})

	c, rec := newJSONContext(http.MethodGet, "/api/v1/usage/nope", "")
	c.SetParamNames("provider")
	c.SetParamValues("nope")
	if err := server.handleProviderUsage(c); err != nil {
		t.Fatalf("handleProviderUsage returned error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleStats(t *testing.T) {
	server := newTestServer(t, func(req translation.TranslateRequest) (string, error) {
		return strings.ToUpper(req.Text), nil
	})

	c, _ := newJSONContext(http.MethodPost, "/api/v1/translate", `{"text":"hola","source_lang":"es","target_lang":"en"}`)
	if err := server.handleTranslate(c); err != nil {
		t.Fatalf("handleTranslate returned error: %v", err)
	}

	c, rec := newJSONContext(http.MethodGet, "/api/v1/stats", "")
	if err := server.handleStats(c); err != nil {
		t.Fatalf("handleStats returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	envelope := decodeEnvelope(t, rec)
	data, ok := envelope.Data.(map[string]any)
	if !ok {
		t.Fatalf("data = %+v, want object", envelope.Data)
	}
	requests, ok := data["requests"].(map[string]any)
	if !ok || requests["translated"] != float64(1) {
		t.Fatalf("requests = %+v, want one translated", data["requests"])
	}
}

func TestHandleLanguages(t *testing.T) {
	server := newTestServer(t, func(req translation.TranslateRequest) (string, error) {
		return req.Text, nil
	})

	c, rec := newJSONContext(http.MethodGet, "/api/v1/languages", "")
	if err := server.handleLanguages(c); err != nil {
		t.Fatalf("handleLanguages returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	envelope := decodeEnvelope(t, rec)
	data, ok := envelope.Data.(map[string]any)
	if !ok {
		t.Fatalf("data = %+v, want object", envelope.Data)
	}
	if data["default"] != "fake" {
		t.Fatalf("default = %v, want fake", data["default"])
	}
	items, ok := data["items"].([]any)
	if !ok || len(items) == 0 {
		t.Fatalf("items = %+v, want language options", data["items"])
	}
}
