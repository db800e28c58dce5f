package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"horse.fit/lingo/internal/globaltime"
	"horse.fit/lingo/internal/ratelimit"
	"horse.fit/lingo/internal/translation"
)

func (s *Server) handleHealth(c echo.Context) error {
	data := map[string]any{
		"service": "lingo",
		"time":    globaltime.UTC(),
	}
	if monitor := s.manager.Monitor(); monitor != nil {
		data["connectivity"] = monitor.Status()
	}
	return success(c, data)
}

func (s *Server) handleTranslate(c echo.Context) error {
	var req translation.TranslateRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}
	if strings.TrimSpace(req.Text) == "" {
		return failValidation(c, map[string]string{"text": "text is required"})
	}
	if strings.TrimSpace(req.TargetLang) == "" {
		return failValidation(c, map[string]string{"target_lang": "target language is required"})
	}

	resp, err := s.manager.Translate(c.Request().Context(), req)
	if err != nil {
		return s.translateError(c, err)
	}
	return success(c, resp)
}

func (s *Server) translateError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, translation.ErrQueuedForRetry):
		return accepted(c, map[string]any{
			"queued":       true,
			"queue_length": s.manager.Retries().Len(),
		})
	case errors.Is(err, ratelimit.ErrCostExceedsLimit):
		return fail(c, http.StatusRequestEntityTooLarge, err.Error(), nil)
	case errors.Is(err, ratelimit.ErrQueueFull):
		return fail(c, http.StatusTooManyRequests, err.Error(), nil)
	case strings.Contains(err.Error(), "not registered"):
		return fail(c, http.StatusBadRequest, err.Error(), nil)
	}
	s.logger.Error().Err(err).Msg("translate request failed")
	return fail(c, http.StatusBadGateway, "Translation failed", nil)
}

func (s *Server) handleLanguages(c echo.Context) error {
	return success(c, map[string]any{
		"default": s.manager.Registry().DefaultProvider(),
		"items":   translation.TranslationLanguageOptions(s.manager.Registry()),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	data := map[string]any{
		"requests": s.manager.Stats(),
		"retries":  s.manager.Retries().Len(),
	}
	if translationCache := s.manager.Cache(); translationCache != nil {
		data["cache"] = translationCache.Stats()
	}
	if translationMemory := s.manager.Memory(); translationMemory != nil {
		data["memory"] = translationMemory.Stats()
	}
	if monitor := s.manager.Monitor(); monitor != nil {
		data["connectivity"] = monitor.Status()
	}
	return success(c, data)
}

func (s *Server) handleUsage(c echo.Context) error {
	limiter := s.manager.Limiter()
	items := make(map[string]ratelimit.Usage)
	for _, provider := range limiter.Providers() {
		usage, err := limiter.Usage(provider)
		if err != nil {
			continue
		}
		items[provider] = usage
	}
	return success(c, map[string]any{"items": items})
}

func (s *Server) handleProviderUsage(c echo.Context) error {
	provider := c.Param("provider")
	usage, err := s.manager.Limiter().Usage(provider)
	if err != nil {
		if errors.Is(err, ratelimit.ErrInvalidProvider) {
			return fail(c, http.StatusNotFound, "Unknown provider", nil)
		}
		s.logger.Error().Err(err).Str("provider", provider).Msg("usage lookup failed")
		return internalError(c, "Failed to load usage")
	}
	return success(c, usage)
}

func (s *Server) handleConnectivity(c echo.Context) error {
	monitor := s.manager.Monitor()
	if monitor == nil {
		return fail(c, http.StatusNotFound, "Connectivity monitoring is disabled", nil)
	}
	return success(c, monitor.Status())
}

func (s *Server) handleConnectivityCheck(c echo.Context) error {
	monitor := s.manager.Monitor()
	if monitor == nil {
		return fail(c, http.StatusNotFound, "Connectivity monitoring is disabled", nil)
	}
	return success(c, monitor.ForceCheck(c.Request().Context()))
}

func (s *Server) handleRetries(c echo.Context) error {
	return success(c, map[string]any{
		"length":  s.manager.Retries().Len(),
		"entries": s.manager.Retries().Snapshot(),
	})
}

func (s *Server) handleRetriesProcess(c echo.Context) error {
	processed := s.manager.ProcessRetries(c.Request().Context())
	return success(c, map[string]any{
		"processed": processed,
		"remaining": s.manager.Retries().Len(),
	})
}

func (s *Server) handleRetriesClear(c echo.Context) error {
	cleared := s.manager.Retries().Clear()
	return success(c, map[string]any{"cleared": cleared})
}
