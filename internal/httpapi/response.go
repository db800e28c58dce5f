package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type apiError struct {
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

type apiEnvelope struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

func success(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, apiEnvelope{Success: true, Data: data})
}

func accepted(c echo.Context, data any) error {
	return c.JSON(http.StatusAccepted, apiEnvelope{Success: true, Data: data})
}

func fail(c echo.Context, status int, message string, details map[string]string) error {
	return c.JSON(status, apiEnvelope{
		Success: false,
		Error: &apiError{
			Message: message,
			Details: details,
		},
	})
}

func failValidation(c echo.Context, details map[string]string) error {
	return fail(c, http.StatusBadRequest, "Validation failed", details)
}

func internalError(c echo.Context, message string) error {
	return fail(c, http.StatusInternalServerError, message, nil)
}
