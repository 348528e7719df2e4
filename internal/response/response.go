package response

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// errorBody is the flat error shape used by every 4xx/5xx except 429.
type errorBody struct {
	Error string `json:"error"`
}

// RateLimitedBody is the 429 shape with the retry hint.
type RateLimitedBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Remaining int    `json:"remaining"`
	ResetTime string `json:"resetTime"`
}

// Error sends a JSON error with the given status.
func Error(c echo.Context, status int, message string) error {
	return c.JSON(status, errorBody{Error: message})
}

// BadRequest sends 400.
func BadRequest(c echo.Context, message string) error {
	return Error(c, http.StatusBadRequest, message)
}

// NotFound sends 404.
func NotFound(c echo.Context, message string) error {
	return Error(c, http.StatusNotFound, message)
}

// Internal sends a generic 500. Failure details stay in the server log.
func Internal(c echo.Context) error {
	return Error(c, http.StatusInternalServerError, "Internal server error")
}

// RateLimited sends the 429 throttling response.
func RateLimited(c echo.Context, retryAfterSeconds int, resetAt time.Time) error {
	return c.JSON(http.StatusTooManyRequests, RateLimitedBody{
		Error:     "Too many requests",
		Message:   fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", retryAfterSeconds),
		Remaining: 0,
		ResetTime: resetAt.UTC().Format(time.RFC3339),
	})
}
