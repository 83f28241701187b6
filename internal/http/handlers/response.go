// Package handlers provides the HTTP handlers of the user, post, comment and
// attach services, public and internal.
//
// This file defines the response helpers. Every failure is written as the
// same envelope:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": 100,
//	  "message": "post not found"
//	}
//
// Codes are integers. Domain codes (100+) are stable per service; generic
// codes mirror the HTTP status (400, 401, 404, 405, 429, 500, 502, 503).
// Success payloads are written unwrapped.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/saidovdiyorbek/threads/internal/http/middleware"
)

// ErrorResponse is the error envelope returned by every endpoint.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code
	Code int `json:"code" example:"100"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"post not found"`
}

// fail aborts the request with an envelope. 5xx responses are logged with
// the request-scoped logger.
func fail(c *gin.Context, status, code int, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Int("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: middleware.RequestIDOf(c),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail for the router fallbacks.
func Fail(c *gin.Context, status, code int, msg string) { fail(c, status, code, msg) }

// failErr maps err through statusOf and writes the envelope.
func failErr(c *gin.Context, err error) {
	status, code, msg := statusOf(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	fail(c, status, code, msg)
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
