// Package handlers provides the HTTP handlers of the warehouse query API.
//
// This file defines the response envelopes and helpers shared by every
// endpoint, so that success and failure bodies have a uniform shape.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "no_warehouse",
//	  "message": "no warehouse has been built yet; run the ETL first"
//	}
//
// Example success response:
//
//	HTTP/1.1 200 OK
//	{ "run_id": "9b2d...", "data": { "viewers": 12, ... } }
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-clickstream-warehouse/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors.
	RequestID string `json:"request_id,omitempty"`
	// Stable, machine-readable code (see errors.go constants).
	Code string `json:"code"`
	// Human-readable message.
	Message string `json:"message"`
}

// MetricResponse wraps a metric value with the run it was computed from.
type MetricResponse struct {
	RunID string `json:"run_id"`
	Data  any    `json:"data"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// fail aborts the request with the error envelope. Server errors are logged
// with the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail is the exported variant of fail for router-level fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}
