// Package middleware contains the Gin middleware of the query API.
//
// This file provides request correlation, structured access logging and
// panic recovery:
//
//   - RequestID() reuses an incoming X-Request-ID or mints a UUID, echoes it
//     on the response and stores it in the Gin context.
//   - Logger() attaches a request-scoped zerolog.Logger and writes one access
//     line per request, leveled by outcome.
//   - Recovery() turns panics into the JSON error envelope with status 500.
//
// Install them in that order so panics and errors carry the request ID.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// requestIDKey is the Gin context key holding the request ID.
	requestIDKey = "requestID"
	// loggerKey is the Gin context key holding the request-scoped logger.
	loggerKey = "logger"
	// requestIDHeader carries the correlation ID in both directions.
	requestIDHeader = "X-Request-ID"
	// maxQueryLogLength caps the logged raw query string, in bytes.
	maxQueryLogLength = 512
	// maxRequestIDLength rejects oversized client-supplied IDs.
	maxRequestIDLength = 128
)

// RequestID attaches a correlation identifier to every request. A client
// supplied X-Request-ID is reused unless it is longer than 128 bytes.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" || len(rid) > maxRequestIDLength {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// RequestIDFrom returns the request ID stored by RequestID, or "".
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Logger writes a structured access log line per request. The line carries
// the request ID, method, matched route, client IP, capped query string,
// status, latency and response size. 5xx responses and requests with Gin
// errors log at error level, 4xx at warn, everything else at info.
//
// The request-scoped logger is available to handlers through LoggerFrom.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		l := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("route", routeOf(c)).
			Str("remote_ip", c.ClientIP()).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength)).
			Logger()
		c.Set(loggerKey, &l)

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0:
			ev = l.Error().Str("errors", c.Errors.String())
		case status >= http.StatusInternalServerError:
			ev = l.Error()
		case status >= http.StatusBadRequest:
			ev = l.Warn()
		default:
			ev = l.Info()
		}
		ev.Int("status", status).
			Dur("latency", time.Since(start)).
			Int("bytes_out", c.Writer.Size()).
			Msg("request")
	}
}

// Recovery converts a panic into a 500 error envelope and logs the panic
// value with its stack. If the handler already started writing, only the
// status is set.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := RequestIDFrom(c)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger attached by Logger, or the
// global logger when none is attached.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Str("request_id", RequestIDFrom(c)).Logger()
	return &l
}

// routeOf returns the matched route pattern, or "unmatched" when no route
// matched. Raw paths are never used so label and log cardinality stay
// bounded.
func routeOf(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}

// truncate caps s at max bytes. A max <= 0 disables truncation.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
