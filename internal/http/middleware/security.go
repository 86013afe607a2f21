// Package middleware contains the Gin middleware of the query API.
//
// This file provides SecurityHeaders, which adds conservative response
// headers for a JSON API served behind a reverse proxy.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS emits Strict-Transport-Security on HTTPS requests. Enable it
	// only when traffic is HTTPS end-to-end.
	EnableHSTS bool
	// HSTSMaxAge is the HSTS lifetime; non-positive values use 180 days.
	HSTSMaxAge time.Duration
}

// SecurityHeaders sets X-Content-Type-Options, X-Frame-Options and
// Referrer-Policy on every response, HSTS on HTTPS requests when enabled, and
// exposes X-Request-ID to browser clients.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = 180 * 24 * time.Hour
	}
	hsts := "max-age=" + strconv.FormatInt(int64(maxAge.Seconds()), 10) + "; includeSubDomains"

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		const expose = "Access-Control-Expose-Headers"
		if cur := h.Get(expose); cur == "" {
			h.Set(expose, requestIDHeader)
		} else if !strings.Contains(cur, requestIDHeader) {
			h.Set(expose, cur+", "+requestIDHeader)
		}

		c.Next()
	}
}

// isHTTPS reports whether r arrived over TLS directly or through a proxy
// that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
