// Package httpapi wires the HTTP transport (Gin) to the warehouse services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS,
// security headers, compression, and rate limiting.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-clickstream-warehouse/internal/config"
	"github.com/tbourn/go-clickstream-warehouse/internal/etl"
	"github.com/tbourn/go-clickstream-warehouse/internal/http/handlers"
	"github.com/tbourn/go-clickstream-warehouse/internal/http/middleware"
	"github.com/tbourn/go-clickstream-warehouse/internal/repo"
	"github.com/tbourn/go-clickstream-warehouse/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the query API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per IP; /health and /metrics exempt)
//  8. CORS and Security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) error {
	strategy, err := etl.ParseProductKeyStrategy(cfg.ETL.ProductKey)
	if err != nil {
		return err
	}

	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP(), "/health", "/metrics")
	r.Use(rl.Handler())

	// 8) CORS posture (allow all if none configured)
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← repo/db
	whSvc := services.NewWarehouseService(db, repo.Store{}, strategy)
	whSvc.FailOnIntegrity = cfg.ETL.FailOnIntegrity
	whSvc.BatchSize = cfg.ETL.BatchSize
	repSvc := services.NewReportService(db, repo.Store{})
	h := handlers.New(whSvc, repSvc, cfg.ETL.EventsPath)

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	{
		// Warehouse control
		api.GET("/warehouse/integrity", h.Integrity)
		api.GET("/warehouse/runs", h.ListRuns)
		api.POST("/warehouse/runs", h.StartRun)

		// Metrics
		api.GET("/reports", h.Report)
		api.GET("/reports/revenue", h.Revenue)
		api.GET("/reports/revenue/monthly", h.MonthlyRevenue)
		api.GET("/reports/revenue/weekday", h.WeekdayRevenue)
		api.GET("/reports/brands/top", h.TopBrands)
		api.GET("/reports/categories/top-returned", h.TopReturnedCategories)
		api.GET("/reports/products/top-avg-price", h.TopAvgPriceProducts)
		api.GET("/reports/users/spans", h.PurchaseSpans)
		api.GET("/reports/users/purchased-then-returned", h.PurchasedThenReturned)
		api.GET("/reports/conversion", h.Conversion)
		api.GET("/reports/returns/monthly", h.MonthlyReturns)
		api.GET("/reports/funnel", h.Funnel)
		api.GET("/reports/segments", h.Segments)
		api.GET("/reports/cohorts", h.Cohorts)
	}
	return nil
}

// corsMiddleware returns the CORS handlers for the configured allowlist. With
// no allowlist every origin is accepted and credentials are never allowed.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "If-None-Match"},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length", "ETag", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// ACAO: * also for requests without an Origin header.
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps the request body size for all endpoints to maxBytes using
// http.MaxBytesReader.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
