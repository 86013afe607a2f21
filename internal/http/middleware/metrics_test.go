package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsByRouteAndUnmatched(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/reports/:name", func(c *gin.Context) { c.String(http.StatusOK, "{}") })
	r.GET("/empty", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	baseOK := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/reports/:name", "200"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404"))

	serve(r, http.MethodGet, "/reports/funnel", nil)
	serve(r, http.MethodGet, "/reports/cohorts", nil)
	serve(r, http.MethodGet, "/nope/1", nil)
	serve(r, http.MethodGet, "/nope/2", nil)
	serve(r, http.MethodGet, "/empty", nil)

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/reports/:name", "200")); got != baseOK+2 {
		t.Fatalf("route counter = %v; want %v", got, baseOK+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404")); got != base404+2 {
		t.Fatalf("unmatched counter = %v; want %v", got, base404+2)
	}
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v; want 0", inFlight)
	}
}
