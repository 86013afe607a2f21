package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestKeyByIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = net.JoinHostPort("203.0.113.9", "12345")

	if key := KeyByIP()(c); key != "ip:203.0.113.9" {
		t.Fatalf("key = %q", key)
	}
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(2, 0, nil, "/health")
	if rl.burst != 1 {
		t.Fatalf("burst coercion failed, got %d", rl.burst)
	}
	if rl.keyFn == nil {
		t.Fatalf("expected default key func")
	}
	if _, ok := rl.exempt["/health"]; !ok {
		t.Fatalf("exempt path not registered")
	}

	now := time.Now()
	lim := rl.limiterFor("k1", now)
	if rl.limiterFor("k1", now) != lim {
		t.Fatalf("expected bucket reuse")
	}
}

func TestRateLimiter_EvictsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	rl.gcEvery = 2
	rl.ttl = time.Minute

	start := time.Now()
	rl.limiterFor("old", start)
	rl.limiterFor("fresh", start.Add(2*time.Minute))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.visitors["old"]; ok {
		t.Fatalf("idle bucket should have been evicted")
	}
	if _, ok := rl.visitors["fresh"]; !ok {
		t.Fatalf("fresh bucket missing")
	}
}

func TestRateLimiter_Handler_429AndExempt(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(0.001, 1, KeyByIP(), "/health")

	r := gin.New()
	r.Use(RequestID(), rl.Handler())
	r.GET("/reports", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := serve(r, http.MethodGet, "/reports", nil); w.Code != http.StatusOK {
		t.Fatalf("first request -> %d", w.Code)
	}
	w := serve(r, http.MethodGet, "/reports", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request -> %d; want 429", w.Code)
	}
	if ra, err := strconv.Atoi(w.Header().Get("Retry-After")); err != nil || ra < 1 {
		t.Fatalf("bad Retry-After %q", w.Header().Get("Retry-After"))
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if body["code"] != "too_many_requests" || body["request_id"] == "" {
		t.Fatalf("unexpected body: %v", body)
	}

	for i := 0; i < 3; i++ {
		if w := serve(r, http.MethodGet, "/health", nil); w.Code != http.StatusOK {
			t.Fatalf("exempt path limited: %d", w.Code)
		}
	}
}
