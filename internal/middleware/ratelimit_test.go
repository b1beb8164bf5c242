package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func setupRateLimitRouter(cfg RateLimitConfig) *gin.Engine {
	r := gin.New()
	r.Use(RateLimit(cfg))
	r.GET("/practice", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func requestFrom(r http.Handler, ip, path string, htmx bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = ip + ":12345"
	if htmx {
		req.Header.Set("HX-Request", "true")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	r := setupRateLimitRouter(RateLimitConfig{RPS: 1, Burst: 2})

	for i := 0; i < 2; i++ {
		if w := requestFrom(r, "10.0.0.1", "/practice", false); w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d, want 200", i, w.Code)
		}
	}

	w := requestFrom(r, "10.0.0.1", "/practice", false)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["message"] != "rate limit exceeded" {
		t.Errorf("message = %v", body["message"])
	}
}

func TestRateLimit_PerClient(t *testing.T) {
	r := setupRateLimitRouter(RateLimitConfig{RPS: 1, Burst: 1})

	requestFrom(r, "10.0.0.1", "/practice", false)
	if w := requestFrom(r, "10.0.0.1", "/practice", false); w.Code != http.StatusTooManyRequests {
		t.Errorf("first client: status %d, want 429", w.Code)
	}
	if w := requestFrom(r, "10.0.0.2", "/practice", false); w.Code != http.StatusOK {
		t.Errorf("second client: status %d, want 200", w.Code)
	}
}

func TestRateLimit_SkipPaths(t *testing.T) {
	r := setupRateLimitRouter(RateLimitConfig{RPS: 1, Burst: 1, SkipPaths: []string{"/health"}})

	for i := 0; i < 5; i++ {
		if w := requestFrom(r, "10.0.0.1", "/health", false); w.Code != http.StatusOK {
			t.Fatalf("skipped path request %d: status %d", i, w.Code)
		}
	}
}

func TestRateLimit_HTMXToast(t *testing.T) {
	r := setupRateLimitRouter(RateLimitConfig{RPS: 1, Burst: 1})

	requestFrom(r, "10.0.0.1", "/practice", true)
	w := requestFrom(r, "10.0.0.1", "/practice", true)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if !strings.Contains(w.Header().Get("HX-Trigger"), "Too many requests") {
		t.Errorf("HX-Trigger = %q", w.Header().Get("HX-Trigger"))
	}
	if w.Body.Len() != 0 {
		t.Errorf("htmx rejection should have no body, got %q", w.Body.String())
	}
}

func TestRateLimit_Headers(t *testing.T) {
	r := setupRateLimitRouter(RateLimitConfig{RPS: 1, Burst: 5})

	w := requestFrom(r, "10.0.0.9", "/practice", false)
	if w.Header().Get("X-RateLimit-Limit") != "1" {
		t.Errorf("X-RateLimit-Limit = %q, want 1", w.Header().Get("X-RateLimit-Limit"))
	}
	if w.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("expected X-RateLimit-Reset")
	}
	if w.Header().Get("X-RateLimit-Remaining") == "" {
		t.Error("expected X-RateLimit-Remaining")
	}
}

func TestRateLimit_HTMXPassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(RateLimitConfig{RPS: 1, Burst: 1}))
	r.GET("/busy", func(c *gin.Context) {
		c.String(http.StatusTooManyRequests, "upstream busy")
	})

	w := requestFrom(r, "10.0.0.3", "/busy", true)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Body.String() != "upstream busy" {
		t.Errorf("handler body swallowed: %q", w.Body.String())
	}
	if w.Header().Get("HX-Trigger") != "" {
		t.Errorf("admitted request got a rate limit toast: %q", w.Header().Get("HX-Trigger"))
	}
}

func TestRateLimit_SeparateStores(t *testing.T) {
	a := setupRateLimitRouter(RateLimitConfig{RPS: 1, Burst: 1})
	b := setupRateLimitRouter(RateLimitConfig{RPS: 1, Burst: 1})

	requestFrom(a, "10.0.0.4", "/practice", false)
	if w := requestFrom(b, "10.0.0.4", "/practice", false); w.Code != http.StatusOK {
		t.Errorf("second engine shares buckets: status %d", w.Code)
	}
}
