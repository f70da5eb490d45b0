package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/scrollgrab/config"
)

func rateLimitProbe(t *testing.T, cfg config.RateLimitConfig, requests int, apiKey string) []int {
	t.Helper()
	r := gin.New()
	if apiKey != "" {
		r.Use(func(c *gin.Context) { c.Set("api_key", apiKey) })
	}
	r.Use(RateLimit(cfg))
	r.GET("/probe", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, requests)
	for range requests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))
		codes = append(codes, w.Code)
	}
	return codes
}

func TestRateLimitAllowsBurst(t *testing.T) {
	codes := rateLimitProbe(t, config.RateLimitConfig{RequestsPerSecond: 1, Burst: 3}, 3, "key-a")
	for i, code := range codes {
		if code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i+1, code, http.StatusOK)
		}
	}
}

func TestRateLimitRejectsBeyondBurst(t *testing.T) {
	codes := rateLimitProbe(t, config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}, 2, "key-a")
	if codes[0] != http.StatusOK {
		t.Fatalf("first request: status = %d, want %d", codes[0], http.StatusOK)
	}
	if codes[1] != http.StatusTooManyRequests {
		t.Errorf("second request: status = %d, want %d", codes[1], http.StatusTooManyRequests)
	}
}

func TestRateLimitIsolatesIdentities(t *testing.T) {
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("api_key", c.GetHeader("X-API-Key")) })
	r.Use(RateLimit(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1}))
	r.GET("/probe", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(key string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.Header.Set("X-API-Key", key)
		r.ServeHTTP(w, req)
		return w.Code
	}

	if got := do("key-a"); got != http.StatusOK {
		t.Fatalf("key-a first request: status = %d, want %d", got, http.StatusOK)
	}
	if got := do("key-a"); got != http.StatusTooManyRequests {
		t.Errorf("key-a second request: status = %d, want %d", got, http.StatusTooManyRequests)
	}
	if got := do("key-b"); got != http.StatusOK {
		t.Errorf("key-b first request: status = %d, want %d (separate bucket)", got, http.StatusOK)
	}
}
