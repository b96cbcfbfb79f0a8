package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"livesession/pkg/config"

	"github.com/gin-gonic/gin"
)

func doGet(router http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.1:5555"
	router.ServeHTTP(w, req)
	return w
}

// Test that when rate limiting is disabled, middleware lets all requests through.
func TestHTTPRateLimitMiddleware_Disabled_AllowsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = false

	router := gin.New()
	router.Use(NewHTTPRateLimitMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 5; i++ {
		if w := doGet(router, "/test"); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i, w.Code)
		}
	}
}

// Test basic per-IP rate limiting behaviour.
func TestHTTPRateLimitMiddleware_Enabled_RateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.RequestsPerSecond = 1
	cfg.RateLimiting.Burst = 1
	cfg.RateLimiting.MaxConcurrent = 0

	router := gin.New()
	router.Use(NewHTTPRateLimitMiddleware(cfg))
	router.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	if w := doGet(router, "/test"); w.Code != http.StatusOK {
		t.Fatalf("expected status 200 for first request, got %d", w.Code)
	}

	w := doGet(router, "/test")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 for second request, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("expected a Retry-After header")
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["error"] != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("expected RATE_LIMIT_EXCEEDED, got %v", body["error"])
	}
}

func TestHTTPRateLimitMiddleware_MaxConcurrent(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.RequestsPerSecond = 100
	cfg.RateLimiting.Burst = 100
	cfg.RateLimiting.MaxConcurrent = 1

	release := make(chan struct{})
	entered := make(chan struct{})

	router := gin.New()
	router.Use(NewHTTPRateLimitMiddleware(cfg))
	router.GET("/slow", func(c *gin.Context) {
		close(entered)
		<-release
		c.Status(http.StatusOK)
	})
	router.GET("/fast", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	done := make(chan int)
	go func() {
		done <- doGet(router, "/slow").Code
	}()
	<-entered

	if w := doGet(router, "/fast"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 while the slot is taken, got %d", w.Code)
	}

	close(release)
	if code := <-done; code != http.StatusOK {
		t.Errorf("expected slow request to succeed, got %d", code)
	}
	if w := doGet(router, "/fast"); w.Code != http.StatusOK {
		t.Errorf("expected 200 after the slot is free, got %d", w.Code)
	}
}
