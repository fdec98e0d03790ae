package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/saurav61091/e-Prabandhan-sub003/internal/api"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHealth 测试健康检查
func TestHealth(t *testing.T) {
	router := newRouter(t, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"healthy"`)
}

// TestRequestID 测试请求 ID 生成和沿用
func TestRequestID(t *testing.T) {
	router := newRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, w.Header().Get(api.HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(api.HeaderRequestID, "req-123")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get(api.HeaderRequestID))
}

// TestCORS 测试预检请求
func TestCORS(t *testing.T) {
	router := newRouter(t, func(cfg *config.Config) {
		cfg.CORS.AllowedOrigins = []string{"https://portal.example.gov"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/templates", nil)
	req.Header.Set("Origin", "https://portal.example.gov")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://portal.example.gov", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/templates", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

// TestSecurityHeaders 测试安全响应头
func TestSecurityHeaders(t *testing.T) {
	router := newRouter(t, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"), "HSTS is production only")
}

// TestRateLimit 测试按用户限流
func TestRateLimit(t *testing.T) {
	router := newRouter(t, func(cfg *config.Config) {
		cfg.RateLimit.RequestsPerSecond = 1
		cfg.RateLimit.Burst = 2
	})
	c := client{t, router}

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/departments", "alice", nil).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, c.do(http.MethodGet, "/api/v1/departments", "alice", nil).Code)
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/departments", "bob", nil).Code, "limits are per user")
}

// TestMetricsEndpoint 测试指标端点
func TestMetricsEndpoint(t *testing.T) {
	router := newRouter(t, nil)
	c := client{t, router}
	c.do(http.MethodGet, "/api/v1/templates", "alice", nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/templates")
}
