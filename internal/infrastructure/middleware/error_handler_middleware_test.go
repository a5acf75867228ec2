package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"avatarcast/internal/core/domain"
	"avatarcast/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func errorRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)
	router := gin.New()
	router.Use(
		RecoveryMiddleware(log.Sugar()),
		RequestLoggerMiddleware(logger.NewContextLogger(log)),
		TracingMiddleware(),
		ErrorHandlerMiddleware(log.Sugar()),
	)
	router.GET("/conflict", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("start: %w", domain.ErrGenerationInProgress))
	})
	router.GET("/missing/:session_id", func(c *gin.Context) {
		_ = c.Error(domain.ErrSessionNotFound)
	})
	router.GET("/boom", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("disk full"))
	})
	router.GET("/panic", func(c *gin.Context) {
		panic("unreachable state")
	})
	router.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func do(router http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestErrorHandler_MapsDomainErrors(t *testing.T) {
	router := errorRouter(t)

	cases := []struct {
		path   string
		status int
		code   string
	}{
		{"/conflict", http.StatusConflict, "CONFLICT"},
		{"/missing/abc", http.StatusNotFound, "NOT_FOUND"},
		{"/boom", http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"/panic", http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		w := do(router, tc.path)
		require.Equal(t, tc.status, w.Code, tc.path)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tc.code, body["error"], tc.path)
	}
}

func TestErrorHandler_HidesInternalDetail(t *testing.T) {
	w := do(errorRouter(t), "/boom")
	assert.NotContains(t, w.Body.String(), "disk full")
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	router := errorRouter(t)

	w := do(router, "/ok")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Request-ID", "req-1")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
}
