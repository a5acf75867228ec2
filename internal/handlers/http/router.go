package http

import (
	"avatarcast/internal/infrastructure/middleware"
	"avatarcast/pkg/config"
	"avatarcast/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	WebRTC   *WebRTCHandler
	Chat     *ChatHandler
	Sessions *SessionHandler
	System   *SystemHandler
}

// NewRouter mounts probes and /ws outside the rate limiter and everything
// else under /api/v1.
func NewRouter(cfg *config.Config, h Handlers, log *zap.Logger) *gin.Engine {
	router := gin.New()
	sugar := log.Sugar()

	router.Use(
		middleware.RecoveryMiddleware(sugar),
		middleware.RequestLoggerMiddleware(logger.NewContextLogger(log)),
		middleware.TracingMiddleware(),
		middleware.ErrorHandlerMiddleware(sugar),
	)

	h.System.SetupRoutes(router)

	api := router.Group("/api/v1", middleware.NewHTTPRateLimitMiddleware(cfg))
	h.WebRTC.SetupRoutes(api)
	h.Chat.SetupRoutes(api)
	h.Sessions.SetupRoutes(api)

	return router
}
