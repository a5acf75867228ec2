package http

import (
	"context"
	"net/http"
	"time"

	"avatarcast/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
)

type ReadinessChecker interface {
	CheckAll(ctx context.Context) monitoring.HealthStatus
}

// Counter is anything that reports a live population (hub connections, transport sessions).
type Counter interface {
	Count() int
}

// SystemHandler serves probes, metrics and the viewer event channel.
type SystemHandler struct {
	readiness   ReadinessChecker
	connections Counter
	sessions    Counter
	metrics     http.Handler
	events      http.HandlerFunc
	outputsDir  string
	started     time.Time
}

func NewSystemHandler(
	readiness ReadinessChecker,
	connections, sessions Counter,
	metrics http.Handler,
	events http.HandlerFunc,
	outputsDir string,
) *SystemHandler {
	return &SystemHandler{
		readiness:   readiness,
		connections: connections,
		sessions:    sessions,
		metrics:     metrics,
		events:      events,
		outputsDir:  outputsDir,
		started:     time.Now(),
	}
}

func (h *SystemHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics))
	}
	if h.events != nil {
		router.GET("/ws", gin.WrapF(h.events))
	}
	if h.outputsDir != "" {
		router.Static("/outputs", h.outputsDir)
	}
}

func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"uptime":      time.Since(h.started).Round(time.Second).String(),
		"connections": h.connections.Count(),
		"sessions":    h.sessions.Count(),
	})
}

func (h *SystemHandler) Ready(c *gin.Context) {
	status := h.readiness.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
