package http

import (
	"net/http"

	"avatarcast/internal/core/domain"
	"avatarcast/pkg/errors"

	"github.com/gin-gonic/gin"
)

type WebRTCHandler struct {
	realtime RealtimeController
}

func NewWebRTCHandler(realtime RealtimeController) *WebRTCHandler {
	return &WebRTCHandler{realtime: realtime}
}

func (h *WebRTCHandler) SetupRoutes(api *gin.RouterGroup) {
	rtc := api.Group("/webrtc")
	{
		rtc.POST("/realtime/start", h.StartRealtime)
		rtc.POST("/offer", h.Offer)
		rtc.GET("/status/:session_id", h.Status)
		rtc.POST("/close/:session_id", h.Close)
		rtc.POST("/generation", h.StartGeneration)
	}
}

func (h *WebRTCHandler) StartRealtime(c *gin.Context) {
	sessionID := c.Query("session_id")
	if sessionID == "" {
		_ = c.Error(errors.NewInvalidInputError("session_id is required"))
		return
	}
	fps, ok := queryInt(c, "fps", 0)
	if !ok {
		return
	}

	res, err := h.realtime.StartRealtime(c.Request.Context(), sessionID, fps)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *WebRTCHandler) Offer(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id"`
		SDP       string `json:"sdp"`
		Type      string `json:"type"`
		FPS       int    `json:"fps"`
	}
	if !bindJSON(c, &req) {
		return
	}

	answer, err := h.realtime.Negotiate(c.Request.Context(), req.SessionID,
		domain.Offer{SDP: req.SDP, Type: req.Type}, req.FPS)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

func (h *WebRTCHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.realtime.Status(c.Param("session_id")))
}

func (h *WebRTCHandler) Close(c *gin.Context) {
	sessionID := c.Param("session_id")
	h.realtime.Close(sessionID)
	c.JSON(http.StatusOK, gin.H{"status": "closed", "session_id": sessionID})
}

func (h *WebRTCHandler) StartGeneration(c *gin.Context) {
	var req struct {
		SessionID       string `json:"session_id" binding:"required"`
		StreamProductID int64  `json:"stream_product_id" binding:"required,min=1"`
	}
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.realtime.StartGeneration(c.Request.Context(), req.SessionID, req.StreamProductID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, res)
}
