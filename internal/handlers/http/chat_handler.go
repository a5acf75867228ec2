package http

import (
	"net/http"
	"strings"

	"avatarcast/internal/core/domain"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chat ChatController
}

func NewChatHandler(chat ChatController) *ChatHandler {
	return &ChatHandler{chat: chat}
}

func (h *ChatHandler) SetupRoutes(api *gin.RouterGroup) {
	chat := api.Group("/chat")
	{
		chat.GET("/platforms", h.Platforms)
		chat.POST("/connect", h.Connect)
		chat.POST("/disconnect", h.Disconnect)
		chat.GET("/comments", h.Comments)
		chat.GET("/comments/important", h.ImportantComments)
		chat.GET("/status", h.Status)
	}
}

func (h *ChatHandler) Platforms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"platforms": h.chat.ListPlatforms()})
}

// Connect blocks for at most the platform's grace period. A live stream that
// did not come up in time is reported as connected=false, not as an error.
func (h *ChatHandler) Connect(c *gin.Context) {
	var req struct {
		Platform   string `json:"platform" binding:"required"`
		Identifier string `json:"identifier" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	platform := domain.Platform(strings.ToLower(strings.TrimSpace(req.Platform)))
	connected, err := h.chat.Connect(c.Request.Context(), platform, req.Identifier)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"connected":  connected,
		"platform":   platform,
		"identifier": req.Identifier,
	})
}

func (h *ChatHandler) Disconnect(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"disconnected": h.chat.Disconnect()})
}

func (h *ChatHandler) Comments(c *gin.Context) {
	msgs := h.chat.DrainComments()
	c.JSON(http.StatusOK, gin.H{"comments": msgs, "count": len(msgs)})
}

func (h *ChatHandler) ImportantComments(c *gin.Context) {
	msgs := h.chat.ImportantComments()
	c.JSON(http.StatusOK, gin.H{"comments": msgs, "count": len(msgs)})
}

func (h *ChatHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected": h.chat.IsConnected(),
		"platform":  h.chat.CurrentPlatform(),
	})
}
