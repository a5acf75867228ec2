package http

import (
	"net/http"

	"avatarcast/internal/core/services"

	"github.com/gin-gonic/gin"
)

// SessionHandler serves scheduled live sessions and their comments.
type SessionHandler struct {
	sessions LiveSessionController
	comments CommentController
}

func NewSessionHandler(sessions LiveSessionController, comments CommentController) *SessionHandler {
	return &SessionHandler{sessions: sessions, comments: comments}
}

func (h *SessionHandler) SetupRoutes(api *gin.RouterGroup) {
	s := api.Group("/sessions/:id")
	{
		s.POST("/prepare", h.Prepare)
		s.POST("/start", h.Start)
		s.POST("/stop", h.Stop)
		s.POST("/comments", h.CreateComment)
		s.GET("/comments", h.ListComments)
		s.GET("/questions", h.UnansweredQuestions)
		s.POST("/answer-question/:comment_id", h.AnswerQuestion)
	}
}

func (h *SessionHandler) Prepare(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.sessions.PrepareSession(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Session preparation started", "session_id": id})
}

func (h *SessionHandler) Start(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.sessions.StartSession(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session started", "session_id": id})
}

func (h *SessionHandler) Stop(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.sessions.StopSession(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Session stopped", "session_id": id})
}

func (h *SessionHandler) CreateComment(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req services.CreateCommentRequest
	if !bindJSON(c, &req) {
		return
	}

	comment, err := h.comments.Create(c.Request.Context(), id, req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *SessionHandler) ListComments(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	skip, ok := queryInt(c, "skip", 0)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 100)
	if !ok {
		return
	}

	comments, err := h.comments.List(c.Request.Context(), id, skip, limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, comments)
}

func (h *SessionHandler) UnansweredQuestions(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	questions, err := h.comments.UnansweredQuestions(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, questions)
}

func (h *SessionHandler) AnswerQuestion(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	commentID, ok := pathID(c, "comment_id")
	if !ok {
		return
	}

	realtimeID := c.Query("realtime_session_id")
	if err := h.sessions.AnswerQuestion(c.Request.Context(), id, commentID, realtimeID); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"message":    "Question answer generation started",
		"session_id": id,
		"comment_id": commentID,
	})
}
