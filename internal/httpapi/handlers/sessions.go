package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/gopherchat/internal/common"
)

type createSessionReq struct {
	UserID   uint64 `json:"user_id" binding:"required"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidJSON, "user_id required")
		return
	}

	sess, err := h.ChatSvc.CreateSession(c.Request.Context(), req.UserID, req.Provider, req.Model)
	if err != nil {
		fail(c, err, "create session")
		return
	}
	common.Created(c, gin.H{
		"message":       "Session created successfully",
		"session_token": sess.Token,
		"session":       sess,
	})
}

func (h *Handler) ListUserSessions(c *gin.Context) {
	id, ok := userIDParam(c)
	if !ok {
		return
	}
	sessions, err := h.ChatSvc.ListSessions(c.Request.Context(), id)
	if err != nil {
		fail(c, err, "list sessions")
		return
	}
	common.OK(c, gin.H{"sessions": sessions})
}

func (h *Handler) GetSession(c *gin.Context) {
	sess, err := h.ChatSvc.GetSession(c.Request.Context(), c.Param("token"))
	if err != nil {
		fail(c, err, "get session")
		return
	}
	common.OK(c, sess)
}

func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.ChatSvc.DeleteSession(c.Request.Context(), c.Param("token")); err != nil {
		fail(c, err, "delete session")
		return
	}
	common.OK(c, gin.H{"message": "Session deleted successfully"})
}

type nameSessionReq struct {
	Topic string `json:"topic" binding:"required"`
}

// GenerateSessionName asks the model for a short label and stores it.
func (h *Handler) GenerateSessionName(c *gin.Context) {
	var req nameSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidJSON, "topic required")
		return
	}

	name, err := h.ChatSvc.NameSession(c.Request.Context(), c.Param("token"), req.Topic)
	if err != nil {
		fail(c, err, "generate session name")
		return
	}
	common.OK(c, gin.H{
		"message":      "Session name generated and stored successfully",
		"session_name": name,
	})
}

type renameSessionReq struct {
	Name string `json:"session_short_name" binding:"required"`
}

func (h *Handler) UpdateSessionName(c *gin.Context) {
	var req renameSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidJSON, "session_short_name required")
		return
	}

	if err := h.ChatSvc.RenameSession(c.Request.Context(), c.Param("token"), req.Name); err != nil {
		fail(c, err, "update session name")
		return
	}
	common.OK(c, gin.H{
		"message":      "Session name updated successfully",
		"session_name": req.Name,
	})
}
