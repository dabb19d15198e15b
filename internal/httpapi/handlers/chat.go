package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/observability"
)

const maxIdempotencyKeyLen = 128

type sendMessageReq struct {
	SessionToken string `json:"session_token" binding:"required"`
	Message      string `json:"message" binding:"required"`
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidJSON, "session_token and message required")
		return
	}

	res, err := h.ChatSvc.SendMessage(c.Request.Context(), req.SessionToken, req.Message)
	if err != nil {
		fail(c, err, "send message")
		return
	}
	common.OK(c, res)
}

// GetChatHistory returns the whole log of a session, oldest first.
func (h *Handler) GetChatHistory(c *gin.Context) {
	token := c.Param("token")
	msgs, err := h.ChatSvc.History(c.Request.Context(), token)
	if err != nil {
		fail(c, err, "get chat history")
		return
	}
	common.OK(c, gin.H{
		"session_token": token,
		"messages":      msgs,
	})
}

// ListChatMessages pages through a session newest first.
func (h *Handler) ListChatMessages(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	var beforeID uint64
	if s := c.Query("before_id"); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			common.Fail(c, http.StatusBadRequest, common.CodeInvalidParam, "invalid before_id")
			return
		}
		beforeID = n
	}

	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), c.Param("token"), limit, beforeID)
	if err != nil {
		fail(c, err, "list messages")
		return
	}

	var nextBeforeID uint64
	if len(msgs) > 0 {
		nextBeforeID = msgs[len(msgs)-1].ID
	}
	common.OK(c, gin.H{
		"messages":       msgs,
		"next_before_id": nextBeforeID,
	})
}

// SendChatMessageStream runs one turn and streams the reply as SSE events:
// chunk, ping (every 15s), then exactly one of done or error.
func (h *Handler) SendChatMessageStream(c *gin.Context) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidJSON, "session_token and message required")
		return
	}
	ctx := c.Request.Context()

	// answer unknown sessions with a plain 404 before switching to SSE
	if _, err := h.ChatSvc.GetSession(ctx, req.SessionToken); err != nil {
		fail(c, err, "stream message")
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		common.Fail(c, http.StatusInternalServerError, common.CodeStoreErr, "streaming not supported")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)

	writeEvent := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, b)
		flusher.Flush()
	}

	chunks, results, errs := h.ChatSvc.SendMessageStream(ctx, req.SessionToken, req.Message)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for chunks != nil {
		select {
		case delta, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			writeEvent("chunk", gin.H{"type": "chunk", "delta": delta})
		case <-ticker.C:
			writeEvent("ping", gin.H{"type": "ping", "ts": time.Now().Unix()})
		case <-ctx.Done():
			return
		}
	}

	select {
	case res := <-results:
		writeEvent("done", gin.H{
			"type":       "done",
			"message_id": res.MessageID,
			"persisted":  res.Persisted,
		})
	case err := <-errs:
		observability.LoggerFromContext(ctx).Error("stream message", "session", req.SessionToken, "error", err)
		writeEvent("error", gin.H{"type": "error", "message": streamErrMessage(err)})
	}
}

func streamErrMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return err.Error()
	case errors.Is(err, chat.ErrSessionNotFound):
		return "session not found"
	case errors.Is(err, chat.ErrModelTimeout):
		return "model timed out"
	case errors.Is(err, chat.ErrModelUnavailable):
		return "model unavailable"
	default:
		return "internal error"
	}
}

// SendChatMessageAsync records a job for the worker. With an Idempotency-Key
// header, a retried request returns the original job. A job that is still
// queued is published again; the worker claims a queued job only once.
func (h *Handler) SendChatMessageAsync(c *gin.Context) {
	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidJSON, "session_token and message required")
		return
	}

	key := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	if len(key) > maxIdempotencyKeyLen {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidParam, "idempotency key too long")
		return
	}
	var keyPtr *string
	if key != "" {
		keyPtr = &key
	}

	ctx := c.Request.Context()
	job, created, err := h.ChatSvc.EnqueueTurn(ctx, req.SessionToken, req.Message, keyPtr)
	if err != nil {
		fail(c, err, "enqueue message")
		return
	}

	if job.Status == chat.JobQueued {
		if err := h.Publisher.PublishJob(ctx, job.ID); err != nil {
			observability.LoggerFromContext(ctx).Error("publish job", "job_id", job.ID, "created", created, "error", err)
			common.Fail(c, http.StatusInternalServerError, common.CodeQueueErr, "enqueue failed")
			return
		}
	}

	c.JSON(http.StatusAccepted, gin.H{
		"code":    common.CodeOK,
		"message": "ok",
		"data":    gin.H{"job_id": job.ID, "status": job.Status, "created": created},
	})
}

func (h *Handler) GetChatJob(c *gin.Context) {
	j, err := h.ChatSvc.GetJob(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		fail(c, err, "get job")
		return
	}
	common.OK(c, gin.H{"job": j})
}
