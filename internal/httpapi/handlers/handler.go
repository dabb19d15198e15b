package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/gopherchat/internal/chat"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/config"
	"github.com/suPer8Hu/gopherchat/internal/observability"
	"gorm.io/gorm"
)

// JobPublisher hands a queued job to the worker.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

type Handler struct {
	DB      *gorm.DB
	Cfg     config.Config
	ChatSvc *chat.Service
	// Publisher is nil when no broker is configured; async chat is then off.
	Publisher JobPublisher
}

func NewHandler(db *gorm.DB, cfg config.Config, svc *chat.Service, pub JobPublisher) *Handler {
	return &Handler{DB: db, Cfg: cfg, ChatSvc: svc, Publisher: pub}
}

// fail maps a service error onto the response envelope. Client errors are
// not logged; store and model failures are.
func fail(c *gin.Context, err error, what string) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidParam, err.Error())
	case errors.Is(err, chat.ErrSessionNotFound):
		common.Fail(c, http.StatusNotFound, common.CodeNotFound, "session not found")
	case errors.Is(err, chat.ErrUserNotFound):
		common.Fail(c, http.StatusNotFound, common.CodeNotFound, "user not found")
	case errors.Is(err, chat.ErrJobNotFound):
		common.Fail(c, http.StatusNotFound, common.CodeNotFound, "job not found")
	case errors.Is(err, chat.ErrModelTimeout):
		observability.LoggerFromContext(c.Request.Context()).Error(what, "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeModelErr, "model timed out")
	case errors.Is(err, chat.ErrModelUnavailable):
		observability.LoggerFromContext(c.Request.Context()).Error(what, "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeModelErr, "model unavailable")
	default:
		observability.LoggerFromContext(c.Request.Context()).Error(what, "error", err)
		common.Fail(c, http.StatusInternalServerError, common.CodeStoreErr, "internal error")
	}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"message": "pong"})
}

// Health reports whether the database answers.
func (h *Handler) Health(c *gin.Context) {
	sqlDB, err := h.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		observability.LoggerFromContext(c.Request.Context()).Error("health check failed", "error", err)
		common.Fail(c, http.StatusServiceUnavailable, common.CodeStoreErr, "database unavailable")
		return
	}
	common.OK(c, gin.H{"status": "ok", "async": h.Publisher != nil})
}
