package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/gopherchat/internal/httpapi/middleware"
)

func NewRouter(h *handlers.Handler) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)
	r.GET("/health", h.Health)

	// users
	r.POST("/users", h.CreateUser)
	r.GET("/users", h.ListUsers)
	r.GET("/users/:id", h.GetUserByID)
	r.POST("/users/validate", h.ValidateUser)
	r.PATCH("/users/:id/password", h.UpdatePassword)
	r.GET("/users/:id/sessions", h.ListUserSessions)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(h.Cfg.JWTSecret))
	authGroup.GET("/me", h.Me)

	// sessions
	r.POST("/sessions", h.CreateSession)
	r.GET("/sessions/:token", h.GetSession)
	r.DELETE("/sessions/:token", h.DeleteSession)
	r.POST("/sessions/:token/name", h.GenerateSessionName)
	r.PATCH("/sessions/:token/name", h.UpdateSessionName)

	// chat
	r.POST("/chat", h.SendChatMessage)
	r.POST("/chat/stream", h.SendChatMessageStream)
	r.GET("/chat/:token", h.GetChatHistory)
	r.GET("/chat/:token/messages", h.ListChatMessages)
	if h.Publisher != nil {
		r.POST("/chat/async", h.SendChatMessageAsync)
	}
	r.GET("/chat/jobs/:job_id", h.GetChatJob)

	return r
}
