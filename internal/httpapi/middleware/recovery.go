package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/gopherchat/internal/common"
	"github.com/suPer8Hu/gopherchat/internal/observability"
)

// Recovery turns a handler panic into a 500 envelope and logs the stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				observability.LoggerFromContext(c.Request.Context()).Error("panic recovered",
					"panic", r,
					"path", c.FullPath(),
					"stack", string(debug.Stack()),
				)
				if !c.Writer.Written() {
					common.Abort(c, http.StatusInternalServerError, common.CodeStoreErr, "internal error")
					return
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
