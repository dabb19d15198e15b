package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/gopherchat/internal/auth"
	"github.com/suPer8Hu/gopherchat/internal/common"
)

const UserIDKey = "user_id"

// AuthRequired accepts "Authorization: Bearer <jwt>" and stores the user id
// under UserIDKey.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(h, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			common.Abort(c, http.StatusUnauthorized, common.CodeUnauthorized, "missing bearer token")
			return
		}

		claims, err := auth.ParseJWT(strings.TrimSpace(token), secret)
		if err != nil {
			common.Abort(c, http.StatusUnauthorized, common.CodeUnauthorized, "invalid token")
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

func UserID(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok
}
