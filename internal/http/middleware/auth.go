package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vroymv/AfroLingo-sub000/internal/auth"
)

// userIDKey is where Authenticate stores the verified caller id.
const userIDKey = "userID"

// Authenticate verifies the bearer credential and stores the caller id in
// the Gin context. Missing or invalid credentials abort with 401; there is
// no anonymous fallback.
func Authenticate(v auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerFromRequest(c.Request)
		if token == "" {
			unauthorized(c, "missing bearer token")
			return
		}
		uid, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			LoggerFrom(c).Debug().Err(err).Msg("bearer token rejected")
			unauthorized(c, "invalid bearer token")
			return
		}
		c.Set(userIDKey, uid)
		c.Next()
	}
}

// UserID returns the id stored by Authenticate, or "".
func UserID(c *gin.Context) string {
	v, _ := c.Get(userIDKey)
	return asString(v)
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="api"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": GetRequestID(c),
		"code":       "unauthorized",
		"message":    msg,
	})
}
