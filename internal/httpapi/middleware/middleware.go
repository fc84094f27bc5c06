package middleware

import (
	"log"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bcblevins/storyteller-stream-relay/internal/auth"
	"github.com/bcblevins/storyteller-stream-relay/internal/common"
)

const (
	UserIDKey    = "user_id"
	RequestIDKey = "request_id"
)

// AuthRequired verifies the bearer token and stashes the opaque user id.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" || !strings.HasPrefix(strings.ToLower(h), "bearer ") {
			common.Fail(c, http.StatusUnauthorized, 40101, "missing bearer token")
			c.Abort()
			return
		}
		userID, err := auth.VerifyJWT(h[len("bearer "):], secret)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid token")
			c.Abort()
			return
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(RequestIDKey, rid)
		c.Header("X-Request-ID", rid)
		c.Next()
	}
}

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("panic recovered: %v\n%s", r, debug.Stack())
				if !c.Writer.Written() {
					common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
