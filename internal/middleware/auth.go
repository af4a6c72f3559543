package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Bache94/ListeByBache/internal/config"
	"github.com/gin-gonic/gin"
)

const (
	userIDKey    = "userID"
	userIDHeader = "X-User-ID"
	anonymous    = "default"
)

func UserIDFromContext(c *gin.Context) string {
	if v, ok := c.Get(userIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Auth identifies the record store caller. With a configured token every
// request must carry it as a bearer token and name its user in X-User-ID.
// Without one, callers that send no user share the "default" account.
func Auth(cfg config.ServerConfig) gin.HandlerFunc {
	want := strings.TrimSpace(cfg.AuthToken)
	return func(c *gin.Context) {
		if want != "" {
			got, ok := bearerToken(c.GetHeader("Authorization"))
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
		}

		userID := strings.TrimSpace(c.GetHeader(userIDHeader))
		switch {
		case userID != "":
		case want != "":
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "x-user-id required"})
			return
		default:
			userID = anonymous
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func bearerToken(h string) (string, bool) {
	h = strings.TrimSpace(h)
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	return strings.TrimSpace(h[7:]), true
}
