package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"waffle-chat/internal/models"
)

const (
	// UserEmailKey is the gin context key holding the caller's normalized email.
	UserEmailKey = "userEmail"

	userEmailHeader = "X-User-Email"
)

// Identity resolves the caller from the userEmail query parameter or the
// X-User-Email header. It never aborts; handlers decide whether an
// anonymous caller is acceptable.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.Query("userEmail")
		if email == "" {
			email = c.GetHeader(userEmailHeader)
		}
		c.Set(UserEmailKey, models.NormalizeEmail(email))
		c.Next()
	}
}

// RequireIdentity rejects requests without a resolved email.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserEmail(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing userEmail"})
			return
		}
		c.Next()
	}
}

// UserEmail returns the caller set by Identity, or "".
func UserEmail(c *gin.Context) string {
	return c.GetString(UserEmailKey)
}
