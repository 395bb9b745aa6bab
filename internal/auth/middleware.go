package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// GinAuth returns a Gin middleware that requires a valid bearer credential
// (JWT or API key) on every request. A nil Service disables auth entirely.
func GinAuth(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s == nil {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}

		if err := s.Authorize(parts[1]); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			c.Abort()
			return
		}

		c.Next()
	}
}
