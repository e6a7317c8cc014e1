package middlewares

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/warehouse_backend/models"
)

// RequireSession rejects anonymous requests.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, _, ok := CurrentUser(c.Request.Context()); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func RequireRole(allowed func(models.UserRole) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, role, ok := CurrentUser(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !allowed(role) {
			denied := models.NewForbiddenError(fmt.Sprintf("role %s may not perform this action", role))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": denied.Message})
			return
		}
		c.Next()
	}
}

func RequireManagerOrAdmin() gin.HandlerFunc {
	return RequireRole(models.UserRole.CanResolveIssues)
}

func RequireAdmin() gin.HandlerFunc {
	return RequireRole(models.UserRole.IsAdmin)
}
