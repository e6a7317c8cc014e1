package middlewares

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/warehouse_backend/config"
	"github.com/mmdatafocus/warehouse_backend/models"
	"github.com/mmdatafocus/warehouse_backend/utils"
	"github.com/sirupsen/logrus"
)

const TokenCookieName = "token"

// UserLookup resolves the account behind a token so role changes apply without re-login.
type UserLookup interface {
	GetUser(ctx context.Context, id int) (*models.User, error)
}

// BearerToken reads the token from the Authorization header, the legacy "token" header, or the cookie.
func BearerToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		const bearer = "Bearer "
		if len(auth) > len(bearer) && strings.EqualFold(auth[:len(bearer)], bearer) {
			return strings.TrimSpace(auth[len(bearer):])
		}
		return ""
	}
	if token := c.GetHeader("token"); token != "" {
		return token
	}
	token, _ := c.Cookie(TokenCookieName)
	return token
}

// AuthMiddleware attaches the caller to the request context. Requests without a usable
// token (missing, bad, expired, revoked or for a deleted user) pass through anonymously;
// RequireSession rejects them where a session is needed.
func AuthMiddleware(users UserLookup) gin.HandlerFunc {
	logger := config.GetLogger()
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.Next()
			return
		}
		anonymous := func(reason string) {
			logger.WithFields(logrus.Fields{"field": "AuthMiddleware", "path": c.FullPath()}).Debug("ignoring token: " + reason)
			c.Next()
		}

		claims, err := utils.ParseClaims(token)
		if err != nil {
			anonymous(err.Error())
			return
		}
		revoked, err := utils.IsTokenRevoked(token)
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "AuthMiddleware"}).Warn("revocation check failed: " + err.Error())
		}
		if revoked {
			anonymous("revoked")
			return
		}

		ctx := c.Request.Context()
		user, err := users.GetUser(ctx, claims.ID)
		if err != nil {
			anonymous(err.Error())
			return
		}

		ctx = utils.SetTokenInContext(ctx, token)
		ctx = utils.SetUserIdInContext(ctx, user.ID)
		ctx = utils.SetUsernameInContext(ctx, user.Username)
		ctx = utils.SetRoleInContext(ctx, string(user.Role))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CurrentUser returns the authenticated caller's id and role.
func CurrentUser(ctx context.Context) (int, models.UserRole, bool) {
	id, ok := utils.GetUserIdFromContext(ctx)
	if !ok {
		return 0, "", false
	}
	role, _ := utils.GetRoleFromContext(ctx)
	return id, models.UserRole(role), true
}
