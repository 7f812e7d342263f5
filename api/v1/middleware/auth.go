package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"proxy_manager/internal/access"
	"proxy_manager/internal/auth"
	"proxy_manager/internal/httpx"
)

// TokenParser validates bearer tokens
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// AuthRequired is a middleware that validates JWT token and attaches the
// caller to the request context for authorization checks.
func AuthRequired(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			httpx.FailErr(c, httpx.ErrUnauthorized("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httpx.FailErr(c, httpx.ErrUnauthorized("invalid authorization header format"))
			c.Abort()
			return
		}

		claims, err := tokens.Parse(parts[1])
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				httpx.FailErr(c, httpx.ErrTokenExpired("token expired"))
			} else {
				httpx.FailErr(c, httpx.ErrInvalidToken("invalid token"))
			}
			c.Abort()
			return
		}

		// the system role belongs to background jobs only
		principal := claims.Principal()
		if principal.Role == access.RoleSystem {
			httpx.FailErr(c, httpx.ErrInvalidToken("invalid token"))
			c.Abort()
			return
		}

		c.Set("uid", claims.UID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)
		c.Request = c.Request.WithContext(access.WithPrincipal(c.Request.Context(), principal))

		c.Next()
	}
}
