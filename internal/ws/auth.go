package ws

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"proxy_manager/internal/access"
	"proxy_manager/internal/auth"
)

// TokenParser validates bearer tokens
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// extractToken extracts JWT token from request
// Priority: 1. token query parameter, 2. Authorization header
func extractToken(r *http.Request) string {
	// Socket.IO client: io("url", { query: { token: "xxx" } })
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
	}
	return ""
}

// WrapWithAuth only lets handshakes through whose token carries permission
// to read the audit log.
func WrapWithAuth(next http.Handler, tokens TokenParser, authz access.Authorizer, logger *logrus.Entry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Socket.IO handshake is a GET request to /socket.io/?EIO=3&transport=polling
		if r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/socket.io/") {
			entry := logger.WithField("remote", r.RemoteAddr)

			token := extractToken(r)
			if token == "" {
				entry.Warn("handshake rejected: no token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := tokens.Parse(token)
			if err != nil {
				entry.WithError(err).Warn("handshake rejected: invalid token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := access.WithPrincipal(r.Context(), claims.Principal())
			if err := authz.Can(ctx, access.Perm(access.ObjectAuditLog, access.ActionList)); err != nil {
				entry.WithField("username", claims.Username).Warn("handshake rejected: forbidden")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			r = r.WithContext(ctx)
		}

		next.ServeHTTP(w, r)
	})
}
