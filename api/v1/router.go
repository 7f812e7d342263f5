package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"proxy_manager/api/v1/audit_log"
	"proxy_manager/api/v1/auth"
	"proxy_manager/api/v1/certificates"
	"proxy_manager/api/v1/hosts"
	"proxy_manager/api/v1/middleware"
	"proxy_manager/internal/httpx"
)

// Deps collects what the routes are served by
type Deps struct {
	Auth         auth.Authenticator
	Tokens       middleware.TokenParser
	Hosts        *hosts.Handler
	Certificates *certificates.Handler
	AuditLog     *audit_log.Handler
	// Socket is the authenticated Socket.IO endpoint; nil disables it
	Socket http.Handler
}

// SetupRouter sets up the API v1 routes
func SetupRouter(r *gin.Engine, d Deps) {
	if d.Socket != nil {
		r.Any("/socket.io/*any", gin.WrapH(d.Socket))
	}

	v1 := r.Group("/api/v1")
	{
		// Public routes (no authentication required)
		v1.GET("/ping", pingHandler)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", auth.LoginHandler(d.Auth))
		}

		// Protected routes (authentication required)
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired(d.Tokens))
		{
			protected.GET("/me", meHandler)
			d.Hosts.Register(protected)
			d.Certificates.Register(protected)
			protected.GET("/audit-log", d.AuditLog.List)
		}
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}

// meHandler returns current user information
func meHandler(c *gin.Context) {
	uid, _ := c.Get("uid")
	username, _ := c.Get("username")
	role, _ := c.Get("role")

	httpx.OK(c, gin.H{
		"uid":      uid,
		"username": username,
		"role":     role,
	})
}
