package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"proxy_manager/internal/auth"
	"proxy_manager/internal/httpx"
)

// LoginRequest represents login request body
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents login response data
type LoginResponse struct {
	Token    string   `json:"token"`
	ExpireAt string   `json:"expireAt"`
	User     UserInfo `json:"user"`
}

// UserInfo represents user information in response
type UserInfo struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Authenticator checks credentials and issues tokens
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*auth.LoginResult, error)
}

// LoginHandler handles user login
func LoginHandler(svc Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.FailErr(c, httpx.ErrParamInvalid("invalid request body"))
			return
		}

		res, err := svc.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				// same answer for unknown user and wrong password
				httpx.FailErr(c, httpx.ErrUnauthorized("invalid credentials"))
				return
			}
			httpx.FailErr(c, httpx.ErrInternalError("login failed", err))
			return
		}

		httpx.OK(c, LoginResponse{
			Token:    res.Token,
			ExpireAt: res.ExpiresAt.Format(time.RFC3339),
			User: UserInfo{
				ID:       res.User.ID,
				Username: res.User.Username,
				Role:     res.User.Role,
			},
		})
	}
}
