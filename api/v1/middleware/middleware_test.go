package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxy_manager/internal/access"
	"proxy_manager/internal/auth"
	"proxy_manager/internal/httpx"
)

func newRouter(t *testing.T, tokens *auth.Tokens) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	r := gin.New()
	r.Use(RequestLogger(logrus.NewEntry(logger)))
	r.GET("/me", AuthRequired(tokens), func(c *gin.Context) {
		p, _ := access.FromContext(c.Request.Context())
		httpx.OK(c, gin.H{"uid": p.UserID, "role": p.Role})
	})
	return r
}

func TestAuthRequired(t *testing.T) {
	tokens, err := auth.NewTokens("secret", "proxy_manager", time.Hour)
	require.NoError(t, err)
	valid, _, err := tokens.Generate(3, "alice", "user")
	require.NoError(t, err)
	system, _, err := tokens.Generate(0, "system", "system")
	require.NoError(t, err)

	tests := []struct {
		name     string
		header   string
		wantHTTP int
		wantCode int
	}{
		{"missing header", "", http.StatusUnauthorized, httpx.CodeUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, httpx.CodeUnauthorized},
		{"invalid token", "Bearer abc", http.StatusUnauthorized, httpx.CodeInvalidToken},
		{"system role", "Bearer " + system, http.StatusUnauthorized, httpx.CodeInvalidToken},
		{"valid", "Bearer " + valid, http.StatusOK, httpx.CodeSuccess},
	}

	r := newRouter(t, tokens)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantHTTP, w.Code)
			assert.Contains(t, w.Body.String(), `"code":`)
			if tt.wantCode == httpx.CodeSuccess {
				assert.Contains(t, w.Body.String(), `"role":"user"`)
			}
		})
	}
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	tokens, err := auth.NewTokens("secret", "proxy_manager", time.Hour)
	require.NoError(t, err)
	r := newRouter(t, tokens)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}
