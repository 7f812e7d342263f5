package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"proxy_manager/internal/apperr"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without internal err",
			err:  NewAppError(http.StatusBadRequest, CodeParamMissing, "param missing", nil),
			want: "code=2001, message=param missing",
		},
		{
			name: "error with internal err",
			err:  NewAppError(http.StatusInternalServerError, CodeInternalError, "internal error", errors.New("db connection failed")),
			want: "code=5001, message=internal error, err=db connection failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFromError(t *testing.T) {
	cause := errors.New("nginx: [emerg] unknown directive")

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
		wantMsg    string
		keepsCause bool
	}{
		{
			name:       "validation",
			err:        apperr.Validation("%s is already in use", "a.example.com"),
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeValidation,
			wantMsg:    "a.example.com is already in use",
		},
		{
			name:       "wrapped validation",
			err:        fmt.Errorf("create host: %w", apperr.Validation("Domain names are required")),
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeValidation,
			wantMsg:    "create host: Domain names are required",
		},
		{
			name:       "not found",
			err:        apperr.NotFound("Certificate #%d not found", 7),
			wantStatus: http.StatusNotFound,
			wantCode:   CodeNotFound,
			wantMsg:    "Certificate #7 not found",
		},
		{
			name:       "permission",
			err:        apperr.Permission("Permission Denied"),
			wantStatus: http.StatusForbidden,
			wantCode:   CodeForbidden,
			wantMsg:    "Permission Denied",
		},
		{
			name:       "configuration",
			err:        apperr.Configuration(cause, "render proxy host #1"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeConfiguration,
			wantMsg:    "render proxy host #1",
			keepsCause: true,
		},
		{
			name:       "challenge",
			err:        apperr.Challenge(cause, "certbot request failed"),
			wantStatus: http.StatusBadGateway,
			wantCode:   CodeChallenge,
			wantMsg:    "certbot request failed",
			keepsCause: true,
		},
		{
			name:       "plain error",
			err:        cause,
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeInternalError,
			wantMsg:    "internal error",
			keepsCause: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromError(tt.err)
			if got.HTTPStatus != tt.wantStatus {
				t.Errorf("HTTPStatus = %d, want %d", got.HTTPStatus, tt.wantStatus)
			}
			if got.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", got.Message, tt.wantMsg)
			}
			if tt.keepsCause && !errors.Is(got.Err, cause) {
				t.Errorf("Expected cause to be preserved for logging")
			}
		})
	}
}

func TestFromError_PassesAppErrorThrough(t *testing.T) {
	orig := ErrInvalidToken("")
	if got := FromError(fmt.Errorf("auth: %w", orig)); got != orig {
		t.Errorf("Expected the wrapped AppError to be returned as is")
	}
}

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		code int
		min  int
		max  int
	}{
		{"CodeSuccess", CodeSuccess, 0, 0},
		{"CodeUnauthorized", CodeUnauthorized, 1000, 1099},
		{"CodeInvalidToken", CodeInvalidToken, 1000, 1099},
		{"CodeTokenExpired", CodeTokenExpired, 1000, 1099},
		{"CodeForbidden", CodeForbidden, 1000, 1099},
		{"CodeParamMissing", CodeParamMissing, 2000, 2099},
		{"CodeParamInvalid", CodeParamInvalid, 2000, 2099},
		{"CodeValidation", CodeValidation, 2000, 2099},
		{"CodeNotFound", CodeNotFound, 3000, 3999},
		{"CodeConfiguration", CodeConfiguration, 3000, 3999},
		{"CodeChallenge", CodeChallenge, 3000, 3999},
		{"CodeInternalError", CodeInternalError, 5000, 5999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.code < tt.min || tt.code > tt.max {
				t.Errorf("%s = %d, expected to be in range [%d, %d]", tt.name, tt.code, tt.min, tt.max)
			}
		})
	}
}
