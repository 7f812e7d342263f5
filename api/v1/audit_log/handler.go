package audit_log

import (
	"context"

	"github.com/gin-gonic/gin"

	"proxy_manager/internal/access"
	"proxy_manager/internal/httpx"
	"proxy_manager/internal/model"
)

// Source lists audit records, newest first
type Source interface {
	ListAuditLogs(ctx context.Context, limit int) ([]model.AuditLog, error)
}

// ListRequest represents list audit log request
type ListRequest struct {
	Limit int `form:"limit"`
}

// Handler handles audit log API
type Handler struct {
	src   Source
	authz access.Authorizer
}

// NewHandler creates a new audit log handler
func NewHandler(src Source, authz access.Authorizer) *Handler {
	return &Handler{src: src, authz: authz}
}

// List handles GET /api/v1/audit-log
func (h *Handler) List(c *gin.Context) {
	var req ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	if req.Limit < 1 || req.Limit > 1000 {
		req.Limit = 100
	}

	ctx := c.Request.Context()
	if err := h.authz.Can(ctx, access.Perm(access.ObjectAuditLog, access.ActionList)); err != nil {
		httpx.Error(c, err)
		return
	}
	logs, err := h.src.ListAuditLogs(ctx, req.Limit)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	httpx.OKItems(c, logs, int64(len(logs)), 1, req.Limit)
}
