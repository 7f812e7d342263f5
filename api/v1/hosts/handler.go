package hosts

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"proxy_manager/internal/conflict"
	"proxy_manager/internal/hosts"
	"proxy_manager/internal/httpx"
	"proxy_manager/internal/model"
	"proxy_manager/internal/store"
)

// Service is the host lifecycle the handler drives
type Service interface {
	List(ctx context.Context, f store.HostFilter) ([]model.Host, int64, error)
	Get(ctx context.Context, t model.HostType, id int) (*model.Host, error)
	Create(ctx context.Context, t model.HostType, in hosts.Input) (*model.Host, error)
	Update(ctx context.Context, t model.HostType, id int, in hosts.Input) (*model.Host, error)
	Delete(ctx context.Context, t model.HostType, id int) error
	Enable(ctx context.Context, t model.HostType, id int) (*model.Host, error)
	Disable(ctx context.Context, t model.HostType, id int) (*model.Host, error)
}

// HostnameChecker answers whether a hostname is claimed
type HostnameChecker interface {
	IsHostnameTaken(ctx context.Context, hostname string, exclude *model.HostRef) (conflict.HostnameCheck, error)
}

// ListRequest represents list hosts request
type ListRequest struct {
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
	Search   string `form:"search"`
}

// UpdateRequest represents update host request
type UpdateRequest struct {
	ID int `json:"id" binding:"required"`
	hosts.Input
}

// IDRequest identifies a host for delete/enable/disable
type IDRequest struct {
	ID int `json:"id" binding:"required"`
}

// CheckRequest represents hostname check request
type CheckRequest struct {
	Hostname string `form:"hostname" binding:"required"`
	Type     string `form:"type"`
	ID       int    `form:"id"`
}

// Handler handles host API for every host variant
type Handler struct {
	svc     Service
	checker HostnameChecker
}

// NewHandler creates a new hosts handler
func NewHandler(svc Service, checker HostnameChecker) *Handler {
	return &Handler{svc: svc, checker: checker}
}

// Register mounts the routes of every variant under g, e.g. /nginx/proxy-hosts
func (h *Handler) Register(g *gin.RouterGroup) {
	for _, seg := range []string{"proxy-hosts", "redirection-hosts", "dead-hosts", "streams"} {
		t, _ := model.ParseHostType(seg)
		grp := g.Group("/nginx/" + seg)
		grp.GET("", h.list(t))
		grp.GET("/:id", h.get(t))
		grp.POST("/create", h.create(t))
		grp.POST("/update", h.update(t))
		grp.POST("/delete", h.delete(t))
		grp.POST("/enable", h.enable(t))
		grp.POST("/disable", h.disable(t))
	}
	g.GET("/hostnames/check", h.CheckHostname)
}

func redactAll(list []model.Host) []*model.Host {
	out := make([]*model.Host, 0, len(list))
	for i := range list {
		out = append(out, list[i].Redacted())
	}
	return out
}

func (h *Handler) list(t model.HostType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
			return
		}
		if req.Page < 1 {
			req.Page = 1
		}
		if req.PageSize < 1 {
			req.PageSize = 15
		}

		items, total, err := h.svc.List(c.Request.Context(), store.HostFilter{
			Type:     t,
			Search:   req.Search,
			Page:     req.Page,
			PageSize: req.PageSize,
		})
		if err != nil {
			httpx.Error(c, err)
			return
		}
		httpx.OKItems(c, redactAll(items), total, req.Page, req.PageSize)
	}
}

func (h *Handler) get(t model.HostType) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil || id < 1 {
			httpx.FailErr(c, httpx.ErrParamInvalid("invalid id"))
			return
		}
		host, err := h.svc.Get(c.Request.Context(), t, id)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		httpx.OK(c, host.Redacted())
	}
}

func (h *Handler) create(t model.HostType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in hosts.Input
		if err := c.ShouldBindJSON(&in); err != nil {
			httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
			return
		}
		host, err := h.svc.Create(c.Request.Context(), t, in)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		httpx.OK(c, host.Redacted())
	}
}

func (h *Handler) update(t model.HostType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
			return
		}
		host, err := h.svc.Update(c.Request.Context(), t, req.ID, req.Input)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		httpx.OK(c, host.Redacted())
	}
}

func (h *Handler) delete(t model.HostType) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IDRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
			return
		}
		if err := h.svc.Delete(c.Request.Context(), t, req.ID); err != nil {
			httpx.Error(c, err)
			return
		}
		httpx.OK(c, gin.H{"id": req.ID})
	}
}

func (h *Handler) enable(t model.HostType) gin.HandlerFunc {
	return h.toggle(t, h.svc.Enable)
}

func (h *Handler) disable(t model.HostType) gin.HandlerFunc {
	return h.toggle(t, h.svc.Disable)
}

func (h *Handler) toggle(t model.HostType, fn func(context.Context, model.HostType, int) (*model.Host, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IDRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
			return
		}
		host, err := fn(c.Request.Context(), t, req.ID)
		if err != nil {
			httpx.Error(c, err)
			return
		}
		httpx.OK(c, host.Redacted())
	}
}

// CheckHostname handles GET /api/v1/hostnames/check. type and id exclude
// the host being edited.
func (h *Handler) CheckHostname(c *gin.Context) {
	var req CheckRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamMissing("hostname is required"))
		return
	}

	var exclude *model.HostRef
	if req.Type != "" && req.ID > 0 {
		t, err := model.ParseHostType(req.Type)
		if err != nil {
			httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
			return
		}
		exclude = &model.HostRef{Type: t, ID: req.ID}
	}

	res, err := h.checker.IsHostnameTaken(c.Request.Context(), req.Hostname, exclude)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	httpx.OK(c, res)
}
