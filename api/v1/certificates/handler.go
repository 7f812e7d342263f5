package certificates

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"proxy_manager/internal/acme"
	"proxy_manager/internal/certificate"
	"proxy_manager/internal/httpx"
	"proxy_manager/internal/model"
)

// Manager is the certificate lifecycle the handler drives
type Manager interface {
	List(ctx context.Context) ([]model.Certificate, error)
	Get(ctx context.Context, id int) (*model.Certificate, error)
	Create(ctx context.Context, req certificate.CreateRequest) (*model.Certificate, error)
	Update(ctx context.Context, req certificate.UpdateRequest) (*model.Certificate, error)
	Renew(ctx context.Context, id int) (*model.Certificate, error)
	Delete(ctx context.Context, id int) error
	Validate(ctx context.Context, files certificate.Files) (*certificate.ValidationResult, error)
	Upload(ctx context.Context, id int, files certificate.Files) (*model.Certificate, error)
	Download(ctx context.Context, id int) (*certificate.Archive, error)
	TestHTTPChallenge(ctx context.Context, domains []string) (map[string]string, error)
}

// TestHTTPRequest lists the domains to check for HTTP-01 reachability
type TestHTTPRequest struct {
	Domains []string `json:"domains" binding:"required"`
}

// IDRequest identifies a certificate
type IDRequest struct {
	ID int `json:"id" binding:"required"`
}

// UploadRequest carries new material for a custom certificate
type UploadRequest struct {
	ID int `json:"id" binding:"required"`
	certificate.Files
}

// Handler handles certificate API
type Handler struct {
	mgr Manager
}

// NewHandler creates a new certificates handler
func NewHandler(mgr Manager) *Handler {
	return &Handler{mgr: mgr}
}

// Register mounts the certificate routes under g
func (h *Handler) Register(g *gin.RouterGroup) {
	grp := g.Group("/nginx/certificates")
	grp.GET("", h.List)
	grp.GET("/dns-providers", h.DNSProviders)
	grp.GET("/:id", h.Get)
	grp.GET("/:id/download", h.Download)
	grp.POST("/create", h.Create)
	grp.POST("/update", h.Update)
	grp.POST("/renew", h.Renew)
	grp.POST("/delete", h.Delete)
	grp.POST("/validate", h.Validate)
	grp.POST("/upload", h.Upload)
	grp.POST("/test-http", h.TestHTTP)
}

// List handles GET /api/v1/nginx/certificates
func (h *Handler) List(c *gin.Context) {
	certs, err := h.mgr.List(c.Request.Context())
	if err != nil {
		httpx.Error(c, err)
		return
	}
	items := make([]*model.Certificate, 0, len(certs))
	for i := range certs {
		items = append(items, certs[i].Redacted())
	}
	httpx.OKItems(c, items, int64(len(items)), 1, len(items))
}

// Get handles GET /api/v1/nginx/certificates/:id
func (h *Handler) Get(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid id"))
		return
	}
	cert, err := h.mgr.Get(c.Request.Context(), id)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	httpx.OK(c, cert.Redacted())
}

// Create handles POST /api/v1/nginx/certificates/create. Let's Encrypt
// requests block until certbot finishes.
func (h *Handler) Create(c *gin.Context) {
	var req certificate.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	if req.Provider == "" {
		httpx.FailErr(c, httpx.ErrParamMissing("provider is required"))
		return
	}
	cert, err := h.mgr.Create(c.Request.Context(), req)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	httpx.OK(c, cert.Redacted())
}

// Update handles POST /api/v1/nginx/certificates/update
func (h *Handler) Update(c *gin.Context) {
	var req certificate.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	cert, err := h.mgr.Update(c.Request.Context(), req)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	httpx.OK(c, cert.Redacted())
}

// Download handles GET /api/v1/nginx/certificates/:id/download
func (h *Handler) Download(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		httpx.FailErr(c, httpx.ErrParamInvalid("invalid id"))
		return
	}
	archive, err := h.mgr.Download(c.Request.Context(), id)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+archive.Name+`"`)
	c.Data(http.StatusOK, "application/zip", archive.Data)
}

// Renew handles POST /api/v1/nginx/certificates/renew
func (h *Handler) Renew(c *gin.Context) {
	var req IDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	cert, err := h.mgr.Renew(c.Request.Context(), req.ID)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	httpx.OK(c, cert.Redacted())
}

// Delete handles POST /api/v1/nginx/certificates/delete
func (h *Handler) Delete(c *gin.Context) {
	var req IDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	if err := h.mgr.Delete(c.Request.Context(), req.ID); err != nil {
		httpx.Error(c, err)
		return
	}
	httpx.OK(c, gin.H{"id": req.ID})
}

// Validate handles POST /api/v1/nginx/certificates/validate
func (h *Handler) Validate(c *gin.Context) {
	var files certificate.Files
	if err := c.ShouldBindJSON(&files); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	res, err := h.mgr.Validate(c.Request.Context(), files)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	httpx.OK(c, res)
}

// Upload handles POST /api/v1/nginx/certificates/upload
func (h *Handler) Upload(c *gin.Context) {
	var req UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	cert, err := h.mgr.Upload(c.Request.Context(), req.ID, req.Files)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	httpx.OK(c, cert.Redacted())
}

// TestHTTP handles POST /api/v1/nginx/certificates/test-http
func (h *Handler) TestHTTP(c *gin.Context) {
	var req TestHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.FailErr(c, httpx.ErrParamInvalid(err.Error()))
		return
	}
	res, err := h.mgr.TestHTTPChallenge(c.Request.Context(), req.Domains)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	httpx.OK(c, res)
}

// DNSProviders handles GET /api/v1/nginx/certificates/dns-providers
func (h *Handler) DNSProviders(c *gin.Context) {
	httpx.OK(c, acme.Plugins())
}
