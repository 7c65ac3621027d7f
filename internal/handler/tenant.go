package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/metafuse/tenant-gateway/internal/apierror"
	"github.com/metafuse/tenant-gateway/internal/reqctx"
	"github.com/metafuse/tenant-gateway/internal/tenant"
)

// TenantHandler serves two route sets: the operator API under
// /admin/tenants/:id, and the self-service key API for tenant admins, where
// the tenant comes from the caller's own credentials.
type TenantHandler struct {
	service TenantManager
}

func NewTenantHandler(service TenantManager) *TenantHandler {
	return &TenantHandler{service: service}
}

type tenantResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Tier      string    `json:"tier"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newTenantResponse(r *tenant.Record) tenantResponse {
	return tenantResponse{
		ID:        r.ID.String(),
		Name:      r.Name,
		Tier:      r.Tier.String(),
		Status:    r.Status.String(),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// targetTenant is the :id path parameter when present, otherwise the tenant
// the request resolved to.
func targetTenant(c *gin.Context) (tenant.ID, bool) {
	if raw := c.Param("id"); raw != "" {
		id, err := tenant.ParseID(raw)
		if err != nil {
			abort(c, apierror.Invalid(fmt.Sprintf("Invalid tenant ID format: %v", err)))
			return tenant.ID{}, false
		}
		return id, true
	}

	rc := reqctx.From(c)
	if rc.Tenant == nil {
		abort(c, apierror.Unauthorized("Tenant context required. Provide tenant API key or X-Tenant-ID header."))
		return tenant.ID{}, false
	}
	return rc.Tenant.ID(), true
}

func (h *TenantHandler) Create(c *gin.Context) {
	var req struct {
		ID   string `json:"id" binding:"required"`
		Name string `json:"name" binding:"required"`
		Tier string `json:"tier"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, apierror.Invalid(err.Error()))
		return
	}

	id, err := tenant.ParseID(req.ID)
	if err != nil {
		abort(c, apierror.Invalid(fmt.Sprintf("Invalid tenant ID format: %v", err)))
		return
	}
	tier := tenant.TierStandard
	if req.Tier != "" {
		if tier, err = tenant.ParseTier(req.Tier); err != nil {
			abort(c, apierror.Invalid(err.Error()))
			return
		}
	}

	rec, err := h.service.CreateTenant(c.Request.Context(), id, req.Name, tier)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, newTenantResponse(rec))
}

func (h *TenantHandler) List(c *gin.Context) {
	tenants, err := h.service.ListTenants(c.Request.Context())
	if err != nil {
		abort(c, apierror.Internal("Failed to list tenants", err))
		return
	}

	c.JSON(http.StatusOK, tenants)
}

func (h *TenantHandler) Get(c *gin.Context) {
	id, ok := targetTenant(c)
	if !ok {
		return
	}

	rec, err := h.service.GetTenant(c.Request.Context(), id)
	if err != nil {
		abort(c, apierror.Internal("Failed to verify tenant", err))
		return
	}
	if rec == nil {
		abort(c, apierror.NotFound(fmt.Sprintf("Tenant '%s' not found", id)))
		return
	}

	c.JSON(http.StatusOK, newTenantResponse(rec))
}

func (h *TenantHandler) Suspend(c *gin.Context) {
	h.lifecycle(c, h.service.Suspend, "suspended")
}

func (h *TenantHandler) Reactivate(c *gin.Context) {
	h.lifecycle(c, h.service.Reactivate, "reactivated")
}

func (h *TenantHandler) Delete(c *gin.Context) {
	h.lifecycle(c, h.service.Delete, "deleted")
}

func (h *TenantHandler) UpdateTier(c *gin.Context) {
	id, ok := targetTenant(c)
	if !ok {
		return
	}

	var req struct {
		Tier string `json:"tier" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, apierror.Invalid(err.Error()))
		return
	}
	tier, err := tenant.ParseTier(req.Tier)
	if err != nil {
		abort(c, apierror.Invalid(err.Error()))
		return
	}

	if err := h.service.ChangeTier(c.Request.Context(), id, tier); err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Tenant '%s' moved to tier %s", id, tier)})
}

func (h *TenantHandler) lifecycle(c *gin.Context, op func(ctx context.Context, id tenant.ID) error, verb string) {
	id, ok := targetTenant(c)
	if !ok {
		return
	}

	if err := op(c.Request.Context(), id); err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Tenant '%s' %s", id, verb)})
}

func (h *TenantHandler) CreateKey(c *gin.Context) {
	id, ok := targetTenant(c)
	if !ok {
		return
	}

	var req struct {
		Name          string `json:"name" binding:"required"`
		Role          string `json:"role" binding:"required"`
		ExpiresInDays int    `json:"expires_in_days"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, apierror.Invalid(err.Error()))
		return
	}
	role, err := tenant.ParseRole(req.Role)
	if err != nil {
		abort(c, apierror.Invalid(err.Error()))
		return
	}

	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		t := time.Now().AddDate(0, 0, req.ExpiresInDays)
		expiresAt = &t
	}

	plain, key, err := h.service.CreateKey(c.Request.Context(), id, req.Name, role, expiresAt)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"key":     plain,
		"api_key": key,
		"message": "Save this key - it won't be shown again",
	})
}

func (h *TenantHandler) ListKeys(c *gin.Context) {
	id, ok := targetTenant(c)
	if !ok {
		return
	}

	keys, err := h.service.ListKeys(c.Request.Context(), id)
	if err != nil {
		abort(c, apierror.Internal("Failed to list API keys", err))
		return
	}

	c.JSON(http.StatusOK, keys)
}

func (h *TenantHandler) RevokeKey(c *gin.Context) {
	id, ok := targetTenant(c)
	if !ok {
		return
	}

	keyID := c.Param("keyID")
	if err := h.service.RevokeKey(c.Request.Context(), id, keyID); err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "API key revoked successfully"})
}
