package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/metafuse/tenant-gateway/internal/apierror"
)

type APIKeyHandler struct {
	service APIKeyManager
}

func NewAPIKeyHandler(service APIKeyManager) *APIKeyHandler {
	return &APIKeyHandler{service: service}
}

func (h *APIKeyHandler) Create(c *gin.Context) {
	var req struct {
		Name      string `json:"name" binding:"required"`
		CreatedBy string `json:"created_by"`
		IsAdmin   bool   `json:"is_admin"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, apierror.Invalid(err.Error()))
		return
	}

	key, apiKey, err := h.service.Create(c.Request.Context(), req.Name, req.CreatedBy, req.IsAdmin)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"key":     key,
		"api_key": apiKey,
		"message": "Save this key - it won't be shown again",
	})
}

func (h *APIKeyHandler) List(c *gin.Context) {
	keys, err := h.service.List(c.Request.Context())
	if err != nil {
		abort(c, apierror.Internal("Failed to list API keys", err))
		return
	}

	c.JSON(http.StatusOK, keys)
}

func (h *APIKeyHandler) Get(c *gin.Context) {
	id := c.Param("id")

	apiKey, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		abort(c, apierror.Internal("Failed to load API key", err))
		return
	}
	if apiKey == nil {
		abort(c, apierror.NotFound(fmt.Sprintf("API key '%s' not found", id)))
		return
	}

	c.JSON(http.StatusOK, apiKey)
}

func (h *APIKeyHandler) Delete(c *gin.Context) {
	id := c.Param("id")

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "API key deleted successfully"})
}
