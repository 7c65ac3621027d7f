package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/metafuse/tenant-gateway/internal/apierror"
	"github.com/metafuse/tenant-gateway/internal/reqctx"
	"github.com/metafuse/tenant-gateway/internal/resolver"
	"github.com/metafuse/tenant-gateway/internal/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyTenant(role tenant.Role) *tenant.ResolvedTenant {
	return tenant.FromAPIKey(tenant.MustParseID("tenant-1"), role, tenant.TierStandard, false)
}

func TestRequireWritePermission(t *testing.T) {
	assert.NoError(t, RequireWritePermission(nil))
	assert.NoError(t, RequireWritePermission(keyTenant(tenant.RoleAdmin)))
	assert.NoError(t, RequireWritePermission(keyTenant(tenant.RoleEditor)))

	err := RequireWritePermission(keyTenant(tenant.RoleViewer))
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, apierror.StatusCode(err))
	assert.Equal(t, "Write permission required. Current role: viewer", apierror.ErrorMessage(err))

	header := tenant.FromHeader(tenant.MustParseID("tenant-1"), tenant.TierFree)
	assert.Error(t, RequireWritePermission(header))
}

func TestRequireDeletePermission(t *testing.T) {
	assert.NoError(t, RequireDeletePermission(nil))
	assert.NoError(t, RequireDeletePermission(keyTenant(tenant.RoleAdmin)))

	for _, role := range []tenant.Role{tenant.RoleEditor, tenant.RoleViewer} {
		err := RequireDeletePermission(keyTenant(role))
		require.Error(t, err)
		assert.Equal(t, http.StatusForbidden, apierror.StatusCode(err))
		assert.Contains(t, apierror.ErrorMessage(err), "admin")
	}
}

func TestRequireManageKeysPermission(t *testing.T) {
	assert.NoError(t, RequireManageKeysPermission(nil))
	assert.NoError(t, RequireManageKeysPermission(keyTenant(tenant.RoleAdmin)))
	assert.Error(t, RequireManageKeysPermission(keyTenant(tenant.RoleEditor)))
}

func newGuardRouter(t *testing.T) *gin.Engine {
	res := resolver.New(newFakeControlPlane(), resolver.Config{}, nil)
	r := gin.New()
	r.Use(RequestID(), TenantResolver(res))
	r.GET("/tenant", RequireTenant(), echoHandler)
	r.POST("/write", RequireWrite(), echoHandler)
	r.DELETE("/delete", RequireDelete(), echoHandler)
	r.POST("/admin", RequireAdmin(), echoHandler)
	r.Any("/proxy", MethodPermission(), echoHandler)
	return r
}

func TestGuards(t *testing.T) {
	r := newGuardRouter(t)
	bearer := func(key string) map[string]string {
		return map[string]string{"Authorization": "Bearer " + key}
	}

	tests := []struct {
		name    string
		method  string
		path    string
		headers map[string]string
		want    int
		wantMsg string
	}{
		{"tenant required", http.MethodGet, "/tenant", nil, http.StatusUnauthorized,
			"Tenant context required. Provide tenant API key or X-Tenant-ID header."},
		{"tenant present", http.MethodGet, "/tenant", bearer("mft_viewer"), http.StatusOK, ""},
		{"write without tenant", http.MethodPost, "/write", nil, http.StatusUnauthorized,
			"Tenant context required for write operations."},
		{"write as viewer", http.MethodPost, "/write", bearer("mft_viewer"), http.StatusForbidden,
			"Write permission required. Current role: viewer"},
		{"write as editor", http.MethodPost, "/write", bearer("mft_editor"), http.StatusOK, ""},
		{"delete as editor", http.MethodDelete, "/delete", bearer("mft_editor"), http.StatusForbidden, ""},
		{"delete as admin", http.MethodDelete, "/delete", bearer("mft_admin"), http.StatusOK, ""},
		{"admin without tenant", http.MethodPost, "/admin", nil, http.StatusUnauthorized,
			"Tenant context required for admin operations."},
		{"admin as editor", http.MethodPost, "/admin", bearer("mft_editor"), http.StatusForbidden,
			"Admin permission required. Current role: editor"},
		{"admin as admin", http.MethodPost, "/admin", bearer("mft_admin"), http.StatusOK, ""},
		{"proxy read as viewer", http.MethodGet, "/proxy", bearer("mft_viewer"), http.StatusOK, ""},
		{"proxy write as viewer", http.MethodPut, "/proxy", bearer("mft_viewer"), http.StatusForbidden, ""},
		{"proxy delete as editor", http.MethodDelete, "/proxy", bearer("mft_editor"), http.StatusForbidden, ""},
		{"proxy write without tenant", http.MethodPost, "/proxy", nil, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, tt.method, tt.path, tt.headers)
			assert.Equal(t, tt.want, w.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, decode(t, w)["message"])
			}
		})
	}
}

func TestRequireGlobalAdmin(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.Use(func(c *gin.Context) {
		rc := reqctx.From(c)
		rc.APIKeyID = c.GetHeader("X-Test-Key")
		rc.GlobalAdmin = c.GetHeader("X-Test-Admin") == "1"
	})
	r.GET("/admin", RequireGlobalAdmin(), echoHandler)

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/admin", nil).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/admin", map[string]string{"X-Test-Key": "k"}).Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/admin",
		map[string]string{"X-Test-Key": "k", "X-Test-Admin": "1"}).Code)
}
