package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/metafuse/tenant-gateway/internal/controlplane"
	"github.com/metafuse/tenant-gateway/internal/reqctx"
	"github.com/metafuse/tenant-gateway/internal/tenant"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeControlPlane struct {
	keys    map[string]*controlplane.ValidatedTenantKey
	tenants map[string]*tenant.Record
}

func newFakeControlPlane() *fakeControlPlane {
	acme := tenant.MustParseID("acme-corp")
	key := func(hash string, role tenant.Role) *controlplane.ValidatedTenantKey {
		return &controlplane.ValidatedTenantKey{KeyHash: hash, TenantID: acme, Role: role, Tier: tenant.TierFree}
	}
	return &fakeControlPlane{
		keys: map[string]*controlplane.ValidatedTenantKey{
			"mft_admin":  key("h-admin", tenant.RoleAdmin),
			"mft_editor": key("h-editor", tenant.RoleEditor),
			"mft_viewer": key("h-viewer", tenant.RoleViewer),
		},
		tenants: map[string]*tenant.Record{
			"acme-corp": {ID: acme, Tier: tenant.TierFree, Status: tenant.StatusActive},
			"globex":    {ID: tenant.MustParseID("globex"), Status: tenant.StatusSuspended},
		},
	}
}

func (f *fakeControlPlane) ValidateTenantAPIKey(_ context.Context, key string) (*controlplane.ValidatedTenantKey, error) {
	return f.keys[key], nil
}

func (f *fakeControlPlane) GetTenant(_ context.Context, id tenant.ID) (*tenant.Record, error) {
	return f.tenants[id.String()], nil
}

// echoHandler reports what the middleware chain attached.
func echoHandler(c *gin.Context) {
	rc := reqctx.From(c)
	body := gin.H{"tenant": rc.TenantID(), "api_key_id": rc.APIKeyID}
	if rc.Tenant != nil {
		body["source"] = rc.Tenant.Source().String()
		body["role"] = rc.Tenant.EffectiveRole().String()
	}
	c.JSON(http.StatusOK, body)
}

func serve(r http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}
