package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/metafuse/tenant-gateway/internal/tenant"
)

// Identity is everything the limiter may key a request on.
type Identity struct {
	Tenant *tenant.ResolvedTenant
	// APIKeyID identifies the presenting key; empty for anonymous requests.
	APIKeyID string
	// RemoteAddr is the immediate peer, as found in http.Request.RemoteAddr.
	RemoteAddr string
	Header     http.Header
}

// IdentityFromRequest builds an Identity from r plus whatever the earlier
// middleware resolved.
func IdentityFromRequest(r *http.Request, t *tenant.ResolvedTenant, apiKeyID string) Identity {
	return Identity{
		Tenant:     t,
		APIKeyID:   apiKeyID,
		RemoteAddr: r.RemoteAddr,
		Header:     r.Header,
	}
}

// Key derives the bucket key and the per-window limit for id. The first
// matching rule wins:
//
//	tenant:{id}:auth:{key}   tenant with API key, tier quota
//	tenant:{id}:ip:{ip}      tenant with client IP, tier quota
//	tenant:{id}:unknown      tenant only, tier quota
//	auth:{key}               global API key, authenticated quota
//	anon:{ip}                client IP, anonymous quota
//	anon:unknown             anonymous quota
func (c Config) Key(id Identity) (string, int) {
	if id.Tenant != nil {
		limit := c.TierLimit(id.Tenant.Tier())
		tid := id.Tenant.ID().String()

		if id.APIKeyID != "" {
			return fmt.Sprintf("tenant:%s:auth:%s", tid, id.APIKeyID), limit
		}
		if ip := c.ClientIP(id.RemoteAddr, id.Header); ip != "" {
			return fmt.Sprintf("tenant:%s:ip:%s", tid, ip), limit
		}
		return fmt.Sprintf("tenant:%s:unknown", tid), limit
	}

	if id.APIKeyID != "" {
		return "auth:" + id.APIKeyID, c.AuthenticatedLimit
	}
	if ip := c.ClientIP(id.RemoteAddr, id.Header); ip != "" {
		return "anon:" + ip, c.AnonymousLimit
	}
	return "anon:unknown", c.AnonymousLimit
}

// ClientIP returns the client address for rate limiting. X-Forwarded-For
// (first entry) and X-Real-IP are only honored when the peer itself is a
// trusted proxy; otherwise the peer address is used so clients cannot spoof
// their bucket.
func (c Config) ClientIP(remoteAddr string, header http.Header) string {
	peer := peerIP(remoteAddr)
	if peer == "" {
		return ""
	}

	if len(c.TrustedProxies) > 0 && c.isTrustedProxy(peer) && header != nil {
		if xff := header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xrip := strings.TrimSpace(header.Get("X-Real-IP")); xrip != "" {
			return xrip
		}
	}

	return peer
}

func peerIP(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		// No port; accept a bare address.
		host = strings.Trim(remoteAddr, "[]")
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return ""
}
