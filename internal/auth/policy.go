package auth

import (
	"net/http"
	"strings"
)

// Policy determines which roles may perform a request.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds a default policy with exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt returns true when a request should skip auth/RBAC.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRoles resolves the roles allowed to perform the request. Admin is
// implicitly allowed everywhere.
func (p Policy) RequiredRoles(r *http.Request) ([]Role, bool) {
	if r == nil {
		return nil, false
	}
	path := r.URL.Path
	method := r.Method

	switch {
	case path == "/api/v1/readings":
		return []Role{RoleGateway}, true
	case path == "/api/v1/meters":
		if method == http.MethodGet {
			return []Role{RoleViewer}, true
		}
		return []Role{RoleAdmin}, true
	case strings.HasSuffix(path, "/gateways") && strings.HasPrefix(path, "/api/v1/meters/"):
		return []Role{RoleAdmin}, true
	case strings.HasSuffix(path, "/settle") && strings.HasPrefix(path, "/api/v1/meters/"):
		return []Role{RoleTrader}, true
	case strings.HasPrefix(path, "/api/v1/meters/"):
		return []Role{RoleViewer}, true
	case path == "/api/v1/validator":
		return []Role{RoleViewer}, true
	case strings.HasPrefix(path, "/api/v1/validator/"):
		return []Role{RoleAdmin}, true
	case path == "/api/v1/token/transfer":
		return []Role{RoleTrader}, true
	case path == "/api/v1/token/supply":
		return []Role{RoleViewer}, true
	case strings.HasPrefix(path, "/api/v1/token/"):
		return []Role{RoleAdmin}, true
	case path == "/api/v1/orders":
		if method == http.MethodGet {
			return []Role{RoleViewer}, true
		}
		return []Role{RoleTrader}, true
	case strings.HasSuffix(path, "/fill") && strings.HasPrefix(path, "/api/v1/orders/"):
		return []Role{RoleTrader}, true
	case strings.HasPrefix(path, "/api/v1/orders/"):
		if method == http.MethodGet {
			return []Role{RoleViewer}, true
		}
		return []Role{RoleTrader}, true
	case path == "/api/v1/settlements/batch":
		return []Role{RoleAdmin}, true
	case path == "/api/v1/settlements":
		return []Role{RoleAdmin}, true
	case strings.HasPrefix(path, "/api/v1/escrow/"):
		if method == http.MethodGet {
			return []Role{RoleViewer}, true
		}
		return []Role{RoleAdmin}, true
	case path == "/api/v1/certificates":
		if method == http.MethodGet {
			return []Role{RoleViewer}, true
		}
		return []Role{RoleAuthority}, true
	case strings.HasSuffix(path, "/revoke") && strings.HasPrefix(path, "/api/v1/certificates/"):
		return []Role{RoleAuthority}, true
	case strings.HasSuffix(path, "/transfer") && strings.HasPrefix(path, "/api/v1/certificates/"):
		return []Role{RoleTrader}, true
	case strings.HasPrefix(path, "/api/v1/certificates/"):
		if method == http.MethodGet {
			return []Role{RoleViewer}, true
		}
		return []Role{RoleAuthority}, true
	}

	if strings.HasPrefix(path, "/api/") {
		if method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions {
			return []Role{RoleViewer}, true
		}
		return []Role{RoleAdmin}, true
	}
	return nil, false
}
