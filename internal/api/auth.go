package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"dayplan/internal/auth"
)

const defaultTenant = "t_demo"

// getPrincipal extracts tenant and role.
// - If Authorization: Bearer is present, uses the configured verifier (dev/hmac).
// - Else falls back to X-Tenant-Id / X-Role headers in dev and none modes.
// The bool is false when a token was presented and rejected, or when hmac
// mode is on and no token was sent.
func (s *Server) getPrincipal(r *http.Request) (auth.Principal, bool) {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil && s.Auth.Mode != auth.ModeNone {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		pr, err := s.Auth.Verify(tok)
		if err != nil {
			s.Log.Debug("token rejected", zap.Error(err))
			return auth.Principal{}, false
		}
		return pr, true
	}
	if s.Auth != nil && s.Auth.Mode == auth.ModeHMAC {
		return auth.Principal{}, false
	}
	tenant := r.Header.Get("X-Tenant-Id")
	role := strings.ToLower(r.Header.Get("X-Role"))
	if tenant == "" {
		tenant = defaultTenant
	}
	if role == "" {
		role = auth.RoleAdmin
	}
	return auth.Principal{Tenant: tenant, Role: role}, true
}

// principal writes a 401 and returns false when the caller is not
// authenticated.
func (s *Server) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := s.getPrincipal(r)
	if !ok {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid bearer token", r.URL.Path)
		return p, false
	}
	return p, true
}

func (s *Server) admin(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := s.principal(w, r)
	if !ok {
		return p, false
	}
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return p, false
	}
	return p, true
}
