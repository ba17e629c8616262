package jwt

import (
	"net/http"
	"strings"

	"motoride/internal/domain/user"
)

// Headers set by a trusted edge gateway. When present and valid they stand in
// for a bearer token on service-to-service hops.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// AuthMiddlewareFunc validates tokens and injects claims into the request context. Used for HTTP routes.
func AuthMiddlewareFunc(mgr *Manager, allowedRoles ...user.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims, err := claimsFromRequest(mgr, r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			// enforce role-based access control (RBAC)
			if err := RoleAllowed(claims, allowedRoles...); err != nil {
				http.Error(w, err.Error(), http.StatusForbidden)
				return
			}

			// inject claims into context and proceed to next handler
			ctx := InjectClaims(r.Context(), claims)
			next(w, r.WithContext(ctx))
		}
	}
}

// claimsFromRequest resolves identity from a bearer token, falling back to
// gateway identity headers when no token is present.
func claimsFromRequest(mgr *Manager, r *http.Request) (*Claims, error) {
	raw, err := FromAuthorization(r)
	if err == nil {
		_, claims, perr := mgr.ParseAndValidate(raw)
		return claims, perr
	}

	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	role := user.Role(strings.ToUpper(strings.TrimSpace(r.Header.Get(HeaderUserRole))))
	if id == "" || !role.Valid() {
		return nil, err
	}
	return NewUserClaims(id, role, 0), nil
}

// RequireClaims extracts JWT claims from the request context.
func RequireClaims(r *http.Request) *Claims {
	c, _ := FromContext(r.Context())
	return c
}
