package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"restopos-backend/internal/apperr"
	"restopos-backend/internal/server/authctx"
)

// AuthHandler reports the verified identity behind a token.
type AuthHandler struct{}

func (h AuthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.me)
}

func (h AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"uid":        user.UID,
		"email":      user.Email,
		"tenantId":   user.TenantID,
		"role":       string(user.Role),
		"roles":      user.Roles,
		"admin":      user.IsAdmin(),
		"customerId": user.CustomerID,
	})
}

func requireUser(w http.ResponseWriter, r *http.Request) (*authctx.CurrentUser, bool) {
	user := authctx.FromContext(r.Context())
	if user == nil {
		writeError(w, apperr.Unauthenticated, "Authentication is required for this operation.")
		return nil, false
	}
	return user, true
}

// tenantScope is the tenant a request reads from. Admins may pick any tenant
// with ?tenantId=.
func tenantScope(r *http.Request, user *authctx.CurrentUser) (string, error) {
	if user.IsAdmin() {
		if t := strings.TrimSpace(r.URL.Query().Get("tenantId")); t != "" {
			return t, nil
		}
	}
	if user.TenantID == "" {
		if user.IsAdmin() {
			return "", apperr.New(apperr.InvalidArgument, "tenantId is required")
		}
		return "", apperr.New(apperr.PermissionDenied, "No tenant is assigned to this account.")
	}
	return user.TenantID, nil
}

func canAccessTenant(user *authctx.CurrentUser, tenant string) bool {
	return user.IsAdmin() || (user.TenantID != "" && tenant == user.TenantID)
}
