package authctx

import (
	"context"
	"strings"

	"restopos-backend/internal/domain"
)

type contextKey string

const userContextKey contextKey = "currentUser"

// CurrentUser is the verified caller of a request.
type CurrentUser struct {
	UID        string
	Email      string
	TenantID   string
	Role       domain.UserRole
	Roles      []string
	Admin      bool
	CustomerID string
}

// IsAdmin accepts the admin flag, an admin role, or admin among roles.
func (u CurrentUser) IsAdmin() bool {
	if u.Admin || strings.EqualFold(string(u.Role), string(domain.RoleAdmin)) {
		return true
	}
	for _, r := range u.Roles {
		if strings.EqualFold(r, string(domain.RoleAdmin)) {
			return true
		}
	}
	return false
}

// HasRole reports whether the caller holds one of roles; admins hold every role.
func (u CurrentUser) HasRole(roles ...domain.UserRole) bool {
	if u.IsAdmin() {
		return true
	}
	for _, want := range roles {
		if strings.EqualFold(string(u.Role), string(want)) {
			return true
		}
		for _, r := range u.Roles {
			if strings.EqualFold(r, string(want)) {
				return true
			}
		}
	}
	return false
}

func WithCurrentUser(ctx context.Context, user CurrentUser) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func FromContext(ctx context.Context) *CurrentUser {
	val, ok := ctx.Value(userContextKey).(CurrentUser)
	if !ok {
		return nil
	}
	return &val
}
