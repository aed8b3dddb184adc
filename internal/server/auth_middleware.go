package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"restopos-backend/internal/apperr"
	"restopos-backend/internal/domain"
	"restopos-backend/internal/server/authctx"
)

// Authenticator resolves bearer tokens. service.AuthService implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*authctx.CurrentUser, error)
	AuthenticateScheduler(ctx context.Context, raw string) (*authctx.CurrentUser, error)
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	return tok, tok != ""
}

// AuthMiddleware validates the bearer token and sets the current user in context.
func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, apperr.Unauthenticated, "missing bearer token")
				return
			}
			user, err := auth.Authenticate(r.Context(), tok)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, apperr.Unauthenticated, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(authctx.WithCurrentUser(r.Context(), *user)))
		})
	}
}

// OptionalAuth attaches the user when a valid token is present and lets
// anonymous requests through untouched. A bad token is still rejected.
func OptionalAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			user, err := auth.Authenticate(r.Context(), tok)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, apperr.Unauthenticated, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(authctx.WithCurrentUser(r.Context(), *user)))
		})
	}
}

// SchedulerAuth admits Cloud Scheduler OIDC tokens and admin tokens.
func SchedulerAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok, ok := bearerToken(r)
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, apperr.Unauthenticated, "missing bearer token")
				return
			}
			user, err := auth.AuthenticateScheduler(r.Context(), tok)
			if err != nil {
				writeAuthError(w, http.StatusForbidden, apperr.PermissionDenied, "scheduler credentials required")
				return
			}
			next.ServeHTTP(w, r.WithContext(authctx.WithCurrentUser(r.Context(), *user)))
		})
	}
}

// RequireRole ensures the user has one of the allowed roles. Admins always pass.
func RequireRole(roles ...domain.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := authctx.FromContext(r.Context())
			if u == nil {
				writeAuthError(w, http.StatusUnauthorized, apperr.Unauthenticated, "authentication required")
				return
			}
			if len(roles) > 0 && !u.HasRole(roles...) {
				writeAuthError(w, http.StatusForbidden, apperr.PermissionDenied, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeAuthError(w http.ResponseWriter, status int, kind apperr.Kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "error",
		"message": message,
		"error":   map[string]any{"code": status, "status": http.StatusText(status), "kind": kind},
	})
}
