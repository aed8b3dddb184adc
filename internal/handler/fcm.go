package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"restopos-backend/internal/apperr"
	"restopos-backend/internal/repository"
)

// TokenRegistry stores device push tokens.
type TokenRegistry interface {
	Register(ctx context.Context, in repository.RegisterTokenInput) error
	LastUpdated(ctx context.Context, token string) (time.Time, error)
}

type FCMHandler struct {
	Repo TokenRegistry
}

func (h FCMHandler) RegisterRoutes(r chi.Router) {
	r.Post("/notifications/token", h.register)
}

func (h FCMHandler) register(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Token    string `json:"token"`
		Platform string `json:"platform"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		writeError(w, apperr.InvalidArgument, "token is required")
		return
	}
	tenant, err := tenantScope(r, user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if err := h.Repo.Register(r.Context(), repository.RegisterTokenInput{
		TenantID: tenant,
		UserID:   user.UID,
		Token:    req.Token,
		Platform: strings.ToLower(strings.TrimSpace(req.Platform)),
	}); err != nil {
		writeAppError(w, apperr.Wrap(apperr.Internal, err, "internal error"))
		return
	}
	resp := map[string]any{"token": req.Token}
	if ts, err := h.Repo.LastUpdated(r.Context(), req.Token); err == nil {
		resp["updatedAt"] = ts.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}
