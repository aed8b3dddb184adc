package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"restopos-backend/internal/apperr"
	"restopos-backend/internal/docstore"
	"restopos-backend/internal/domain"
)

type NotificationHandler struct {
	Store docstore.Store
	Now   func() time.Time
}

func (h NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Get("/notifications", h.list)
	r.Post("/notifications/{id}/seen", h.markSeen)
}

func (h NotificationHandler) list(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	tenant, err := tenantScope(r, user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	limit := queryLimit(r, 100, 500)

	docs, err := h.Store.Query(r.Context(), docstore.Query{
		Collection: domain.CollectionNotifications,
		OrderBy:    "createdAt",
		Descending: true,
		Limit:      limit,
	}.Where("tenantId", docstore.OpEq, tenant))
	if err != nil {
		writeAppError(w, apperr.Wrap(apperr.Internal, err, "internal error"))
		return
	}
	resp := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		seenBy, _ := d.Data["seenBy"].(map[string]any)
		_, seen := seenBy[user.UID]
		resp = append(resp, map[string]any{
			"id":        d.ID,
			"type":      d.Data["type"],
			"title":     d.Data["title"],
			"message":   d.Data["message"],
			"severity":  d.Data["severity"],
			"data":      d.Data["data"],
			"timestamp": d.Data["createdAt"],
			"seen":      seen,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h NotificationHandler) markSeen(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	doc, err := h.Store.Get(r.Context(), domain.CollectionNotifications, id)
	if err != nil || !canAccessTenant(user, docstore.TenantOf(doc.Data)) {
		writeError(w, apperr.NotFound, "notification not found")
		return
	}
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	ctx := docstore.WithActor(r.Context(), user.UID)
	if err := h.Store.Update(ctx, domain.CollectionNotifications, id, docstore.SetField("seenBy."+user.UID, now.UTC())); err != nil {
		writeAppError(w, apperr.Wrap(apperr.Internal, err, "internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "seen": true})
}

func queryLimit(r *http.Request, fallback, max int) int {
	limit := fallback
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > max {
		limit = max
	}
	return limit
}
