package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"restopos-backend/internal/apperr"
	"restopos-backend/internal/docstore"
	"restopos-backend/internal/domain"
)

// AuditLogHandler lists the change trail written by the audit trigger.
type AuditLogHandler struct {
	Store docstore.Store
}

func (h AuditLogHandler) RegisterRoutes(r chi.Router) {
	r.Get("/audit-logs", h.list)
}

func (h AuditLogHandler) list(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	tenant, err := tenantScope(r, user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	q := docstore.Query{
		Collection: domain.CollectionAuditLogs,
		OrderBy:    "timestamp",
		Descending: true,
		Limit:      queryLimit(r, 100, 500),
	}.Where("tenantId", docstore.OpEq, tenant)
	if c := strings.TrimSpace(r.URL.Query().Get("collection")); c != "" {
		q = q.Where("collection", docstore.OpEq, c)
	}

	docs, err := h.Store.Query(r.Context(), q)
	if err != nil {
		writeAppError(w, apperr.Wrap(apperr.Internal, err, "internal error"))
		return
	}
	resp := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		resp = append(resp, map[string]any{
			"id":          d.ID,
			"action":      d.Data["action"],
			"description": d.Data["description"],
			"actorId":     d.Data["actorId"],
			"collection":  d.Data["collection"],
			"documentId":  d.Data["documentId"],
			"storeId":     d.Data["storeId"],
			"metadata":    d.Data["metadata"],
			"timestamp":   d.Data["timestamp"],
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
