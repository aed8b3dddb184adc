package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restopos-backend/internal/docstore/docstoretest"
	"restopos-backend/internal/domain"
	"restopos-backend/internal/server/authctx"
)

func TestAuditLogsFilterAndOrder(t *testing.T) {
	store := docstoretest.New()
	store.Seed(domain.CollectionAuditLogs, "a1", map[string]any{
		"tenantId": "t1", "action": "CREATE", "collection": "orders", "documentId": "o1", "actorId": "u1",
		"timestamp": "2026-04-01T08:00:00Z",
	})
	store.Seed(domain.CollectionAuditLogs, "a2", map[string]any{
		"tenantId": "t1", "action": "UPDATE", "collection": "ingredients", "documentId": "i1", "actorId": "system",
		"timestamp": "2026-04-01T09:00:00Z",
	})
	store.Seed(domain.CollectionAuditLogs, "a3", map[string]any{
		"tenantId": "t1", "action": "DELETE", "collection": "orders", "documentId": "o2", "actorId": "u2",
		"timestamp": "2026-04-01T10:00:00Z",
	})
	store.Seed(domain.CollectionAuditLogs, "a4", map[string]any{
		"tenantId": "t2", "action": "CREATE", "collection": "orders", "timestamp": "2026-04-01T11:00:00Z",
	})

	manager := &authctx.CurrentUser{UID: "m1", TenantID: "t1", Role: domain.RoleManager}
	h := serve(manager, AuditLogHandler{Store: store})

	rec := do(t, h, http.MethodGet, "/audit-logs", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	logs := dataAs[[]map[string]any](t, decode(t, rec))
	require.Len(t, logs, 3)
	assert.Equal(t, "a3", logs[0]["id"])
	assert.Equal(t, "a1", logs[2]["id"])

	rec = do(t, h, http.MethodGet, "/audit-logs?collection=orders&limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs = dataAs[[]map[string]any](t, decode(t, rec))
	require.Len(t, logs, 1)
	assert.Equal(t, "DELETE", logs[0]["action"])
	assert.Equal(t, "o2", logs[0]["documentId"])

	admin := &authctx.CurrentUser{UID: "root", Admin: true}
	rec = do(t, serve(admin, AuditLogHandler{Store: store}), http.MethodGet, "/audit-logs?tenantId=t2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs = dataAs[[]map[string]any](t, decode(t, rec))
	require.Len(t, logs, 1)
	assert.Equal(t, "a4", logs[0]["id"])

	rec = do(t, serve(&authctx.CurrentUser{UID: "x"}, AuditLogHandler{Store: store}), http.MethodGet, "/audit-logs", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
