package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restopos-backend/internal/docstore/docstoretest"
	"restopos-backend/internal/domain"
	"restopos-backend/internal/events"
	"restopos-backend/internal/logger"
)

func TestAuditEntryForUpdate(t *testing.T) {
	entry, ok := AuditEntry(events.Change{
		Collection: domain.CollectionMenuItems,
		DocID:      "latte",
		ActorID:    "staff-1",
		Before:     map[string]any{"tenantId": "t1", "storeId": "s1", "price": 100.0, "name": "Latte"},
		After:      map[string]any{"tenantId": "t1", "storeId": "s1", "price": 120, "name": "Latte", "isAvailable": true},
	})
	require.True(t, ok)
	assert.Equal(t, "t1", entry["tenantId"])
	assert.Equal(t, "update", entry["action"])
	assert.Equal(t, "UPDATE menu_items/latte", entry["description"])
	assert.Equal(t, "staff-1", entry["actorId"])
	assert.Equal(t, "s1", entry["storeId"])

	changes := entry["metadata"].(map[string]any)["changes"].(map[string]any)
	assert.Len(t, changes, 2)
	assert.Equal(t, map[string]any{"before": 100.0, "after": 120.0}, changes["price"])
	assert.Equal(t, map[string]any{"before": nil, "after": true}, changes["isAvailable"])
}

func TestAuditEntryTenantResolution(t *testing.T) {
	_, ok := AuditEntry(events.Change{Collection: domain.CollectionOrders, DocID: "o1", After: map[string]any{"total": 1.0}})
	assert.False(t, ok)

	entry, ok := AuditEntry(events.Change{Collection: domain.CollectionFeatureFlags, DocID: "t9", After: map[string]any{"kds": true}})
	require.True(t, ok)
	assert.Equal(t, "t9", entry["tenantId"])
	assert.Equal(t, "system", entry["actorId"])
	assert.Equal(t, "create", entry["action"])

	entry, ok = AuditEntry(events.Change{Collection: domain.CollectionOrders, DocID: "o1", Before: map[string]any{"tenantId": "t1"}})
	require.True(t, ok)
	assert.Equal(t, "delete", entry["action"])
	assert.Equal(t, map[string]any{"before": map[string]any{"tenantId": "t1"}}, entry["metadata"])
}

func TestAuditRecordSkipsItsOwnCollection(t *testing.T) {
	store := docstoretest.New()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := AuditService{Store: store, Logger: logger.Discard(), Now: func() time.Time { return now }}
	ctx := context.Background()

	require.NoError(t, svc.Record(ctx, events.Change{Collection: domain.CollectionAuditLogs, DocID: "a1", After: map[string]any{"tenantId": "t1"}}))
	assert.Empty(t, store.All(domain.CollectionAuditLogs))

	require.NoError(t, svc.Record(ctx, events.Change{Collection: domain.CollectionOrders, DocID: "o1", After: map[string]any{"tenantId": "t1"}}))
	logs := store.All(domain.CollectionAuditLogs)
	require.Len(t, logs, 1)
	assert.Equal(t, "2026-01-02T03:04:05Z", logs[0].Data["timestamp"])
	assert.Equal(t, "o1", logs[0].Data["documentId"])
}
