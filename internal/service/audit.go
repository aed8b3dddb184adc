package service

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"restopos-backend/internal/docstore"
	"restopos-backend/internal/domain"
	"restopos-backend/internal/events"
)

// AuditService records one audit log entry per tenant document write.
type AuditService struct {
	Store  docstore.Store
	Logger *slog.Logger
	Now    func() time.Time
}

// Record writes the audit entry for a change. Errors are returned so the entry is retried.
func (s AuditService) Record(ctx context.Context, c events.Change) error {
	if c.Collection == domain.CollectionAuditLogs || (c.Before == nil && c.After == nil) {
		return nil
	}
	entry, ok := AuditEntry(c)
	if !ok {
		s.Logger.Debug("skipping audit log for document without tenant", "collection", c.Collection, "docId", c.DocID)
		return nil
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	entry["timestamp"] = now.UTC()
	if _, err := s.Store.Create(ctx, domain.CollectionAuditLogs, entry); err != nil {
		return fmt.Errorf("write audit log for %s/%s: %w", c.Collection, c.DocID, err)
	}
	return nil
}

// AuditEntry builds the audit log payload; ok is false when no tenant can be resolved.
func AuditEntry(c events.Change) (map[string]any, bool) {
	action := domain.AuditUpdate
	switch c.Kind() {
	case events.Created:
		action = domain.AuditCreate
	case events.Deleted:
		action = domain.AuditDelete
	}

	tenantID := docstore.TenantOf(c.After)
	if tenantID == "" {
		tenantID = docstore.TenantOf(c.Before)
	}
	if tenantID == "" && c.Collection == domain.CollectionFeatureFlags {
		tenantID = c.DocID
	}
	if tenantID == "" {
		return nil, false
	}

	actor := c.ActorID
	if actor == "" {
		actor = "system"
	}
	entry := map[string]any{
		"tenantId":    tenantID,
		"action":      string(action),
		"description": fmt.Sprintf("%s %s/%s", strings.ToUpper(string(action)), c.Collection, c.DocID),
		"actorId":     actor,
		"collection":  c.Collection,
		"documentId":  c.DocID,
	}
	storeID := events.FieldString(c.After, "storeId")
	if storeID == "" {
		storeID = events.FieldString(c.Before, "storeId")
	}
	if storeID != "" {
		entry["storeId"] = storeID
	}
	if summary := ChangeSummary(c.Before, c.After); len(summary) > 0 {
		entry["metadata"] = summary
	}
	return entry, true
}

// ChangeSummary describes a write: the whole document for creates and deletes,
// and before/after pairs of top-level fields that differ for updates.
func ChangeSummary(before, after map[string]any) map[string]any {
	switch {
	case before == nil && after == nil:
		return nil
	case before == nil:
		return map[string]any{"after": docstore.Normalize(after)}
	case after == nil:
		return map[string]any{"before": docstore.Normalize(before)}
	}
	b := docstore.Normalize(before)
	a := docstore.Normalize(after)
	changes := map[string]any{}
	for k, bv := range b {
		if av, ok := a[k]; !ok || !reflect.DeepEqual(bv, av) {
			changes[k] = map[string]any{"before": bv, "after": a[k]}
		}
	}
	for k, av := range a {
		if _, ok := b[k]; !ok {
			changes[k] = map[string]any{"before": nil, "after": av}
		}
	}
	if len(changes) == 0 {
		return nil
	}
	return map[string]any{"changes": changes}
}
