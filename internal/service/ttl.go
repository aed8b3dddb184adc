package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"restopos-backend/internal/docstore"
	"restopos-backend/internal/domain"
)

const defaultTTLBatchSize = 200

// TTLRule deletes documents whose date field is older than TTL.
type TTLRule struct {
	Collection string
	Field      string
	// FallbackField is swept with the same cutoff after Field, for documents
	// that never got the primary timestamp.
	FallbackField string
	TTL           time.Duration
	Filters       []docstore.Filter
}

// DefaultTTLRules are the retention policies for operational collections.
var DefaultTTLRules = []TTLRule{
	{Collection: domain.CollectionOpsLogs, Field: "timestamp", TTL: 14 * 24 * time.Hour},
	{Collection: domain.CollectionNotifications, Field: "createdAt", TTL: 30 * 24 * time.Hour},
	{Collection: domain.CollectionPrivacyOpsLogs, Field: "createdAt", TTL: 90 * 24 * time.Hour},
	{
		Collection:    domain.CollectionAnalyticsExports,
		Field:         "completedAt",
		FallbackField: "requestedAt",
		TTL:           14 * 24 * time.Hour,
		Filters:       []docstore.Filter{{Field: "status", Op: docstore.OpIn, Value: []string{"completed", "failed"}}},
	},
}

// TTLService runs the retention rules.
type TTLService struct {
	Store     docstore.Store
	Logger    *slog.Logger
	Rules     []TTLRule
	BatchSize int
	Now       func() time.Time
}

// TTLResult is the number of documents a rule removed.
type TTLResult struct {
	Collection string
	Deleted    int
	Err        error
}

// Run applies every rule. A failing rule is logged and the next one still runs.
func (s TTLService) Run(ctx context.Context) []TTLResult {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	rules := s.Rules
	if rules == nil {
		rules = DefaultTTLRules
	}
	results := make([]TTLResult, 0, len(rules))
	total := 0
	for _, rule := range rules {
		deleted, err := s.cleanup(ctx, rule, now.Add(-rule.TTL))
		if err != nil {
			s.Logger.Error("failed to cleanup collection", "collection", rule.Collection, "deleted", deleted, "err", err)
		}
		total += deleted
		results = append(results, TTLResult{Collection: rule.Collection, Deleted: deleted, Err: err})
	}
	if total > 0 {
		s.Logger.Info("ttl cleanup finished", "deleted", total)
	} else {
		s.Logger.Debug("ttl cleanup completed with no deletions")
	}
	return results
}

func (s TTLService) cleanup(ctx context.Context, rule TTLRule, cutoff time.Time) (int, error) {
	deleted, err := s.sweep(ctx, rule, rule.Field, cutoff)
	if err != nil || rule.FallbackField == "" {
		return deleted, err
	}
	more, err := s.sweep(ctx, rule, rule.FallbackField, cutoff)
	return deleted + more, err
}

// sweep deletes in batches, oldest first, until a batch comes back short.
func (s TTLService) sweep(ctx context.Context, rule TTLRule, field string, cutoff time.Time) (int, error) {
	batch := s.BatchSize
	if batch <= 0 {
		batch = defaultTTLBatchSize
	}
	total := 0
	for {
		q := docstore.Query{Collection: rule.Collection, Filters: rule.Filters, OrderBy: field, Limit: batch}.
			Where(field, docstore.OpLT, cutoff)
		docs, err := s.Store.Query(ctx, q)
		if err != nil {
			return total, fmt.Errorf("query expired %s.%s: %w", rule.Collection, field, err)
		}
		if len(docs) == 0 {
			return total, nil
		}
		ids := make([]string, len(docs))
		for i, d := range docs {
			ids[i] = d.ID
		}
		n, err := s.Store.DeleteMany(ctx, rule.Collection, ids)
		if err != nil {
			return total, fmt.Errorf("delete expired %s: %w", rule.Collection, err)
		}
		total += n
		if len(docs) < batch {
			return total, nil
		}
	}
}
