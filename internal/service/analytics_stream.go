package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"restopos-backend/internal/docstore"
	"restopos-backend/internal/domain"
	"restopos-backend/internal/events"
)

// AnalyticsSchemaVersion is bumped whenever the projected record layout changes.
const AnalyticsSchemaVersion = 1

// StreamedCollections are mirrored to the analytics warehouse.
var StreamedCollections = []string{domain.CollectionOrders, domain.CollectionCustomers, domain.CollectionRefunds}

// Publisher sends one message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// AnalyticsEvent is the message published for each document write.
type AnalyticsEvent struct {
	EventID    string         `json:"event_id"`
	EventType  string         `json:"event_type"`
	DocumentID string         `json:"document_id"`
	TenantID   string         `json:"tenant_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Data       map[string]any `json:"data"`
	Metadata   EventMetadata  `json:"metadata"`
}

type EventMetadata struct {
	Source        string `json:"source"`
	SchemaVersion int    `json:"schema_version"`
}

// AnalyticsStreamService mirrors order, customer and refund writes to Kafka.
// A nil Publisher disables streaming.
type AnalyticsStreamService struct {
	Store       docstore.Store
	Publisher   Publisher
	TopicPrefix string
	Logger      *slog.Logger
	Now         func() time.Time
}

func (s AnalyticsStreamService) Enabled() bool { return s.Publisher != nil }

func (s AnalyticsStreamService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Topic returns the topic for a collection.
func (s AnalyticsStreamService) Topic(collection string) string {
	if s.TopicPrefix == "" {
		return collection
	}
	return s.TopicPrefix + "." + collection
}

func eventType(k events.Kind) string {
	switch k {
	case events.Created:
		return "CREATE"
	case events.Deleted:
		return "DELETE"
	default:
		return "UPDATE"
	}
}

// HandleChange publishes one change. Failures are returned so the change is redelivered.
func (s AnalyticsStreamService) HandleChange(ctx context.Context, c events.Change) error {
	if !s.Enabled() {
		return nil
	}
	source := c.After
	if c.Kind() == events.Deleted {
		source = c.Before
	}
	if source == nil {
		return nil
	}
	if err := s.publish(ctx, c.Collection, c.DocID, source, eventType(c.Kind())); err != nil {
		s.Logger.Error("analytics streaming failed", "collection", c.Collection, "docId", c.DocID, "err", err)
		return err
	}
	return nil
}

func (s AnalyticsStreamService) publish(ctx context.Context, collection, docID string, data map[string]any, kind string) error {
	tenantID, _ := data["tenantId"].(string)
	if tenantID == "" {
		s.Logger.Debug("skipping analytics streaming for missing tenant", "collection", collection, "docId", docID)
		return nil
	}
	ts := s.now().UTC()
	evt := AnalyticsEvent{
		EventID:    fmt.Sprintf("%s-%s-%d", collection, docID, ts.UnixMilli()),
		EventType:  kind,
		DocumentID: docID,
		TenantID:   tenantID,
		Timestamp:  ts,
		Data:       AnalyticsRecord(collection, docID, docstore.Normalize(data)),
		Metadata:   EventMetadata{Source: "document-trigger", SchemaVersion: AnalyticsSchemaVersion},
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode analytics event: %w", err)
	}
	return s.Publisher.Publish(ctx, s.Topic(collection), docID, body)
}

// Backfill re-streams every document of collection as an UPDATE. Individual
// failures are logged and left out of the count.
func (s AnalyticsStreamService) Backfill(ctx context.Context, collection string) (int, error) {
	if !s.Enabled() {
		s.Logger.Info("analytics streaming disabled, skipping backfill", "collection", collection)
		return 0, nil
	}
	processed := 0
	after := ""
	for {
		docs, err := s.Store.Query(ctx, docstore.Query{
			Collection: collection,
			OrderBy:    docstore.DocumentID,
			StartAfter: after,
			Limit:      500,
		})
		if err != nil {
			return processed, fmt.Errorf("read %s: %w", collection, err)
		}
		for _, d := range docs {
			if err := s.publish(ctx, collection, d.ID, d.Data, "UPDATE"); err != nil {
				s.Logger.Error("failed to backfill document to analytics", "collection", collection, "docId", d.ID, "err", err)
				continue
			}
			processed++
		}
		if len(docs) < 500 {
			return processed, nil
		}
		after = docs[len(docs)-1].ID
	}
}

// AnalyticsRecord projects a stored document onto the warehouse columns.
func AnalyticsRecord(collection, docID string, data map[string]any) map[string]any {
	num := func(keys ...string) float64 {
		for _, k := range keys {
			if v, ok := data[k]; ok && v != nil {
				if n, ok := toNumber(v); ok {
					return n
				}
			}
		}
		return 0
	}
	rec := map[string]any{"tenant_id": data["tenantId"]}
	optional := func(col, key string) {
		if v, ok := data[key]; ok && v != nil && v != "" {
			rec[col] = v
		}
	}
	switch collection {
	case domain.CollectionOrders:
		rec["order_id"] = docID
		subtotal := num("subtotal", "total")
		tax := num("tax", "taxAmount")
		discount := num("discount", "discountAmount", "totalDiscount")
		tip := num("tip", "tipAmount")
		total := subtotal + tax - discount + tip
		if _, ok := data["total"]; ok {
			total = num("total")
		} else if _, ok := data["grandTotal"]; ok {
			total = num("grandTotal")
		}
		rec["subtotal"], rec["tax"], rec["discount"], rec["tip"], rec["total"] = subtotal, tax, discount, tip, total
		optional("store_id", "storeId")
		optional("customer_id", "customerId")
		optional("status", "status")
		optional("payment_status", "paymentStatus")
		optional("payment_method", "paymentMethod")
		optional("currency", "currency")
		optional("order_created_at", "createdAt")
		optional("order_updated_at", "updatedAt")
		optional("order_closed_at", "completedAt")
		optional("order_closed_at", "closedAt")
		if items, ok := data["items"].([]any); ok {
			rec["item_count"] = len(items)
		}
	case domain.CollectionCustomers:
		rec["customer_id"] = docID
		optional("email", "email")
		optional("phone_number", "phoneNumber")
		optional("loyalty_tier", "tier")
		optional("points_balance", "loyaltyPoints")
		optional("lifetime_value", "lifetimeSpend")
		optional("created_at", "createdAt")
		optional("updated_at", "updatedAt")
	case domain.CollectionRefunds:
		rec["refund_id"] = docID
		rec["amount"] = num("totalRefundAmount", "amount")
		optional("order_id", "originalOrderId")
		optional("reason", "reason")
		optional("status", "status")
		optional("processed_at", "createdAt")
		optional("processed_at", "processedAt")
	default:
		return data
	}
	return rec
}
