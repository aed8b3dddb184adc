package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"restopos-backend/internal/docstore"
	"restopos-backend/internal/domain"
	"restopos-backend/internal/events"
)

// PushMessage is a device notification.
type PushMessage struct {
	Title string
	Body  string
	Data  map[string]string
}

// Pusher delivers a message to every device registered for a tenant.
type Pusher interface {
	PushToTenant(ctx context.Context, tenantID string, msg PushMessage) error
}

// NotificationService writes staff notifications for notable document edges.
// Failures never propagate: a missed notification is not worth a retry.
type NotificationService struct {
	Store  docstore.Store
	Logger *slog.Logger
	Push   Pusher
	Now    func() time.Time
}

type notice struct {
	TenantID string
	Type     domain.NotificationType
	Title    string
	Message  string
	Severity domain.Severity
	Data     map[string]string
}

func (s NotificationService) create(ctx context.Context, n notice) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	data := make(map[string]any, len(n.Data))
	for k, v := range n.Data {
		data[k] = v
	}
	id, err := s.Store.Create(ctx, domain.CollectionNotifications, map[string]any{
		"tenantId":  n.TenantID,
		"type":      string(n.Type),
		"title":     n.Title,
		"message":   n.Message,
		"severity":  string(n.Severity),
		"data":      data,
		"createdAt": now.UTC(),
		"seenBy":    map[string]any{},
	})
	if err != nil {
		s.Logger.Error("failed to create notification", "type", n.Type, "tenantId", n.TenantID, "err", err)
		return
	}
	s.Logger.Info("notification created", "notificationId", id, "title", n.Title)

	if s.Push == nil {
		return
	}
	msg := PushMessage{Title: n.Title, Body: n.Message, Data: map[string]string{"notificationId": id, "type": string(n.Type)}}
	for k, v := range n.Data {
		msg.Data[k] = v
	}
	if err := s.Push.PushToTenant(ctx, n.TenantID, msg); err != nil {
		s.Logger.Warn("push delivery failed", "notificationId", id, "err", err)
	}
}

// OnOrderStatus announces orders moving from preparing to serving.
func (s NotificationService) OnOrderStatus(ctx context.Context, c events.Change) error {
	if c.Kind() != events.Updated {
		return nil
	}
	if events.FieldString(c.Before, "status") != string(domain.OrderPreparing) ||
		events.FieldString(c.After, "status") != string(domain.OrderServing) {
		return nil
	}
	tenantID := docstore.TenantOf(c.After)
	if tenantID == "" {
		s.Logger.Warn("order missing tenantId, skipping notification", "orderId", c.DocID)
		return nil
	}
	label := events.FieldString(c.After, "orderIdentifier")
	if label == "" {
		label = c.DocID
	}
	s.create(ctx, notice{
		TenantID: tenantID,
		Type:     domain.NotificationOrderReady,
		Title:    "Order Ready: " + label,
		Message:  "An order is now ready to be served to the customer.",
		Severity: domain.SeverityInfo,
		Data:     map[string]string{"orderId": c.DocID},
	})
	return nil
}

// OnIngredientStock warns when stock first drops to or below the low-stock threshold.
func (s NotificationService) OnIngredientStock(ctx context.Context, c events.Change) error {
	if c.Kind() != events.Updated {
		return nil
	}
	before, err := domain.DecodeIngredient(c.DocID, c.Before)
	if err != nil {
		s.Logger.Warn("skip low stock check", "err", err)
		return nil
	}
	after, err := domain.DecodeIngredient(c.DocID, c.After)
	if err != nil {
		s.Logger.Warn("skip low stock check", "err", err)
		return nil
	}
	if !CrossedLowStock(before.StockQuantity, after.StockQuantity, after.LowStockThreshold) {
		return nil
	}
	if after.TenantID == "" {
		s.Logger.Warn("ingredient missing tenantId, skipping low stock alert", "ingredientId", c.DocID)
		return nil
	}
	s.create(ctx, notice{
		TenantID: after.TenantID,
		Type:     domain.NotificationLowStock,
		Title:    "Low Stock Alert: " + after.Name,
		Message: fmt.Sprintf("Stock for %s is low (%s %s remaining).",
			after.Name, strconv.FormatFloat(after.StockQuantity, 'f', -1, 64), after.Unit),
		Severity: domain.SeverityWarn,
		Data:     map[string]string{"ingredientId": c.DocID},
	})
	return nil
}

// CrossedLowStock is true only on the write that moves stock from above the
// threshold to at or below it.
func CrossedLowStock(before, after, threshold float64) bool {
	return after <= threshold && before > threshold
}

// OnRefundCreated always raises a critical notice for new refunds.
func (s NotificationService) OnRefundCreated(ctx context.Context, c events.Change) error {
	refund, err := domain.DecodeRefund(c.DocID, c.After)
	if err != nil {
		s.Logger.Warn("skip refund notification", "err", err)
		return nil
	}
	if refund.TenantID == "" {
		s.Logger.Warn("refund missing tenantId, skipping notification", "refundId", c.DocID)
		return nil
	}
	s.create(ctx, notice{
		TenantID: refund.TenantID,
		Type:     domain.NotificationRefundProcessed,
		Title:    fmt.Sprintf("Refund Processed: ฿%.2f", refund.TotalRefundAmount),
		Message:  fmt.Sprintf("A refund for order %s has been processed.", refund.OriginalOrderID),
		Severity: domain.SeverityCritical,
		Data:     map[string]string{"refundId": c.DocID, "orderId": refund.OriginalOrderID},
	})
	return nil
}
