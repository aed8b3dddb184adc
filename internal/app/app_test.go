package app

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restopos-backend/internal/config"
	"restopos-backend/internal/docstore/docstoretest"
	"restopos-backend/internal/domain"
	"restopos-backend/internal/events"
	"restopos-backend/internal/logger"
	"restopos-backend/internal/mail"
	"restopos-backend/internal/service"
)

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, string, []byte) error { return nil }

func triggers(store *docstoretest.Store) Triggers {
	log := logger.Discard()
	return Triggers{
		Settlement:    service.SettlementService{Store: store, Logger: log},
		Inventory:     service.InventoryService{Store: store, Logger: log},
		Notifications: service.NotificationService{Store: store, Logger: log},
		Audit:         service.AuditService{Store: store, Logger: log},
		Analytics:     service.AnalyticsStreamService{Store: store, Logger: log},
	}
}

func routeNames(routes []events.Route) []string {
	names := make([]string, 0, len(routes))
	for _, r := range routes {
		names = append(names, r.Name)
	}
	return names
}

func TestRoutesStreamOnlyWhenPublisherConfigured(t *testing.T) {
	tr := triggers(docstoretest.New())
	names := routeNames(Routes(tr))
	assert.NotContains(t, names, "streamAnalytics")
	assert.Contains(t, names, "auditLogger")

	tr.Analytics.Publisher = nopPublisher{}
	assert.Contains(t, routeNames(Routes(tr)), "streamAnalytics")

	seen := map[string]bool{}
	for _, n := range names {
		assert.False(t, seen[n], "duplicate route %s", n)
		seen[n] = true
	}
}

func TestWasteRecordFlowsThroughRoutes(t *testing.T) {
	store := docstoretest.New()
	store.Seed(domain.CollectionIngredients, "milk", map[string]any{"tenantId": "t1", "name": "Milk", "stockQuantity": 10.0})
	d := &events.Dispatcher{Routes: Routes(triggers(store)), Logger: logger.Discard()}
	ctx := context.Background()

	failed, _ := d.Deliver(ctx, events.Claimed{Change: events.Change{
		ID: 1, Collection: domain.CollectionWasteRecords, DocID: "w1",
		After: map[string]any{"tenantId": "t1", "ingredientId": "milk", "quantity": 2.0},
	}})
	assert.Empty(t, failed)
	assert.Equal(t, 8.0, store.Data(domain.CollectionIngredients, "milk")["stockQuantity"])

	logs := store.All(domain.CollectionAuditLogs)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.CollectionWasteRecords, logs[0].Data["collection"])

	// Audit entries never audit themselves.
	failed, _ = d.Deliver(ctx, events.Claimed{Change: events.Change{
		ID: 2, Collection: domain.CollectionAuditLogs, DocID: logs[0].ID, After: logs[0].Data,
	}})
	assert.Empty(t, failed)
	assert.Len(t, store.All(domain.CollectionAuditLogs), 1)
}

func TestNewMailer(t *testing.T) {
	assert.Nil(t, NewMailer(config.Config{}))
	assert.IsType(t, mail.SendGrid{}, NewMailer(config.Config{SendGridAPIKey: "SG.x", SMTPHost: "smtp.example.com"}))
	m := NewMailer(config.Config{SMTPHost: "smtp.example.com", SMTPPort: 587, SendGridFromEmail: "pos@example.com"})
	require.IsType(t, mail.SMTP{}, m)
	assert.Equal(t, "pos@example.com", m.(mail.SMTP).FromEmail)
}

func TestFirebaseOptions(t *testing.T) {
	assert.Nil(t, FirebaseOptions(config.Config{}))
	assert.Len(t, FirebaseOptions(config.Config{FirebaseCredFile: `{"type":"service_account"}`}), 1)
	encoded := base64.StdEncoding.EncodeToString([]byte(`{"type":"service_account"}`))
	assert.Len(t, FirebaseOptions(config.Config{FirebaseCredFile: encoded}), 1)
	assert.Len(t, FirebaseOptions(config.Config{FirebaseCredFile: "/secrets/firebase.json"}), 1)
}
