package app

import (
	"restopos-backend/internal/domain"
	"restopos-backend/internal/events"
	"restopos-backend/internal/service"
)

// Triggers are the services that react to document writes.
type Triggers struct {
	Settlement    service.SettlementService
	Inventory     service.InventoryService
	Notifications service.NotificationService
	Audit         service.AuditService
	Analytics     service.AnalyticsStreamService
}

// Routes binds every trigger to the changes it handles. Route names are
// persisted with pending deliveries, so renaming one drops its backlog.
func Routes(t Triggers) []events.Route {
	routes := []events.Route{
		{
			Name:        "settleCompletedOrder",
			Collections: []string{domain.CollectionOrders},
			Kinds:       []events.Kind{events.Updated},
			Handle:      t.Settlement.HandleOrderChange,
		},
		{
			Name:        "returnStockOnRefund",
			Collections: []string{domain.CollectionRefunds},
			Kinds:       []events.Kind{events.Created},
			Handle:      t.Inventory.ReturnStockOnRefund,
		},
		{
			Name:        "applyWasteRecord",
			Collections: []string{domain.CollectionWasteRecords},
			Kinds:       []events.Kind{events.Created},
			Handle:      t.Inventory.ApplyWaste,
		},
		{
			Name:        "receivePurchaseOrder",
			Collections: []string{domain.CollectionPurchaseOrders},
			Kinds:       []events.Kind{events.Updated},
			Handle:      t.Inventory.ReceivePurchaseOrder,
		},
		{
			Name:        "notifyOrderReady",
			Collections: []string{domain.CollectionOrders},
			Kinds:       []events.Kind{events.Updated},
			Handle:      t.Notifications.OnOrderStatus,
		},
		{
			Name:        "notifyLowStock",
			Collections: []string{domain.CollectionIngredients},
			Kinds:       []events.Kind{events.Updated},
			Handle:      t.Notifications.OnIngredientStock,
		},
		{
			Name:        "notifyRefund",
			Collections: []string{domain.CollectionRefunds},
			Kinds:       []events.Kind{events.Created},
			Handle:      t.Notifications.OnRefundCreated,
		},
		{
			Name:   "auditLogger",
			Except: []string{domain.CollectionAuditLogs},
			Handle: t.Audit.Record,
		},
	}
	if t.Analytics.Enabled() {
		routes = append(routes, events.Route{
			Name:        "streamAnalytics",
			Collections: service.StreamedCollections,
			Handle:      t.Analytics.HandleChange,
		})
	}
	return routes
}
