package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restopos-backend/internal/docstore"
	"restopos-backend/internal/docstore/docstoretest"
	"restopos-backend/internal/domain"
	"restopos-backend/internal/events"
	"restopos-backend/internal/logger"
)

func seedKitchen(store *docstoretest.Store) {
	store.Seed(domain.CollectionMenuItems, "latte", map[string]any{
		"tenantId": "t1", "name": "Latte", "category": "coffee", "price": 120.0, "costPrice": 40.0,
		"recipe": []any{
			map[string]any{"ingredientId": "milk", "quantity": 0.3},
			map[string]any{"ingredientId": "beans", "quantity": 0.02},
		},
	})
	store.Seed(domain.CollectionMenuItems, "cookie", map[string]any{
		"tenantId": "t1", "name": "Cookie", "category": "bakery", "price": 60.0, "costOfGoods": 10.0,
	})
	store.Seed(domain.CollectionIngredients, "milk", map[string]any{"tenantId": "t1", "name": "Milk", "unit": "l", "stockQuantity": 20.0})
	store.Seed(domain.CollectionIngredients, "beans", map[string]any{"tenantId": "t1", "name": "Beans", "unit": "kg", "stockQuantity": 5.0})
	store.Seed(domain.CollectionIngredients, "cookie", map[string]any{"tenantId": "t1", "name": "Cookie", "unit": "pc", "currentStock": 30.0})
}

func completedOrder(extra map[string]any) map[string]any {
	order := map[string]any{
		"tenantId":        "t1",
		"orderIdentifier": "A-12",
		"status":          "completed",
		"total":           300.0,
		"items": []any{
			map[string]any{"menuItemId": "latte", "name": "Latte", "category": "coffee", "quantity": 2.0, "price": 120.0},
			map[string]any{"productId": "cookie", "name": "Cookie", "category": "bakery", "quantity": 1.0, "price": 60.0},
		},
	}
	for k, v := range extra {
		order[k] = v
	}
	return order
}

func stockOf(t *testing.T, store *docstoretest.Store, id string) float64 {
	t.Helper()
	data := store.Data(domain.CollectionIngredients, id)
	require.NotNil(t, data, id)
	for _, field := range []string{"stockQuantity", "currentStock"} {
		if v, ok := docstore.AsFloat(data[field]); ok {
			return v
		}
	}
	t.Fatalf("ingredient %s has no stock field", id)
	return 0
}

func TestSettleAppliesEveryStep(t *testing.T) {
	store := docstoretest.New()
	seedKitchen(store)
	store.Seed(domain.CollectionCustomers, "c1", map[string]any{"tenantId": "t1", "lifetimeSpend": 4900.0, "loyaltyPoints": 5.0, "tier": "SILVER"})
	store.Seed(domain.CollectionPromotions, "p1", map[string]any{"code": "SAVE10", "timesUsed": 3.0})
	store.Seed(domain.CollectionPunchCardCampaigns, "coffee-club", map[string]any{"tenantId": "t1", "isActive": true, "applicableCategories": []any{"coffee"}})
	store.Seed(domain.CollectionPunchCardCampaigns, "other-tenant", map[string]any{"tenantId": "t2", "isActive": true, "applicableCategories": []any{"coffee"}})
	store.Seed(domain.CollectionOrders, "o1", completedOrder(map[string]any{"customerId": "c1", "promotionCode": "SAVE10"}))

	svc := SettlementService{Store: store, Logger: logger.Discard()}
	res, err := svc.Settle(context.Background(), "o1")
	require.NoError(t, err)

	assert.Equal(t, domain.SettlementCompleted, res.Status)
	assert.InDelta(t, 90, res.CostOfGoodsSold, 1e-9)
	assert.InDelta(t, 300-res.CostOfGoodsSold, res.GrossProfit, 1e-9)

	assert.InDelta(t, 19.4, stockOf(t, store, "milk"), 1e-9)
	assert.InDelta(t, 4.96, stockOf(t, store, "beans"), 1e-9)
	assert.InDelta(t, 29, stockOf(t, store, "cookie"), 1e-9)

	assert.Equal(t, 4.0, store.Data(domain.CollectionPromotions, "p1")["timesUsed"])

	customer := store.Data(domain.CollectionCustomers, "c1")
	assert.Equal(t, 5200.0, customer["lifetimeSpend"])
	assert.Equal(t, 35.0, customer["loyaltyPoints"])
	assert.Equal(t, "GOLD", customer["tier"])
	assert.Equal(t, map[string]any{"coffee-club": 2.0}, customer["punchCards"])

	order := store.Data(domain.CollectionOrders, "o1")
	assert.Equal(t, 90.0, order["totalCostOfGoodsSold"])
	assert.Equal(t, 210.0, order["grossProfit"])
	assert.NotEmpty(t, order["completedAt"])
	settlement := order["settlement"].(map[string]any)
	assert.Equal(t, "completed", settlement["status"])
	for _, step := range []string{"promotion", "stock", "loyalty", "punchCards"} {
		assert.Equal(t, true, settlement[step], step)
	}

	again, err := svc.Settle(context.Background(), "o1")
	require.NoError(t, err)
	assert.True(t, again.Skipped)
	assert.InDelta(t, 19.4, stockOf(t, store, "milk"), 1e-9)
	assert.Equal(t, 5200.0, store.Data(domain.CollectionCustomers, "c1")["lifetimeSpend"])
}

func TestHandleOrderChangeActsOnCompletedEdgeOnly(t *testing.T) {
	store := docstoretest.New()
	seedKitchen(store)
	store.Seed(domain.CollectionOrders, "o1", completedOrder(nil))
	svc := SettlementService{Store: store, Logger: logger.Discard()}
	ctx := context.Background()

	require.NoError(t, svc.HandleOrderChange(ctx, events.Change{
		Collection: domain.CollectionOrders, DocID: "o1",
		Before: nil, After: map[string]any{"status": "completed"},
	}))
	require.NoError(t, svc.HandleOrderChange(ctx, events.Change{
		Collection: domain.CollectionOrders, DocID: "o1",
		Before: map[string]any{"status": "completed"}, After: map[string]any{"status": "completed", "note": "x"},
	}))
	assert.InDelta(t, 20, stockOf(t, store, "milk"), 1e-9, "no settlement without a transition")

	require.NoError(t, svc.HandleOrderChange(ctx, events.Change{
		Collection: domain.CollectionOrders, DocID: "o1",
		Before: map[string]any{"status": "serving"}, After: map[string]any{"status": "completed"},
	}))
	assert.InDelta(t, 19.4, stockOf(t, store, "milk"), 1e-9)
}

func TestSettleRedeliveryRunsOnlyFailedLoyalty(t *testing.T) {
	store := docstoretest.New()
	seedKitchen(store)
	store.Seed(domain.CollectionCustomers, "c1", map[string]any{"tenantId": "t1", "lifetimeSpend": 0.0})
	store.Seed(domain.CollectionOrders, "o1", completedOrder(map[string]any{"customerId": "c1"}))

	failing := true
	store.FailUpdate = func(collection, id string) error {
		if failing && collection == domain.CollectionCustomers {
			return errors.New("write conflict")
		}
		return nil
	}
	svc := SettlementService{Store: store, Logger: logger.Discard()}

	res, err := svc.Settle(context.Background(), "o1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loyalty")
	assert.Equal(t, domain.SettlementPartial, res.Status)
	assert.InDelta(t, 19.4, stockOf(t, store, "milk"), 1e-9)
	settlement := store.Data(domain.CollectionOrders, "o1")["settlement"].(map[string]any)
	assert.Equal(t, true, settlement["stock"])
	assert.Nil(t, settlement["loyalty"])

	failing = false
	res, err = svc.Settle(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementCompleted, res.Status)
	assert.InDelta(t, 19.4, stockOf(t, store, "milk"), 1e-9, "stock deducted once")
	assert.Equal(t, 300.0, store.Data(domain.CollectionCustomers, "c1")["lifetimeSpend"])
}

func TestSettleToleratesMissingReferences(t *testing.T) {
	store := docstoretest.New()
	store.Seed(domain.CollectionOrders, "o1", completedOrder(map[string]any{"customerId": "ghost", "promotionCode": "NOPE"}))
	svc := SettlementService{Store: store, Logger: logger.Discard()}

	res, err := svc.Settle(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.SettlementCompleted, res.Status)
	assert.Zero(t, res.CostOfGoodsSold)
	assert.Equal(t, 300.0, res.GrossProfit)

	res, err = svc.Settle(context.Background(), "missing")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestSettleAcceptsEpochTimestamps(t *testing.T) {
	store := docstoretest.New()
	seedKitchen(store)
	store.Seed(domain.CollectionCustomers, "c1", map[string]any{"tenantId": "t1"})
	store.Seed(domain.CollectionOrders, "o1", completedOrder(map[string]any{
		"customerId":  "c1",
		"createdAt":   1700000000000.0,
		"completedAt": map[string]any{"_seconds": 1700000600.0, "_nanoseconds": 0.0},
	}))
	svc := SettlementService{Store: store, Logger: logger.Discard()}

	res, err := svc.Settle(context.Background(), "o1")
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, domain.SettlementCompleted, res.Status)
	assert.InDelta(t, 19.4, stockOf(t, store, "milk"), 1e-9)
	assert.Equal(t, 300.0, store.Data(domain.CollectionCustomers, "c1")["lifetimeSpend"])
	assert.Equal(t, 210.0, store.Data(domain.CollectionOrders, "o1")["grossProfit"])
}

func TestSettleUndecodableOrderIsRetried(t *testing.T) {
	store := docstoretest.New()
	seedKitchen(store)
	store.Seed(domain.CollectionOrders, "o1", completedOrder(map[string]any{"createdAt": "last tuesday"}))
	svc := SettlementService{Store: store, Logger: logger.Discard()}

	err := svc.HandleOrderChange(context.Background(), events.Change{
		Collection: domain.CollectionOrders, DocID: "o1",
		Before: map[string]any{"status": "serving"}, After: map[string]any{"status": "completed"},
	})
	var de *domain.DecodeError
	require.ErrorAs(t, err, &de)
	assert.InDelta(t, 20, stockOf(t, store, "milk"), 1e-9)
	assert.Nil(t, store.Data(domain.CollectionOrders, "o1")["settlement"])
}

func TestRefundReturnsSettledStock(t *testing.T) {
	store := docstoretest.New()
	seedKitchen(store)
	store.Seed(domain.CollectionOrders, "o1", completedOrder(nil))
	before := map[string]float64{}
	for _, id := range []string{"milk", "beans", "cookie"} {
		before[id] = stockOf(t, store, id)
	}

	_, err := SettlementService{Store: store, Logger: logger.Discard()}.Settle(context.Background(), "o1")
	require.NoError(t, err)

	inv := InventoryService{Store: store, Logger: logger.Discard()}
	require.NoError(t, inv.ReturnStockOnRefund(context.Background(), events.Change{
		Collection: domain.CollectionRefunds, DocID: "r1",
		After: map[string]any{
			"tenantId": "t1", "originalOrderId": "o1",
			"refundedItems": []any{
				map[string]any{"menuItemId": "latte", "quantity": 2.0},
				map[string]any{"menuItemId": "cookie", "quantity": 1.0},
			},
		},
	}))
	for id, want := range before {
		assert.InDelta(t, want, stockOf(t, store, id), 1e-4, id)
	}
}

func TestLoyaltyUpdates(t *testing.T) {
	apply := func(order domain.Order, customer domain.Customer) map[string]any {
		data := map[string]any{
			"lifetimeSpend": customer.LifetimeSpend,
			"loyaltyPoints": customer.LoyaltyPoints,
		}
		docstore.ApplyUpdates(data, LoyaltyUpdates(order, customer))
		return data
	}

	t.Run("reaches gold at 5000", func(t *testing.T) {
		got := apply(domain.Order{Total: 5000}, domain.Customer{})
		assert.Equal(t, "GOLD", got["tier"])
		assert.Equal(t, 500.0, got["loyaltyPoints"])
	})
	t.Run("stays silver just below", func(t *testing.T) {
		got := apply(domain.Order{Total: 4999.99}, domain.Customer{Tier: "SILVER"})
		assert.NotContains(t, got, "tier")
		assert.Equal(t, 499.0, got["loyaltyPoints"])
	})
	t.Run("earns at current tier rate while upgrading", func(t *testing.T) {
		got := apply(domain.Order{Total: 5000}, domain.Customer{Tier: "GOLD", LifetimeSpend: 15000})
		assert.Equal(t, "PLATINUM", got["tier"])
		assert.Equal(t, 600.0, got["loyaltyPoints"])
		assert.Equal(t, 20000.0, got["lifetimeSpend"])
	})
	t.Run("paying with points only deducts", func(t *testing.T) {
		got := apply(domain.Order{Total: 250, DiscountType: domain.DiscountTypePoints, PointsRedeemed: 100},
			domain.Customer{LoyaltyPoints: 400, LifetimeSpend: 1000})
		assert.Equal(t, 300.0, got["loyaltyPoints"])
		assert.Equal(t, 1000.0, got["lifetimeSpend"])
	})
}

func TestPunchCardUpdatesSumPerCampaign(t *testing.T) {
	items := []domain.OrderItem{
		{Category: "coffee", Quantity: 2},
		{Category: "tea", Quantity: 1},
		{Category: "coffee", Quantity: 1},
		{Category: "", Quantity: 5},
	}
	campaigns := []domain.PunchCardCampaign{
		{ID: "a", ApplicableCategories: []string{"coffee"}},
		{ID: "b", ApplicableCategories: []string{"coffee", "tea"}},
		{ID: "c", ApplicableCategories: []string{"juice"}},
	}
	data := map[string]any{}
	docstore.ApplyUpdates(data, PunchCardUpdates(items, campaigns))
	assert.Equal(t, map[string]any{"a": 3.0, "b": 4.0}, data["punchCards"])
}
