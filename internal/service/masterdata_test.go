package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"restopos-backend/internal/domain"
)

func TestValidateMasterDataCollectsEveryProblem(t *testing.T) {
	problems := ValidateMasterData(domain.CollectionMenuItems, map[string]any{
		"name":             "  ",
		"price":            50.0,
		"costPrice":        80.0,
		"kitchenStations":  []any{"grill", ""},
		"trackStock":       "yes",
		"recipe":           []any{map[string]any{"quantity": 0.0}},
		"prepTimeMinutes":  -1.0,
		"modifierGroupIds": []any{"g1"},
	})
	assert.ElementsMatch(t, []string{
		`Field "name" cannot be empty`,
		`Missing required field "category"`,
		"costPrice cannot exceed price",
		"kitchenStations[1] must be a non-empty string",
		`Field "trackStock" must be a boolean`,
		"recipe[0].ingredientId is required",
		"recipe[0].quantity must be greater than 0",
		"prepTimeMinutes must be >= 0",
	}, problems)
}

func TestValidateMasterDataAcceptsValidDocuments(t *testing.T) {
	cases := map[string]map[string]any{
		domain.CollectionMenuItems: {
			"name": "Latte", "category": "coffee", "price": 120.0, "costOfGoods": "40",
			"recipe": []any{map[string]any{"ingredientId": "milk", "quantity": 0.3}},
		},
		domain.CollectionIngredients: {
			"name": "Milk", "unit": "l", "currentStock": 10.0, "targetStock": 20.0, "lowStockThreshold": 2.0,
		},
		domain.CollectionModifierGroups: {
			"groupName": "Size", "selectionType": "SINGLE",
			"options": []any{map[string]any{"optionName": "Large", "priceChange": "15"}},
		},
		domain.CollectionStores: {
			"name": "Siam", "timezone": "Asia/Bangkok", "tenantId": "t1", "isActive": true,
			"currencySettings": map[string]any{"code": "THB", "symbol": "฿", "decimalDigits": 2.0},
		},
		domain.CollectionOrders: {"anything": "goes"},
	}
	for collection, data := range cases {
		assert.Empty(t, ValidateMasterData(collection, data), collection)
	}
}

func TestValidateMasterDataRanges(t *testing.T) {
	assert.Equal(t, []string{"targetStock cannot be less than stockQuantity"},
		ValidateMasterData(domain.CollectionIngredients, map[string]any{"name": "Milk", "unit": "l", "stockQuantity": 10.0, "targetStock": 5.0}))

	assert.Equal(t, []string{`Field "stockQuantity" must be >= 0`},
		ValidateMasterData(domain.CollectionIngredients, map[string]any{"name": "Milk", "unit": "l", "stockQuantity": -1.0}))

	assert.ElementsMatch(t, []string{
		"Invalid timezone: Mars/Olympus",
		`Field "currencySettings.decimalDigits" must be <= 4`,
		"currencySettings.decimalDigits must be an integer",
	}, ValidateMasterData(domain.CollectionStores, map[string]any{
		"name": "Siam", "timezone": "Mars/Olympus", "tenantId": "t1",
		"currencySettings": map[string]any{"code": "THB", "symbol": "฿", "decimalDigits": 4.5},
	}))

	assert.Equal(t, []string{"currencySettings is required"},
		ValidateMasterData(domain.CollectionStores, map[string]any{"name": "Siam", "timezone": "UTC", "tenantId": "t1"}))
}

func TestBuildBackfillUpdates(t *testing.T) {
	updates := BuildBackfillUpdates(domain.CollectionMenuItems, map[string]any{
		"name": "  Thai Tea ", "price": "65", "costOfGoods": 20.0,
	})
	assert.Equal(t, map[string]any{
		"name":           "Thai Tea",
		"nameNormalized": "thai tea",
		"price":          65.0,
		"schemaVersion":  1,
	}, updates)

	updates = BuildBackfillUpdates(domain.CollectionModifierGroups, map[string]any{
		"groupName": "Sweetness", "selectionType": "single", "schemaVersion": 1.0,
		"options": []any{map[string]any{"optionName": " Less ", "priceChange": "0"}},
	})
	assert.Equal(t, "SINGLE", updates["selectionType"])
	assert.Equal(t, []any{map[string]any{"optionName": "Less", "priceChange": 0.0}}, updates["options"])
	assert.NotContains(t, updates, "schemaVersion")

	assert.Empty(t, BuildBackfillUpdates(domain.CollectionOrders, map[string]any{"name": " x "}))
}

func TestNormalizeBackfillBatchSize(t *testing.T) {
	assert.Equal(t, 50, NormalizeBackfillBatchSize(0))
	assert.Equal(t, 50, NormalizeBackfillBatchSize(-3))
	assert.Equal(t, 120, NormalizeBackfillBatchSize(120))
	assert.Equal(t, 500, NormalizeBackfillBatchSize(1000))
}
