package domain

// Document collections.
const (
	CollectionOrders             = "orders"
	CollectionIngredients        = "ingredients"
	CollectionMenuItems          = "menu_items"
	CollectionCustomers          = "customers"
	CollectionRefunds            = "refunds"
	CollectionPurchaseOrders     = "purchase_orders"
	CollectionWasteRecords       = "waste_records"
	CollectionPromotions         = "promotions"
	CollectionPunchCardCampaigns = "punch_card_campaigns"
	CollectionNotifications      = "notifications"
	CollectionAuditLogs          = "auditLogs"
	CollectionAnalyticsHourly    = "analytics_hourly"
	CollectionAnalyticsDaily     = "analytics_daily"
	CollectionAnalyticsExports   = "analytics_exports"
	CollectionOpsLogs            = "opsLogs"
	CollectionPrivacyOpsLogs     = "privacyOpsLogs"
	CollectionModifierGroups     = "modifierGroups"
	CollectionStores             = "stores"
	CollectionFeatureFlags       = "featureFlags"
)

// AllTenantsKey is the synthetic tenant that aggregates every tenant.
const AllTenantsKey = "ALL"

// DefaultTenant stands in for documents that carry no tenantId.
const DefaultTenant = "default"
