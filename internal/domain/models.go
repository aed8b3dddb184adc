package domain

import "time"

// Enumerations
const (
	RoleAdmin   UserRole = "admin"
	RoleManager UserRole = "manager"
	RoleStaff   UserRole = "staff"

	OrderPending   OrderStatus = "pending"
	OrderPreparing OrderStatus = "preparing"
	OrderServing   OrderStatus = "serving"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"

	PurchaseOrderReceived = "received"

	DiscountTypePoints = "points"

	NotificationOrderReady      NotificationType = "ORDER_READY"
	NotificationLowStock        NotificationType = "LOW_STOCK"
	NotificationRefundProcessed NotificationType = "REFUND_PROCESSED"

	SeverityInfo     Severity = "info"
	SeverityWarn     Severity = "warn"
	SeverityCritical Severity = "critical"

	AuditCreate AuditAction = "create"
	AuditUpdate AuditAction = "update"
	AuditDelete AuditAction = "delete"

	SettlementCompleted = "completed"
	SettlementPartial   = "partial"
)

type UserRole string
type OrderStatus string
type NotificationType string
type Severity string
type AuditAction string

// Order is a POS ticket. Money fields are in major currency units.
type Order struct {
	ID              string          `mapstructure:"-"`
	TenantID        string          `mapstructure:"tenantId"`
	StoreID         string          `mapstructure:"storeId"`
	CustomerID      string          `mapstructure:"customerId"`
	CustomerName    string          `mapstructure:"customerName"`
	OrderIdentifier string          `mapstructure:"orderIdentifier"`
	Status          OrderStatus     `mapstructure:"status"`
	Items           []OrderItem     `mapstructure:"items"`
	Subtotal        float64         `mapstructure:"subtotal"`
	Tax             float64         `mapstructure:"tax"`
	Discount        float64         `mapstructure:"discount"`
	Tip             float64         `mapstructure:"tip"`
	Total           float64         `mapstructure:"total"`
	DiscountType    string          `mapstructure:"discountType"`
	PointsRedeemed  float64         `mapstructure:"pointsRedeemed"`
	PromotionCode   string          `mapstructure:"promotionCode"`
	CreatedAt       time.Time       `mapstructure:"createdAt"`
	CompletedAt     time.Time       `mapstructure:"completedAt"`
	Settlement      SettlementState `mapstructure:"settlement"`
}

// Label is the human reference used in notifications and receipts.
func (o Order) Label() string {
	if o.OrderIdentifier != "" {
		return o.OrderIdentifier
	}
	return o.ID
}

type OrderItem struct {
	ID         string  `mapstructure:"id"`
	ProductID  string  `mapstructure:"productId"`
	MenuItemID string  `mapstructure:"menuItemId"`
	Name       string  `mapstructure:"name"`
	Category   string  `mapstructure:"category"`
	Quantity   float64 `mapstructure:"quantity"`
	Price      float64 `mapstructure:"price"`
}

// MenuItemKey returns the catalog id the line refers to.
func (i OrderItem) MenuItemKey() string {
	switch {
	case i.MenuItemID != "":
		return i.MenuItemID
	case i.ProductID != "":
		return i.ProductID
	default:
		return i.ID
	}
}

// SettlementState records which settlement steps have been applied to an order.
type SettlementState struct {
	Status     string    `mapstructure:"status"`
	Promotion  bool      `mapstructure:"promotion"`
	Stock      bool      `mapstructure:"stock"`
	Loyalty    bool      `mapstructure:"loyalty"`
	PunchCards bool      `mapstructure:"punchCards"`
	SettledAt  time.Time `mapstructure:"settledAt"`
}

type Ingredient struct {
	ID                string  `mapstructure:"-"`
	TenantID          string  `mapstructure:"tenantId"`
	Name              string  `mapstructure:"name"`
	Unit              string  `mapstructure:"unit"`
	StockQuantity     float64 `mapstructure:"stockQuantity"`
	LowStockThreshold float64 `mapstructure:"lowStockThreshold"`
	CostPerUnit       float64 `mapstructure:"costPerUnit"`
	TargetStock       float64 `mapstructure:"targetStock"`
}

type MenuItem struct {
	ID         string       `mapstructure:"-"`
	TenantID   string       `mapstructure:"tenantId"`
	Name       string       `mapstructure:"name"`
	Category   string       `mapstructure:"category"`
	Price      float64      `mapstructure:"price"`
	CostPrice  float64      `mapstructure:"costPrice"`
	Recipe     []RecipeLine `mapstructure:"recipe"`
	TrackStock bool         `mapstructure:"trackStock"`
}

type RecipeLine struct {
	IngredientID string  `mapstructure:"ingredientId"`
	Quantity     float64 `mapstructure:"quantity"`
}

type Customer struct {
	ID            string             `mapstructure:"-"`
	TenantID      string             `mapstructure:"tenantId"`
	Name          string             `mapstructure:"name"`
	Email         string             `mapstructure:"email"`
	Tier          string             `mapstructure:"tier"`
	LifetimeSpend float64            `mapstructure:"lifetimeSpend"`
	LoyaltyPoints float64            `mapstructure:"loyaltyPoints"`
	PunchCards    map[string]float64 `mapstructure:"punchCards"`
}

type Refund struct {
	ID                string       `mapstructure:"-"`
	TenantID          string       `mapstructure:"tenantId"`
	OriginalOrderID   string       `mapstructure:"originalOrderId"`
	CustomerID        string       `mapstructure:"customerId"`
	RefundedItems     []RefundItem `mapstructure:"refundedItems"`
	TotalRefundAmount float64      `mapstructure:"totalRefundAmount"`
	Status            string       `mapstructure:"status"`
	ProcessedAt       time.Time    `mapstructure:"processedAt"`
}

type RefundItem struct {
	MenuItemID string  `mapstructure:"menuItemId"`
	Name       string  `mapstructure:"name"`
	Quantity   float64 `mapstructure:"quantity"`
	Price      float64 `mapstructure:"price"`
}

type PurchaseOrder struct {
	ID       string              `mapstructure:"-"`
	TenantID string              `mapstructure:"tenantId"`
	Status   string              `mapstructure:"status"`
	Items    []PurchaseOrderItem `mapstructure:"items"`
}

type PurchaseOrderItem struct {
	ProductID   string  `mapstructure:"productId"`
	ProductName string  `mapstructure:"productName"`
	Quantity    float64 `mapstructure:"quantity"`
	Cost        float64 `mapstructure:"cost"`
}

type WasteRecord struct {
	ID           string  `mapstructure:"-"`
	TenantID     string  `mapstructure:"tenantId"`
	IngredientID string  `mapstructure:"ingredientId"`
	Quantity     float64 `mapstructure:"quantity"`
	Reason       string  `mapstructure:"reason"`
}

type PunchCardCampaign struct {
	ID                   string   `mapstructure:"-"`
	TenantID             string   `mapstructure:"tenantId"`
	Name                 string   `mapstructure:"name"`
	IsActive             bool     `mapstructure:"isActive"`
	ApplicableCategories []string `mapstructure:"applicableCategories"`
}

// Applies reports whether an item category earns a punch on this campaign.
func (c PunchCardCampaign) Applies(category string) bool {
	if category == "" {
		return false
	}
	for _, cat := range c.ApplicableCategories {
		if cat == category {
			return true
		}
	}
	return false
}
