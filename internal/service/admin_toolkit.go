package service

import (
	"context"
	"strings"

	"restopos-backend/internal/apperr"
	"restopos-backend/internal/domain"
	"restopos-backend/internal/server/authctx"
)

// AdminToolkitRequest is the payload of the adminToolkit callable.
type AdminToolkitRequest struct {
	Action     string `json:"action"`
	CustomerID string `json:"customerId"`
	Collection string `json:"collection"`
}

// AdminToolkit runs privileged maintenance actions.
type AdminToolkit struct {
	Privacy   PrivacyService
	Analytics AnalyticsStreamService
}

// AnalyticsBackfillResult is returned by backfillAnalytics.
type AnalyticsBackfillResult struct {
	Success    bool   `json:"success"`
	Collection string `json:"collection"`
	Processed  int    `json:"processed"`
}

func (t AdminToolkit) Run(ctx context.Context, user *authctx.CurrentUser, req AdminToolkitRequest) (any, error) {
	if user == nil || !user.IsAdmin() {
		return nil, apperr.New(apperr.PermissionDenied, "Admin privileges are required to use the admin toolkit.")
	}
	action := strings.TrimSpace(req.Action)
	if action == "" {
		return nil, apperr.New(apperr.InvalidArgument, "An admin action must be specified.")
	}
	customerID := strings.TrimSpace(req.CustomerID)

	switch action {
	case "exportCustomerData":
		if customerID == "" {
			return nil, apperr.New(apperr.InvalidArgument, "customerId is required for exportCustomerData action.")
		}
		dataset, err := t.Privacy.CollectDataset(ctx, customerID)
		if err != nil {
			return nil, err
		}
		t.Privacy.logAction(ctx, PrivacyAdminExport, user.UID, customerID, map[string]any{
			"orderCount":  len(dataset.Orders),
			"refundCount": len(dataset.Refunds),
		})
		return dataset, nil
	case "deleteCustomerData":
		if customerID == "" {
			return nil, apperr.New(apperr.InvalidArgument, "customerId is required for deleteCustomerData action.")
		}
		result, err := t.Privacy.DeleteCustomer(ctx, customerID)
		if err != nil {
			return nil, err
		}
		t.Privacy.logAction(ctx, PrivacyAdminDelete, user.UID, customerID, map[string]any{
			"customerDeleted": result.CustomerDeleted,
			"ordersUpdated":   result.OrdersUpdated,
			"refundsUpdated":  result.RefundsUpdated,
			"anonymizedAt":    result.AnonymizedAt,
		})
		return result, nil
	case "backfillAnalytics":
		collection := strings.TrimSpace(req.Collection)
		if collection == "" {
			collection = domain.CollectionOrders
		}
		switch collection {
		case domain.CollectionOrders, domain.CollectionCustomers, domain.CollectionRefunds:
		default:
			return nil, apperr.New(apperr.InvalidArgument, "Unsupported analytics collection: %s", collection)
		}
		processed, err := t.Analytics.Backfill(ctx, collection)
		if err != nil {
			return nil, err
		}
		return AnalyticsBackfillResult{Success: true, Collection: collection, Processed: processed}, nil
	default:
		return nil, apperr.New(apperr.InvalidArgument, "Unsupported admin toolkit action: %s", action)
	}
}
