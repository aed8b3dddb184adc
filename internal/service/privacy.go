package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"restopos-backend/internal/apperr"
	"restopos-backend/internal/docstore"
	"restopos-backend/internal/domain"
	"restopos-backend/internal/server/authctx"
)

// Privacy log actions.
const (
	PrivacyExport      = "EXPORT"
	PrivacyDelete      = "DELETE"
	PrivacyAdminExport = "ADMIN_EXPORT"
	PrivacyAdminDelete = "ADMIN_DELETE"
)

// PrivacyService exports and erases a customer's personal data.
type PrivacyService struct {
	Store  docstore.Store
	Logger *slog.Logger
	Now    func() time.Time
}

// DocumentSnapshot is one exported document.
type DocumentSnapshot struct {
	ID   string         `json:"id"`
	Data map[string]any `json:"data"`
}

// CustomerDataset is everything stored about a customer.
type CustomerDataset struct {
	CustomerID  string             `json:"customerId"`
	GeneratedAt time.Time          `json:"generatedAt"`
	Customer    map[string]any     `json:"customer"`
	Orders      []DocumentSnapshot `json:"orders"`
	Refunds     []DocumentSnapshot `json:"refunds"`
}

// DeletionResult reports what an erasure touched.
type DeletionResult struct {
	Success         bool      `json:"success"`
	CustomerID      string    `json:"customerId"`
	CustomerDeleted bool      `json:"customerDeleted"`
	OrdersUpdated   int       `json:"ordersUpdated"`
	RefundsUpdated  int       `json:"refundsUpdated"`
	AnonymizedAt    time.Time `json:"anonymizedAt"`
}

func (s PrivacyService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ResolveCustomerID picks the customer a request acts on: the requested id, else the
// caller's customerId claim, else the caller's uid. Non-admins may only act on
// their own uid or linked customer.
func ResolveCustomerID(user *authctx.CurrentUser, requested string) (string, error) {
	if user == nil {
		return "", apperr.New(apperr.Unauthenticated, "Authentication is required for this operation.")
	}
	id := strings.TrimSpace(requested)
	if id == "" {
		id = user.CustomerID
	}
	if id == "" {
		id = user.UID
	}
	if id == "" {
		return "", apperr.New(apperr.InvalidArgument, "A customerId must be provided or linked to the authenticated user.")
	}
	if !user.IsAdmin() && id != user.UID && id != user.CustomerID {
		return "", apperr.New(apperr.PermissionDenied, "You are not allowed to manage this customer data.")
	}
	return id, nil
}

// ExportMyData returns the caller's (or, for admins, any) customer dataset.
func (s PrivacyService) ExportMyData(ctx context.Context, user *authctx.CurrentUser, requested string) (*CustomerDataset, error) {
	customerID, err := ResolveCustomerID(user, requested)
	if err != nil {
		return nil, err
	}
	dataset, err := s.CollectDataset(ctx, customerID)
	if err != nil {
		return nil, err
	}
	s.logAction(ctx, PrivacyExport, user.UID, customerID, map[string]any{
		"isAdmin":     user.IsAdmin(),
		"orderCount":  len(dataset.Orders),
		"refundCount": len(dataset.Refunds),
		"hasProfile":  dataset.Customer != nil,
	})
	return dataset, nil
}

// DeleteMyData anonymizes the customer's orders and refunds and deletes the profile.
func (s PrivacyService) DeleteMyData(ctx context.Context, user *authctx.CurrentUser, requested string) (*DeletionResult, error) {
	customerID, err := ResolveCustomerID(user, requested)
	if err != nil {
		return nil, err
	}
	result, err := s.DeleteCustomer(ctx, customerID)
	if err != nil {
		return nil, err
	}
	s.logAction(ctx, PrivacyDelete, user.UID, customerID, map[string]any{
		"isAdmin":         user.IsAdmin(),
		"customerDeleted": result.CustomerDeleted,
		"ordersUpdated":   result.OrdersUpdated,
		"refundsUpdated":  result.RefundsUpdated,
		"anonymizedAt":    result.AnonymizedAt,
	})
	return result, nil
}

// CollectDataset gathers the profile, orders and refunds of a customer.
func (s PrivacyService) CollectDataset(ctx context.Context, customerID string) (*CustomerDataset, error) {
	dataset := &CustomerDataset{CustomerID: customerID, GeneratedAt: s.now().UTC(), Orders: []DocumentSnapshot{}, Refunds: []DocumentSnapshot{}}
	doc, err := s.Store.Get(ctx, domain.CollectionCustomers, customerID)
	switch {
	case err == nil:
		dataset.Customer = doc.Data
	case !errors.Is(err, docstore.ErrNotFound):
		return nil, fmt.Errorf("load customer: %w", err)
	}
	for _, target := range []struct {
		collection string
		out        *[]DocumentSnapshot
	}{
		{domain.CollectionOrders, &dataset.Orders},
		{domain.CollectionRefunds, &dataset.Refunds},
	} {
		docs, err := s.Store.Query(ctx, docstore.Query{Collection: target.collection}.Where("customerId", docstore.OpEq, customerID))
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", target.collection, err)
		}
		for _, d := range docs {
			*target.out = append(*target.out, DocumentSnapshot{ID: d.ID, Data: d.Data})
		}
	}
	return dataset, nil
}

// DeleteCustomer performs the erasure for one customer id.
func (s PrivacyService) DeleteCustomer(ctx context.Context, customerID string) (*DeletionResult, error) {
	anonymizedAt := s.now().UTC()
	base := map[string]any{
		"customerId":       nil,
		"customer":         nil,
		"customerName":     "Deleted Customer",
		"customerEmail":    nil,
		"customerPhone":    nil,
		"customerNotes":    nil,
		"customerAddress":  nil,
		"privacyDeletedAt": anonymizedAt,
	}
	refundFields := map[string]any{"refundRecipient": nil, "recipientEmail": nil}
	for k, v := range base {
		refundFields[k] = v
	}

	orders, err := s.anonymize(ctx, domain.CollectionOrders, customerID, base)
	if err != nil {
		return nil, err
	}
	refunds, err := s.anonymize(ctx, domain.CollectionRefunds, customerID, refundFields)
	if err != nil {
		return nil, err
	}

	result := &DeletionResult{Success: true, CustomerID: customerID, OrdersUpdated: orders, RefundsUpdated: refunds, AnonymizedAt: anonymizedAt}
	if _, err := s.Store.Get(ctx, domain.CollectionCustomers, customerID); err == nil {
		if err := s.Store.Delete(ctx, domain.CollectionCustomers, customerID); err != nil {
			return nil, fmt.Errorf("delete customer: %w", err)
		}
		result.CustomerDeleted = true
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("load customer: %w", err)
	}
	return result, nil
}

// anonymize overwrites personal fields on every document linked to the customer.
// Individual failures are logged and left out of the count.
func (s PrivacyService) anonymize(ctx context.Context, collection, customerID string, fields map[string]any) (int, error) {
	docs, err := s.Store.Query(ctx, docstore.Query{Collection: collection}.Where("customerId", docstore.OpEq, customerID))
	if err != nil {
		return 0, fmt.Errorf("find %s for customer: %w", collection, err)
	}
	updates := make([]docstore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, docstore.SetField(k, v))
	}
	processed := 0
	for _, d := range docs {
		if err := s.Store.Update(ctx, collection, d.ID, updates...); err != nil {
			s.Logger.Error("failed to anonymize document", "collection", collection, "docId", d.ID, "err", err)
			continue
		}
		processed++
	}
	return processed, nil
}

func (s PrivacyService) logAction(ctx context.Context, action, actorID, customerID string, payload map[string]any) {
	if actorID == "" {
		actorID = "unknown"
	}
	_, err := s.Store.Create(ctx, domain.CollectionPrivacyOpsLogs, map[string]any{
		"action":     action,
		"actorId":    actorID,
		"customerId": customerID,
		"payload":    payload,
		"createdAt":  s.now().UTC(),
	})
	if err != nil {
		s.Logger.Error("failed to persist privacy action log", "action", action, "actorId", actorID, "customerId", customerID, "err", err)
	}
}
