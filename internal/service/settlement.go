package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"restopos-backend/internal/docstore"
	"restopos-backend/internal/domain"
	"restopos-backend/internal/events"
)

// SettlementService applies the side effects of an order reaching completed.
//
// Every step that mutates another document records a marker under the order's
// settlement field in the same transaction, so a redelivered change only runs the
// steps that did not finish. Stock and loyalty failures are returned to the
// dispatcher for retry; promotion and punch-card failures are logged only.
type SettlementService struct {
	Store  docstore.Store
	Logger *slog.Logger
	Now    func() time.Time
}

// SettlementResult summarizes one settlement run.
type SettlementResult struct {
	CostOfGoodsSold float64
	GrossProfit     float64
	Status          string
	Skipped         bool
}

func (s SettlementService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// HandleOrderChange is the dispatcher entry point for orders.
func (s SettlementService) HandleOrderChange(ctx context.Context, c events.Change) error {
	if c.Kind() != events.Updated {
		return nil
	}
	before := events.FieldString(c.Before, "status")
	after := events.FieldString(c.After, "status")
	if before == string(domain.OrderCompleted) || after != string(domain.OrderCompleted) {
		return nil
	}
	_, err := s.Settle(ctx, c.DocID)
	return err
}

// Settle runs the unfinished settlement steps of a completed order.
func (s SettlementService) Settle(ctx context.Context, orderID string) (SettlementResult, error) {
	log := s.Logger.With("orderId", orderID)
	doc, err := s.Store.Get(ctx, domain.CollectionOrders, orderID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			log.Warn("completed order vanished before settlement")
			return SettlementResult{Skipped: true}, nil
		}
		return SettlementResult{}, fmt.Errorf("load order: %w", err)
	}
	order, err := domain.DecodeOrder(doc.ID, doc.Data)
	if err != nil {
		log.Error("order does not decode, settlement deferred", "err", err)
		return SettlementResult{}, fmt.Errorf("decode order: %w", err)
	}
	if order.Settlement.Status == domain.SettlementCompleted {
		log.Debug("order already settled")
		return SettlementResult{Skipped: true, Status: domain.SettlementCompleted}, nil
	}
	state := order.Settlement

	cogs, err := s.costOfGoods(ctx, order)
	if err != nil {
		return SettlementResult{}, err
	}
	grossProfit := order.Total - cogs
	log.Info("order settlement started", "total", order.Total, "cogs", cogs, "grossProfit", grossProfit)

	var retry []error
	complete := true

	if !state.Promotion && order.PromotionCode != "" {
		if err := s.redeemPromotion(ctx, order); err != nil {
			log.Error("promotion usage increment failed", "code", order.PromotionCode, "err", err)
			complete = false
		}
	}

	if !state.Stock && len(order.Items) > 0 {
		if err := s.deductStock(ctx, order); err != nil {
			log.Error("stock deduction failed", "err", err)
			retry = append(retry, fmt.Errorf("stock: %w", err))
			complete = false
		}
	}

	if order.CustomerID != "" {
		if !state.Loyalty {
			if err := s.settleLoyalty(ctx, order); err != nil {
				log.Error("loyalty settlement failed", "customerId", order.CustomerID, "err", err)
				retry = append(retry, fmt.Errorf("loyalty: %w", err))
				complete = false
			}
		}
		if !state.PunchCards && len(order.Items) > 0 {
			if err := s.applyPunchCards(ctx, order); err != nil {
				log.Error("punch card update failed", "customerId", order.CustomerID, "err", err)
				complete = false
			}
		}
	}

	status := domain.SettlementPartial
	if complete {
		status = domain.SettlementCompleted
	}
	updates := []docstore.Update{
		docstore.SetField("totalCostOfGoodsSold", cogs),
		docstore.SetField("grossProfit", grossProfit),
		docstore.SetField("settlement.status", status),
		docstore.SetField("settlement.settledAt", s.now().UTC()),
	}
	if order.CompletedAt.IsZero() {
		updates = append(updates, docstore.SetField("completedAt", s.now().UTC()))
	}
	if err := s.Store.Update(ctx, domain.CollectionOrders, order.ID, updates...); err != nil {
		log.Error("persist settlement figures failed", "err", err)
		retry = append(retry, fmt.Errorf("persist: %w", err))
	}

	result := SettlementResult{CostOfGoodsSold: cogs, GrossProfit: grossProfit, Status: status}
	if len(retry) > 0 {
		return result, errors.Join(retry...)
	}
	log.Info("order settled", "status", status)
	return result, nil
}

// costOfGoods sums costPrice*quantity; items whose menu item is missing cost nothing.
func (s SettlementService) costOfGoods(ctx context.Context, order domain.Order) (float64, error) {
	if len(order.Items) == 0 {
		return 0, nil
	}
	ids := uniqueSorted(func(yield func(string)) {
		for _, it := range order.Items {
			yield(it.MenuItemKey())
		}
	})
	docs, err := s.Store.GetMany(ctx, domain.CollectionMenuItems, ids)
	if err != nil {
		return 0, fmt.Errorf("load menu items: %w", err)
	}
	costs := make(map[string]float64, len(docs))
	for id, doc := range docs {
		item, err := domain.DecodeMenuItem(id, doc.Data)
		if err != nil {
			s.Logger.Warn("menu item cost unreadable, counted as zero", "err", err)
			continue
		}
		costs[id] = item.CostPrice
	}
	var total float64
	for _, it := range order.Items {
		total += costs[it.MenuItemKey()] * it.Quantity
	}
	return total, nil
}

func (s SettlementService) redeemPromotion(ctx context.Context, order domain.Order) error {
	promos, err := s.Store.Query(ctx, docstore.Query{Collection: domain.CollectionPromotions, Limit: 1}.
		Where("code", docstore.OpEq, order.PromotionCode))
	if err != nil {
		return err
	}
	return s.Store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if len(promos) > 0 {
			if err := tx.Update(ctx, domain.CollectionPromotions, promos[0].ID, docstore.Increment("timesUsed", 1)); err != nil {
				return err
			}
		} else {
			s.Logger.Warn("promotion code not found", "orderId", order.ID, "code", order.PromotionCode)
		}
		return tx.Update(ctx, domain.CollectionOrders, order.ID, docstore.SetField("settlement.promotion", true))
	})
}

func (s SettlementService) deductStock(ctx context.Context, order domain.Order) error {
	lines := make([]soldLine, 0, len(order.Items))
	for _, it := range order.Items {
		lines = append(lines, soldLine{MenuItemID: it.MenuItemKey(), Quantity: it.Quantity})
	}
	return s.Store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if err := adjustStock(ctx, tx, lines, -1, s.Logger.With("orderId", order.ID)); err != nil {
			return err
		}
		return tx.Update(ctx, domain.CollectionOrders, order.ID, docstore.SetField("settlement.stock", true))
	})
}

func (s SettlementService) settleLoyalty(ctx context.Context, order domain.Order) error {
	return s.Store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		doc, err := tx.Get(ctx, domain.CollectionCustomers, order.CustomerID)
		switch {
		case errors.Is(err, docstore.ErrNotFound):
			s.Logger.Warn("customer not found, loyalty skipped", "orderId", order.ID, "customerId", order.CustomerID)
		case err != nil:
			return err
		default:
			customer, err := domain.DecodeCustomer(doc.ID, doc.Data)
			if err != nil {
				return err
			}
			if updates := LoyaltyUpdates(order, customer); len(updates) > 0 {
				if err := tx.Update(ctx, domain.CollectionCustomers, customer.ID, updates...); err != nil {
					return err
				}
			}
		}
		return tx.Update(ctx, domain.CollectionOrders, order.ID, docstore.SetField("settlement.loyalty", true))
	})
}

// LoyaltyUpdates computes the customer changes for a completed order. Paying with
// points only deducts them; any other order adds spend, awards points at the
// current tier's rate and moves the tier to match the new spend.
func LoyaltyUpdates(order domain.Order, customer domain.Customer) []docstore.Update {
	if order.DiscountType == domain.DiscountTypePoints && order.PointsRedeemed > 0 {
		return []docstore.Update{docstore.Increment("loyaltyPoints", -order.PointsRedeemed)}
	}
	current := domain.ParseTier(customer.Tier)
	next := domain.TierForSpend(customer.LifetimeSpend + order.Total)
	updates := []docstore.Update{docstore.Increment("lifetimeSpend", order.Total)}
	if points := domain.PointsFor(order.Total, current); points > 0 {
		updates = append(updates, docstore.Increment("loyaltyPoints", float64(points)))
	}
	if !strings.EqualFold(string(next), string(current)) {
		updates = append(updates, docstore.SetField("tier", string(next)))
	}
	return updates
}

func (s SettlementService) applyPunchCards(ctx context.Context, order domain.Order) error {
	docs, err := s.Store.Query(ctx, docstore.Query{Collection: domain.CollectionPunchCardCampaigns}.
		Where("isActive", docstore.OpEq, true))
	if err != nil {
		return err
	}
	var campaigns []domain.PunchCardCampaign
	for _, d := range docs {
		c, err := domain.DecodePunchCardCampaign(d.ID, d.Data)
		if err != nil {
			s.Logger.Warn("skip undecodable punch card campaign", "err", err)
			continue
		}
		if c.TenantID != "" && order.TenantID != "" && c.TenantID != order.TenantID {
			continue
		}
		campaigns = append(campaigns, c)
	}
	updates := PunchCardUpdates(order.Items, campaigns)

	return s.Store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if len(updates) > 0 {
			if _, err := tx.Get(ctx, domain.CollectionCustomers, order.CustomerID); err != nil {
				if !errors.Is(err, docstore.ErrNotFound) {
					return err
				}
				s.Logger.Warn("customer not found, punch cards skipped", "orderId", order.ID, "customerId", order.CustomerID)
			} else if err := tx.Update(ctx, domain.CollectionCustomers, order.CustomerID, updates...); err != nil {
				return err
			}
		}
		return tx.Update(ctx, domain.CollectionOrders, order.ID, docstore.SetField("settlement.punchCards", true))
	})
}

// PunchCardUpdates adds each item's quantity to every campaign that covers its category.
func PunchCardUpdates(items []domain.OrderItem, campaigns []domain.PunchCardCampaign) []docstore.Update {
	totals := map[string]float64{}
	var order []string
	for _, it := range items {
		for _, c := range campaigns {
			if !c.Applies(it.Category) {
				continue
			}
			if _, ok := totals[c.ID]; !ok {
				order = append(order, c.ID)
			}
			totals[c.ID] += it.Quantity
		}
	}
	updates := make([]docstore.Update, 0, len(order))
	for _, id := range order {
		updates = append(updates, docstore.Increment("punchCards."+id, totals[id]))
	}
	return updates
}
