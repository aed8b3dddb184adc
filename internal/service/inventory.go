package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"restopos-backend/internal/docstore"
	"restopos-backend/internal/domain"
	"restopos-backend/internal/events"
)

// InventoryService keeps ingredient stock in step with refunds, waste and deliveries.
type InventoryService struct {
	Store  docstore.Store
	Logger *slog.Logger
}

// ReturnStockOnRefund puts the refunded items' ingredients back on the shelf.
func (s InventoryService) ReturnStockOnRefund(ctx context.Context, c events.Change) error {
	refund, err := domain.DecodeRefund(c.DocID, c.After)
	if err != nil {
		s.Logger.Error("skip undecodable refund", "err", err)
		return nil
	}
	if len(refund.RefundedItems) == 0 {
		s.Logger.Info("refund has no items to restock", "refundId", refund.ID)
		return nil
	}
	lines := make([]soldLine, 0, len(refund.RefundedItems))
	for _, it := range refund.RefundedItems {
		lines = append(lines, soldLine{MenuItemID: it.MenuItemID, Quantity: it.Quantity})
	}
	err = s.Store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return adjustStock(ctx, tx, lines, 1, s.Logger.With("refundId", refund.ID))
	})
	if err != nil {
		return fmt.Errorf("return stock for refund %s: %w", refund.ID, err)
	}
	s.Logger.Info("stock returned for refund", "refundId", refund.ID)
	return nil
}

// ApplyWaste deducts a wasted quantity from its ingredient.
func (s InventoryService) ApplyWaste(ctx context.Context, c events.Change) error {
	rec, err := domain.DecodeWasteRecord(c.DocID, c.After)
	if err != nil || rec.IngredientID == "" || rec.Quantity <= 0 {
		s.Logger.Error("invalid waste record, stock unchanged", "wasteRecordId", c.DocID, "ingredientId", rec.IngredientID, "quantity", rec.Quantity, "err", err)
		return nil
	}
	err = s.Store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		doc, err := tx.Get(ctx, domain.CollectionIngredients, rec.IngredientID)
		if err != nil {
			return err
		}
		return tx.Update(ctx, domain.CollectionIngredients, rec.IngredientID, docstore.Increment(StockField(doc.Data), -rec.Quantity))
	})
	if errors.Is(err, docstore.ErrNotFound) {
		s.Logger.Error("waste record references unknown ingredient", "wasteRecordId", rec.ID, "ingredientId", rec.IngredientID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("deduct waste %s: %w", rec.ID, err)
	}
	s.Logger.Info("waste deducted", "ingredientId", rec.IngredientID, "quantity", rec.Quantity)
	return nil
}

// ReceivePurchaseOrder adds delivered quantities when a purchase order first becomes received.
func (s InventoryService) ReceivePurchaseOrder(ctx context.Context, c events.Change) error {
	if c.Kind() != events.Updated {
		return nil
	}
	if events.FieldString(c.After, "status") != domain.PurchaseOrderReceived ||
		events.FieldString(c.Before, "status") == domain.PurchaseOrderReceived {
		return nil
	}
	po, err := domain.DecodePurchaseOrder(c.DocID, c.After)
	if err != nil {
		s.Logger.Error("skip undecodable purchase order", "err", err)
		return nil
	}
	if len(po.Items) == 0 {
		s.Logger.Info("purchase order has no items", "purchaseOrderId", po.ID)
		return nil
	}
	totals := map[string]float64{}
	for _, it := range po.Items {
		if it.ProductID == "" {
			continue
		}
		totals[it.ProductID] += it.Quantity
	}
	ids := uniqueSorted(func(yield func(string)) {
		for id := range totals {
			yield(id)
		}
	})
	err = s.Store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		docs, err := tx.GetAll(ctx, domain.CollectionIngredients, ids)
		if err != nil {
			return err
		}
		for i, id := range ids {
			if docs[i] == nil {
				s.Logger.Warn("purchase order item has no ingredient", "purchaseOrderId", po.ID, "productId", id)
				continue
			}
			if err := tx.Update(ctx, domain.CollectionIngredients, id, docstore.Increment(StockField(docs[i].Data), totals[id])); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("receive purchase order %s: %w", po.ID, err)
	}
	s.Logger.Info("stock updated for received purchase order", "purchaseOrderId", po.ID, "ingredients", len(ids))
	return nil
}
