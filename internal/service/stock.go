package service

import (
	"context"
	"log/slog"
	"sort"

	"restopos-backend/internal/docstore"
	"restopos-backend/internal/domain"
)

// soldLine is a quantity of one menu item leaving or returning to the shelf.
type soldLine struct {
	MenuItemID string
	Quantity   float64
}

// adjustStock explodes lines into ingredient quantities and applies sign*quantity to
// each ingredient inside tx. Menu items are read and locked before any ingredient so
// concurrent settlements and refunds take locks in the same order. Unknown menu items
// and ingredients are skipped.
func adjustStock(ctx context.Context, tx docstore.Tx, lines []soldLine, sign float64, log *slog.Logger) error {
	ids := uniqueSorted(func(yield func(string)) {
		for _, l := range lines {
			yield(l.MenuItemID)
		}
	})
	if len(ids) == 0 {
		return nil
	}
	menuDocs, err := tx.GetAll(ctx, domain.CollectionMenuItems, ids)
	if err != nil {
		return err
	}
	targets := make(map[string]domain.StockTarget, len(ids))
	for i, doc := range menuDocs {
		if doc == nil {
			log.Warn("menu item not found, stock unchanged", "menuItemId", ids[i])
			continue
		}
		item, err := domain.DecodeMenuItem(doc.ID, doc.Data)
		if err != nil {
			log.Warn("skip undecodable menu item", "err", err)
			continue
		}
		targets[doc.ID] = item.StockTarget()
	}

	var parts []domain.IngredientQuantity
	for _, l := range lines {
		target, ok := targets[l.MenuItemID]
		if !ok {
			continue
		}
		parts = append(parts, target.Consumption(l.Quantity)...)
	}
	consumption := domain.SumConsumption(parts)
	if len(consumption) == 0 {
		return nil
	}
	sort.Slice(consumption, func(i, j int) bool { return consumption[i].IngredientID < consumption[j].IngredientID })

	ingredientIDs := make([]string, len(consumption))
	for i, c := range consumption {
		ingredientIDs[i] = c.IngredientID
	}
	ingredients, err := tx.GetAll(ctx, domain.CollectionIngredients, ingredientIDs)
	if err != nil {
		return err
	}
	for i, c := range consumption {
		if ingredients[i] == nil {
			log.Warn("ingredient not found, stock unchanged", "ingredientId", c.IngredientID)
			continue
		}
		if err := tx.Update(ctx, domain.CollectionIngredients, c.IngredientID,
			docstore.Increment(StockField(ingredients[i].Data), sign*c.Quantity)); err != nil {
			return err
		}
	}
	return nil
}

// StockField is the field holding an ingredient's on-hand quantity. Documents
// that predate the stockQuantity rename keep currentStock until backfilled.
func StockField(data map[string]any) string {
	return firstPresent(data, "stockQuantity", "currentStock")
}

func uniqueSorted(each func(yield func(string))) []string {
	seen := map[string]struct{}{}
	var out []string
	each(func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	})
	sort.Strings(out)
	return out
}
