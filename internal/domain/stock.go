package domain

// IngredientQuantity is an amount of one ingredient.
type IngredientQuantity struct {
	IngredientID string
	Quantity     float64
}

// StockTarget is what selling one unit of a menu item draws down: either the
// ingredients of its recipe, or the item itself when it has no recipe.
type StockTarget interface {
	// Consumption returns the ingredient amounts used by selling units of the item.
	Consumption(units float64) []IngredientQuantity
	isStockTarget()
}

// RecipeBased consumes recipe ingredients.
type RecipeBased struct {
	Lines []RecipeLine
}

// DirectlyTracked consumes the menu item as its own ingredient.
type DirectlyTracked struct {
	IngredientID string
}

func (RecipeBased) isStockTarget()     {}
func (DirectlyTracked) isStockTarget() {}

func (r RecipeBased) Consumption(units float64) []IngredientQuantity {
	out := make([]IngredientQuantity, 0, len(r.Lines))
	for _, line := range r.Lines {
		if line.IngredientID == "" || line.Quantity == 0 {
			continue
		}
		out = append(out, IngredientQuantity{IngredientID: line.IngredientID, Quantity: line.Quantity * units})
	}
	return out
}

func (d DirectlyTracked) Consumption(units float64) []IngredientQuantity {
	if d.IngredientID == "" {
		return nil
	}
	return []IngredientQuantity{{IngredientID: d.IngredientID, Quantity: units}}
}

// StockTarget resolves how the item draws down inventory.
func (m MenuItem) StockTarget() StockTarget {
	if len(m.Recipe) == 0 {
		return DirectlyTracked{IngredientID: m.ID}
	}
	return RecipeBased{Lines: m.Recipe}
}

// SumConsumption folds quantities per ingredient, keeping first-seen order.
func SumConsumption(parts []IngredientQuantity) []IngredientQuantity {
	index := map[string]int{}
	var out []IngredientQuantity
	for _, p := range parts {
		if i, ok := index[p.IngredientID]; ok {
			out[i].Quantity += p.Quantity
			continue
		}
		index[p.IngredientID] = len(out)
		out = append(out, p)
	}
	return out
}
