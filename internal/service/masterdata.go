package service

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"restopos-backend/internal/domain"
)

// MasterDataCollections are the reference collections guarded on write.
var MasterDataCollections = []string{
	domain.CollectionMenuItems,
	domain.CollectionIngredients,
	domain.CollectionModifierGroups,
	domain.CollectionStores,
}

func IsMasterDataCollection(name string) bool {
	for _, c := range MasterDataCollections {
		if c == name {
			return true
		}
	}
	return false
}

// ValidateMasterData returns every constraint a document violates. Non-master
// collections always pass.
func ValidateMasterData(collection string, data map[string]any) []string {
	v := &fieldChecker{}
	switch collection {
	case domain.CollectionMenuItems:
		validateMenuItem(v, data)
	case domain.CollectionIngredients:
		validateIngredient(v, data)
	case domain.CollectionModifierGroups:
		validateModifierGroup(v, data)
	case domain.CollectionStores:
		validateStore(v, data)
	}
	return v.errs
}

type fieldChecker struct {
	errs []string
}

func (v *fieldChecker) fail(format string, args ...any) {
	v.errs = append(v.errs, fmt.Sprintf(format, args...))
}

func (v *fieldChecker) str(data map[string]any, prefix, field string, required bool, maxLen int) (string, bool) {
	name := prefix + field
	raw, ok := data[field]
	if !ok || raw == nil {
		if required {
			v.fail(`Missing required field "%s"`, name)
		}
		return "", false
	}
	s, isStr := raw.(string)
	if !isStr {
		v.fail(`Field "%s" must be a string`, name)
		return "", false
	}
	s = strings.TrimSpace(s)
	if required && s == "" {
		v.fail(`Field "%s" cannot be empty`, name)
		return "", false
	}
	if maxLen > 0 && len([]rune(s)) > maxLen {
		v.fail(`Field "%s" exceeds maximum length of %d`, name, maxLen)
	}
	return s, true
}

type numRange struct {
	min, max *float64
}

func atLeast(n float64) numRange { return numRange{min: &n} }

func between(lo, hi float64) numRange { return numRange{min: &lo, max: &hi} }

func (v *fieldChecker) num(data map[string]any, prefix, field string, required bool, r numRange) (float64, bool) {
	name := prefix + field
	raw, ok := data[field]
	if !ok || raw == nil {
		if required {
			v.fail(`Missing required field "%s"`, name)
		}
		return 0, false
	}
	n, ok := toNumber(raw)
	if !ok {
		v.fail(`Field "%s" must be a finite number`, name)
		return 0, false
	}
	if r.min != nil && n < *r.min {
		v.fail(`Field "%s" must be >= %s`, name, formatNumber(*r.min))
	}
	if r.max != nil && n > *r.max {
		v.fail(`Field "%s" must be <= %s`, name, formatNumber(*r.max))
	}
	return n, true
}

func (v *fieldChecker) boolean(data map[string]any, field string) {
	if raw, ok := data[field]; ok && raw != nil {
		if _, isBool := raw.(bool); !isBool {
			v.fail(`Field "%s" must be a boolean`, field)
		}
	}
}

func (v *fieldChecker) list(data map[string]any, field string, required bool) ([]any, bool) {
	raw, ok := data[field]
	if !ok || raw == nil {
		if required {
			v.fail(`Missing required field "%s"`, field)
		}
		return nil, false
	}
	items, isList := raw.([]any)
	if !isList {
		v.fail(`Field "%s" must be an array`, field)
		return nil, false
	}
	return items, true
}

// toNumber accepts JSON numbers and numeric strings.
func toNumber(raw any) (float64, bool) {
	switch t := raw.(type) {
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// firstPresent returns the first field name carrying a value, else the canonical name.
func firstPresent(data map[string]any, canonical string, aliases ...string) string {
	if v, ok := data[canonical]; ok && v != nil {
		return canonical
	}
	for _, a := range aliases {
		if v, ok := data[a]; ok && v != nil {
			return a
		}
	}
	return canonical
}

func validateMenuItem(v *fieldChecker, data map[string]any) {
	v.str(data, "", "name", true, 120)
	v.str(data, "", "category", true, 60)
	price, hasPrice := v.num(data, "", "price", true, atLeast(0))
	costField := firstPresent(data, "costPrice", "costOfGoods")
	if cost, ok := v.num(data, "", costField, false, atLeast(0)); ok && hasPrice && cost > price {
		v.fail("%s cannot exceed price", costField)
	}
	for _, field := range []string{"modifierGroupIds", "kitchenStations"} {
		items, _ := v.list(data, field, false)
		for i, it := range items {
			if s, ok := it.(string); !ok || strings.TrimSpace(s) == "" {
				v.fail("%s[%d] must be a non-empty string", field, i)
			}
		}
	}
	v.boolean(data, "trackStock")
	recipe, _ := v.list(data, "recipe", false)
	for i, entry := range recipe {
		row, ok := entry.(map[string]any)
		if !ok {
			v.fail("recipe[%d] must be an object", i)
			continue
		}
		if id, _ := row["ingredientId"].(string); id == "" {
			v.fail("recipe[%d].ingredientId is required", i)
		}
		if q, ok := toNumber(row["quantity"]); !ok || q <= 0 {
			v.fail("recipe[%d].quantity must be greater than 0", i)
		}
	}
	if prep, ok := toNumber(data["prepTimeMinutes"]); ok && prep < 0 {
		v.fail("prepTimeMinutes must be >= 0")
	}
}

func validateIngredient(v *fieldChecker, data map[string]any) {
	v.str(data, "", "name", true, 120)
	v.str(data, "", "unit", true, 20)
	stockField := firstPresent(data, "stockQuantity", "currentStock")
	stock, hasStock := v.num(data, "", stockField, true, atLeast(0))
	if target, ok := v.num(data, "", "targetStock", false, atLeast(0)); ok && hasStock && target < stock {
		v.fail("targetStock cannot be less than %s", stockField)
	}
	v.num(data, "", "costPerUnit", false, atLeast(0))
	v.num(data, "", firstPresent(data, "lowStockThreshold", "lowStockLevel", "minThreshold"), false, atLeast(0))
}

func validateModifierGroup(v *fieldChecker, data map[string]any) {
	v.str(data, "", "groupName", true, 80)
	v.str(data, "", "selectionType", true, 40)
	options, _ := v.list(data, "options", true)
	for i, entry := range options {
		opt, ok := entry.(map[string]any)
		if !ok {
			v.fail("options[%d] must be an object", i)
			continue
		}
		if name, _ := opt["optionName"].(string); strings.TrimSpace(name) == "" {
			v.fail("options[%d].optionName is required", i)
		}
		if _, ok := toNumber(opt["priceChange"]); !ok {
			v.fail("options[%d].priceChange must be a number", i)
		}
	}
}

func validateStore(v *fieldChecker, data map[string]any) {
	v.str(data, "", "name", true, 120)
	if tz, ok := v.str(data, "", "timezone", true, 0); ok {
		if _, err := time.LoadLocation(tz); err != nil || tz == "Local" {
			v.fail("Invalid timezone: %s", tz)
		}
	}
	v.str(data, "", "tenantId", true, 0)
	v.boolean(data, "isActive")

	raw, ok := data["currencySettings"]
	if !ok || raw == nil {
		v.fail("currencySettings is required")
		return
	}
	currency, isMap := raw.(map[string]any)
	if !isMap {
		v.fail("currencySettings must be an object")
		return
	}
	v.str(currency, "currencySettings.", "code", true, 0)
	v.str(currency, "currencySettings.", "symbol", true, 0)
	if digits, ok := v.num(currency, "currencySettings.", "decimalDigits", true, between(0, 4)); ok && digits != math.Trunc(digits) {
		v.fail("currencySettings.decimalDigits must be an integer")
	}
}

// BuildBackfillUpdates returns the field corrections that bring a stored document
// up to the current master-data conventions.
func BuildBackfillUpdates(collection string, data map[string]any) map[string]any {
	updates := map[string]any{}
	trim := func(field string) (string, bool) {
		s, ok := data[field].(string)
		if !ok || s == "" {
			return "", false
		}
		if t := strings.TrimSpace(s); t != s {
			updates[field] = t
			return t, true
		}
		return s, true
	}
	normalizeName := func() {
		if name, ok := trim("name"); ok {
			if lower := strings.ToLower(name); data["nameNormalized"] != lower {
				updates["nameNormalized"] = lower
			}
		}
	}
	coerce := func(field string) {
		raw, ok := data[field]
		if !ok || raw == nil {
			return
		}
		if _, isNum := raw.(float64); isNum {
			return
		}
		if n, ok := toNumber(raw); ok {
			updates[field] = n
		}
	}

	switch collection {
	case domain.CollectionMenuItems:
		normalizeName()
		coerce("price")
		coerce(firstPresent(data, "costPrice", "costOfGoods"))
	case domain.CollectionIngredients:
		trim("unit")
		coerce(firstPresent(data, "stockQuantity", "currentStock"))
		coerce("targetStock")
		coerce("costPerUnit")
	case domain.CollectionModifierGroups:
		if st, ok := data["selectionType"].(string); ok && st != "" {
			if upper := strings.ToUpper(strings.TrimSpace(st)); upper != st {
				updates["selectionType"] = upper
			}
		}
		if options, ok := data["options"].([]any); ok {
			sanitized := make([]any, len(options))
			for i, entry := range options {
				opt, ok := entry.(map[string]any)
				if !ok {
					sanitized[i] = entry
					continue
				}
				next := make(map[string]any, len(opt))
				for k, val := range opt {
					next[k] = val
				}
				if name, ok := opt["optionName"].(string); ok {
					next["optionName"] = strings.TrimSpace(name)
				}
				if pc, ok := opt["priceChange"]; ok && pc != nil {
					if _, isNum := pc.(float64); !isNum {
						if n, ok := toNumber(pc); ok {
							next["priceChange"] = n
						}
					}
				}
				sanitized[i] = next
			}
			if !reflect.DeepEqual(sanitized, options) {
				updates["options"] = sanitized
			}
		}
	case domain.CollectionStores:
		normalizeName()
		trim("timezone")
	default:
		return updates
	}
	if n, ok := toNumber(data["schemaVersion"]); !ok || n != 1 {
		updates["schemaVersion"] = 1
	}
	return updates
}

const (
	DefaultBackfillBatchSize = 50
	MaxBackfillBatchSize     = 500
)

// NormalizeBackfillBatchSize maps non-positive sizes to the default and caps large ones.
func NormalizeBackfillBatchSize(n int) int {
	if n <= 0 {
		return DefaultBackfillBatchSize
	}
	if n > MaxBackfillBatchSize {
		return MaxBackfillBatchSize
	}
	return n
}
