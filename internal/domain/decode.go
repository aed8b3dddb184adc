package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DecodeError is returned when a stored document does not coerce into its record type.
type DecodeError struct {
	Kind string
	ID   string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s %q: %v", e.Kind, e.ID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var timeType = reflect.TypeOf(time.Time{})

// epochMillisCutoff separates epoch seconds from epoch milliseconds. Seconds this large
// would be past the year 5000.
const epochMillisCutoff = 1e11

// timeHook accepts RFC 3339 strings, epoch seconds or milliseconds, and
// {_seconds,_nanoseconds} or {seconds,nanos} objects. Blank strings are unset.
func timeHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != timeType {
		return data, nil
	}
	switch v := data.(type) {
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return time.Time{}, nil
		}
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t, nil
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return epochTime(f), nil
		}
		return nil, fmt.Errorf("unrecognized timestamp %q", v)
	case time.Time:
		return v, nil
	case float64:
		return epochTime(v), nil
	case float32:
		return epochTime(float64(v)), nil
	case int:
		return epochTime(float64(v)), nil
	case int64:
		return epochTime(float64(v)), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, fmt.Errorf("unrecognized timestamp %q", v.String())
		}
		return epochTime(f), nil
	case map[string]any:
		return timestampObject(v)
	default:
		return data, nil
	}
}

func epochTime(f float64) time.Time {
	if math.Abs(f) >= epochMillisCutoff {
		return time.UnixMilli(int64(f)).UTC()
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

func timestampObject(m map[string]any) (time.Time, error) {
	sec, ok := numberField(m, "_seconds", "seconds")
	if !ok {
		return time.Time{}, fmt.Errorf("timestamp object without seconds")
	}
	nanos, _ := numberField(m, "_nanoseconds", "nanoseconds", "nanos")
	return time.Unix(int64(sec), int64(nanos)).UTC(), nil
}

func numberField(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch n := m[k].(type) {
		case float64:
			return n, true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f, true
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// aliasFields maps a canonical field to older spellings still found in stored documents.
type aliasFields map[string][]string

var (
	orderAliases = aliasFields{
		"total":       {"grandTotal"},
		"discount":    {"discountAmount", "totalDiscount"},
		"tax":         {"taxAmount"},
		"completedAt": {"closedAt"},
	}
	ingredientAliases = aliasFields{
		"stockQuantity":     {"currentStock"},
		"lowStockThreshold": {"lowStockLevel", "minThreshold"},
	}
	menuItemAliases = aliasFields{
		"costPrice": {"costOfGoods"},
	}
)

func resolveAliases(raw map[string]any, aliases aliasFields) map[string]any {
	if len(aliases) == 0 {
		return raw
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	for canonical, alts := range aliases {
		if v, ok := out[canonical]; ok && v != nil {
			continue
		}
		for _, alt := range alts {
			if v, ok := out[alt]; ok && v != nil {
				out[canonical] = v
				break
			}
		}
	}
	return out
}

func decodeInto(kind, id string, raw map[string]any, aliases aliasFields, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       timeHook,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(resolveAliases(raw, aliases)); err != nil {
		return &DecodeError{Kind: kind, ID: id, Err: err}
	}
	return nil
}

func DecodeOrder(id string, raw map[string]any) (Order, error) {
	var o Order
	err := decodeInto("order", id, raw, orderAliases, &o)
	o.ID = id
	return o, err
}

func DecodeIngredient(id string, raw map[string]any) (Ingredient, error) {
	var in Ingredient
	err := decodeInto("ingredient", id, raw, ingredientAliases, &in)
	in.ID = id
	return in, err
}

func DecodeMenuItem(id string, raw map[string]any) (MenuItem, error) {
	var m MenuItem
	err := decodeInto("menu item", id, raw, menuItemAliases, &m)
	m.ID = id
	return m, err
}

func DecodeCustomer(id string, raw map[string]any) (Customer, error) {
	var c Customer
	err := decodeInto("customer", id, raw, nil, &c)
	c.ID = id
	return c, err
}

func DecodeRefund(id string, raw map[string]any) (Refund, error) {
	var r Refund
	err := decodeInto("refund", id, raw, nil, &r)
	r.ID = id
	return r, err
}

func DecodePurchaseOrder(id string, raw map[string]any) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := decodeInto("purchase order", id, raw, nil, &po)
	po.ID = id
	return po, err
}

func DecodeWasteRecord(id string, raw map[string]any) (WasteRecord, error) {
	var w WasteRecord
	err := decodeInto("waste record", id, raw, nil, &w)
	w.ID = id
	return w, err
}

func DecodePunchCardCampaign(id string, raw map[string]any) (PunchCardCampaign, error) {
	var c PunchCardCampaign
	err := decodeInto("punch card campaign", id, raw, nil, &c)
	c.ID = id
	return c, err
}
