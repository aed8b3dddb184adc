package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"restopos-backend/internal/docstore"
	"restopos-backend/internal/domain"
)

const (
	WindowHourly = "hourly"
	WindowDaily  = "daily"
)

// Period is a closed-open reporting window in a civil timezone.
type Period struct {
	Window     string
	Start      time.Time
	End        time.Time
	StartLocal time.Time
	EndLocal   time.Time
}

// Key is the zero-padded local date (daily) or date and hour (hourly) of the window start.
func (p Period) Key() string {
	if p.Window == WindowHourly {
		return p.StartLocal.Format("2006010215")
	}
	return p.StartLocal.Format("20060102")
}

// Collection is where aggregates of this window are stored.
func (p Period) Collection() string {
	if p.Window == WindowHourly {
		return domain.CollectionAnalyticsHourly
	}
	return domain.CollectionAnalyticsDaily
}

// PreviousHour is the last full local hour before now.
func PreviousHour(now time.Time, loc *time.Location) Period {
	local := now.In(loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
	start := end.Add(-time.Hour)
	return Period{Window: WindowHourly, Start: start.UTC(), End: end.UTC(), StartLocal: start, EndLocal: end}
}

// PreviousDay is the last full local day before now.
func PreviousDay(now time.Time, loc *time.Location) Period {
	local := now.In(loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	start := end.AddDate(0, 0, -1)
	return Period{Window: WindowDaily, Start: start.UTC(), End: end.UTC(), StartLocal: start, EndLocal: end}
}

// Metrics accumulates order figures for one tenant bucket.
type Metrics struct {
	OrderCount     int
	GrossSales     decimal.Decimal
	TotalItems     decimal.Decimal
	TotalDiscounts decimal.Decimal
	TotalTax       decimal.Decimal
}

func (m *Metrics) add(o domain.Order) {
	m.OrderCount++
	m.GrossSales = m.GrossSales.Add(decimal.NewFromFloat(o.Total))
	m.TotalDiscounts = m.TotalDiscounts.Add(decimal.NewFromFloat(o.Discount))
	m.TotalTax = m.TotalTax.Add(decimal.NewFromFloat(o.Tax))
	for _, it := range o.Items {
		m.TotalItems = m.TotalItems.Add(decimal.NewFromFloat(it.Quantity))
	}
}

// AverageOrderValue is gross sales per order rounded to cents, or zero without orders.
func (m Metrics) AverageOrderValue() decimal.Decimal {
	if m.OrderCount == 0 {
		return decimal.Zero
	}
	return m.GrossSales.Div(decimal.NewFromInt(int64(m.OrderCount))).Round(2)
}

// roundCurrency rounds half away from zero to two places.
func roundCurrency(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// AggregationService rolls completed orders up into hourly and daily analytics documents.
type AggregationService struct {
	Store    docstore.Store
	Logger   *slog.Logger
	Location *time.Location
	Now      func() time.Time
}

func (s AggregationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s AggregationService) RunHourly(ctx context.Context) error {
	_, err := s.Aggregate(ctx, PreviousHour(s.now(), s.Location))
	return err
}

func (s AggregationService) RunDaily(ctx context.Context) error {
	_, err := s.Aggregate(ctx, PreviousDay(s.now(), s.Location))
	return err
}

// Aggregate computes and upserts the buckets of one period, returning them by tenant.
func (s AggregationService) Aggregate(ctx context.Context, p Period) (map[string]*Metrics, error) {
	log := s.Logger.With("window", p.Window, "start", p.Start, "end", p.End)
	docs, err := s.Store.Query(ctx, docstore.Query{Collection: domain.CollectionOrders}.
		Where("status", docstore.OpEq, string(domain.OrderCompleted)).
		Where("completedAt", docstore.OpGTE, p.Start).
		Where("completedAt", docstore.OpLT, p.End))
	if err != nil {
		return nil, fmt.Errorf("query %s orders: %w", p.Window, err)
	}
	if len(docs) == 0 {
		log.Info("no completed orders in aggregation window")
		return map[string]*Metrics{}, nil
	}

	buckets := map[string]*Metrics{}
	bucket := func(tenant string) *Metrics {
		m, ok := buckets[tenant]
		if !ok {
			m = &Metrics{}
			buckets[tenant] = m
		}
		return m
	}
	for _, d := range docs {
		order, err := domain.DecodeOrder(d.ID, d.Data)
		if err != nil {
			log.Warn("skip undecodable order", "err", err)
			continue
		}
		tenant := order.TenantID
		if tenant == "" {
			tenant = domain.DefaultTenant
		}
		bucket(tenant).add(order)
		if tenant != domain.AllTenantsKey {
			bucket(domain.AllTenantsKey).add(order)
		}
	}

	tenants := make([]string, 0, len(buckets))
	for t := range buckets {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)
	for _, tenant := range tenants {
		m := buckets[tenant]
		id := tenant + "_" + p.Key()
		err := s.Store.Set(ctx, p.Collection(), id, map[string]any{
			"tenantId":          tenant,
			"window":            p.Window,
			"periodStart":       p.Start,
			"periodEnd":         p.End,
			"localPeriodStart":  p.StartLocal.Format(time.RFC3339),
			"localPeriodEnd":    p.EndLocal.Format(time.RFC3339),
			"timezone":          s.Location.String(),
			"orderCount":        m.OrderCount,
			"grossSales":        roundCurrency(m.GrossSales),
			"totalItems":        m.TotalItems.InexactFloat64(),
			"totalDiscounts":    roundCurrency(m.TotalDiscounts),
			"totalTax":          roundCurrency(m.TotalTax),
			"averageOrderValue": m.AverageOrderValue().InexactFloat64(),
			"updatedAt":         s.now().UTC(),
		}, true)
		if err != nil {
			return buckets, fmt.Errorf("write %s/%s: %w", p.Collection(), id, err)
		}
	}
	log.Info("aggregated tenant buckets", "buckets", len(buckets), "orders", len(docs))
	return buckets, nil
}
