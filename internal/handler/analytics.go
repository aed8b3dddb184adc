package handler

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xuri/excelize/v2"

	"restopos-backend/internal/apperr"
	"restopos-backend/internal/docstore"
	"restopos-backend/internal/domain"
	"restopos-backend/internal/server/authctx"
	"restopos-backend/internal/service"
)

// AnalyticsHandler serves the hourly and daily aggregates to managers.
type AnalyticsHandler struct {
	Store    docstore.Store
	Location *time.Location
	Now      func() time.Time
}

func (h AnalyticsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/analytics/{window}", h.list)
	r.Get("/analytics/{window}/export", h.export)
}

type analyticsRow struct {
	ID                string  `json:"id"`
	TenantID          string  `json:"tenantId"`
	Window            string  `json:"window"`
	LocalPeriodStart  string  `json:"localPeriodStart"`
	LocalPeriodEnd    string  `json:"localPeriodEnd"`
	OrderCount        int     `json:"orderCount"`
	GrossSales        float64 `json:"grossSales"`
	TotalItems        float64 `json:"totalItems"`
	TotalDiscounts    float64 `json:"totalDiscounts"`
	TotalTax          float64 `json:"totalTax"`
	AverageOrderValue float64 `json:"averageOrderValue"`
}

var analyticsColumns = []string{"id", "tenant_id", "window", "local_period_start", "local_period_end", "order_count", "gross_sales", "total_items", "total_discounts", "total_tax", "average_order_value"}

func (row analyticsRow) values() []any {
	return []any{row.ID, row.TenantID, row.Window, row.LocalPeriodStart, row.LocalPeriodEnd, row.OrderCount,
		row.GrossSales, row.TotalItems, row.TotalDiscounts, row.TotalTax, row.AverageOrderValue}
}

func (h AnalyticsHandler) location() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

func (h AnalyticsHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h AnalyticsHandler) rows(r *http.Request) ([]analyticsRow, time.Time, time.Time, error) {
	user := authctx.FromContext(r.Context())
	if user == nil {
		return nil, time.Time{}, time.Time{}, apperr.New(apperr.Unauthenticated, "Authentication is required for this operation.")
	}
	var collection string
	switch window := chi.URLParam(r, "window"); window {
	case service.WindowHourly:
		collection = domain.CollectionAnalyticsHourly
	case service.WindowDaily:
		collection = domain.CollectionAnalyticsDaily
	default:
		return nil, time.Time{}, time.Time{}, apperr.New(apperr.NotFound, "unknown analytics window %s", window)
	}
	tenant, err := tenantScope(r, user)
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}
	start, end, err := dateRange(r, h.location(), h.now())
	if err != nil {
		return nil, time.Time{}, time.Time{}, err
	}

	docs, err := h.Store.Query(r.Context(), docstore.Query{
		Collection: collection,
		OrderBy:    "periodStart",
		Limit:      5000,
	}.Where("tenantId", docstore.OpEq, tenant).
		Where("periodStart", docstore.OpGTE, start).
		Where("periodStart", docstore.OpLT, end))
	if err != nil {
		return nil, time.Time{}, time.Time{}, apperr.Wrap(apperr.Internal, err, "internal error")
	}
	out := make([]analyticsRow, 0, len(docs))
	for _, d := range docs {
		out = append(out, analyticsRow{
			ID:                d.ID,
			TenantID:          docstore.TenantOf(d.Data),
			Window:            str(d.Data["window"]),
			LocalPeriodStart:  str(d.Data["localPeriodStart"]),
			LocalPeriodEnd:    str(d.Data["localPeriodEnd"]),
			OrderCount:        int(num(d.Data["orderCount"])),
			GrossSales:        num(d.Data["grossSales"]),
			TotalItems:        num(d.Data["totalItems"]),
			TotalDiscounts:    num(d.Data["totalDiscounts"]),
			TotalTax:          num(d.Data["totalTax"]),
			AverageOrderValue: num(d.Data["averageOrderValue"]),
		})
	}
	return out, start, end, nil
}

func (h AnalyticsHandler) list(w http.ResponseWriter, r *http.Request) {
	rows, _, _, err := h.rows(r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h AnalyticsHandler) export(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "xlsx" && format != "excel" {
		writeError(w, apperr.InvalidArgument, "invalid format (use csv or xlsx)")
		return
	}
	rows, start, end, err := h.rows(r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	filename := fmt.Sprintf("analytics_%s_%s_%s", chi.URLParam(r, "window"), start.Format("20060102"), end.AddDate(0, 0, -1).Format("20060102"))
	switch format {
	case "csv":
		data, err := exportAnalyticsCSV(rows)
		if err != nil {
			writeAppError(w, apperr.Wrap(apperr.Internal, err, "internal error"))
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.csv\"", filename))
		_, _ = w.Write(data)
	default:
		data, err := exportAnalyticsXLSX(rows)
		if err != nil {
			writeAppError(w, apperr.Wrap(apperr.Internal, err, "internal error"))
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))
		_, _ = w.Write(data)
	}
}

func exportAnalyticsCSV(rows []analyticsRow) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	_ = w.Write(analyticsColumns)
	for _, row := range rows {
		record := make([]string, 0, len(analyticsColumns))
		for _, v := range row.values() {
			switch t := v.(type) {
			case float64:
				record = append(record, strconv.FormatFloat(t, 'f', -1, 64))
			default:
				record = append(record, fmt.Sprint(t))
			}
		}
		_ = w.Write(record)
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func exportAnalyticsXLSX(rows []analyticsRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := "Analytics"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	header := []string{"ID", "Tenant", "Window", "Period Start", "Period End", "Orders", "Gross Sales", "Items", "Discounts", "Tax", "Average Order"}
	for c, v := range header {
		cell, _ := excelize.CoordinatesToCellName(c+1, 1)
		_ = f.SetCellValue(sheet, cell, v)
	}
	for i, row := range rows {
		for c, v := range row.values() {
			cell, _ := excelize.CoordinatesToCellName(c+1, i+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 28)
	_ = f.SetColWidth(sheet, "B", "C", 12)
	_ = f.SetColWidth(sheet, "D", "E", 26)
	_ = f.SetColWidth(sheet, "F", "K", 14)

	style, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#1F2937"}, Pattern: 1},
	})
	_ = f.SetCellStyle(sheet, "A1", "K1", style)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func num(v any) float64 {
	f, _ := docstore.AsFloat(v)
	return f
}
