package handler

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"restopos-backend/internal/docstore/docstoretest"
	"restopos-backend/internal/domain"
	"restopos-backend/internal/server/authctx"
)

func seedAnalytics(store *docstoretest.Store) {
	store.Seed(domain.CollectionAnalyticsDaily, "t1_2026-04-09", map[string]any{
		"tenantId": "t1", "window": "daily", "periodStart": "2026-04-08T17:00:00Z",
		"localPeriodStart": "2026-04-09T00:00:00+07:00", "orderCount": 3.0, "grossSales": 450.0, "averageOrderValue": 150.0,
	})
	store.Seed(domain.CollectionAnalyticsDaily, "t1_2026-04-10", map[string]any{
		"tenantId": "t1", "window": "daily", "periodStart": "2026-04-09T17:00:00Z",
		"localPeriodStart": "2026-04-10T00:00:00+07:00", "orderCount": 1.0, "grossSales": 99.5, "averageOrderValue": 99.5,
	})
	store.Seed(domain.CollectionAnalyticsDaily, "t1_2026-01-01", map[string]any{
		"tenantId": "t1", "window": "daily", "periodStart": "2025-12-31T17:00:00Z", "orderCount": 7.0,
	})
	store.Seed(domain.CollectionAnalyticsDaily, "t2_2026-04-10", map[string]any{
		"tenantId": "t2", "window": "daily", "periodStart": "2026-04-09T17:00:00Z", "orderCount": 9.0,
	})
}

func newAnalytics(t *testing.T, user *authctx.CurrentUser) (http.Handler, *docstoretest.Store) {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Bangkok")
	require.NoError(t, err)
	store := docstoretest.New()
	seedAnalytics(store)
	now := time.Date(2026, 4, 12, 3, 0, 0, 0, time.UTC)
	return serve(user, AnalyticsHandler{Store: store, Location: loc, Now: func() time.Time { return now }}), store
}

func TestAnalyticsListDefaultsToLastThirtyDays(t *testing.T) {
	h, _ := newAnalytics(t, staff)

	rec := do(t, h, http.MethodGet, "/analytics/daily", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rows := dataAs[[]analyticsRow](t, decode(t, rec))
	require.Len(t, rows, 2)
	assert.Equal(t, "t1_2026-04-09", rows[0].ID)
	assert.Equal(t, 3, rows[0].OrderCount)
	assert.Equal(t, 99.5, rows[1].GrossSales)

	rec = do(t, h, http.MethodGet, "/analytics/daily?startDate=2026-04-10&endDate=2026-04-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows = dataAs[[]analyticsRow](t, decode(t, rec))
	require.Len(t, rows, 1)
	assert.Equal(t, "t1_2026-04-10", rows[0].ID)

	rec = do(t, h, http.MethodGet, "/analytics/weekly", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/analytics/daily?startDate=2026-04-11&endDate=2026-04-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyticsAdminPicksTenant(t *testing.T) {
	h, _ := newAnalytics(t, &authctx.CurrentUser{UID: "root", Role: domain.RoleAdmin})
	rec := do(t, h, http.MethodGet, "/analytics/daily?tenantId=t2", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rows := dataAs[[]analyticsRow](t, decode(t, rec))
	require.Len(t, rows, 1)
	assert.Equal(t, 9, rows[0].OrderCount)
}

func TestAnalyticsExport(t *testing.T) {
	h, _ := newAnalytics(t, staff)

	rec := do(t, h, http.MethodGet, "/analytics/daily/export", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "analytics_daily_20260314_20260412.csv")
	records, err := csv.NewReader(bytes.NewReader(rec.Body.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, analyticsColumns, records[0])
	assert.Equal(t, "450", records[1][6])

	rec = do(t, h, http.MethodGet, "/analytics/daily/export?format=xlsx", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Analytics")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, "t1_2026-04-10", rows[2][0])

	rec = do(t, h, http.MethodGet, "/analytics/daily/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
