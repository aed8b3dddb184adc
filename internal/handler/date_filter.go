package handler

import (
	"net/http"
	"time"

	"restopos-backend/internal/apperr"
)

const dateLayout = "2006-01-02"

// parseDateQuery reads a calendar date at local midnight in loc.
func parseDateQuery(r *http.Request, key string, loc *time.Location) (*time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	parsed, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return nil, apperr.New(apperr.InvalidArgument, "invalid %s", key)
	}
	return &parsed, nil
}

// dateRange returns [start, end) covering the startDate and endDate query
// days inclusive. Missing bounds default to the last 30 days.
func dateRange(r *http.Request, loc *time.Location, now time.Time) (time.Time, time.Time, error) {
	startDate, err := parseDateQuery(r, "startDate", loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	endDate, err := parseDateQuery(r, "endDate", loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if startDate != nil && endDate != nil && startDate.After(*endDate) {
		return time.Time{}, time.Time{}, apperr.New(apperr.InvalidArgument, "startDate must be before endDate")
	}

	local := now.In(loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	if endDate != nil {
		end = endDate.AddDate(0, 0, 1)
	}
	start := end.AddDate(0, 0, -30)
	if startDate != nil {
		start = *startDate
	}
	return start, end, nil
}
