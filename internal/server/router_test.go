package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restopos-backend/internal/docstore/docstoretest"
	"restopos-backend/internal/domain"
	"restopos-backend/internal/handler"
	"restopos-backend/internal/logger"
	"restopos-backend/internal/server/authctx"
	"restopos-backend/internal/service"
)

type tokenTable map[string]authctx.CurrentUser

func (t tokenTable) Authenticate(_ context.Context, raw string) (*authctx.CurrentUser, error) {
	if u, ok := t[raw]; ok && raw != "scheduler" {
		return &u, nil
	}
	return nil, errors.New("invalid token")
}

func (t tokenTable) AuthenticateScheduler(_ context.Context, raw string) (*authctx.CurrentUser, error) {
	u, ok := t[raw]
	if !ok || !u.IsAdmin() {
		return nil, errors.New("invalid token")
	}
	return &u, nil
}

type okDB struct{}

func (okDB) Health(context.Context) error { return nil }

type stubJobs struct{ ran []string }

func (s *stubJobs) RunJob(_ context.Context, name string) error {
	s.ran = append(s.ran, name)
	return nil
}

func (s *stubJobs) Jobs() []string { return []string{"ttl-cleanup"} }

func newTestRouter(jobs *stubJobs) http.Handler {
	store := docstoretest.New()
	log := logger.Discard()
	tokens := tokenTable{
		"staff":     {UID: "u1", TenantID: "t1", Role: domain.RoleStaff},
		"manager":   {UID: "u2", TenantID: "t1", Role: domain.RoleManager},
		"customer":  {UID: "c1", TenantID: "t1", CustomerID: "c1"},
		"scheduler": {UID: "scheduler@example.com", Admin: true},
	}
	return NewRouter(log, tokens, Handlers{
		Health:        handler.HealthHandler{DB: okDB{}},
		Documents:     handler.DocumentHandler{Store: store, Logger: log},
		Notifications: handler.NotificationHandler{Store: store},
		AuditLogs:     handler.AuditLogHandler{Store: store},
		Analytics:     handler.AnalyticsHandler{Store: store},
		Callables: handler.CallableHandler{
			Privacy: service.PrivacyService{Store: store, Logger: log},
			Logger:  log,
		},
		Jobs: handler.JobsHandler{Runner: jobs, Logger: log},
	})
}

func call(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterAuthBoundaries(t *testing.T) {
	h := newTestRouter(&stubJobs{})

	assert.Equal(t, http.StatusOK, call(h, http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusOK, call(h, http.MethodGet, "/metrics", "", "").Code)

	rec := call(h, http.MethodGet, "/v1/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"unauthenticated"`)
	assert.Equal(t, http.StatusUnauthorized, call(h, http.MethodGet, "/v1/me", "forged", "").Code)

	rec = call(h, http.MethodGet, "/v1/me", "staff", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tenantId":"t1"`)

	rec = call(h, http.MethodGet, "/v1/audit-logs", "staff", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"permission-denied"`)
	assert.Equal(t, http.StatusOK, call(h, http.MethodGet, "/v1/audit-logs", "manager", "").Code)
	assert.Equal(t, http.StatusOK, call(h, http.MethodGet, "/v1/analytics/daily", "manager", "").Code)

	assert.Equal(t, http.StatusForbidden, call(h, http.MethodGet, "/v1/notifications", "customer", "").Code)
}

func TestRouterCallablesUseOptionalAuth(t *testing.T) {
	h := newTestRouter(&stubJobs{})

	rec := call(h, http.MethodPost, "/callable/exportMyData", "", `{"data":{}}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(h, http.MethodPost, "/callable/exportMyData", "customer", `{"data":{}}`)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(h, http.MethodPost, "/callable/exportMyData", "forged", `{"data":{}}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterJobsNeedSchedulerCredentials(t *testing.T) {
	jobs := &stubJobs{}
	h := newTestRouter(jobs)

	assert.Equal(t, http.StatusUnauthorized, call(h, http.MethodPost, "/jobs/ttl-cleanup", "", "").Code)
	assert.Equal(t, http.StatusForbidden, call(h, http.MethodPost, "/jobs/ttl-cleanup", "manager", "").Code)
	assert.Empty(t, jobs.ran)

	rec := call(h, http.MethodPost, "/jobs/ttl-cleanup", "scheduler", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"ttl-cleanup"}, jobs.ran)
}
