package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restopos-backend/internal/apperr"
	"restopos-backend/internal/logger"
	"restopos-backend/internal/payment"
)

type omiseCall struct {
	path, idem string
	body       map[string]any
}

func fakeGateway(t *testing.T, status int, reply func(path string) string) (PaymentHandler, *[]omiseCall) {
	t.Helper()
	var calls []omiseCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := omiseCall{path: r.URL.Path, idem: r.Header.Get("Omise-Idempotency-Key")}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &c.body)
		calls = append(calls, c)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply(r.URL.Path))
	}))
	t.Cleanup(srv.Close)

	client := payment.NewClient("pkey", "skey")
	client.APIBaseURL = srv.URL
	client.VaultBaseURL = srv.URL
	return PaymentHandler{Charges: payment.ChargesAPI{Gateway: client}, Gateway: client, Logger: logger.Discard()}, &calls
}

func postWithKey(h http.Handler, path, key string, body any) *httptest.ResponseRecorder {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw)).WithContext(context.Background())
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPromptPayRoute(t *testing.T) {
	ph, calls := fakeGateway(t, http.StatusOK, func(path string) string {
		if path == "/sources" {
			return `{"id":"src_1","object":"source"}`
		}
		return `{"id":"chrg_1","object":"charge","status":"pending"}`
	})
	h := serve(staff, ph)

	rec := postWithKey(h, "/payments/promptpay", "order-9", map[string]any{"amount": 15000, "currency": "THB"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := dataAs[payment.ChargeResult](t, decode(t, rec))
	assert.Equal(t, "chrg_1", res.Charge["id"])
	assert.Equal(t, "src_1", res.Source["id"])

	require.Len(t, *calls, 2)
	assert.Equal(t, "order-9:source", (*calls)[0].idem)
	assert.Equal(t, "promptpay", (*calls)[0].body["type"])
	assert.Equal(t, "order-9:charge", (*calls)[1].idem)
	assert.Equal(t, "src_1", (*calls)[1].body["source"])
	assert.Equal(t, "thb", (*calls)[1].body["currency"])
}

func TestPaymentValidationAndGatewayErrors(t *testing.T) {
	ph, calls := fakeGateway(t, http.StatusBadRequest, func(string) string {
		return `{"object":"error","code":"invalid_card","message":"card is expired"}`
	})
	h := serve(staff, ph)

	rec := postWithKey(h, "/payments/card-3ds", "", map[string]any{"amount": 100.5, "currency": "thb", "cardToken": "tok", "returnUri": "https://x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	assert.Equal(t, apperr.InvalidArgument, env.Error.Kind)
	assert.Contains(t, env.Message, "integer")
	assert.Empty(t, *calls)

	rec = postWithKey(h, "/payments/card-3ds", "", map[string]any{"amount": 100, "currency": "thb", "cardToken": "tok", "returnUri": "https://x"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	env = decode(t, rec)
	assert.Equal(t, apperr.FailedPrecondition, env.Error.Kind)
	assert.Equal(t, "card is expired", env.Message)
	require.Len(t, *calls, 1)
	assert.NotEmpty(t, (*calls)[0].idem)
}

func TestRefundRouteWithoutBody(t *testing.T) {
	ph, calls := fakeGateway(t, http.StatusOK, func(string) string { return `{"id":"rfnd_1"}` })
	h := serve(staff, ph)

	req := httptest.NewRequest(http.MethodPost, "/payments/chrg_1/refunds", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, *calls, 1)
	assert.Equal(t, "/charges/chrg_1/refunds", (*calls)[0].path)
	assert.Nil(t, (*calls)[0].body)
}

type webhookRoutes struct{ PaymentHandler }

func (w webhookRoutes) RegisterRoutes(r chi.Router) { w.RegisterWebhook(r) }

func TestOmiseWebhook(t *testing.T) {
	ph, calls := fakeGateway(t, http.StatusOK, func(string) string {
		return `{"id":"chrg_5","object":"charge","status":"successful"}`
	})
	h := serve(nil, webhookRoutes{ph})

	rec := do(t, h, http.MethodPost, "/webhooks/omise", map[string]any{
		"key": "charge.complete", "data": map[string]any{"object": "charge", "id": "chrg_5", "status": "pending"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := dataAs[payment.WebhookResult](t, decode(t, rec))
	assert.True(t, res.Handled)
	assert.Equal(t, "successful", res.Charge["status"])
	require.Len(t, *calls, 1)
	assert.Equal(t, "/charges/chrg_5", (*calls)[0].path)

	rec = do(t, h, http.MethodPost, "/webhooks/omise", map[string]any{"key": "charge.complete"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/webhooks/omise", map[string]any{"key": "refund.create"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, dataAs[payment.WebhookResult](t, decode(t, rec)).Handled)
	assert.Len(t, *calls, 1)
}
