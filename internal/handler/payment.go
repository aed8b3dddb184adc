package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"restopos-backend/internal/apperr"
	"restopos-backend/internal/payment"
)

// PaymentHandler exposes the Omise charge flows to POS clients and receives
// gateway webhooks.
type PaymentHandler struct {
	Charges payment.ChargesAPI
	Gateway payment.ChargeRetriever
	Logger  *slog.Logger
}

func (h PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/payments/card-3ds", h.card3DS)
	r.Post("/payments/promptpay", h.promptPay)
	r.Post("/payments/mobile-banking", h.mobileBanking)
	r.Post("/payments/{chargeId}/capture", h.capture)
	r.Post("/payments/{chargeId}/refunds", h.refund)
}

// RegisterWebhook mounts the unauthenticated gateway callback.
func (h PaymentHandler) RegisterWebhook(r chi.Router) {
	r.Post("/webhooks/omise", h.webhook)
}

// idempotencyKey is the client's Idempotency-Key header, or a fresh key.
func idempotencyKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("Idempotency-Key")); k != "" {
		return k
	}
	return uuid.NewString()
}

func sourceOptions(key string) payment.SourceOptions {
	return payment.SourceOptions{
		Source: payment.RequestOptions{IdempotencyKey: key + ":source"},
		Charge: payment.RequestOptions{IdempotencyKey: key + ":charge"},
	}
}

func (h PaymentHandler) card3DS(w http.ResponseWriter, r *http.Request) {
	var req payment.Card3DSParams
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	res, err := h.Charges.CreateCardCharge3DS(r.Context(), req, payment.RequestOptions{IdempotencyKey: idempotencyKey(r)})
	h.respond(w, "card-3ds", res, err)
}

func (h PaymentHandler) promptPay(w http.ResponseWriter, r *http.Request) {
	var req payment.SourceParams
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	res, err := h.Charges.CreatePromptPayCharge(r.Context(), req, sourceOptions(idempotencyKey(r)))
	h.respond(w, "promptpay", res, err)
}

func (h PaymentHandler) mobileBanking(w http.ResponseWriter, r *http.Request) {
	var req payment.MobileBankingParams
	if err := decodeJSON(w, r, &req); err != nil {
		writeAppError(w, err)
		return
	}
	res, err := h.Charges.CreateMobileBankingCharge(r.Context(), req, sourceOptions(idempotencyKey(r)))
	h.respond(w, "mobile-banking", res, err)
}

func (h PaymentHandler) capture(w http.ResponseWriter, r *http.Request) {
	res, err := h.Charges.CaptureCharge(r.Context(), chi.URLParam(r, "chargeId"), payment.RequestOptions{IdempotencyKey: idempotencyKey(r)})
	h.respond(w, "capture", res, err)
}

func (h PaymentHandler) refund(w http.ResponseWriter, r *http.Request) {
	var req *payment.RefundParams
	if r.ContentLength != 0 {
		req = &payment.RefundParams{}
		if err := decodeJSON(w, r, req); err != nil {
			writeAppError(w, err)
			return
		}
	}
	res, err := h.Charges.RefundCharge(r.Context(), chi.URLParam(r, "chargeId"), req, payment.RequestOptions{IdempotencyKey: idempotencyKey(r)})
	h.respond(w, "refund", res, err)
}

func (h PaymentHandler) respond(w http.ResponseWriter, op string, res any, err error) {
	if err != nil {
		h.writePaymentError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h PaymentHandler) writePaymentError(w http.ResponseWriter, op string, err error) {
	var (
		validation *payment.ValidationError
		config     *payment.ConfigurationError
		request    *payment.RequestError
		webhook    *payment.WebhookError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, apperr.InvalidArgument, validation.Message)
	case errors.As(err, &webhook):
		writeError(w, apperr.InvalidArgument, webhook.Message)
	case errors.As(err, &config):
		h.Logger.Error("payment gateway not configured", "op", op, "err", err)
		writeError(w, apperr.FailedPrecondition, config.Message)
	case errors.As(err, &request):
		h.Logger.Warn("payment gateway rejected request", "op", op, "status", request.Status, "err", err)
		kind := apperr.FailedPrecondition
		if request.Status >= 500 {
			kind = apperr.Internal
		}
		writeErrorStatus(w, http.StatusBadGateway, kind, request.Message)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeErrorStatus(w, http.StatusGatewayTimeout, apperr.Internal, "payment gateway timed out")
	default:
		h.Logger.Error("payment request failed", "op", op, "err", err)
		writeErrorStatus(w, http.StatusBadGateway, apperr.Internal, "payment gateway unavailable")
	}
}

func (h PaymentHandler) webhook(w http.ResponseWriter, r *http.Request) {
	var event map[string]any
	if err := decodeJSON(w, r, &event); err != nil {
		writeAppError(w, err)
		return
	}
	res, err := payment.HandleWebhookEvent(r.Context(), event, h.Gateway)
	if err != nil {
		h.writePaymentError(w, "webhook", err)
		return
	}
	if res.Handled {
		h.Logger.Info("omise charge completed", "chargeId", res.Charge["id"], "status", res.Charge["status"])
	}
	writeJSON(w, http.StatusOK, res)
}
