package payment

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strings"
)

// ValidationError rejects caller input before anything reaches the gateway.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(msg string) error { return &ValidationError{Message: msg} }

// Gateway is the subset of Client the charge flows need.
type Gateway interface {
	CreateSource(ctx context.Context, payload map[string]any, opts RequestOptions) (Response, error)
	CreateCharge(ctx context.Context, payload map[string]any, opts RequestOptions) (Response, error)
	CaptureCharge(ctx context.Context, chargeID string, opts RequestOptions) (Response, error)
	RefundCharge(ctx context.Context, chargeID string, payload map[string]any, opts RequestOptions) (Response, error)
}

// ChargeParams are shared by every charge flow. Amount is in the smallest
// currency unit.
type ChargeParams struct {
	Amount      float64        `json:"amount"`
	Currency    string         `json:"currency"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Capture     *bool          `json:"capture,omitempty"`
	CustomerID  string         `json:"customerId,omitempty"`
}

type Card3DSParams struct {
	ChargeParams
	CardToken string `json:"cardToken"`
	ReturnURI string `json:"returnUri"`
}

type SourceParams struct {
	ChargeParams
	Email          string         `json:"email,omitempty"`
	Name           string         `json:"name,omitempty"`
	PhoneNumber    string         `json:"phoneNumber,omitempty"`
	SourceMetadata map[string]any `json:"sourceMetadata,omitempty"`
	SourceData     map[string]any `json:"sourceData,omitempty"`
}

type MobileBankingParams struct {
	SourceParams
	Bank       string `json:"bank,omitempty"`
	SourceType string `json:"sourceType,omitempty"`
}

type RefundParams struct {
	Amount   *float64       `json:"amount,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type ChargeResult struct {
	Charge Response `json:"charge"`
	Source Response `json:"source,omitempty"`
}

// SourceOptions carries separate idempotency keys for the source and
// charge legs of a two-step flow.
type SourceOptions struct {
	Source RequestOptions
	Charge RequestOptions
}

type ChargesAPI struct {
	Gateway Gateway
}

func (a ChargesAPI) CreateCardCharge3DS(ctx context.Context, p Card3DSParams, opts RequestOptions) (ChargeResult, error) {
	amount, err := positiveInteger(p.Amount, "amount")
	if err != nil {
		return ChargeResult{}, err
	}
	currency, err := normalizeCurrency(p.Currency)
	if err != nil {
		return ChargeResult{}, err
	}
	token, err := nonEmpty(p.CardToken, "cardToken")
	if err != nil {
		return ChargeResult{}, err
	}
	returnURI, err := nonEmpty(p.ReturnURI, "returnUri")
	if err != nil {
		return ChargeResult{}, err
	}

	payload := chargePayload(p.ChargeParams, amount, currency)
	payload["card"] = token
	payload["return_uri"] = returnURI

	charge, err := a.Gateway.CreateCharge(ctx, payload, opts)
	if err != nil {
		return ChargeResult{}, err
	}
	return ChargeResult{Charge: charge}, nil
}

func (a ChargesAPI) CreatePromptPayCharge(ctx context.Context, p SourceParams, opts SourceOptions) (ChargeResult, error) {
	return a.sourceCharge(ctx, p, "promptpay", opts)
}

func (a ChargesAPI) CreateMobileBankingCharge(ctx context.Context, p MobileBankingParams, opts SourceOptions) (ChargeResult, error) {
	if _, err := positiveInteger(p.Amount, "amount"); err != nil {
		return ChargeResult{}, err
	}
	if _, err := normalizeCurrency(p.Currency); err != nil {
		return ChargeResult{}, err
	}
	sourceType, err := mobileBankingType(p)
	if err != nil {
		return ChargeResult{}, err
	}
	return a.sourceCharge(ctx, p.SourceParams, sourceType, opts)
}

func (a ChargesAPI) sourceCharge(ctx context.Context, p SourceParams, sourceType string, opts SourceOptions) (ChargeResult, error) {
	amount, err := positiveInteger(p.Amount, "amount")
	if err != nil {
		return ChargeResult{}, err
	}
	currency, err := normalizeCurrency(p.Currency)
	if err != nil {
		return ChargeResult{}, err
	}

	source, err := a.Gateway.CreateSource(ctx, sourcePayload(p, amount, currency, sourceType), opts.Source)
	if err != nil {
		return ChargeResult{}, err
	}
	sourceID, ok := source["id"].(string)
	if !ok || strings.TrimSpace(sourceID) == "" {
		return ChargeResult{}, errors.New("Omise source did not return an identifier.")
	}

	payload := chargePayload(p.ChargeParams, amount, currency)
	payload["source"] = sourceID
	charge, err := a.Gateway.CreateCharge(ctx, payload, opts.Charge)
	if err != nil {
		return ChargeResult{}, err
	}
	return ChargeResult{Charge: charge, Source: source}, nil
}

func (a ChargesAPI) CaptureCharge(ctx context.Context, chargeID string, opts RequestOptions) (Response, error) {
	id, err := nonEmpty(chargeID, "chargeId")
	if err != nil {
		return nil, err
	}
	return a.Gateway.CaptureCharge(ctx, id, opts)
}

// RefundCharge refunds the whole charge when p is nil.
func (a ChargesAPI) RefundCharge(ctx context.Context, chargeID string, p *RefundParams, opts RequestOptions) (Response, error) {
	id, err := nonEmpty(chargeID, "chargeId")
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if p != nil {
		payload = map[string]any{}
		if p.Amount != nil {
			amount, err := positiveInteger(*p.Amount, "amount")
			if err != nil {
				return nil, err
			}
			payload["amount"] = amount
		}
		if md := stripNil(p.Metadata); md != nil {
			payload["metadata"] = md
		}
	}
	return a.Gateway.RefundCharge(ctx, id, payload, opts)
}

func chargePayload(p ChargeParams, amount int64, currency string) map[string]any {
	payload := map[string]any{"amount": amount, "currency": currency}
	if d := strings.TrimSpace(p.Description); d != "" {
		payload["description"] = d
	}
	if md := stripNil(p.Metadata); md != nil {
		payload["metadata"] = md
	}
	if p.Capture != nil {
		payload["capture"] = *p.Capture
	}
	if c := strings.TrimSpace(p.CustomerID); c != "" {
		payload["customer"] = c
	}
	return payload
}

var reservedSourceKeys = map[string]bool{
	"type": true, "amount": true, "currency": true, "metadata": true,
	"email": true, "name": true, "phone_number": true,
}

func sourcePayload(p SourceParams, amount int64, currency, sourceType string) map[string]any {
	payload := map[string]any{"type": sourceType, "amount": amount, "currency": currency}
	if md := stripNil(p.SourceMetadata); md != nil {
		payload["metadata"] = md
	}
	if v := strings.TrimSpace(p.Email); v != "" {
		payload["email"] = v
	}
	if v := strings.TrimSpace(p.Name); v != "" {
		payload["name"] = v
	}
	if v := strings.TrimSpace(p.PhoneNumber); v != "" {
		payload["phone_number"] = v
	}
	for k, v := range p.SourceData {
		if v == nil || reservedSourceKeys[k] {
			continue
		}
		payload[k] = v
	}
	return payload
}

func positiveInteger(v float64, field string) (int64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, invalid(field + " must be a finite number.")
	}
	if v != math.Trunc(v) {
		return 0, invalid(field + " must be an integer representing the smallest currency unit.")
	}
	if v <= 0 {
		return 0, invalid(field + " must be greater than zero.")
	}
	return int64(v), nil
}

func nonEmpty(v, field string) (string, error) {
	s := strings.TrimSpace(v)
	if s == "" {
		return "", invalid(field + " must not be empty.")
	}
	return s, nil
}

var (
	currencyPattern   = regexp.MustCompile(`^[a-z]{3}$`)
	identifierPattern = regexp.MustCompile(`^[a-z0-9_]+$`)
)

func normalizeCurrency(v string) (string, error) {
	s, err := nonEmpty(v, "currency")
	if err != nil {
		return "", err
	}
	s = strings.ToLower(s)
	if !currencyPattern.MatchString(s) {
		return "", invalid("currency must be a three-letter ISO code.")
	}
	return s, nil
}

func identifier(v, field string) (string, error) {
	s, err := nonEmpty(v, field)
	if err != nil {
		return "", err
	}
	s = strings.ToLower(s)
	if !identifierPattern.MatchString(s) {
		return "", invalid(field + " may only contain lowercase letters, numbers, or underscores.")
	}
	return s, nil
}

func mobileBankingType(p MobileBankingParams) (string, error) {
	if p.SourceType != "" {
		return identifier(p.SourceType, "sourceType")
	}
	if p.Bank == "" {
		return "", invalid("bank is required when sourceType is not provided for mobile banking charges.")
	}
	bank, err := identifier(p.Bank, "bank")
	if err != nil {
		return "", err
	}
	return "mobile_banking_" + bank, nil
}

func stripNil(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if v != nil {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
