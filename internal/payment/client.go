// Package payment wraps the Omise REST API used for card, PromptPay and
// mobile banking charges.
package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"restopos-backend/internal/metrics"
)

const (
	DefaultAPIBaseURL   = "https://api.omise.co"
	DefaultVaultBaseURL = "https://vault.omise.co"
)

// Response is a decoded Omise object.
type Response map[string]any

// RequestOptions tunes a single gateway call.
type RequestOptions struct {
	IdempotencyKey string
}

// ConfigurationError reports a missing key for the requested operation.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// RequestError is a non-2xx answer from the gateway.
type RequestError struct {
	Status  int
	Message string
	Details Response
}

func (e *RequestError) Error() string { return e.Message }

// Client talks to the vault (public key) and api (secret key) hosts.
type Client struct {
	PublicKey    string
	SecretKey    string
	APIBaseURL   string
	VaultBaseURL string
	HTTP         *http.Client
}

func NewClient(publicKey, secretKey string) *Client {
	return &Client{
		PublicKey:    publicKey,
		SecretKey:    secretKey,
		APIBaseURL:   DefaultAPIBaseURL,
		VaultBaseURL: DefaultVaultBaseURL,
		HTTP:         &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) CreateSource(ctx context.Context, payload map[string]any, opts RequestOptions) (Response, error) {
	if c.PublicKey == "" {
		return nil, &ConfigurationError{Message: "Omise public key is not configured for this operation."}
	}
	return c.do(ctx, "create_source", http.MethodPost, baseOr(c.VaultBaseURL, DefaultVaultBaseURL)+"/sources", c.PublicKey, payload, opts)
}

func (c *Client) CreateCharge(ctx context.Context, payload map[string]any, opts RequestOptions) (Response, error) {
	return c.secret(ctx, "create_charge", http.MethodPost, "/charges", payload, opts)
}

func (c *Client) RetrieveCharge(ctx context.Context, chargeID string, opts RequestOptions) (Response, error) {
	return c.secret(ctx, "retrieve_charge", http.MethodGet, "/charges/"+url.PathEscape(chargeID), nil, opts)
}

func (c *Client) CaptureCharge(ctx context.Context, chargeID string, opts RequestOptions) (Response, error) {
	return c.secret(ctx, "capture_charge", http.MethodPost, "/charges/"+url.PathEscape(chargeID)+"/capture", nil, opts)
}

// RefundCharge refunds the full charge when payload is nil.
func (c *Client) RefundCharge(ctx context.Context, chargeID string, payload map[string]any, opts RequestOptions) (Response, error) {
	return c.secret(ctx, "refund_charge", http.MethodPost, "/charges/"+url.PathEscape(chargeID)+"/refunds", payload, opts)
}

func (c *Client) secret(ctx context.Context, op, method, path string, payload map[string]any, opts RequestOptions) (Response, error) {
	if c.SecretKey == "" {
		return nil, &ConfigurationError{Message: "Omise secret key is not configured for this operation."}
	}
	return c.do(ctx, op, method, baseOr(c.APIBaseURL, DefaultAPIBaseURL)+path, c.SecretKey, payload, opts)
}

func (c *Client) do(ctx context.Context, op, method, endpoint, key string, payload map[string]any, opts RequestOptions) (resp Response, err error) {
	defer func() { metrics.PaymentRequests.WithLabelValues(op, metrics.Result(err)).Inc() }()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(key+":")))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	if opts.IdempotencyKey != "" {
		req.Header.Set("Omise-Idempotency-Key", opts.IdempotencyKey)
	}

	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("omise %s: %w", op, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read omise %s response: %w", op, err)
	}
	parsed := parseBody(raw)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg := errorMessage(parsed)
		if msg == "" {
			msg = fmt.Sprintf("Omise request failed with status %d", res.StatusCode)
		}
		return nil, &RequestError{Status: res.StatusCode, Message: msg, Details: parsed}
	}
	if parsed == nil {
		parsed = Response{}
	}
	return parsed, nil
}

func baseOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return strings.TrimRight(v, "/")
}

// parseBody keeps only JSON objects; anything else decodes to nil.
func parseBody(raw []byte) Response {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func errorMessage(body Response) string {
	if body == nil {
		return ""
	}
	if s := trimmedString(body["message"]); s != "" {
		return s
	}
	switch e := body["error"].(type) {
	case string:
		return strings.TrimSpace(e)
	case map[string]any:
		if s := trimmedString(e["message"]); s != "" {
			return s
		}
		return trimmedString(e["code"])
	}
	return ""
}

func trimmedString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
