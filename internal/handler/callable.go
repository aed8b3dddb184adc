package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"restopos-backend/internal/apperr"
	"restopos-backend/internal/server/authctx"
	"restopos-backend/internal/service"
)

// CallableHandler serves client-invoked operations as POST /callable/{name}
// with a {"data": ...} envelope.
type CallableHandler struct {
	Privacy  service.PrivacyService
	Toolkit  service.AdminToolkit
	Backfill service.BackfillService
	Receipts service.ReceiptService
	Logger   *slog.Logger
}

type callableFunc func(ctx context.Context, user *authctx.CurrentUser, data json.RawMessage) (any, error)

func (h CallableHandler) RegisterRoutes(r chi.Router) {
	r.Post("/callable/{name}", h.invoke)
}

func (h CallableHandler) operations() map[string]callableFunc {
	return map[string]callableFunc{
		"exportMyData":            h.exportMyData,
		"deleteMyData":            h.deleteMyData,
		"adminToolkit":            h.adminToolkit,
		"startMasterDataBackfill": h.startBackfill,
		"sendReceiptEmail":        h.sendReceipt,
	}
}

func (h CallableHandler) invoke(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	op, ok := h.operations()[name]
	if !ok {
		writeError(w, apperr.NotFound, "unknown callable "+name)
		return
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &envelope); err != nil {
			writeAppError(w, err)
			return
		}
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		envelope.Data = json.RawMessage(`{}`)
	}

	out, err := op(r.Context(), authctx.FromContext(r.Context()), envelope.Data)
	if err != nil {
		if apperr.KindOf(err) == apperr.Internal {
			h.Logger.Error("callable failed", "callable", name, "err", err)
		}
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func bind(data json.RawMessage, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return apperr.Wrap(apperr.InvalidArgument, err, "invalid payload")
	}
	return nil
}

type customerRequest struct {
	CustomerID string `json:"customerId"`
}

func (h CallableHandler) exportMyData(ctx context.Context, user *authctx.CurrentUser, data json.RawMessage) (any, error) {
	var req customerRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	return h.Privacy.ExportMyData(ctx, user, req.CustomerID)
}

func (h CallableHandler) deleteMyData(ctx context.Context, user *authctx.CurrentUser, data json.RawMessage) (any, error) {
	var req customerRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	return h.Privacy.DeleteMyData(ctx, user, req.CustomerID)
}

func (h CallableHandler) adminToolkit(ctx context.Context, user *authctx.CurrentUser, data json.RawMessage) (any, error) {
	var req service.AdminToolkitRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	return h.Toolkit.Run(ctx, user, req)
}

// collectionList accepts a single collection name or a list of names.
type collectionList []string

func (c *collectionList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*c = collectionList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("collection must be a string or an array of strings")
	}
	if many == nil {
		many = []string{}
	}
	*c = many
	return nil
}

type backfillRequest struct {
	Collection  *collectionList `json:"collection"`
	Collections *collectionList `json:"collections"`
	BatchSize   json.RawMessage `json:"batchSize"`
}

func (req backfillRequest) collections() []string {
	switch {
	case req.Collection != nil:
		return *req.Collection
	case req.Collections != nil:
		return *req.Collections
	default:
		return nil
	}
}

// batchSize truncates a numeric batch size. Anything else selects the default.
func (req backfillRequest) batchSize() int {
	var f float64
	if len(req.BatchSize) == 0 || json.Unmarshal(req.BatchSize, &f) != nil {
		return 0
	}
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f > service.MaxBackfillBatchSize {
		return service.MaxBackfillBatchSize
	}
	return int(math.Trunc(f))
}

func (h CallableHandler) startBackfill(ctx context.Context, user *authctx.CurrentUser, data json.RawMessage) (any, error) {
	var req backfillRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	return h.Backfill.Start(ctx, user, req.collections(), req.batchSize())
}

func (h CallableHandler) sendReceipt(ctx context.Context, _ *authctx.CurrentUser, data json.RawMessage) (any, error) {
	var req service.ReceiptRequest
	if err := bind(data, &req); err != nil {
		return nil, err
	}
	if err := h.Receipts.Send(ctx, req); err != nil {
		return nil, err
	}
	return map[string]bool{"success": true}, nil
}
