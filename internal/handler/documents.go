package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"restopos-backend/internal/apperr"
	"restopos-backend/internal/docstore"
	"restopos-backend/internal/domain"
	"restopos-backend/internal/server/authctx"
)

// clientCollections may be read and written by POS clients. Derived data
// (aggregates, audit and privacy logs) is written by the server only.
var clientCollections = map[string]bool{
	domain.CollectionOrders:             true,
	domain.CollectionIngredients:        true,
	domain.CollectionMenuItems:          true,
	domain.CollectionCustomers:          true,
	domain.CollectionRefunds:            true,
	domain.CollectionPurchaseOrders:     true,
	domain.CollectionWasteRecords:       true,
	domain.CollectionPromotions:         true,
	domain.CollectionPunchCardCampaigns: true,
	domain.CollectionModifierGroups:     true,
	domain.CollectionStores:             true,
	domain.CollectionFeatureFlags:       true,
}

// DocumentHandler is the tenant-scoped write path for POS clients. Every write
// is tagged with the caller so triggers and audit logs see the actor.
type DocumentHandler struct {
	Store  docstore.Store
	Logger *slog.Logger
}

func (h DocumentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/documents/{collection}", func(r chi.Router) {
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.put)
		r.Patch("/{id}", h.patch)
		r.Delete("/{id}", h.remove)
	})
}

type documentResponse struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Data       map[string]any `json:"data"`
}

func (h DocumentHandler) collection(w http.ResponseWriter, r *http.Request) (string, bool) {
	c := chi.URLParam(r, "collection")
	if !clientCollections[c] {
		writeError(w, apperr.NotFound, "unknown collection "+c)
		return "", false
	}
	return c, true
}

func (h DocumentHandler) create(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	collection, ok := h.collection(w, r)
	if !ok {
		return
	}
	body, err := decodeDocument(w, r)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if err := stampTenant(user, body); err != nil {
		writeAppError(w, err)
		return
	}

	ctx := docstore.WithActor(r.Context(), user.UID)
	id, err := h.Store.Create(ctx, collection, body)
	if err != nil {
		writeAppError(w, h.storeError(err, collection, ""))
		return
	}
	writeRawJSON(w, http.StatusCreated, apiResponse{Status: "ok", Data: map[string]string{"id": id}})
}

func (h DocumentHandler) get(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	collection, ok := h.collection(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	doc, err := h.load(r.Context(), user, collection, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentResponse{ID: doc.ID, Collection: collection, Data: doc.Data})
}

func (h DocumentHandler) put(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, false)
}

func (h DocumentHandler) patch(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, true)
}

func (h DocumentHandler) write(w http.ResponseWriter, r *http.Request, merge bool) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	collection, ok := h.collection(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	body, err := decodeDocument(w, r)
	if err != nil {
		writeAppError(w, err)
		return
	}

	existing, err := h.load(r.Context(), user, collection, id)
	switch {
	case err == nil:
	case apperr.KindOf(err) == apperr.NotFound:
		existing = nil
	default:
		writeAppError(w, err)
		return
	}

	// A merge into an existing document keeps its tenant unless the body names one.
	if _, named := body["tenantId"]; !merge || existing == nil || named {
		if err := stampTenant(user, body); err != nil {
			writeAppError(w, err)
			return
		}
		if existing != nil && docstore.TenantOf(body) != docstore.TenantOf(existing.Data) && !user.IsAdmin() {
			writeError(w, apperr.PermissionDenied, "Documents cannot be moved between tenants.")
			return
		}
	}

	ctx := docstore.WithActor(r.Context(), user.UID)
	if err := h.Store.Set(ctx, collection, id, body, merge); err != nil {
		writeAppError(w, h.storeError(err, collection, id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (h DocumentHandler) remove(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	collection, ok := h.collection(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := h.load(r.Context(), user, collection, id); err != nil {
		writeAppError(w, err)
		return
	}
	ctx := docstore.WithActor(r.Context(), user.UID)
	if err := h.Store.Delete(ctx, collection, id); err != nil {
		writeAppError(w, h.storeError(err, collection, id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

// load fetches a document the caller is allowed to see. Documents of other
// tenants are reported as missing.
func (h DocumentHandler) load(ctx context.Context, user *authctx.CurrentUser, collection, id string) (*docstore.Document, error) {
	doc, err := h.Store.Get(ctx, collection, id)
	if err != nil {
		return nil, h.storeError(err, collection, id)
	}
	if !canAccessTenant(user, docstore.TenantOf(doc.Data)) {
		return nil, apperr.New(apperr.NotFound, "document not found")
	}
	return doc, nil
}

func (h DocumentHandler) storeError(err error, collection, id string) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return apperr.Wrap(apperr.NotFound, err, "document not found")
	}
	var guard *docstore.GuardError
	if errors.As(err, &guard) {
		return apperr.Wrap(apperr.FailedPrecondition, err, strings.Join(guard.Problems, " "))
	}
	h.Logger.Error("document write failed", "collection", collection, "id", id, "err", err)
	return apperr.Wrap(apperr.Internal, err, "internal error")
}

// stampTenant fills tenantId from the caller and rejects foreign tenants.
func stampTenant(user *authctx.CurrentUser, body map[string]any) error {
	tenant := docstore.TenantOf(body)
	switch {
	case tenant == "" && user.TenantID != "":
		body["tenantId"] = user.TenantID
	case tenant == "":
		return apperr.New(apperr.InvalidArgument, "tenantId is required")
	case !canAccessTenant(user, tenant):
		return apperr.New(apperr.PermissionDenied, "Writes to another tenant are not allowed.")
	}
	return nil
}

func decodeDocument(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	var body map[string]any
	if err := decodeJSON(w, r, &body); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, apperr.New(apperr.InvalidArgument, "document body must be an object")
	}
	return body, nil
}
