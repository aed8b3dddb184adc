package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"restopos-backend/internal/apperr"
)

const maxBodyBytes = 8 << 20

type apiError struct {
	Code   int         `json:"code"`
	Status string      `json:"status"`
	Kind   apperr.Kind `json:"kind"`
}

type apiResponse struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Data    any       `json:"data"`
	Error   *apiError `json:"error,omitempty"`
}

func writeRawJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	writeRawJSON(w, status, apiResponse{
		Status:  "ok",
		Message: "",
		Data:    payload,
	})
}

func writeError(w http.ResponseWriter, kind apperr.Kind, message string) {
	writeErrorStatus(w, apperr.HTTPStatus(kind), kind, message)
}

func writeErrorStatus(w http.ResponseWriter, status int, kind apperr.Kind, message string) {
	writeRawJSON(w, status, apiResponse{
		Status:  "error",
		Message: message,
		Data:    nil,
		Error: &apiError{
			Code:   status,
			Status: http.StatusText(status),
			Kind:   kind,
		},
	})
}

// writeAppError renders err with its apperr kind. Anything else is an
// internal error whose detail stays out of the response.
func writeAppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	writeError(w, kind, apperr.Message(err))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.InvalidArgument, "request body is required")
		}
		return apperr.Wrap(apperr.InvalidArgument, err, "invalid payload")
	}
	return nil
}
