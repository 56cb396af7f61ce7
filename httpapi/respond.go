package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"tutorflow/auth"
	"tutorflow/commitment"
	"tutorflow/party"
	"tutorflow/request"
)

type apiError struct {
	Status    string `json:"status"`
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, map[string]any{
		"status": "success",
		"data":   data,
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message, requestID string) {
	writeJSON(w, statusCode, apiError{
		Status:    "error",
		Code:      code,
		Message:   message,
		RequestID: requestID,
	})
}

func mapDomainError(err error) (int, string) {
	switch {
	case errors.Is(err, commitment.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, commitment.ErrInvalidState):
		return http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, commitment.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, commitment.ErrNotFound),
		errors.Is(err, party.ErrNotFound),
		errors.Is(err, request.ErrNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS"
	case errors.Is(err, auth.ErrDuplicateEmail):
		return http.StatusConflict, "DUPLICATE_EMAIL"
	case errors.Is(err, auth.ErrWeakPassword):
		return http.StatusBadRequest, "WEAK_PASSWORD"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
