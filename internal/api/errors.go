package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dgallion1/deckgest/internal/pipeline"
	"github.com/dgallion1/deckgest/internal/schema"
)

// APIError is the JSON error envelope: {"error": "...", "code": "..."}.
// Collaborator details are logged, never put in Message.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newBadRequest(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: message}
}

func newValidationError(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "VALIDATION_ERROR", Message: message}
}

func newNotFound(resource, id string) *APIError {
	return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: fmt.Sprintf("%s not found: %s", resource, id)}
}

func newConflict(message string) *APIError {
	return &APIError{Status: http.StatusConflict, Code: "CONFLICT", Message: message}
}

func newUpstreamError(message string) *APIError {
	return &APIError{Status: http.StatusInternalServerError, Code: "UPSTREAM_ERROR", Message: message}
}

func newInternalError(message string) *APIError {
	return &APIError{Status: http.StatusInternalServerError, Code: "INTERNAL_ERROR", Message: message}
}

// fromDomainError maps package sentinels onto the envelope. Anything
// unrecognised becomes a generic 500.
func fromDomainError(err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, pipeline.ErrSessionNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, pipeline.ErrFileNotFound), errors.Is(err, schema.ErrFieldNotFound):
		return &APIError{Status: http.StatusNotFound, Code: "NOT_FOUND", Message: err.Error()}
	case errors.Is(err, pipeline.ErrRunInProgress),
		errors.Is(err, pipeline.ErrFileNotFailed),
		errors.Is(err, pipeline.ErrSessionClosed):
		return newConflict(err.Error())
	case errors.Is(err, pipeline.ErrNothingToProcess):
		return newBadRequest(err.Error())
	case errors.Is(err, schema.ErrEmptyContract),
		errors.Is(err, schema.ErrDuplicateKey),
		errors.Is(err, schema.ErrInvalidName),
		errors.Is(err, schema.ErrReservedKey),
		errors.Is(err, schema.ErrDuplicateID):
		return newValidationError(err.Error())
	}
	return newInternalError("internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err *APIError) {
	writeJSON(w, err.Status, err)
}
