package errors

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON body of every REST error.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func write(w http.ResponseWriter, status int, body ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// RespondError writes code and message with the given status.
func RespondError(w http.ResponseWriter, status int, code, message string) {
	write(w, status, ErrorResponse{Error: code, Message: message})
}

// RespondValidationError writes a 400 naming the offending field.
func RespondValidationError(w http.ResponseWriter, code, message, field string) {
	write(w, http.StatusBadRequest, ErrorResponse{Error: code, Message: message, Field: field})
}

// RespondErrorWithDetails writes an error carrying extra machine-readable data.
func RespondErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	write(w, status, ErrorResponse{Error: code, Message: message, Details: details})
}

func RespondInternalError(w http.ResponseWriter, message string) {
	RespondError(w, http.StatusInternalServerError, ErrCodeInternalError, message)
}

func RespondNotFound(w http.ResponseWriter, code, message string) {
	RespondError(w, http.StatusNotFound, code, message)
}

func RespondUnauthorized(w http.ResponseWriter, code, message string) {
	RespondError(w, http.StatusUnauthorized, code, message)
}

func RespondForbidden(w http.ResponseWriter, code, message string) {
	RespondError(w, http.StatusForbidden, code, message)
}

func RespondBadRequest(w http.ResponseWriter, code, message string) {
	RespondError(w, http.StatusBadRequest, code, message)
}

func RespondServiceUnavailable(w http.ResponseWriter, code, message string) {
	RespondError(w, http.StatusServiceUnavailable, code, message)
}
