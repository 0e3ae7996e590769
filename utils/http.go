package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// StatusClientClosedRequest is the non-standard status for a caller that went away
const StatusClientClosedRequest = 499

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Envelope wraps every successful payload as {"data": ...}
type Envelope struct {
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

type errorKind struct {
	code    string
	message string
}

var errorKinds = map[int]errorKind{
	http.StatusBadRequest:            {"bad_request", "Invalid request"},
	http.StatusUnauthorized:          {"unauthorized", "Authentication required"},
	http.StatusNotFound:              {"not_found", "Resource not found"},
	http.StatusRequestEntityTooLarge: {"payload_too_large", "Request body too large"},
	http.StatusTooManyRequests:       {"rate_limit_exceeded", "Rate limit exceeded"},
	http.StatusFailedDependency:      {"provider_auth_failed", "Provider rejected platform credentials"},
	StatusClientClosedRequest:        {"client_closed_request", "Request cancelled by client"},
	http.StatusBadGateway:            {"bad_gateway", "Upstream provider failed"},
	http.StatusServiceUnavailable:    {"service_unavailable", "Service unavailable"},
	http.StatusGatewayTimeout:        {"gateway_timeout", "Request timed out"},
}

// ErrorCode returns the machine-readable error code for an HTTP status
func ErrorCode(status int) string {
	if kind, ok := errorKinds[status]; ok {
		return kind.code
	}
	return "internal_error"
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteOK writes a 200 OK response with the payload in the data envelope
func WriteOK(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, Envelope{Data: data})
}

// WriteError writes an error body whose code is derived from status. An
// empty message falls back to the status default.
func WriteError(w http.ResponseWriter, status int, message string, details map[string]interface{}) error {
	if message == "" {
		if kind, ok := errorKinds[status]; ok {
			message = kind.message
		} else {
			message = "Internal server error"
		}
	}
	return WriteJSON(w, status, ErrorResponse{
		Error:   ErrorCode(status),
		Message: message,
		Details: details,
	})
}

// WriteBadRequest writes a 400 Bad Request response with error details
func WriteBadRequest(w http.ResponseWriter, message string, details map[string]interface{}) error {
	return WriteError(w, http.StatusBadRequest, message, details)
}

// WriteUnauthorized writes a 401 Unauthorized response
func WriteUnauthorized(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusUnauthorized, message, nil)
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusNotFound, message, nil)
}

// WriteInternalServerError writes a 500 response. The message must not leak internals.
func WriteInternalServerError(w http.ResponseWriter, message string) error {
	return WriteError(w, http.StatusInternalServerError, message, nil)
}

// ErrBodyTooLarge is returned by DecodeJSON when the body exceeds its limit
var ErrBodyTooLarge = errors.New("request body too large")

// DecodeJSON reads one JSON object of at most maxBytes into v. Trailing
// data after the object is rejected.
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ErrBodyTooLarge
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty request body")
		}
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("malformed JSON: unexpected data after object")
	}
	return nil
}
