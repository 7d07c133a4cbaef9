package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kailas-cloud/homefinder/internal/domain"
)

// ErrorCode is the machine-readable error kind returned to clients.
type ErrorCode string

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest          ErrorCode = "bad_request"
	CodeUnauthorized        ErrorCode = "unauthorized"
	CodeSessionNotFound     ErrorCode = "session_not_found"
	CodeUnknownTool         ErrorCode = "unknown_tool"
	CodeSessionEnded        ErrorCode = "session_ended"
	CodeInvalidTransition   ErrorCode = "invalid_transition"
	CodeInvalidContact      ErrorCode = "invalid_contact"
	CodeUnsupportedLanguage ErrorCode = "unsupported_language"
	CodeEmbeddingFailure    ErrorCode = "embedding_failure"
	CodeIndexUnavailable    ErrorCode = "index_unavailable"
	CodeTimeout             ErrorCode = "timeout"
	CodeInternal            ErrorCode = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// errorHandlers are tried in order; ErrTimeout precedes ErrEmbeddingFailure
// because a timed out embedding call wraps both.
var errorHandlers = []errorHandler{
	sentinelHandler(domain.ErrSessionNotFound, http.StatusNotFound, CodeSessionNotFound),
	sentinelHandler(domain.ErrUnknownTool, http.StatusNotFound, CodeUnknownTool),
	sentinelHandler(domain.ErrSessionEnded, http.StatusConflict, CodeSessionEnded),
	sentinelHandler(domain.ErrInvalidArgument, http.StatusBadRequest, CodeBadRequest),
	sentinelHandler(domain.ErrInvalidTransition, http.StatusBadRequest, CodeInvalidTransition),
	sentinelHandler(domain.ErrInvalidContact, http.StatusBadRequest, CodeInvalidContact),
	sentinelHandler(domain.ErrUnsupportedLanguage, http.StatusBadRequest, CodeUnsupportedLanguage),
	sentinelHandler(domain.ErrTimeout, http.StatusGatewayTimeout, CodeTimeout),
	sentinelHandler(domain.ErrEmbeddingFailure, http.StatusBadGateway, CodeEmbeddingFailure),
	sentinelHandler(domain.ErrIndexUnavailable, http.StatusServiceUnavailable, CodeIndexUnavailable),
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrSessionNotFound,
		domain.ErrUnknownTool,
		domain.ErrSessionEnded,
		domain.ErrInvalidArgument,
		domain.ErrInvalidTransition,
		domain.ErrInvalidContact,
		domain.ErrUnsupportedLanguage,
		domain.ErrTimeout,
		domain.ErrEmbeddingFailure,
		domain.ErrIndexUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}
