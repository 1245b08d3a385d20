// Package respond writes JSON bodies and maps domain errors to HTTP statuses.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/wencestudios/freelancehub/internal/domain"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindUnauthenticated, domain.KindSessionExpired:
		return http.StatusUnauthorized
	case domain.KindInvalid:
		return http.StatusBadRequest
	case domain.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as {"error","code"}. Internal failures are logged and
// their details withheld from the client.
func Error(w http.ResponseWriter, logger *slog.Logger, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)
	body := ErrorResponse{Error: err.Error(), Code: domain.CodeOf(err)}
	if status == http.StatusInternalServerError {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("request failed", slog.String("error", err.Error()))
		body = ErrorResponse{Error: "internal server error", Code: "internal"}
	}
	if status == http.StatusServiceUnavailable {
		body.Error = domain.ErrStoreUnavailable.Msg
	}
	JSON(w, status, body)
}

// Message writes a plain error body with a code.
func Message(w http.ResponseWriter, status int, code, msg string) {
	JSON(w, status, ErrorResponse{Error: msg, Code: code})
}
