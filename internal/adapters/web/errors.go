package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"stock-ledger/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeDomainError maps core errors onto HTTP statuses. Rejections carry
// their machine-readable reason code so clients can branch without
// parsing messages.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr   *core.ValidationError
		insufficientErr *core.InsufficientStockError
		availableErr    *core.InsufficientAvailableError
		storageErr      *core.StorageError
		conflictErr     *core.ConflictError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, r, validationErr.Message, validationErr.Code, http.StatusUnprocessableEntity)
	case errors.As(err, &insufficientErr):
		writeError(w, r, insufficientErr.Error(), core.CodeInsufficientStock, http.StatusConflict)
	case errors.As(err, &availableErr):
		writeError(w, r, availableErr.Error(), core.CodeInsufficientAvailable, http.StatusConflict)
	case errors.Is(err, core.ErrNotFound):
		writeError(w, r, "not found", "NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, core.ErrDuplicateCode):
		writeError(w, r, "code already in use", "DUPLICATE_CODE", http.StatusConflict)
	case errors.Is(err, core.ErrReferenced):
		writeError(w, r, "record is still referenced", "REFERENCED", http.StatusConflict)
	case errors.As(err, &storageErr):
		writeError(w, r, "storage unavailable", core.CodeStorageTimeout, http.StatusServiceUnavailable)
	case errors.As(err, &conflictErr):
		writeError(w, r, conflictErr.Error(), core.CodeConflict, http.StatusInternalServerError)
	default:
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
