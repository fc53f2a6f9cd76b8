package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/daybook-app/daybook/internal/common"
	"github.com/daybook-app/daybook/internal/server/services"
)

// errPayload is the machine-readable error envelope. Clients classify
// failures by code first and fall back to the HTTP status.
type errPayload struct {
	Code    common.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code common.ErrorCode, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errPayload{Code: code, Message: msg})
}

// writeServiceError maps service-layer sentinels onto the wire envelope.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		writeError(w, http.StatusNotFound, common.CodeNotFound, "not found")
	case errors.Is(err, common.ErrAlreadyExists):
		writeError(w, http.StatusConflict, common.CodeValidation, "already exists")
	case errors.Is(err, common.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, common.CodeTokenExpired, "token expired")
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, common.CodeUnauthorized, "unauthorized")
	case errors.Is(err, common.ErrMissingIndex):
		writeError(w, http.StatusBadRequest, common.CodeMissingIndex, "ordered queries are not supported")
	case errors.Is(err, services.ErrQuotaExceeded):
		writeError(w, http.StatusForbidden, common.CodeQuota, "attachment quota exceeded")
	default:
		writeError(w, http.StatusInternalServerError, common.CodeInternal, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
