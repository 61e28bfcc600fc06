// Package handler exposes the engine over HTTP/JSON. Handlers decode and
// validate input, pass the authenticated principal explicitly, and map
// engine errors onto status codes.
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"corebank/internal/middleware"
	"corebank/pkg/errors"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func respondValidationErrors(w http.ResponseWriter, errors map[string]string) {
	respondJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":             "Validation failed",
		"validation_errors": errors,
	})
}

type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Reason    string `json:"reason,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// classify maps an engine error to a status code and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errors.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, errors.ErrInsufficientFundsAtApproval):
		return http.StatusPaymentRequired, "insufficient_funds_at_approval"
	case errors.Is(err, errors.ErrInsufficientFunds):
		return http.StatusPaymentRequired, "insufficient_funds"
	case errors.Is(err, errors.ErrTransferBlocked):
		return http.StatusForbidden, "transfer_blocked"
	case errors.Is(err, errors.ErrTradingBlocked):
		return http.StatusForbidden, "trading_blocked"
	case errors.Is(err, errors.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, errors.ErrAccountNotFound):
		return http.StatusNotFound, "account_not_found"
	case errors.Is(err, errors.ErrWalletNotFound):
		return http.StatusNotFound, "wallet_not_found"
	case errors.Is(err, errors.ErrWireNotFound):
		return http.StatusNotFound, "wire_not_found"
	case errors.Is(err, errors.ErrTransactionNotFound):
		return http.StatusNotFound, "transaction_not_found"
	case errors.Is(err, errors.ErrIllegalTransition):
		return http.StatusConflict, "illegal_transition"
	case errors.Is(err, errors.ErrTransactionFinalized):
		return http.StatusConflict, "transaction_finalized"
	case errors.Is(err, errors.ErrDuplicateRequest), errors.Is(err, errors.ErrAccountAlreadyExists):
		return http.StatusConflict, "duplicate_request"
	case errors.Is(err, errors.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, errors.ErrOTPMismatch):
		return http.StatusUnprocessableEntity, "otp_mismatch"
	case errors.Is(err, errors.ErrOTPExpired):
		return http.StatusUnprocessableEntity, "otp_expired"
	case errors.Is(err, errors.ErrOTPAttemptsExceeded):
		return http.StatusUnprocessableEntity, "otp_attempts_exceeded"
	case errors.Is(err, errors.ErrOTPScopeMismatch):
		return http.StatusUnprocessableEntity, "otp_scope_mismatch"
	case errors.Is(err, errors.ErrOTPCooldown):
		return http.StatusTooManyRequests, "otp_cooldown"
	case errors.Is(err, errors.ErrPriceUnavailable):
		return http.StatusServiceUnavailable, "price_unavailable"
	case errors.Is(err, errors.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	}
	return http.StatusInternalServerError, "internal_error"
}

// respondServiceError writes err in the common error envelope. Unclassified
// errors are logged and hidden behind a generic message.
func respondServiceError(w http.ResponseWriter, r *http.Request, log Logger, err error) {
	status, code := classify(err)

	var ve *errors.ValidationError
	if errors.As(err, &ve) && ve.Field != "" {
		respondValidationErrors(w, map[string]string{ve.Field: ve.Message})
		return
	}

	body := errorBody{Error: err.Error(), Code: code, Reason: errors.BlockReason(err), Retryable: errors.IsRetryable(err)}
	if status == http.StatusInternalServerError {
		log.Error("Request failed", map[string]interface{}{
			"path":       r.URL.Path,
			"request_id": middleware.RequestIDFromContext(r.Context()),
			"error":      err.Error(),
		})
		body.Error = "Internal server error"
	}
	respondJSON(w, status, body)
}

// decodeJSON reads a single JSON object, rejecting unknown fields.
func decodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return errors.Invalid("", "request body is empty")
		}
		return errors.Invalid("", "invalid JSON: "+err.Error())
	}
	return nil
}

// principal returns the authenticated user. Routes are mounted behind
// Authenticate, so a missing id is a wiring bug.
func principal(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "Unauthorized")
	}
	return id, ok
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid "+strings.ReplaceAll(name, "_", " "))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, def, max int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= max {
			return n
		}
	}
	return def
}
