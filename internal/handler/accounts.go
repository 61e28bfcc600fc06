package handler

import (
	"net/http"

	"corebank/internal/domain"
	"corebank/internal/ledger"
	"corebank/internal/transfer"
	"corebank/pkg/validator"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

type AccountsHandler struct {
	ledger    *ledger.Service
	transfers *transfer.Service
	validator *validator.Validator
	logger    Logger
}

func NewAccountsHandler(l *ledger.Service, t *transfer.Service, val *validator.Validator, log Logger) *AccountsHandler {
	return &AccountsHandler{ledger: l, transfers: t, validator: val, logger: log}
}

func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	accounts, err := h.ledger.Accounts(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

func (h *AccountsHandler) Balance(w http.ResponseWriter, r *http.Request) {
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	kind := domain.AccountKind(mux.Vars(r)["kind"])
	balance, err := h.ledger.GetBalance(r.Context(), userID, kind)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"account_type": kind,
		"balance":      balance.StringFixed(2),
	})
}

func (h *AccountsHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	page, err := h.ledger.History(r.Context(), userID, queryInt(r, "limit", 20, 100), queryInt(r, "offset", 0, 1<<30))
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

type transferRequest struct {
	From   domain.AccountKind `json:"from" validate:"required,oneof=checking savings"`
	To     domain.AccountKind `json:"to" validate:"required,oneof=checking savings"`
	Amount decimal.Decimal    `json:"amount" validate:"required,gt=0"`
}

func (h *AccountsHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	if errs := h.validator.ValidateStructured(req); errs != nil {
		respondValidationErrors(w, errs)
		return
	}

	res, err := h.transfers.Transfer(r.Context(), userID, req.From, req.To, req.Amount)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (h *AccountsHandler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	detail, err := h.transfers.Get(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, detail)
}
