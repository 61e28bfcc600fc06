package handler

import (
	"context"
	"net/http"

	"corebank/internal/domain"
	"corebank/internal/pricing"
	"corebank/internal/trading"
	"corebank/pkg/validator"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// Quoter serves the current oracle quote for an asset.
type Quoter interface {
	Quote(ctx context.Context, asset domain.AssetID) (*pricing.Quote, error)
}

type CryptoHandler struct {
	trading   *trading.Service
	prices    Quoter
	validator *validator.Validator
	logger    Logger
}

func NewCryptoHandler(s *trading.Service, prices Quoter, val *validator.Validator, log Logger) *CryptoHandler {
	return &CryptoHandler{trading: s, prices: prices, validator: val, logger: log}
}

type tradeAuthorizationRequest struct {
	Side           domain.TradeType   `json:"side" validate:"required,oneof=buy sell"`
	Asset          domain.AssetID     `json:"asset_id" validate:"required,oneof=btc eth ada"`
	USDAmount      decimal.Decimal    `json:"usd_amount"`
	CryptoAmount   decimal.Decimal    `json:"crypto_amount"`
	Fee            decimal.Decimal    `json:"fee"`
	FundingAccount domain.AccountKind `json:"funding_account" validate:"required,oneof=checking savings"`
}

func (r tradeAuthorizationRequest) order() trading.Order {
	if r.Side == domain.TradeSell {
		return trading.SellRequest{Asset: r.Asset, CryptoAmount: r.CryptoAmount, Fee: r.Fee, FundingAccount: r.FundingAccount}
	}
	return trading.BuyRequest{Asset: r.Asset, USDAmount: r.USDAmount, Fee: r.Fee, FundingAccount: r.FundingAccount}
}

func (h *CryptoHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := decodeJSON(r, dst); err != nil {
		respondServiceError(w, r, h.logger, err)
		return false
	}
	if errs := h.validator.ValidateStructured(dst); errs != nil {
		respondValidationErrors(w, errs)
		return false
	}
	return true
}

// RequestAuthorization sends an OTP bound to the exact order.
func (h *CryptoHandler) RequestAuthorization(w http.ResponseWriter, r *http.Request) {
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	var req tradeAuthorizationRequest
	if !h.decode(w, r, &req) {
		return
	}
	issued, err := h.trading.RequestAuthorization(r.Context(), userID, req.order())
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusAccepted, issued)
}

func (h *CryptoHandler) Buy(w http.ResponseWriter, r *http.Request) {
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	var req trading.BuyRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.trading.Buy(r.Context(), userID, req)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (h *CryptoHandler) Sell(w http.ResponseWriter, r *http.Request) {
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	var req trading.SellRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.trading.Sell(r.Context(), userID, req)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

func (h *CryptoHandler) Portfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	p, err := h.trading.Portfolio(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *CryptoHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	trades, err := h.trading.History(r.Context(), userID, queryInt(r, "limit", 50, 100))
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"transactions": trades})
}

func (h *CryptoHandler) Price(w http.ResponseWriter, r *http.Request) {
	q, err := h.prices.Quote(r.Context(), domain.AssetID(mux.Vars(r)["asset"]))
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}
