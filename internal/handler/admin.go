package handler

import (
	"net/http"

	"corebank/internal/admin"
	"corebank/internal/domain"
	"corebank/internal/ledger"
	"corebank/internal/store"
	"corebank/internal/wire"
	"corebank/pkg/validator"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// AdminHandler serves the override surface. Routes are mounted behind
// middleware.RequireAdmin; the admin id always comes from the token.
type AdminHandler struct {
	admin     *admin.Service
	ledger    *ledger.Service
	wires     *wire.Service
	validator *validator.Validator
	logger    Logger
}

func NewAdminHandler(a *admin.Service, l *ledger.Service, wires *wire.Service, val *validator.Validator, log Logger) *AdminHandler {
	return &AdminHandler{admin: a, ledger: l, wires: wires, validator: val, logger: log}
}

func (h *AdminHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
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

// target resolves the acting admin and the {id} user in the path.
func (h *AdminHandler) target(w http.ResponseWriter, r *http.Request) (adminID, userID uuid.UUID, ok bool) {
	if adminID, ok = principal(w, r); !ok {
		return
	}
	userID, ok = pathUUID(w, r, "id")
	return
}

func (h *AdminHandler) Provision(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.target(w, r)
	if !ok {
		return
	}
	p, err := h.ledger.ProvisionUser(r.Context(), userID)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *AdminHandler) ListWires(w http.ResponseWriter, r *http.Request) {
	filter := store.WireFilter{
		Status: domain.WireStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 50, 100),
		Offset: queryInt(r, "offset", 0, 1<<30),
	}
	if v := r.URL.Query().Get("user_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid user id")
			return
		}
		filter.UserID = id
	}
	wires, err := h.wires.List(r.Context(), filter)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"wire_transfers": wires})
}

type wireStatusRequest struct {
	Status domain.WireStatus `json:"status" validate:"required,oneof=pending processing completed rejected cancelled"`
	Note   string            `json:"note" validate:"max=1000"`
}

func (h *AdminHandler) TransitionWire(w http.ResponseWriter, r *http.Request) {
	h.moveWire(w, r, false)
}

func (h *AdminHandler) ForceWireStatus(w http.ResponseWriter, r *http.Request) {
	h.moveWire(w, r, true)
}

func (h *AdminHandler) moveWire(w http.ResponseWriter, r *http.Request, force bool) {
	adminID, ok := principal(w, r)
	if !ok {
		return
	}
	wireID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req wireStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	var (
		wt  *domain.WireTransfer
		err error
	)
	if force {
		wt, err = h.admin.ForceWireStatus(r.Context(), adminID, wireID, req.Status, req.Note)
	} else {
		wt, err = h.admin.TransitionWire(r.Context(), adminID, wireID, req.Status, req.Note)
	}
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, wt)
}

type setBalanceRequest struct {
	Balance decimal.Decimal `json:"balance"`
	Note    string          `json:"note" validate:"max=500"`
}

func (h *AdminHandler) SetAccountBalance(w http.ResponseWriter, r *http.Request) {
	adminID, userID, ok := h.target(w, r)
	if !ok {
		return
	}
	var req setBalanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	kind := domain.AccountKind(mux.Vars(r)["kind"])
	res, err := h.admin.SetAccountBalance(r.Context(), adminID, userID, kind, req.Balance, req.Note)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type setWalletRequest struct {
	Balance  decimal.Decimal `json:"balance"`
	TotalUSD decimal.Decimal `json:"total_usd"`
}

func (h *AdminHandler) SetCryptoWallet(w http.ResponseWriter, r *http.Request) {
	adminID, userID, ok := h.target(w, r)
	if !ok {
		return
	}
	var req setWalletRequest
	if !h.decode(w, r, &req) {
		return
	}
	asset := domain.AssetID(mux.Vars(r)["asset"])
	res, err := h.admin.SetCryptoWallet(r.Context(), adminID, userID, asset, req.Balance, req.TotalUSD)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type tradingControlsRequest struct {
	BuyEnabled  *bool  `json:"buy_enabled" validate:"required"`
	SellEnabled *bool  `json:"sell_enabled" validate:"required"`
	BlockReason string `json:"block_reason" validate:"max=500"`
}

func (h *AdminHandler) SetTradingControls(w http.ResponseWriter, r *http.Request) {
	adminID, userID, ok := h.target(w, r)
	if !ok {
		return
	}
	var req tradingControlsRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctl, err := h.admin.SetTradingControls(r.Context(), adminID, userID, *req.BuyEnabled, *req.SellEnabled, req.BlockReason)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, ctl)
}

type wireControlsRequest struct {
	Enabled     *bool  `json:"wire_transfer_enabled" validate:"required"`
	BlockReason string `json:"block_reason" validate:"max=500"`
}

func (h *AdminHandler) SetWireControls(w http.ResponseWriter, r *http.Request) {
	adminID, userID, ok := h.target(w, r)
	if !ok {
		return
	}
	var req wireControlsRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctl, err := h.admin.SetWireControls(r.Context(), adminID, userID, *req.Enabled, req.BlockReason)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, ctl)
}

func (h *AdminHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.target(w, r)
	if !ok {
		return
	}
	entries, err := h.admin.AuditLog(r.Context(), userID, queryInt(r, "limit", 50, 200))
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}
