package handler

import (
	"net/http"

	"corebank/internal/domain"
	"corebank/internal/otp"
	"corebank/internal/store"
	"corebank/internal/wire"
	"corebank/pkg/validator"
)

type WiresHandler struct {
	wires     *wire.Service
	validator *validator.Validator
	logger    Logger
}

func NewWiresHandler(s *wire.Service, val *validator.Validator, log Logger) *WiresHandler {
	return &WiresHandler{wires: s, validator: val, logger: log}
}

// submitWireRequest is the draft plus the OTP that was issued for it.
type submitWireRequest struct {
	wire.CreateRequest
	otp.Proof
}

func (h *WiresHandler) decodeDraft(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
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

// RequestAuthorization sends an OTP for the posted draft.
func (h *WiresHandler) RequestAuthorization(w http.ResponseWriter, r *http.Request) {
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	var req wire.CreateRequest
	if !h.decodeDraft(w, r, &req) {
		return
	}
	issued, err := h.wires.RequestAuthorization(r.Context(), userID, req)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusAccepted, issued)
}

// Create submits an authorized draft. The request starts pending and the
// balance is untouched until an admin completes it.
func (h *WiresHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	var req submitWireRequest
	if !h.decodeDraft(w, r, &req) {
		return
	}
	wt, err := h.wires.Submit(r.Context(), userID, req.CreateRequest, req.Proof)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, wt)
}

func (h *WiresHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	wires, err := h.wires.List(r.Context(), store.WireFilter{
		UserID: userID,
		Status: domain.WireStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 50, 100),
		Offset: queryInt(r, "offset", 0, 1<<30),
	})
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"wire_transfers": wires})
}

func (h *WiresHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	wireID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	wt, err := h.wires.Get(r.Context(), userID, wireID)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, wt)
}

func (h *WiresHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	wireID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	wt, err := h.wires.Cancel(r.Context(), userID, wireID)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, wt)
}

func (h *WiresHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	userID, ok := principal(w, r)
	if !ok {
		return
	}
	wireID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	receipt, err := h.wires.Receipt(r.Context(), userID, wireID)
	if err != nil {
		respondServiceError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, receipt)
}
