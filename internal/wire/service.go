// Package wire runs the admin-moderated external transfer lifecycle. Funds
// leave the account only when an admin completes the request.
package wire

import (
	"context"
	"fmt"
	"strings"
	"time"

	"corebank/internal/domain"
	"corebank/internal/events"
	"corebank/internal/ledger"
	"corebank/internal/otp"
	"corebank/internal/store"
	"corebank/pkg/errors"
	"corebank/pkg/logger"
	"corebank/pkg/metrics"
	"corebank/pkg/validator"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

const otpPurpose = "wire_transfer"

// Gate issues and checks the OTP that authorizes a submission.
type Gate interface {
	Issue(ctx context.Context, userID uuid.UUID, purpose, scope string) (*otp.Issued, error)
	Verify(ctx context.Context, userID uuid.UUID, proof otp.Proof, scope string) error
}

type Options struct {
	Timeout    time.Duration
	DefaultFee decimal.Decimal
	MaxAmount  decimal.Decimal
}

type Service struct {
	store     store.Store
	gate      Gate
	publisher events.Publisher
	logger    logger.Logger
	metrics   metrics.Recorder
	opts      Options
}

func NewService(st store.Store, gate Gate, pub events.Publisher, log logger.Logger, rec metrics.Recorder, opts Options) *Service {
	return &Service{store: st, gate: gate, publisher: pub, logger: log, metrics: rec, opts: opts}
}

// CreateRequest is a wire draft. A nil Fee takes the configured default.
type CreateRequest struct {
	FromAccount   domain.AccountKind `json:"from_account" validate:"required,oneof=checking savings"`
	Amount        decimal.Decimal    `json:"amount" validate:"required,gt=0"`
	Fee           *decimal.Decimal   `json:"fee,omitempty"`
	RecipientName string             `json:"recipient_name" validate:"required,max=140"`
	BankName      string             `json:"recipient_bank_name" validate:"required,max=140"`
	RoutingNumber string             `json:"recipient_routing_number" validate:"required,routing_number"`
	AccountNumber string             `json:"recipient_account_number" validate:"required,bank_account_number"`
	BankAddress   string             `json:"recipient_bank_address" validate:"required,max=255"`
	SwiftCode     string             `json:"swift_code,omitempty" validate:"omitempty,swift_code"`
}

func (s *Service) fee(req CreateRequest) decimal.Decimal {
	if req.Fee == nil {
		return s.opts.DefaultFee
	}
	return *req.Fee
}

func (s *Service) validate(req CreateRequest) (domain.Recipient, error) {
	var r domain.Recipient
	if !req.FromAccount.Valid() {
		return r, errors.Invalid("from_account", "must be checking or savings")
	}
	if err := ledger.ValidateAmount("amount", req.Amount); err != nil {
		return r, err
	}
	if s.opts.MaxAmount.IsPositive() && req.Amount.GreaterThan(s.opts.MaxAmount) {
		return r, errors.Invalid("amount", "exceeds the wire transfer limit of "+s.opts.MaxAmount.StringFixed(2))
	}
	if err := ledger.ValidateFee(s.fee(req)); err != nil {
		return r, err
	}

	r = domain.Recipient{
		Name:          validator.Sanitize(req.RecipientName),
		BankName:      validator.Sanitize(req.BankName),
		RoutingNumber: strings.TrimSpace(req.RoutingNumber),
		AccountNumber: strings.TrimSpace(req.AccountNumber),
		BankAddress:   validator.Sanitize(req.BankAddress),
	}
	switch {
	case r.Name == "":
		return r, errors.Invalid("recipient_name", "is required")
	case r.BankName == "":
		return r, errors.Invalid("recipient_bank_name", "is required")
	case r.BankAddress == "":
		return r, errors.Invalid("recipient_bank_address", "is required")
	case !validator.ValidRoutingNumber(r.RoutingNumber):
		return r, errors.Invalid("recipient_routing_number", "must be 9 digits")
	case !validator.ValidAccountNumber(r.AccountNumber):
		return r, errors.Invalid("recipient_account_number", "must be 4 to 17 digits")
	}
	if sc := strings.ToUpper(strings.TrimSpace(req.SwiftCode)); sc != "" {
		if !validator.ValidSwiftCode(sc) {
			return r, errors.Invalid("swift_code", "invalid SWIFT/BIC code")
		}
		r.SwiftCode = &sc
	}
	return r, nil
}

// scope binds an OTP to every field of the draft.
func (s *Service) scope(userID uuid.UUID, req CreateRequest, r domain.Recipient) string {
	swift := ""
	if r.SwiftCode != nil {
		swift = *r.SwiftCode
	}
	return otp.Scope(otpPurpose, userID.String(), string(req.FromAccount),
		req.Amount.StringFixed(2), s.fee(req).StringFixed(2),
		r.Name, r.BankName, r.RoutingNumber, r.AccountNumber, r.BankAddress, swift)
}

// checkAllowed reports the admin block, if any.
func checkAllowed(ctx context.Context, r store.Reader, userID uuid.UUID) error {
	ctl, err := r.GetWireControl(ctx, userID)
	if err != nil {
		return err
	}
	if ctl != nil && !ctl.WireTransferEnabled {
		return errors.TransferBlocked(ctl.BlockReason)
	}
	return nil
}

// RequestAuthorization checks that the draft would be accepted and sends an
// OTP bound to it. Nothing is written to the ledger.
func (s *Service) RequestAuthorization(ctx context.Context, userID uuid.UUID, req CreateRequest) (*otp.Issued, error) {
	recipient, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	rctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	if err := checkAllowed(rctx, s.store, userID); err != nil {
		return nil, errors.FromContext(err)
	}
	acct, err := s.store.GetAccount(rctx, userID, req.FromAccount)
	if err != nil {
		return nil, errors.FromContext(err)
	}
	if req.Amount.Add(s.fee(req)).GreaterThan(acct.Balance) {
		return nil, errors.ErrInsufficientFunds
	}

	return s.gate.Issue(ctx, userID, otpPurpose, s.scope(userID, req, recipient))
}

// Authorize verifies the OTP for a draft. It does not touch the ledger.
func (s *Service) Authorize(ctx context.Context, userID uuid.UUID, req CreateRequest, proof otp.Proof) error {
	recipient, err := s.validate(req)
	if err != nil {
		return err
	}
	return s.gate.Verify(ctx, userID, proof, s.scope(userID, req, recipient))
}

// Submit authorizes the draft and creates the request.
func (s *Service) Submit(ctx context.Context, userID uuid.UUID, req CreateRequest, proof otp.Proof) (*domain.WireTransfer, error) {
	if err := s.Authorize(ctx, userID, req, proof); err != nil {
		return nil, err
	}
	return s.Create(ctx, userID, req)
}

// Create records a pending wire and its pending ledger entry. The balance is
// checked but not touched.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, req CreateRequest) (*domain.WireTransfer, error) {
	recipient, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	fee := s.fee(req)
	total := req.Amount.Add(fee)

	started := time.Now()
	var wire *domain.WireTransfer
	err = store.Atomically(ctx, s.store, s.opts.Timeout, func(ctx context.Context, tx store.Tx) error {
		if err := checkAllowed(ctx, tx, userID); err != nil {
			return err
		}
		accounts, err := tx.LockAccounts(ctx, userID, req.FromAccount)
		if err != nil {
			return err
		}
		balance := accounts[req.FromAccount].Balance
		if total.GreaterThan(balance) {
			return errors.ErrInsufficientFunds
		}

		now := time.Now().UTC()
		wireID := uuid.New()
		entry, err := ledger.PostEntry(ctx, tx, ledger.Entry{
			UserID:       userID,
			Direction:    domain.DirectionDebit,
			Amount:       total,
			Category:     domain.CategoryWireTransfer,
			Merchant:     recipient.BankName,
			Description:  "Wire transfer to " + recipient.Name,
			Status:       domain.TransactionStatusPending,
			AccountKind:  req.FromAccount,
			ParentID:     &wireID,
			BalanceAfter: balance,
			ActorID:      &userID,
		})
		if err != nil {
			return err
		}

		wire = &domain.WireTransfer{
			ID:                 wireID,
			UserID:             userID,
			TransactionID:      entry.ID,
			FromAccount:        req.FromAccount,
			Amount:             req.Amount,
			Fee:                fee,
			TotalAmount:        total,
			Recipient:          recipient,
			ConfirmationNumber: confirmationNumber(now),
			Status:             domain.WireStatusPending,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		return tx.InsertWire(ctx, wire)
	})
	s.metrics.ObserveOperation("wire_create", started, err)
	if err != nil {
		s.logger.Warn("Wire transfer not created", map[string]interface{}{
			"user_id": userID.String(),
			"amount":  req.Amount.StringFixed(2),
			"error":   err.Error(),
		})
		return nil, err
	}

	s.logger.Info("Wire transfer created", map[string]interface{}{
		"wire_id":             wire.ID.String(),
		"user_id":             userID.String(),
		"confirmation_number": wire.ConfirmationNumber,
		"total_amount":        total.StringFixed(2),
	})
	events.Notify(ctx, s.publisher, s.logger, events.New(events.TypeWireCreated, userID, wire.ID.String(), map[string]interface{}{
		"confirmation_number": wire.ConfirmationNumber,
		"total_amount":        total.StringFixed(2),
	}))
	return wire, nil
}

// confirmationNumber is unique per wire; InsertWire rejects collisions.
func confirmationNumber(now time.Time) string {
	id := ulid.Make().String()
	return fmt.Sprintf("WT-%d-%s", now.Unix(), id[len(id)-8:])
}

// Transition moves a wire along the status machine on behalf of an admin.
// Repeating a transition the wire already made returns the wire unchanged.
func (s *Service) Transition(ctx context.Context, adminID, wireID uuid.UUID, to domain.WireStatus, note string) (*domain.WireTransfer, error) {
	return s.transition(ctx, actor{id: adminID, admin: true}, wireID, to, note, false)
}

// ForceStatus is Transition that may also reverse a completed wire. A
// reversal refunds the deducted total.
func (s *Service) ForceStatus(ctx context.Context, adminID, wireID uuid.UUID, to domain.WireStatus, note string) (*domain.WireTransfer, error) {
	return s.transition(ctx, actor{id: adminID, admin: true}, wireID, to, note, true)
}

// Cancel lets the owner withdraw a request that has not been picked up.
func (s *Service) Cancel(ctx context.Context, userID, wireID uuid.UUID) (*domain.WireTransfer, error) {
	return s.transition(ctx, actor{id: userID}, wireID, domain.WireStatusCancelled, "cancelled by customer", false)
}

type actor struct {
	id    uuid.UUID
	admin bool
}

func (s *Service) transition(ctx context.Context, by actor, wireID uuid.UUID, to domain.WireStatus, note string, force bool) (*domain.WireTransfer, error) {
	if !to.Valid() {
		return nil, errors.Invalid("status", "unknown wire status")
	}

	started := time.Now()
	var (
		wire    *domain.WireTransfer
		from    domain.WireStatus
		changed bool
	)
	err := store.Atomically(ctx, s.store, s.opts.Timeout, func(ctx context.Context, tx store.Tx) error {
		w, err := tx.LockWire(ctx, wireID)
		if err != nil {
			return err
		}
		if !by.admin {
			if w.UserID != by.id {
				return errors.ErrWireNotFound
			}
			if w.Status != domain.WireStatusPending && w.Status != to {
				return fmt.Errorf("%w: only pending requests can be cancelled", errors.ErrIllegalTransition)
			}
		}
		from = w.Status
		if w.Status == to {
			wire = w
			return nil
		}
		if !CanTransition(w.Status, to, force) {
			return fmt.Errorf("%w: %s -> %s", errors.ErrIllegalTransition, w.Status, to)
		}

		now := time.Now().UTC()
		switch to {
		case domain.WireStatusCompleted:
			if err := s.deduct(ctx, tx, w, now); err != nil {
				return err
			}
		case domain.WireStatusRejected, domain.WireStatusCancelled:
			if err := s.release(ctx, tx, w, to, now); err != nil {
				return err
			}
		}

		w.Status = to
		if note != "" {
			w.AdminNotes = note
		}
		if by.admin {
			reviewer := by.id
			w.ReviewedBy = &reviewer
		}
		if err := tx.UpdateWire(ctx, w); err != nil {
			return err
		}
		if by.admin {
			if err := tx.InsertAuditEntry(ctx, auditEntry(by.id, w, from, force, note)); err != nil {
				return err
			}
		}
		wire, changed = w, true
		return nil
	})
	s.metrics.ObserveOperation("wire_transition", started, err)
	if err != nil {
		s.logger.Warn("Wire transition refused", map[string]interface{}{
			"wire_id": wireID.String(),
			"to":      to,
			"actor":   by.id.String(),
			"error":   err.Error(),
		})
		return nil, err
	}
	if !changed {
		return wire, nil
	}

	s.metrics.WireTransition(string(from), string(to))
	s.logger.Info("Wire transfer status changed", map[string]interface{}{
		"wire_id": wire.ID.String(),
		"from":    from,
		"to":      to,
		"actor":   by.id.String(),
	})
	events.Notify(ctx, s.publisher, s.logger, events.New(events.TypeWirePrefix+string(to), wire.UserID, wire.ID.String(), map[string]interface{}{
		"confirmation_number": wire.ConfirmationNumber,
		"from_status":         from,
		"total_amount":        wire.TotalAmount.StringFixed(2),
	}))
	return wire, nil
}

func auditEntry(adminID uuid.UUID, w *domain.WireTransfer, from domain.WireStatus, force bool, note string) *domain.AdminAuditEntry {
	action := "wire.transition"
	if force {
		action = "wire.force_status"
	}
	return &domain.AdminAuditEntry{
		ID:           uuid.New(),
		AdminID:      adminID,
		Action:       action,
		TargetUserID: w.UserID,
		TargetID:     w.ID.String(),
		Details: domain.Metadata{
			"from":     string(from),
			"to":       string(w.Status),
			"note":     note,
			"deducted": w.DeductedAt != nil,
			"refunded": w.RefundedAt != nil,
		},
		CreatedAt: time.Now().UTC(),
	}
}

// deduct takes total_amount from the funding account once.
func (s *Service) deduct(ctx context.Context, tx store.Tx, w *domain.WireTransfer, now time.Time) error {
	if w.DeductedAt != nil {
		return nil
	}
	accounts, err := tx.LockAccounts(ctx, w.UserID, w.FromAccount)
	if err != nil {
		return err
	}
	if w.TotalAmount.GreaterThan(accounts[w.FromAccount].Balance) {
		return errors.ErrInsufficientFundsAtApproval
	}
	if _, err := ledger.ApplyDelta(ctx, tx, w.UserID, w.FromAccount, w.TotalAmount.Neg()); err != nil {
		return err
	}
	if err := ledger.FinalizeEntry(ctx, tx, w.TransactionID, domain.TransactionStatusCompleted); err != nil {
		return err
	}
	w.DeductedAt = &now
	if w.AuthorizedAt == nil {
		w.AuthorizedAt = &now
	}
	return nil
}

// release closes a wire without sending it: the pending entry is closed and
// any deduction already taken is refunded exactly once.
func (s *Service) release(ctx context.Context, tx store.Tx, w *domain.WireTransfer, to domain.WireStatus, now time.Time) error {
	entry, err := tx.GetTransaction(ctx, w.TransactionID)
	if err != nil {
		return err
	}
	if !entry.Status.Terminal() {
		if err := ledger.FinalizeEntry(ctx, tx, w.TransactionID, entryStatus(to)); err != nil {
			return err
		}
	}
	if !w.Deducted() {
		return nil
	}

	if _, err := tx.LockAccounts(ctx, w.UserID, w.FromAccount); err != nil {
		return err
	}
	balance, err := ledger.ApplyDelta(ctx, tx, w.UserID, w.FromAccount, w.TotalAmount)
	if err != nil {
		return err
	}
	wireID := w.ID
	refund, err := ledger.PostEntry(ctx, tx, ledger.Entry{
		UserID:       w.UserID,
		Direction:    domain.DirectionCredit,
		Amount:       w.TotalAmount,
		Category:     domain.CategoryWireRefund,
		Merchant:     w.BankName,
		Description:  "Refund of wire " + w.ConfirmationNumber,
		AccountKind:  w.FromAccount,
		ParentID:     &wireID,
		BalanceAfter: balance,
	})
	if err != nil {
		return err
	}
	w.RefundedAt = &now
	w.RefundTransactionID = &refund.ID
	return nil
}

// Get returns a wire owned by userID.
func (s *Service) Get(ctx context.Context, userID, wireID uuid.UUID) (*domain.WireTransfer, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	w, err := s.store.GetWire(ctx, wireID)
	if err != nil {
		return nil, errors.FromContext(err)
	}
	if w.UserID != userID {
		return nil, errors.ErrWireNotFound
	}
	return w, nil
}

// List returns wires matching filter, newest first.
func (s *Service) List(ctx context.Context, filter store.WireFilter) ([]*domain.WireTransfer, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, errors.Invalid("status", "unknown wire status")
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	wires, err := s.store.ListWires(ctx, filter)
	return wires, errors.FromContext(err)
}

// Receipt is the payload handed to the receipt generator.
type Receipt struct {
	ConfirmationNumber string             `json:"confirmation_number"`
	WireID             uuid.UUID          `json:"wire_id"`
	TransactionID      uuid.UUID          `json:"transaction_id"`
	FromAccount        domain.AccountKind `json:"from_account"`
	Recipient          domain.Recipient   `json:"recipient"`
	Amount             decimal.Decimal    `json:"amount"`
	Fee                decimal.Decimal    `json:"fee"`
	TotalAmount        decimal.Decimal    `json:"total_amount"`
	AuthorizedAt       time.Time          `json:"authorized_at"`
	CreatedAt          time.Time          `json:"created_at"`
}

// Receipt is available once a wire has completed.
func (s *Service) Receipt(ctx context.Context, userID, wireID uuid.UUID) (*Receipt, error) {
	w, err := s.Get(ctx, userID, wireID)
	if err != nil {
		return nil, err
	}
	if w.Status != domain.WireStatusCompleted || w.AuthorizedAt == nil {
		return nil, fmt.Errorf("%w: receipt requires a completed wire", errors.ErrIllegalTransition)
	}
	return &Receipt{
		ConfirmationNumber: w.ConfirmationNumber,
		WireID:             w.ID,
		TransactionID:      w.TransactionID,
		FromAccount:        w.FromAccount,
		Recipient:          w.Recipient,
		Amount:             w.Amount,
		Fee:                w.Fee,
		TotalAmount:        w.TotalAmount,
		AuthorizedAt:       *w.AuthorizedAt,
		CreatedAt:          w.CreatedAt,
	}, nil
}
