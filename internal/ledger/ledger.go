// Package ledger owns account balances and the transaction log. ApplyDelta
// and PostEntry are the only paths that change either; every engine
// operation calls them inside one store transaction.
package ledger

import (
	"context"
	"time"

	"corebank/internal/domain"
	"corebank/internal/store"
	"corebank/pkg/errors"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// ApplyDelta adds a signed amount to one account and returns the new
// balance. It does not write a Transaction; callers post the matching entry
// in the same tx.
func ApplyDelta(ctx context.Context, tx store.Tx, userID uuid.UUID, kind domain.AccountKind, delta decimal.Decimal) (decimal.Decimal, error) {
	if !kind.Valid() {
		return decimal.Zero, errors.Invalid("account_type", "must be checking or savings")
	}
	if !delta.Equal(delta.Round(domain.FiatPlaces)) {
		return decimal.Zero, errors.Invalid("amount", "at most 2 decimal places")
	}
	if delta.IsZero() {
		acct, err := tx.GetAccount(ctx, userID, kind)
		if err != nil {
			return decimal.Zero, err
		}
		return acct.Balance, nil
	}

	acct, err := tx.AdjustBalance(ctx, userID, kind, delta)
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Balance, nil
}

// Entry describes one ledger line to append.
type Entry struct {
	UserID       uuid.UUID
	Direction    domain.Direction
	Amount       decimal.Decimal
	Category     domain.Category
	Merchant     string
	Description  string
	Status       domain.TransactionStatus
	AccountKind  domain.AccountKind
	TransferID   *string
	ParentID     *uuid.UUID
	BalanceAfter decimal.Decimal
	ActorID      *uuid.UUID
}

// PostEntry appends an immutable Transaction row.
func PostEntry(ctx context.Context, tx store.Tx, e Entry) (*domain.Transaction, error) {
	if !e.Amount.IsPositive() {
		return nil, errors.Invalid("amount", "must be positive")
	}
	if e.Direction != domain.DirectionDebit && e.Direction != domain.DirectionCredit {
		return nil, errors.Invalid("type", "must be debit or credit")
	}
	if e.Status == "" {
		e.Status = domain.TransactionStatusCompleted
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:           uuid.New(),
		UserID:       e.UserID,
		Type:         e.Direction,
		Amount:       e.Amount.Round(domain.FiatPlaces),
		Category:     e.Category,
		Merchant:     e.Merchant,
		Description:  e.Description,
		Status:       e.Status,
		AccountKind:  e.AccountKind,
		TransferID:   e.TransferID,
		ParentID:     e.ParentID,
		BalanceAfter: e.BalanceAfter,
		ActorID:      e.ActorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if txn.Status == domain.TransactionStatusCompleted {
		txn.CompletedAt = &now
	}
	if err := tx.InsertTransaction(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// FinalizeEntry moves a pending entry to a terminal status exactly once.
func FinalizeEntry(ctx context.Context, tx store.Tx, id uuid.UUID, status domain.TransactionStatus) error {
	if !status.Terminal() {
		return errors.Invalid("status", "must be terminal")
	}
	return tx.FinalizeTransaction(ctx, id, status)
}

// NewCorrelationID returns a time-ordered id with a random suffix, shared by
// every record of one logical operation.
func NewCorrelationID() string {
	return ulid.Make().String()
}

// ValidateAmount rejects non-positive amounts and sub-cent precision.
func ValidateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.Invalid(field, "must be greater than zero")
	}
	if !amount.Equal(amount.Round(domain.FiatPlaces)) {
		return errors.Invalid(field, "at most 2 decimal places")
	}
	return nil
}

// ValidateFee accepts zero.
func ValidateFee(fee decimal.Decimal) error {
	if fee.IsNegative() {
		return errors.Invalid("fee", "must not be negative")
	}
	if !fee.Equal(fee.Round(domain.FiatPlaces)) {
		return errors.Invalid("fee", "at most 2 decimal places")
	}
	return nil
}
