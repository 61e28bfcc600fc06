// Package transfer moves funds between a user's own accounts.
package transfer

import (
	"context"
	"time"

	"corebank/internal/domain"
	"corebank/internal/events"
	"corebank/internal/ledger"
	"corebank/internal/store"
	"corebank/pkg/errors"
	"corebank/pkg/logger"
	"corebank/pkg/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Service struct {
	store     store.Store
	publisher events.Publisher
	logger    logger.Logger
	metrics   metrics.Recorder
	timeout   time.Duration
}

func NewService(st store.Store, pub events.Publisher, log logger.Logger, rec metrics.Recorder, timeout time.Duration) *Service {
	return &Service{store: st, publisher: pub, logger: log, metrics: rec, timeout: timeout}
}

// Result is returned by a committed transfer.
type Result struct {
	TransferID  string                   `json:"transfer_id"`
	FromBalance decimal.Decimal          `json:"from_balance"`
	ToBalance   decimal.Decimal          `json:"to_balance"`
	Record      *domain.InternalTransfer `json:"record"`
	Debit       *domain.Transaction      `json:"debit"`
	Credit      *domain.Transaction      `json:"credit"`
}

// Transfer debits from, credits to and writes both ledger legs plus the
// linking record in one commit.
func (s *Service) Transfer(ctx context.Context, userID uuid.UUID, from, to domain.AccountKind, amount decimal.Decimal) (*Result, error) {
	if !from.Valid() {
		return nil, errors.Invalid("from_account", "must be checking or savings")
	}
	if !to.Valid() {
		return nil, errors.Invalid("to_account", "must be checking or savings")
	}
	if from == to {
		return nil, errors.Invalid("to_account", "must differ from the source account")
	}
	if err := ledger.ValidateAmount("amount", amount); err != nil {
		return nil, err
	}

	started := time.Now()
	transferID := ledger.NewCorrelationID()
	res := &Result{TransferID: transferID}

	err := store.Atomically(ctx, s.store, s.timeout, func(ctx context.Context, tx store.Tx) error {
		accounts, err := tx.LockAccounts(ctx, userID, from, to)
		if err != nil {
			return err
		}
		if amount.GreaterThan(accounts[from].Balance) {
			return errors.ErrInsufficientFunds
		}

		if res.FromBalance, err = ledger.ApplyDelta(ctx, tx, userID, from, amount.Neg()); err != nil {
			return err
		}
		if res.ToBalance, err = ledger.ApplyDelta(ctx, tx, userID, to, amount); err != nil {
			return err
		}

		description := "Transfer to " + string(to)
		if res.Debit, err = ledger.PostEntry(ctx, tx, ledger.Entry{
			UserID:       userID,
			Direction:    domain.DirectionDebit,
			Amount:       amount,
			Category:     domain.CategoryInternalTransfer,
			Merchant:     "Internal Transfer",
			Description:  description,
			AccountKind:  from,
			TransferID:   &transferID,
			BalanceAfter: res.FromBalance,
			ActorID:      &userID,
		}); err != nil {
			return err
		}
		if res.Credit, err = ledger.PostEntry(ctx, tx, ledger.Entry{
			UserID:       userID,
			Direction:    domain.DirectionCredit,
			Amount:       amount,
			Category:     domain.CategoryInternalTransfer,
			Merchant:     "Internal Transfer",
			Description:  "Transfer from " + string(from),
			AccountKind:  to,
			TransferID:   &transferID,
			BalanceAfter: res.ToBalance,
			ActorID:      &userID,
		}); err != nil {
			return err
		}

		res.Record = &domain.InternalTransfer{
			ID:                  transferID,
			UserID:              userID,
			FromKind:            from,
			ToKind:              to,
			Amount:              amount,
			DebitTransactionID:  res.Debit.ID,
			CreditTransactionID: res.Credit.ID,
			Status:              domain.TransactionStatusCompleted,
			CreatedAt:           time.Now().UTC(),
		}
		return tx.InsertInternalTransfer(ctx, res.Record)
	})
	s.metrics.ObserveOperation("transfer", started, err)
	if err != nil {
		s.logFailure(userID, from, to, amount, err)
		return nil, err
	}

	s.logger.Info("Internal transfer completed", map[string]interface{}{
		"transfer_id":  transferID,
		"user_id":      userID.String(),
		"from_account": from,
		"to_account":   to,
		"amount":       amount.StringFixed(2),
	})
	events.Notify(ctx, s.publisher, s.logger, events.New(events.TypeTransferCompleted, userID, transferID, map[string]interface{}{
		"from_account": from,
		"to_account":   to,
		"amount":       amount.StringFixed(2),
		"from_balance": res.FromBalance.StringFixed(2),
		"to_balance":   res.ToBalance.StringFixed(2),
	}))
	return res, nil
}

func (s *Service) logFailure(userID uuid.UUID, from, to domain.AccountKind, amount decimal.Decimal, err error) {
	fields := map[string]interface{}{
		"user_id":      userID.String(),
		"from_account": from,
		"to_account":   to,
		"amount":       amount.StringFixed(2),
		"error":        err.Error(),
	}
	if errors.Is(err, errors.ErrInsufficientFunds) || errors.Is(err, errors.ErrValidation) {
		s.logger.Warn("Internal transfer rejected", fields)
		return
	}
	s.logger.Error("Internal transfer failed", fields)
}

// Detail is a transfer record with its two ledger legs.
type Detail struct {
	Record *domain.InternalTransfer `json:"record"`
	Legs   []*domain.Transaction    `json:"legs"`
}

// Get returns a transfer owned by userID.
func (s *Service) Get(ctx context.Context, userID uuid.UUID, transferID string) (*Detail, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec, err := s.store.GetInternalTransfer(ctx, transferID)
	if err != nil {
		return nil, errors.FromContext(err)
	}
	if rec.UserID != userID {
		return nil, errors.ErrTransactionNotFound
	}
	legs, err := s.store.ListTransactionsByTransferID(ctx, transferID)
	if err != nil {
		return nil, errors.FromContext(err)
	}
	return &Detail{Record: rec, Legs: legs}, nil
}
