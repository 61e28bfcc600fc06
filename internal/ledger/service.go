package ledger

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	"corebank/internal/domain"
	"corebank/internal/store"
	"corebank/pkg/errors"
	"corebank/pkg/logger"
	"corebank/pkg/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Service struct {
	store   store.Store
	logger  logger.Logger
	metrics metrics.Recorder
	timeout time.Duration
}

func NewService(st store.Store, log logger.Logger, rec metrics.Recorder, timeout time.Duration) *Service {
	return &Service{store: st, logger: log, metrics: rec, timeout: timeout}
}

// GetBalance returns the committed balance of one account.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID, kind domain.AccountKind) (decimal.Decimal, error) {
	if !kind.Valid() {
		return decimal.Zero, errors.Invalid("account_type", "must be checking or savings")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	acct, err := s.store.GetAccount(ctx, userID, kind)
	if err != nil {
		return decimal.Zero, errors.FromContext(err)
	}
	return acct.Balance, nil
}

// ApplyDelta runs the balance-apply step in its own transaction. Engine
// operations use the package-level ApplyDelta inside their own unit of work.
func (s *Service) ApplyDelta(ctx context.Context, userID uuid.UUID, kind domain.AccountKind, delta decimal.Decimal) (decimal.Decimal, error) {
	started := time.Now()
	var balance decimal.Decimal
	err := store.Atomically(ctx, s.store, s.timeout, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.LockAccounts(ctx, userID, kind); err != nil {
			return err
		}
		var err error
		balance, err = ApplyDelta(ctx, tx, userID, kind, delta)
		return err
	})
	s.metrics.ObserveOperation("apply_delta", started, err)
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

func (s *Service) Accounts(ctx context.Context, userID uuid.UUID) ([]*domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	accounts, err := s.store.ListAccounts(ctx, userID)
	return accounts, errors.FromContext(err)
}

type HistoryPage struct {
	Transactions []*domain.Transaction `json:"transactions"`
	Total        int                   `json:"total"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int) (*HistoryPage, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	txns, err := s.store.ListTransactions(ctx, userID, limit, offset)
	if err != nil {
		return nil, errors.FromContext(err)
	}
	total, err := s.store.CountTransactions(ctx, userID)
	if err != nil {
		return nil, errors.FromContext(err)
	}
	return &HistoryPage{Transactions: txns, Total: total, Limit: limit, Offset: offset}, nil
}

type Provisioned struct {
	Accounts []*domain.Account      `json:"accounts"`
	Wallets  []*domain.CryptoWallet `json:"wallets"`
}

// ProvisionUser creates any missing zero-balance accounts and crypto wallets
// for a user. Existing rows are left alone, so it is safe to repeat.
func (s *Service) ProvisionUser(ctx context.Context, userID uuid.UUID) (*Provisioned, error) {
	if userID == uuid.Nil {
		return nil, errors.Invalid("user_id", "required")
	}
	started := time.Now()
	created := 0

	err := store.Atomically(ctx, s.store, s.timeout, func(ctx context.Context, tx store.Tx) error {
		now := time.Now().UTC()
		for _, kind := range domain.AccountKinds {
			if _, err := tx.GetAccount(ctx, userID, kind); err == nil {
				continue
			} else if !errors.Is(err, errors.ErrAccountNotFound) {
				return err
			}
			number, err := newAccountNumber()
			if err != nil {
				return err
			}
			if err := tx.CreateAccount(ctx, &domain.Account{
				ID:            uuid.New(),
				UserID:        userID,
				Kind:          kind,
				AccountNumber: number,
				Balance:       decimal.Zero,
				CreatedAt:     now,
				UpdatedAt:     now,
			}); err != nil {
				return err
			}
			created++
		}
		for _, asset := range domain.Assets {
			if _, err := tx.GetCryptoWallet(ctx, userID, asset); err == nil {
				continue
			} else if !errors.Is(err, errors.ErrWalletNotFound) {
				return err
			}
			if err := tx.CreateCryptoWallet(ctx, &domain.CryptoWallet{
				ID:        uuid.New(),
				UserID:    userID,
				AssetID:   asset,
				Balance:   decimal.Zero,
				CreatedAt: now,
				UpdatedAt: now,
			}); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	s.metrics.ObserveOperation("provision", started, err)
	if err != nil {
		s.logger.Error("Provisioning failed", map[string]interface{}{
			"user_id": userID.String(),
			"error":   err.Error(),
		})
		return nil, err
	}

	if created > 0 {
		s.logger.Info("User provisioned", map[string]interface{}{
			"user_id": userID.String(),
			"created": created,
		})
	}

	accounts, err := s.store.ListAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	wallets, err := s.store.ListCryptoWallets(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Provisioned{Accounts: accounts, Wallets: wallets}, nil
}

var accountNumberMax = big.NewInt(1_000_000_000_000)

// newAccountNumber returns a random 12-digit display number.
func newAccountNumber() (string, error) {
	n, err := rand.Int(rand.Reader, accountNumberMax)
	if err != nil {
		return "", errors.Wrap(err, "failed to generate account number")
	}
	s := n.String()
	for len(s) < 12 {
		s = "0" + s
	}
	return s, nil
}
