// Package store defines the commit boundary shared by every funds-movement
// operation. Implementations live under internal/repository.
package store

import (
	"context"
	"time"

	"corebank/internal/domain"
	"corebank/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Reader serves non-locking reads. Inside a Tx the reads observe the
// transaction's own writes. GetWireControl and GetTradingControl return
// nil, nil when the user has no row.
type Reader interface {
	GetAccount(ctx context.Context, userID uuid.UUID, kind domain.AccountKind) (*domain.Account, error)
	ListAccounts(ctx context.Context, userID uuid.UUID) ([]*domain.Account, error)

	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error)
	CountTransactions(ctx context.Context, userID uuid.UUID) (int, error)
	ListTransactionsByTransferID(ctx context.Context, transferID string) ([]*domain.Transaction, error)
	GetInternalTransfer(ctx context.Context, id string) (*domain.InternalTransfer, error)

	GetWire(ctx context.Context, id uuid.UUID) (*domain.WireTransfer, error)
	ListWires(ctx context.Context, filter WireFilter) ([]*domain.WireTransfer, error)
	GetWireControl(ctx context.Context, userID uuid.UUID) (*domain.WireControl, error)

	GetCryptoWallet(ctx context.Context, userID uuid.UUID, asset domain.AssetID) (*domain.CryptoWallet, error)
	ListCryptoWallets(ctx context.Context, userID uuid.UUID) ([]*domain.CryptoWallet, error)
	ListCryptoTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.CryptoTransaction, error)
	GetTradingControl(ctx context.Context, userID uuid.UUID) (*domain.TradingControl, error)

	ListAuditEntries(ctx context.Context, targetUserID uuid.UUID, limit int) ([]*domain.AdminAuditEntry, error)
}

// Tx is a unit of work. Lock methods take row locks that are held until the
// transaction ends; callers lock every row they will mutate before checking
// balances.
type Tx interface {
	Reader

	// LockAccounts locks the named accounts of one user in AccountKinds order.
	LockAccounts(ctx context.Context, userID uuid.UUID, kinds ...domain.AccountKind) (map[domain.AccountKind]*domain.Account, error)
	// AdjustBalance adds delta to the balance and refreshes the last credit or
	// last debit summary. It never lets the balance go below zero.
	AdjustBalance(ctx context.Context, userID uuid.UUID, kind domain.AccountKind, delta decimal.Decimal) (*domain.Account, error)
	CreateAccount(ctx context.Context, account *domain.Account) error

	InsertTransaction(ctx context.Context, t *domain.Transaction) error
	// FinalizeTransaction moves a pending entry to a terminal status. It fails
	// with ErrTransactionFinalized when the entry is already terminal.
	FinalizeTransaction(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) error
	InsertInternalTransfer(ctx context.Context, t *domain.InternalTransfer) error

	InsertWire(ctx context.Context, w *domain.WireTransfer) error
	LockWire(ctx context.Context, id uuid.UUID) (*domain.WireTransfer, error)
	UpdateWire(ctx context.Context, w *domain.WireTransfer) error
	UpsertWireControl(ctx context.Context, c *domain.WireControl) error

	LockCryptoWallet(ctx context.Context, userID uuid.UUID, asset domain.AssetID) (*domain.CryptoWallet, error)
	// AdjustCryptoBalance also drops any admin valuation, since it no longer
	// describes the new balance.
	AdjustCryptoBalance(ctx context.Context, userID uuid.UUID, asset domain.AssetID, delta decimal.Decimal) (*domain.CryptoWallet, error)
	SetCryptoValuation(ctx context.Context, userID uuid.UUID, asset domain.AssetID, price, total decimal.NullDecimal) error
	CreateCryptoWallet(ctx context.Context, w *domain.CryptoWallet) error
	InsertCryptoTransaction(ctx context.Context, t *domain.CryptoTransaction) error
	UpsertTradingControl(ctx context.Context, c *domain.TradingControl) error

	InsertAuditEntry(ctx context.Context, e *domain.AdminAuditEntry) error
}

// Store owns the commit boundary. WithinTx commits only if fn returns nil;
// any error or panic leaves every row as it was before the call.
type Store interface {
	Reader
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}

// WireFilter narrows ListWires. Zero values match everything.
type WireFilter struct {
	UserID uuid.UUID
	Status domain.WireStatus
	Limit  int
	Offset int
}

// Atomically runs fn in one transaction bounded by timeout. A deadline hit
// anywhere inside surfaces as errors.ErrTimeout so callers can retry.
func Atomically(ctx context.Context, st Store, timeout time.Duration, fn func(ctx context.Context, tx Tx) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return errors.FromContext(st.WithinTx(ctx, fn))
}
