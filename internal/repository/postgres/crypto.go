package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"corebank/internal/domain"
	"corebank/pkg/errors"
)

const cryptoWalletColumns = `id, user_id, asset_id, balance, price_usd, admin_total_usd, created_at, updated_at`

const cryptoTransactionColumns = `id, user_id, asset_id, transaction_type, amount, usd_amount,
	price_per_unit, fee, funding_account, fiat_transaction_id, status, transaction_date`

func (r queries) GetCryptoWallet(ctx context.Context, userID uuid.UUID, asset domain.AssetID) (*domain.CryptoWallet, error) {
	return r.getCryptoWallet(ctx, userID, asset, false)
}

func (r queries) getCryptoWallet(ctx context.Context, userID uuid.UUID, asset domain.AssetID, lock bool) (*domain.CryptoWallet, error) {
	wallet := &domain.CryptoWallet{}
	query := `SELECT ` + cryptoWalletColumns + ` FROM crypto_wallets WHERE user_id = $1 AND asset_id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	err := sqlx.GetContext(ctx, r.q, wallet, query, userID, asset)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrWalletNotFound
		}
		return nil, errors.Wrap(err, "failed to find crypto wallet")
	}
	return wallet, nil
}

func (r queries) ListCryptoWallets(ctx context.Context, userID uuid.UUID) ([]*domain.CryptoWallet, error) {
	var wallets []*domain.CryptoWallet
	query := `SELECT ` + cryptoWalletColumns + ` FROM crypto_wallets WHERE user_id = $1 ORDER BY asset_id`
	if err := sqlx.SelectContext(ctx, r.q, &wallets, query, userID); err != nil {
		return nil, errors.Wrap(err, "failed to list crypto wallets")
	}
	return wallets, nil
}

func (r queries) ListCryptoTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.CryptoTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var txns []*domain.CryptoTransaction
	query := `SELECT ` + cryptoTransactionColumns + ` FROM crypto_transactions
		WHERE user_id = $1 ORDER BY transaction_date DESC LIMIT $2`
	if err := sqlx.SelectContext(ctx, r.q, &txns, query, userID, limit); err != nil {
		return nil, errors.Wrap(err, "failed to list crypto transactions")
	}
	return txns, nil
}

func (r queries) GetTradingControl(ctx context.Context, userID uuid.UUID) (*domain.TradingControl, error) {
	ctrl := &domain.TradingControl{}
	query := `SELECT user_id, buy_enabled, sell_enabled, block_reason, updated_by, updated_at
		FROM trading_controls WHERE user_id = $1`
	err := sqlx.GetContext(ctx, r.q, ctrl, query, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find trading control")
	}
	return ctrl, nil
}

func (t *pgTx) LockCryptoWallet(ctx context.Context, userID uuid.UUID, asset domain.AssetID) (*domain.CryptoWallet, error) {
	return t.getCryptoWallet(ctx, userID, asset, true)
}

func (t *pgTx) AdjustCryptoBalance(ctx context.Context, userID uuid.UUID, asset domain.AssetID, delta decimal.Decimal) (*domain.CryptoWallet, error) {
	wallet := &domain.CryptoWallet{}
	query := `
		UPDATE crypto_wallets
		SET balance = balance + $3::numeric, price_usd = NULL, admin_total_usd = NULL, updated_at = NOW()
		WHERE user_id = $1 AND asset_id = $2 AND balance + $3::numeric >= 0
		RETURNING ` + cryptoWalletColumns
	err := sqlx.GetContext(ctx, t.q, wallet, query, userID, asset, delta)
	if err == sql.ErrNoRows {
		if _, getErr := t.GetCryptoWallet(ctx, userID, asset); getErr != nil {
			return nil, getErr
		}
		return nil, errors.ErrInsufficientFunds
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to adjust crypto balance")
	}
	return wallet, nil
}

func (t *pgTx) SetCryptoValuation(ctx context.Context, userID uuid.UUID, asset domain.AssetID, price, total decimal.NullDecimal) error {
	query := `UPDATE crypto_wallets SET price_usd = $3, admin_total_usd = $4, updated_at = NOW()
		WHERE user_id = $1 AND asset_id = $2`
	result, err := t.q.ExecContext(ctx, query, userID, asset, price, total)
	if err != nil {
		return errors.Wrap(err, "failed to set crypto valuation")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.ErrWalletNotFound
	}
	return nil
}

func (t *pgTx) CreateCryptoWallet(ctx context.Context, wallet *domain.CryptoWallet) error {
	query := `
		INSERT INTO crypto_wallets (` + cryptoWalletColumns + `)
		VALUES (:id, :user_id, :asset_id, :balance, :price_usd, :admin_total_usd, :created_at, :updated_at)`
	_, err := sqlx.NamedExecContext(ctx, t.q, query, wallet)
	if isUniqueViolation(err) {
		return errors.ErrAccountAlreadyExists
	}
	return errors.Wrap(err, "failed to create crypto wallet")
}

func (t *pgTx) InsertCryptoTransaction(ctx context.Context, txn *domain.CryptoTransaction) error {
	query := `
		INSERT INTO crypto_transactions (` + cryptoTransactionColumns + `) VALUES (
			:id, :user_id, :asset_id, :transaction_type, :amount, :usd_amount,
			:price_per_unit, :fee, :funding_account, :fiat_transaction_id, :status, :transaction_date
		)`
	_, err := sqlx.NamedExecContext(ctx, t.q, query, txn)
	return errors.Wrap(err, "failed to insert crypto transaction")
}

func (t *pgTx) UpsertTradingControl(ctx context.Context, ctrl *domain.TradingControl) error {
	query := `
		INSERT INTO trading_controls (user_id, buy_enabled, sell_enabled, block_reason, updated_by, updated_at)
		VALUES (:user_id, :buy_enabled, :sell_enabled, :block_reason, :updated_by, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET
			buy_enabled = EXCLUDED.buy_enabled,
			sell_enabled = EXCLUDED.sell_enabled,
			block_reason = EXCLUDED.block_reason,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at`
	_, err := sqlx.NamedExecContext(ctx, t.q, query, ctrl)
	return errors.Wrap(err, "failed to upsert trading control")
}
