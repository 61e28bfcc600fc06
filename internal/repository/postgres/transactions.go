package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"corebank/internal/domain"
	"corebank/pkg/errors"
)

const transactionColumns = `id, user_id, type, amount, category, merchant, description,
	status, account_type, transfer_id, parent_id, balance_after, actor_id,
	created_at, completed_at, updated_at`

func (r queries) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	txn := &domain.Transaction{}
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	err := sqlx.GetContext(ctx, r.q, txn, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrTransactionNotFound
		}
		return nil, errors.Wrap(err, "failed to find transaction")
	}
	return txn, nil
}

func (r queries) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Transaction, error) {
	var txns []*domain.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE user_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`
	if err := sqlx.SelectContext(ctx, r.q, &txns, query, userID, limit, offset); err != nil {
		return nil, errors.Wrap(err, "failed to list transactions")
	}
	return txns, nil
}

func (r queries) CountTransactions(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, r.q, &count, `SELECT COUNT(*) FROM transactions WHERE user_id = $1`, userID)
	return count, errors.Wrap(err, "failed to count transactions")
}

func (r queries) ListTransactionsByTransferID(ctx context.Context, transferID string) ([]*domain.Transaction, error) {
	var txns []*domain.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE transfer_id = $1 ORDER BY created_at, type DESC`
	if err := sqlx.SelectContext(ctx, r.q, &txns, query, transferID); err != nil {
		return nil, errors.Wrap(err, "failed to list transactions by transfer id")
	}
	return txns, nil
}

func (r queries) GetInternalTransfer(ctx context.Context, id string) (*domain.InternalTransfer, error) {
	rec := &domain.InternalTransfer{}
	query := `SELECT id, user_id, from_account, to_account, amount, debit_transaction_id,
		credit_transaction_id, status, created_at FROM internal_transfers WHERE id = $1`
	err := sqlx.GetContext(ctx, r.q, rec, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrTransactionNotFound
		}
		return nil, errors.Wrap(err, "failed to find internal transfer")
	}
	return rec, nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, txn *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, user_id, type, amount, category, merchant, description, status,
			account_type, transfer_id, parent_id, balance_after, actor_id,
			created_at, completed_at, updated_at
		) VALUES (
			:id, :user_id, :type, :amount, :category, :merchant, :description, :status,
			:account_type, :transfer_id, :parent_id, :balance_after, :actor_id,
			:created_at, :completed_at, :updated_at
		)`
	_, err := sqlx.NamedExecContext(ctx, t.q, query, txn)
	if isUniqueViolation(err) {
		return errors.ErrDuplicateRequest
	}
	return errors.Wrap(err, "failed to insert transaction")
}

func (t *pgTx) FinalizeTransaction(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) error {
	query := `
		UPDATE transactions SET
			status = $2::text,
			completed_at = CASE WHEN $2::text = 'completed' THEN NOW() ELSE completed_at END,
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`
	result, err := t.q.ExecContext(ctx, query, id, status)
	if err != nil {
		return errors.Wrap(err, "failed to finalize transaction")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to finalize transaction")
	}
	if rows == 0 {
		if _, err := t.GetTransaction(ctx, id); err != nil {
			return err
		}
		return errors.ErrTransactionFinalized
	}
	return nil
}

func (t *pgTx) InsertInternalTransfer(ctx context.Context, rec *domain.InternalTransfer) error {
	query := `
		INSERT INTO internal_transfers (
			id, user_id, from_account, to_account, amount,
			debit_transaction_id, credit_transaction_id, status, created_at
		) VALUES (
			:id, :user_id, :from_account, :to_account, :amount,
			:debit_transaction_id, :credit_transaction_id, :status, :created_at
		)`
	_, err := sqlx.NamedExecContext(ctx, t.q, query, rec)
	if isUniqueViolation(err) {
		return errors.ErrDuplicateRequest
	}
	return errors.Wrap(err, "failed to insert internal transfer")
}
