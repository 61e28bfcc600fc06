package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"corebank/internal/domain"
	"corebank/pkg/errors"
)

const accountColumns = `id, user_id, account_type, account_number, balance,
	last_credit_amount, last_debit_amount, created_at, updated_at`

func (r queries) GetAccount(ctx context.Context, userID uuid.UUID, kind domain.AccountKind) (*domain.Account, error) {
	account := &domain.Account{}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 AND account_type = $2`
	err := sqlx.GetContext(ctx, r.q, account, query, userID, kind)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrAccountNotFound
		}
		return nil, errors.Wrap(err, "failed to find account")
	}
	return account, nil
}

func (r queries) ListAccounts(ctx context.Context, userID uuid.UUID) ([]*domain.Account, error) {
	var accounts []*domain.Account
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 ORDER BY account_type`
	err := sqlx.SelectContext(ctx, r.q, &accounts, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list accounts")
	}
	return accounts, nil
}

func (t *pgTx) LockAccounts(ctx context.Context, userID uuid.UUID, kinds ...domain.AccountKind) (map[domain.AccountKind]*domain.Account, error) {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}

	var accounts []*domain.Account
	// ORDER BY fixes the lock acquisition order across concurrent callers.
	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE user_id = $1 AND account_type = ANY($2)
		ORDER BY account_type
		FOR UPDATE`
	if err := sqlx.SelectContext(ctx, t.q, &accounts, query, userID, pq.Array(names)); err != nil {
		return nil, errors.Wrap(err, "failed to lock accounts")
	}

	out := make(map[domain.AccountKind]*domain.Account, len(accounts))
	for _, a := range accounts {
		out[a.Kind] = a
	}
	for _, k := range kinds {
		if _, ok := out[k]; !ok {
			return nil, errors.ErrAccountNotFound
		}
	}
	return out, nil
}

func (t *pgTx) AdjustBalance(ctx context.Context, userID uuid.UUID, kind domain.AccountKind, delta decimal.Decimal) (*domain.Account, error) {
	account := &domain.Account{}
	query := `
		UPDATE accounts SET
			balance = balance + $3::numeric,
			last_credit_amount = CASE WHEN $3::numeric > 0 THEN $3::numeric ELSE last_credit_amount END,
			last_debit_amount = CASE WHEN $3::numeric < 0 THEN -$3::numeric ELSE last_debit_amount END,
			updated_at = NOW()
		WHERE user_id = $1 AND account_type = $2 AND balance + $3::numeric >= 0
		RETURNING ` + accountColumns
	err := sqlx.GetContext(ctx, t.q, account, query, userID, kind, delta)
	if err == sql.ErrNoRows {
		if _, getErr := t.GetAccount(ctx, userID, kind); getErr != nil {
			return nil, getErr
		}
		return nil, errors.ErrInsufficientFunds
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to adjust balance")
	}
	return account, nil
}

func (t *pgTx) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (
			id, user_id, account_type, account_number, balance,
			last_credit_amount, last_debit_amount, created_at, updated_at
		) VALUES (
			:id, :user_id, :account_type, :account_number, :balance,
			:last_credit_amount, :last_debit_amount, :created_at, :updated_at
		)`
	_, err := sqlx.NamedExecContext(ctx, t.q, query, account)
	if isUniqueViolation(err) {
		return errors.ErrAccountAlreadyExists
	}
	return errors.Wrap(err, "failed to create account")
}
