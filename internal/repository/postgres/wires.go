package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"corebank/internal/domain"
	"corebank/internal/store"
	"corebank/pkg/errors"
)

const wireColumns = `id, user_id, transaction_id, from_account, amount, fee, total_amount,
	recipient_name, recipient_bank_name, recipient_routing_number, recipient_account_number,
	recipient_bank_address, swift_code, confirmation_number, status, authorized_at,
	deducted_at, refunded_at, refund_transaction_id, admin_notes, reviewed_by,
	created_at, updated_at`

func (r queries) GetWire(ctx context.Context, id uuid.UUID) (*domain.WireTransfer, error) {
	return r.getWire(ctx, id, false)
}

func (r queries) getWire(ctx context.Context, id uuid.UUID, lock bool) (*domain.WireTransfer, error) {
	wire := &domain.WireTransfer{}
	query := `SELECT ` + wireColumns + ` FROM wire_transfers WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	err := sqlx.GetContext(ctx, r.q, wire, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.ErrWireNotFound
		}
		return nil, errors.Wrap(err, "failed to find wire transfer")
	}
	return wire, nil
}

func (r queries) ListWires(ctx context.Context, filter store.WireFilter) ([]*domain.WireTransfer, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.UserID != uuid.Nil {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + wireColumns + ` FROM wire_transfers`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var wires []*domain.WireTransfer
	if err := sqlx.SelectContext(ctx, r.q, &wires, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to list wire transfers")
	}
	return wires, nil
}

func (r queries) GetWireControl(ctx context.Context, userID uuid.UUID) (*domain.WireControl, error) {
	ctrl := &domain.WireControl{}
	query := `SELECT user_id, wire_transfer_enabled, block_reason, updated_by, updated_at
		FROM wire_controls WHERE user_id = $1`
	err := sqlx.GetContext(ctx, r.q, ctrl, query, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find wire control")
	}
	return ctrl, nil
}

func (t *pgTx) InsertWire(ctx context.Context, wire *domain.WireTransfer) error {
	query := `
		INSERT INTO wire_transfers (` + wireColumns + `) VALUES (
			:id, :user_id, :transaction_id, :from_account, :amount, :fee, :total_amount,
			:recipient_name, :recipient_bank_name, :recipient_routing_number, :recipient_account_number,
			:recipient_bank_address, :swift_code, :confirmation_number, :status, :authorized_at,
			:deducted_at, :refunded_at, :refund_transaction_id, :admin_notes, :reviewed_by,
			:created_at, :updated_at
		)`
	_, err := sqlx.NamedExecContext(ctx, t.q, query, wire)
	if isUniqueViolation(err) {
		return errors.ErrDuplicateRequest
	}
	return errors.Wrap(err, "failed to insert wire transfer")
}

func (t *pgTx) LockWire(ctx context.Context, id uuid.UUID) (*domain.WireTransfer, error) {
	return t.getWire(ctx, id, true)
}

// UpdateWire writes the mutable lifecycle columns. Amounts, recipient and
// confirmation number are fixed at creation.
func (t *pgTx) UpdateWire(ctx context.Context, wire *domain.WireTransfer) error {
	query := `
		UPDATE wire_transfers SET
			status = :status,
			authorized_at = :authorized_at,
			deducted_at = :deducted_at,
			refunded_at = :refunded_at,
			refund_transaction_id = :refund_transaction_id,
			admin_notes = :admin_notes,
			reviewed_by = :reviewed_by,
			updated_at = NOW()
		WHERE id = :id`
	result, err := sqlx.NamedExecContext(ctx, t.q, query, wire)
	if err != nil {
		return errors.Wrap(err, "failed to update wire transfer")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.ErrWireNotFound
	}
	return nil
}

func (t *pgTx) UpsertWireControl(ctx context.Context, ctrl *domain.WireControl) error {
	query := `
		INSERT INTO wire_controls (user_id, wire_transfer_enabled, block_reason, updated_by, updated_at)
		VALUES (:user_id, :wire_transfer_enabled, :block_reason, :updated_by, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET
			wire_transfer_enabled = EXCLUDED.wire_transfer_enabled,
			block_reason = EXCLUDED.block_reason,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at`
	_, err := sqlx.NamedExecContext(ctx, t.q, query, ctrl)
	return errors.Wrap(err, "failed to upsert wire control")
}
