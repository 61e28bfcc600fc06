package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"corebank/internal/domain"
	"corebank/pkg/errors"
)

func (r queries) ListAuditEntries(ctx context.Context, targetUserID uuid.UUID, limit int) ([]*domain.AdminAuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var entries []*domain.AdminAuditEntry
	query := `SELECT id, admin_id, action, target_user_id, target_id, details, created_at
		FROM admin_audit_log
		WHERE ($1 = '00000000-0000-0000-0000-000000000000'::uuid OR target_user_id = $1)
		ORDER BY created_at DESC LIMIT $2`
	if err := sqlx.SelectContext(ctx, r.q, &entries, query, targetUserID, limit); err != nil {
		return nil, errors.Wrap(err, "failed to list audit entries")
	}
	return entries, nil
}

func (t *pgTx) InsertAuditEntry(ctx context.Context, entry *domain.AdminAuditEntry) error {
	query := `
		INSERT INTO admin_audit_log (id, admin_id, action, target_user_id, target_id, details, created_at)
		VALUES (:id, :admin_id, :action, :target_user_id, :target_id, :details, :created_at)`
	_, err := sqlx.NamedExecContext(ctx, t.q, query, entry)
	return errors.Wrap(err, "failed to insert audit entry")
}
