package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"corebank/internal/store"
	"corebank/pkg/errors"
)

// Store implements store.Store on PostgreSQL. Every balance-changing path
// locks its rows with SELECT ... FOR UPDATE before reading balances, and
// balance updates carry their own non-negative guard.
type Store struct {
	queries
	db          *sqlx.DB
	lockTimeout time.Duration
}

var _ store.Store = (*Store)(nil)

func NewStore(db *sqlx.DB, lockTimeout time.Duration) *Store {
	return &Store{queries: queries{q: db}, db: db, lockTimeout: lockTimeout}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return translate(errors.Wrap(err, "failed to begin transaction"))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return translate(errors.Wrap(err, "failed to set lock timeout"))
		}
	}

	if err := fn(ctx, &pgTx{queries: queries{q: tx}}); err != nil {
		_ = tx.Rollback()
		return translate(err)
	}
	if err := tx.Commit(); err != nil {
		return translate(errors.Wrap(err, "failed to commit transaction"))
	}
	return nil
}

// translate maps driver failures onto the retryable engine errors.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.FromContext(err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %v", errors.ErrConflict, err)
		case "57014":
			return fmt.Errorf("%w: %v", errors.ErrTimeout, err)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// queries runs against either the pool or an open transaction.
type queries struct {
	q sqlx.ExtContext
}

type pgTx struct {
	queries
}

var _ store.Tx = (*pgTx)(nil)
