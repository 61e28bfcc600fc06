package memory

import (
	"fmt"
	"time"

	"corebank/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SeedAccount creates or overwrites an account outside the ledger. It exists
// for fixtures and the dev server only.
func (s *Store) SeedAccount(userID uuid.UUID, kind domain.AccountKind, balance decimal.Decimal) *domain.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	next := s.committed.clone()
	key := accountKey{userID, kind}
	a := &domain.Account{
		ID:            uuid.New(),
		UserID:        userID,
		Kind:          kind,
		AccountNumber: fmt.Sprintf("%012d", len(next.accounts)+1),
		Balance:       balance,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if cur, ok := next.accounts[key]; ok {
		a.ID = cur.ID
		a.AccountNumber = cur.AccountNumber
		a.CreatedAt = cur.CreatedAt
	}
	next.accounts[key] = a
	s.committed = next

	c := *a
	return &c
}

// SeedWallet creates or overwrites a crypto wallet outside the ledger.
func (s *Store) SeedWallet(userID uuid.UUID, asset domain.AssetID, balance decimal.Decimal) *domain.CryptoWallet {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	next := s.committed.clone()
	key := walletKey{userID, asset}
	w := &domain.CryptoWallet{
		ID:        uuid.New(),
		UserID:    userID,
		AssetID:   asset,
		Balance:   balance,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if cur, ok := next.wallets[key]; ok {
		w.ID = cur.ID
		w.CreatedAt = cur.CreatedAt
	}
	next.wallets[key] = w
	s.committed = next

	c := *w
	return &c
}
