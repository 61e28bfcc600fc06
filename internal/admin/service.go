// Package admin is the operator override surface. Every override goes
// through the ledger write paths and leaves an audit row in the same commit.
package admin

import (
	"context"
	"strings"
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

// WireModerator applies admin wire transitions.
type WireModerator interface {
	Transition(ctx context.Context, adminID, wireID uuid.UUID, to domain.WireStatus, note string) (*domain.WireTransfer, error)
	ForceStatus(ctx context.Context, adminID, wireID uuid.UUID, to domain.WireStatus, note string) (*domain.WireTransfer, error)
}

type Service struct {
	store     store.Store
	wires     WireModerator
	publisher events.Publisher
	logger    logger.Logger
	metrics   metrics.Recorder
	timeout   time.Duration
}

func NewService(st store.Store, wires WireModerator, pub events.Publisher, log logger.Logger, rec metrics.Recorder, timeout time.Duration) *Service {
	return &Service{store: st, wires: wires, publisher: pub, logger: log, metrics: rec, timeout: timeout}
}

type BalanceOverride struct {
	Account  domain.AccountKind  `json:"account_type"`
	Previous decimal.Decimal     `json:"previous_balance"`
	Balance  decimal.Decimal     `json:"balance"`
	Entry    *domain.Transaction `json:"entry,omitempty"`
}

// SetAccountBalance moves an account to target by posting the difference as
// an admin adjustment. Setting the current balance is a no-op.
func (s *Service) SetAccountBalance(ctx context.Context, adminID, userID uuid.UUID, kind domain.AccountKind, target decimal.Decimal, note string) (*BalanceOverride, error) {
	if !kind.Valid() {
		return nil, errors.Invalid("account_type", "must be checking or savings")
	}
	if target.IsNegative() {
		return nil, errors.Invalid("balance", "must not be negative")
	}
	if !target.Equal(target.Round(domain.FiatPlaces)) {
		return nil, errors.Invalid("balance", "at most 2 decimal places")
	}

	started := time.Now()
	res := &BalanceOverride{Account: kind}
	err := store.Atomically(ctx, s.store, s.timeout, func(ctx context.Context, tx store.Tx) error {
		accounts, err := tx.LockAccounts(ctx, userID, kind)
		if err != nil {
			return err
		}
		res.Previous = accounts[kind].Balance
		res.Balance = res.Previous
		delta := target.Sub(res.Previous)
		if delta.IsZero() {
			return nil
		}

		if res.Balance, err = ledger.ApplyDelta(ctx, tx, userID, kind, delta); err != nil {
			return err
		}
		direction := domain.DirectionCredit
		if delta.IsNegative() {
			direction = domain.DirectionDebit
		}
		description := "Balance adjustment"
		if note = strings.TrimSpace(note); note != "" {
			description += ": " + note
		}
		if res.Entry, err = ledger.PostEntry(ctx, tx, ledger.Entry{
			UserID:       userID,
			Direction:    direction,
			Amount:       delta.Abs(),
			Category:     domain.CategoryAdminAdjustment,
			Merchant:     "Account Adjustment",
			Description:  description,
			AccountKind:  kind,
			BalanceAfter: res.Balance,
			ActorID:      &adminID,
		}); err != nil {
			return err
		}

		return tx.InsertAuditEntry(ctx, audit(adminID, userID, "account.set_balance", res.Entry.ID.String(), domain.Metadata{
			"account_type":     string(kind),
			"previous_balance": res.Previous.StringFixed(2),
			"new_balance":      res.Balance.StringFixed(2),
			"note":             note,
		}))
	})
	s.metrics.ObserveOperation("admin_set_balance", started, err)
	if err != nil {
		return nil, s.failed("account.set_balance", adminID, userID, err)
	}
	if res.Entry != nil {
		s.overridden(ctx, adminID, userID, "account.set_balance", res.Entry.ID.String(), map[string]interface{}{
			"account_type": kind,
			"balance":      res.Balance.StringFixed(2),
		})
	}
	return res, nil
}

type WalletOverride struct {
	Wallet     *domain.CryptoWallet      `json:"wallet"`
	Adjustment *domain.CryptoTransaction `json:"adjustment,omitempty"`
}

// SetCryptoWallet sets a wallet balance and values it at totalUSD by solving
// price_usd = totalUSD / balance. The entered total is kept so the reported
// value equals it exactly. A zero total clears the override.
func (s *Service) SetCryptoWallet(ctx context.Context, adminID, userID uuid.UUID, asset domain.AssetID, balance, totalUSD decimal.Decimal) (*WalletOverride, error) {
	if !asset.Valid() {
		return nil, errors.Invalid("asset_id", "must be btc, eth or ada")
	}
	if balance.IsNegative() || !balance.Equal(balance.Round(domain.CryptoPlaces)) {
		return nil, errors.Invalid("balance", "must be a non-negative amount with at most 8 decimal places")
	}
	if totalUSD.IsNegative() || !totalUSD.Equal(totalUSD.Round(domain.FiatPlaces)) {
		return nil, errors.Invalid("total_usd", "must be a non-negative amount with at most 2 decimal places")
	}
	if balance.IsZero() && totalUSD.IsPositive() {
		return nil, errors.Invalid("total_usd", "cannot value an empty wallet")
	}

	var price, total decimal.NullDecimal
	if totalUSD.IsPositive() {
		price = decimal.NewNullDecimal(totalUSD.DivRound(balance, 16))
		total = decimal.NewNullDecimal(totalUSD)
	}

	started := time.Now()
	res := &WalletOverride{}
	err := store.Atomically(ctx, s.store, s.timeout, func(ctx context.Context, tx store.Tx) error {
		current, err := tx.LockCryptoWallet(ctx, userID, asset)
		if err != nil {
			return err
		}
		delta := balance.Sub(current.Balance)
		if !delta.IsZero() {
			if _, err := tx.AdjustCryptoBalance(ctx, userID, asset, delta); err != nil {
				return err
			}
			kind := domain.TradeAdjustmentCredit
			if delta.IsNegative() {
				kind = domain.TradeAdjustmentDebit
			}
			res.Adjustment = &domain.CryptoTransaction{
				ID:              uuid.New(),
				UserID:          userID,
				AssetID:         asset,
				Type:            kind,
				Amount:          delta.Abs(),
				USDAmount:       delta.Abs().Mul(price.Decimal).Round(domain.FiatPlaces),
				PricePerUnit:    price.Decimal,
				Fee:             decimal.Zero,
				Status:          domain.TransactionStatusCompleted,
				TransactionDate: time.Now().UTC(),
			}
			if err := tx.InsertCryptoTransaction(ctx, res.Adjustment); err != nil {
				return err
			}
		}
		if err := tx.SetCryptoValuation(ctx, userID, asset, price, total); err != nil {
			return err
		}
		if res.Wallet, err = tx.GetCryptoWallet(ctx, userID, asset); err != nil {
			return err
		}

		return tx.InsertAuditEntry(ctx, audit(adminID, userID, "wallet.set_valuation", res.Wallet.ID.String(), domain.Metadata{
			"asset_id":         string(asset),
			"previous_balance": current.Balance.String(),
			"new_balance":      balance.String(),
			"total_usd":        totalUSD.StringFixed(2),
			"price_usd":        price.Decimal.String(),
		}))
	})
	s.metrics.ObserveOperation("admin_set_wallet", started, err)
	if err != nil {
		return nil, s.failed("wallet.set_valuation", adminID, userID, err)
	}
	s.overridden(ctx, adminID, userID, "wallet.set_valuation", res.Wallet.ID.String(), map[string]interface{}{
		"asset_id":  asset,
		"balance":   balance.String(),
		"total_usd": totalUSD.StringFixed(2),
	})
	return res, nil
}

// TransitionWire applies a regular moderation step.
func (s *Service) TransitionWire(ctx context.Context, adminID, wireID uuid.UUID, to domain.WireStatus, note string) (*domain.WireTransfer, error) {
	return s.wires.Transition(ctx, adminID, wireID, to, note)
}

// ForceWireStatus may also reverse a completed wire; balance effects follow
// the wire transition rules.
func (s *Service) ForceWireStatus(ctx context.Context, adminID, wireID uuid.UUID, to domain.WireStatus, note string) (*domain.WireTransfer, error) {
	if strings.TrimSpace(note) == "" {
		return nil, errors.Invalid("note", "a reason is required to force a status")
	}
	return s.wires.ForceStatus(ctx, adminID, wireID, to, note)
}

// SetTradingControls enables or disables buy and sell. A reason is required
// whenever either side is disabled and is cleared when both are enabled.
func (s *Service) SetTradingControls(ctx context.Context, adminID, userID uuid.UUID, buyEnabled, sellEnabled bool, reason string) (*domain.TradingControl, error) {
	reason = strings.TrimSpace(reason)
	if (!buyEnabled || !sellEnabled) && reason == "" {
		return nil, errors.Invalid("block_reason", "is required when disabling trading")
	}
	if buyEnabled && sellEnabled {
		reason = ""
	}

	ctl := &domain.TradingControl{
		UserID:      userID,
		BuyEnabled:  buyEnabled,
		SellEnabled: sellEnabled,
		BlockReason: reason,
		UpdatedBy:   &adminID,
		UpdatedAt:   time.Now().UTC(),
	}
	started := time.Now()
	err := store.Atomically(ctx, s.store, s.timeout, func(ctx context.Context, tx store.Tx) error {
		if err := tx.UpsertTradingControl(ctx, ctl); err != nil {
			return err
		}
		return tx.InsertAuditEntry(ctx, audit(adminID, userID, "trading.set_controls", userID.String(), domain.Metadata{
			"buy_enabled":  buyEnabled,
			"sell_enabled": sellEnabled,
			"block_reason": reason,
		}))
	})
	s.metrics.ObserveOperation("admin_trading_controls", started, err)
	if err != nil {
		return nil, s.failed("trading.set_controls", adminID, userID, err)
	}
	s.overridden(ctx, adminID, userID, "trading.set_controls", userID.String(), map[string]interface{}{
		"buy_enabled":  buyEnabled,
		"sell_enabled": sellEnabled,
	})
	return ctl, nil
}

// SetWireControls enables or disables wire creation with the same reason rule.
func (s *Service) SetWireControls(ctx context.Context, adminID, userID uuid.UUID, enabled bool, reason string) (*domain.WireControl, error) {
	reason = strings.TrimSpace(reason)
	if !enabled && reason == "" {
		return nil, errors.Invalid("block_reason", "is required when disabling wire transfers")
	}
	if enabled {
		reason = ""
	}

	ctl := &domain.WireControl{
		UserID:              userID,
		WireTransferEnabled: enabled,
		BlockReason:         reason,
		UpdatedBy:           &adminID,
		UpdatedAt:           time.Now().UTC(),
	}
	started := time.Now()
	err := store.Atomically(ctx, s.store, s.timeout, func(ctx context.Context, tx store.Tx) error {
		if err := tx.UpsertWireControl(ctx, ctl); err != nil {
			return err
		}
		return tx.InsertAuditEntry(ctx, audit(adminID, userID, "wire.set_controls", userID.String(), domain.Metadata{
			"wire_transfer_enabled": enabled,
			"block_reason":          reason,
		}))
	})
	s.metrics.ObserveOperation("admin_wire_controls", started, err)
	if err != nil {
		return nil, s.failed("wire.set_controls", adminID, userID, err)
	}
	s.overridden(ctx, adminID, userID, "wire.set_controls", userID.String(), map[string]interface{}{
		"wire_transfer_enabled": enabled,
	})
	return ctl, nil
}

// AuditLog lists overrides applied to a user, newest first.
func (s *Service) AuditLog(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.AdminAuditEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	entries, err := s.store.ListAuditEntries(ctx, userID, limit)
	return entries, errors.FromContext(err)
}

func audit(adminID, userID uuid.UUID, action, targetID string, details domain.Metadata) *domain.AdminAuditEntry {
	return &domain.AdminAuditEntry{
		ID:           uuid.New(),
		AdminID:      adminID,
		Action:       action,
		TargetUserID: userID,
		TargetID:     targetID,
		Details:      details,
		CreatedAt:    time.Now().UTC(),
	}
}

func (s *Service) failed(action string, adminID, userID uuid.UUID, err error) error {
	s.logger.Warn("Admin override rejected", map[string]interface{}{
		"action":   action,
		"admin_id": adminID.String(),
		"user_id":  userID.String(),
		"error":    err.Error(),
	})
	return err
}

func (s *Service) overridden(ctx context.Context, adminID, userID uuid.UUID, action, targetID string, data map[string]interface{}) {
	s.logger.Info("Admin override applied", map[string]interface{}{
		"action":    action,
		"admin_id":  adminID.String(),
		"user_id":   userID.String(),
		"target_id": targetID,
	})
	data["action"] = action
	data["admin_id"] = adminID.String()
	events.Notify(ctx, s.publisher, s.logger, events.New(events.TypeAdminOverride, userID, targetID, data))
}
