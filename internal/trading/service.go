// Package trading settles crypto buys and sells against a user's fiat
// account at an oracle price read once per trade.
package trading

import (
	"context"
	"time"

	"corebank/internal/domain"
	"corebank/internal/events"
	"corebank/internal/ledger"
	"corebank/internal/otp"
	"corebank/internal/store"
	"corebank/pkg/errors"
	"corebank/pkg/logger"
	"corebank/pkg/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PriceSource interface {
	GetPrice(ctx context.Context, asset domain.AssetID) (decimal.Decimal, error)
}

// Gate issues and checks the OTP that authorizes a trade.
type Gate interface {
	Issue(ctx context.Context, userID uuid.UUID, purpose, scope string) (*otp.Issued, error)
	Verify(ctx context.Context, userID uuid.UUID, proof otp.Proof, scope string) error
}

type Service struct {
	store     store.Store
	prices    PriceSource
	gate      Gate
	publisher events.Publisher
	logger    logger.Logger
	metrics   metrics.Recorder
	timeout   time.Duration
}

// NewService builds the settlement service. With a nil gate trades are not
// OTP-gated.
func NewService(st store.Store, prices PriceSource, gate Gate, pub events.Publisher, log logger.Logger, rec metrics.Recorder, timeout time.Duration) *Service {
	return &Service{store: st, prices: prices, gate: gate, publisher: pub, logger: log, metrics: rec, timeout: timeout}
}

// Settlement is the committed result of a trade.
type Settlement struct {
	Trade         *domain.CryptoTransaction `json:"trade"`
	FiatEntry     *domain.Transaction       `json:"fiat_entry"`
	FiatBalance   decimal.Decimal           `json:"fiat_balance"`
	WalletBalance decimal.Decimal           `json:"wallet_balance"`
}

// checkControls returns TradingBlocked when side is disabled for the user.
func checkControls(ctx context.Context, r store.Reader, userID uuid.UUID, side domain.TradeType) error {
	ctl, err := r.GetTradingControl(ctx, userID)
	if err != nil || ctl == nil {
		return err
	}
	if (side == domain.TradeBuy && !ctl.BuyEnabled) || (side == domain.TradeSell && !ctl.SellEnabled) {
		return errors.TradingBlocked(ctl.BlockReason)
	}
	return nil
}

// preflight runs the checks shared by authorization and execution.
func (s *Service) preflight(ctx context.Context, userID uuid.UUID, o Order) error {
	if err := o.validate(); err != nil {
		return err
	}
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return errors.FromContext(checkControls(rctx, s.store, userID, o.Side()))
}

// RequestAuthorization sends an OTP bound to the order.
func (s *Service) RequestAuthorization(ctx context.Context, userID uuid.UUID, o Order) (*otp.Issued, error) {
	if s.gate == nil {
		return nil, errors.New("trade authorization is not configured")
	}
	if err := s.preflight(ctx, userID, o); err != nil {
		return nil, err
	}
	return s.gate.Issue(ctx, userID, "crypto_"+string(o.Side()), o.scope(userID))
}

// Authorize checks the OTP presented for an order.
func (s *Service) Authorize(ctx context.Context, userID uuid.UUID, o Order, proof *otp.Proof) error {
	if s.gate == nil {
		return nil
	}
	if proof == nil {
		return errors.ErrOTPMismatch
	}
	return s.gate.Verify(ctx, userID, *proof, o.scope(userID))
}

// Buy spends USDAmount+Fee from the funding account and credits
// USDAmount/price units to the wallet.
func (s *Service) Buy(ctx context.Context, userID uuid.UUID, req BuyRequest) (*Settlement, error) {
	if err := s.preflight(ctx, userID, req); err != nil {
		return nil, err
	}
	if err := s.Authorize(ctx, userID, req, req.OTP); err != nil {
		return nil, err
	}
	price, err := s.price(ctx, req.Asset)
	if err != nil {
		return nil, err
	}
	units := req.USDAmount.DivRound(price, domain.CryptoPlaces)
	if !units.IsPositive() {
		return nil, errors.Invalid("usd_amount", "too small to buy any "+string(req.Asset))
	}
	debit := req.USDAmount.Add(req.Fee)

	started := time.Now()
	res := &Settlement{}
	err = store.Atomically(ctx, s.store, s.timeout, func(ctx context.Context, tx store.Tx) error {
		if err := checkControls(ctx, tx, userID, domain.TradeBuy); err != nil {
			return err
		}
		accounts, err := tx.LockAccounts(ctx, userID, req.FundingAccount)
		if err != nil {
			return err
		}
		if debit.GreaterThan(accounts[req.FundingAccount].Balance) {
			return errors.ErrInsufficientFunds
		}
		if _, err := tx.LockCryptoWallet(ctx, userID, req.Asset); err != nil {
			return err
		}

		if res.FiatBalance, err = ledger.ApplyDelta(ctx, tx, userID, req.FundingAccount, debit.Neg()); err != nil {
			return err
		}
		tradeID := uuid.New()
		correlation := ledger.NewCorrelationID()
		if res.FiatEntry, err = ledger.PostEntry(ctx, tx, ledger.Entry{
			UserID:       userID,
			Direction:    domain.DirectionDebit,
			Amount:       debit,
			Category:     domain.CategoryCryptoBuy,
			Merchant:     "Crypto Purchase",
			Description:  "Buy " + units.String() + " " + string(req.Asset),
			AccountKind:  req.FundingAccount,
			TransferID:   &correlation,
			ParentID:     &tradeID,
			BalanceAfter: res.FiatBalance,
			ActorID:      &userID,
		}); err != nil {
			return err
		}

		wallet, err := tx.AdjustCryptoBalance(ctx, userID, req.Asset, units)
		if err != nil {
			return err
		}
		res.WalletBalance = wallet.Balance

		funding := req.FundingAccount
		res.Trade = &domain.CryptoTransaction{
			ID:                tradeID,
			UserID:            userID,
			AssetID:           req.Asset,
			Type:              domain.TradeBuy,
			Amount:            units,
			USDAmount:         req.USDAmount,
			PricePerUnit:      price,
			Fee:               req.Fee,
			FundingAccount:    &funding,
			FiatTransactionID: &res.FiatEntry.ID,
			Status:            domain.TransactionStatusCompleted,
			TransactionDate:   time.Now().UTC(),
		}
		return tx.InsertCryptoTransaction(ctx, res.Trade)
	})
	return s.finish(ctx, "crypto_buy", started, res, err)
}

// Sell removes CryptoAmount from the wallet and credits
// CryptoAmount*price - Fee to the funding account.
func (s *Service) Sell(ctx context.Context, userID uuid.UUID, req SellRequest) (*Settlement, error) {
	if err := s.preflight(ctx, userID, req); err != nil {
		return nil, err
	}
	if err := s.Authorize(ctx, userID, req, req.OTP); err != nil {
		return nil, err
	}
	price, err := s.price(ctx, req.Asset)
	if err != nil {
		return nil, err
	}
	proceeds := req.CryptoAmount.Mul(price).Round(domain.FiatPlaces).Sub(req.Fee)
	if !proceeds.IsPositive() {
		return nil, errors.Invalid("fee", "exceeds the value of the sale")
	}

	started := time.Now()
	res := &Settlement{}
	err = store.Atomically(ctx, s.store, s.timeout, func(ctx context.Context, tx store.Tx) error {
		if err := checkControls(ctx, tx, userID, domain.TradeSell); err != nil {
			return err
		}
		// Accounts before wallet, the same order Buy uses.
		if _, err := tx.LockAccounts(ctx, userID, req.FundingAccount); err != nil {
			return err
		}
		wallet, err := tx.LockCryptoWallet(ctx, userID, req.Asset)
		if err != nil {
			return err
		}
		if req.CryptoAmount.GreaterThan(wallet.Balance) {
			return errors.ErrInsufficientFunds
		}

		if wallet, err = tx.AdjustCryptoBalance(ctx, userID, req.Asset, req.CryptoAmount.Neg()); err != nil {
			return err
		}
		res.WalletBalance = wallet.Balance
		if res.FiatBalance, err = ledger.ApplyDelta(ctx, tx, userID, req.FundingAccount, proceeds); err != nil {
			return err
		}

		tradeID := uuid.New()
		correlation := ledger.NewCorrelationID()
		if res.FiatEntry, err = ledger.PostEntry(ctx, tx, ledger.Entry{
			UserID:       userID,
			Direction:    domain.DirectionCredit,
			Amount:       proceeds,
			Category:     domain.CategoryCryptoSell,
			Merchant:     "Crypto Sale",
			Description:  "Sell " + req.CryptoAmount.String() + " " + string(req.Asset),
			AccountKind:  req.FundingAccount,
			TransferID:   &correlation,
			ParentID:     &tradeID,
			BalanceAfter: res.FiatBalance,
			ActorID:      &userID,
		}); err != nil {
			return err
		}

		funding := req.FundingAccount
		res.Trade = &domain.CryptoTransaction{
			ID:                tradeID,
			UserID:            userID,
			AssetID:           req.Asset,
			Type:              domain.TradeSell,
			Amount:            req.CryptoAmount,
			USDAmount:         proceeds,
			PricePerUnit:      price,
			Fee:               req.Fee,
			FundingAccount:    &funding,
			FiatTransactionID: &res.FiatEntry.ID,
			Status:            domain.TransactionStatusCompleted,
			TransactionDate:   time.Now().UTC(),
		}
		return tx.InsertCryptoTransaction(ctx, res.Trade)
	})
	return s.finish(ctx, "crypto_sell", started, res, err)
}

// price reads the oracle once. Settlement uses this value and stores it.
func (s *Service) price(ctx context.Context, asset domain.AssetID) (decimal.Decimal, error) {
	price, err := s.prices.GetPrice(ctx, asset)
	if err != nil {
		return decimal.Zero, errors.FromContext(err)
	}
	if !price.IsPositive() {
		return decimal.Zero, errors.ErrPriceUnavailable
	}
	return price, nil
}

func (s *Service) finish(ctx context.Context, op string, started time.Time, res *Settlement, err error) (*Settlement, error) {
	s.metrics.ObserveOperation(op, started, err)
	if err != nil {
		s.logger.Warn("Trade not settled", map[string]interface{}{
			"operation": op,
			"error":     err.Error(),
		})
		return nil, err
	}

	t := res.Trade
	s.logger.Info("Trade settled", map[string]interface{}{
		"trade_id":       t.ID.String(),
		"user_id":        t.UserID.String(),
		"type":           t.Type,
		"asset":          t.AssetID,
		"amount":         t.Amount.String(),
		"price_per_unit": t.PricePerUnit.String(),
		"usd_amount":     t.USDAmount.StringFixed(2),
	})
	events.Notify(ctx, s.publisher, s.logger, events.New(events.TypeTradeSettled, t.UserID, t.ID.String(), map[string]interface{}{
		"type":           t.Type,
		"asset":          t.AssetID,
		"amount":         t.Amount.String(),
		"usd_amount":     t.USDAmount.StringFixed(2),
		"price_per_unit": t.PricePerUnit.String(),
	}))
	return res, nil
}

// History returns the user's most recent trades.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit int) ([]*domain.CryptoTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	trades, err := s.store.ListCryptoTransactions(ctx, userID, limit)
	return trades, errors.FromContext(err)
}
