package trading

import (
	"context"
	"sync"
	"testing"
	"time"

	"corebank/internal/domain"
	"corebank/internal/events"
	"corebank/internal/otp"
	"corebank/internal/repository/memory"
	"corebank/internal/store"
	"corebank/pkg/errors"
	"corebank/pkg/logger"
	"corebank/pkg/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type MockPrices struct {
	mock.Mock
}

func (m *MockPrices) GetPrice(ctx context.Context, asset domain.AssetID) (decimal.Decimal, error) {
	args := m.Called(ctx, asset)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type fixture struct {
	svc    *Service
	store  *memory.Store
	prices *MockPrices
	events *events.Recorder
	userID uuid.UUID
}

func setup(t *testing.T, checking string, gate Gate) *fixture {
	t.Helper()
	st := memory.New()
	prices := new(MockPrices)
	rec := &events.Recorder{}
	userID := uuid.New()
	st.SeedAccount(userID, domain.AccountChecking, dec(checking))
	st.SeedAccount(userID, domain.AccountSavings, decimal.Zero)
	for _, a := range domain.Assets {
		st.SeedWallet(userID, a, decimal.Zero)
	}
	return &fixture{
		svc:    NewService(st, prices, gate, rec, logger.NewNop(), metrics.Nop(), time.Second),
		store:  st,
		prices: prices,
		events: rec,
		userID: userID,
	}
}

func (f *fixture) fiat(t *testing.T) decimal.Decimal {
	t.Helper()
	a, err := f.store.GetAccount(context.Background(), f.userID, domain.AccountChecking)
	require.NoError(t, err)
	return a.Balance
}

func (f *fixture) wallet(t *testing.T, asset domain.AssetID) decimal.Decimal {
	t.Helper()
	w, err := f.store.GetCryptoWallet(context.Background(), f.userID, asset)
	require.NoError(t, err)
	return w.Balance
}

func buy(usd, fee string) BuyRequest {
	return BuyRequest{Asset: domain.AssetBTC, USDAmount: dec(usd), Fee: dec(fee), FundingAccount: domain.AccountChecking}
}

func sell(units, fee string) SellRequest {
	return SellRequest{Asset: domain.AssetBTC, CryptoAmount: dec(units), Fee: dec(fee), FundingAccount: domain.AccountChecking}
}

func TestBuySettlesAtOraclePrice(t *testing.T) {
	f := setup(t, "1000.00", nil)
	f.prices.On("GetPrice", mock.Anything, domain.AssetBTC).Return(dec("60000"), nil).Once()

	res, err := f.svc.Buy(context.Background(), f.userID, buy("600.00", "2.00"))
	require.NoError(t, err)

	assert.True(t, res.FiatBalance.Equal(dec("398.00")))
	assert.True(t, res.WalletBalance.Equal(dec("0.01")))
	assert.True(t, f.fiat(t).Equal(dec("398.00")))
	assert.True(t, f.wallet(t, domain.AssetBTC).Equal(dec("0.01")))

	trade := res.Trade
	assert.Equal(t, domain.TradeBuy, trade.Type)
	assert.True(t, trade.Amount.Equal(dec("0.01")))
	assert.True(t, trade.USDAmount.Equal(dec("600.00")))
	assert.True(t, trade.PricePerUnit.Equal(dec("60000")))
	require.NotNil(t, trade.FiatTransactionID)
	assert.Equal(t, res.FiatEntry.ID, *trade.FiatTransactionID)
	require.NotNil(t, res.FiatEntry.ParentID)
	assert.Equal(t, trade.ID, *res.FiatEntry.ParentID)
	assert.True(t, res.FiatEntry.Amount.Equal(dec("602.00")))
	assert.Equal(t, domain.CategoryCryptoBuy, res.FiatEntry.Category)

	assert.Equal(t, []string{events.TypeTradeSettled}, f.events.Types())
	f.prices.AssertExpectations(t)
}

func TestPriceIsReadOncePerTrade(t *testing.T) {
	f := setup(t, "1000.00", nil)
	ctx := context.Background()
	f.prices.On("GetPrice", mock.Anything, domain.AssetBTC).Return(dec("60000"), nil).Once()
	f.prices.On("GetPrice", mock.Anything, domain.AssetBTC).Return(dec("90000"), nil).Once()

	_, err := f.svc.Buy(ctx, f.userID, buy("600.00", "0"))
	require.NoError(t, err)

	trades, err := f.svc.History(ctx, f.userID, 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].PricePerUnit.Equal(dec("60000")), "stored price does not follow the oracle")
	f.prices.AssertNumberOfCalls(t, "GetPrice", 1)
}

func TestBuySellRoundTrip(t *testing.T) {
	f := setup(t, "1000.00", nil)
	ctx := context.Background()
	f.prices.On("GetPrice", mock.Anything, domain.AssetBTC).Return(dec("60000"), nil)

	_, err := f.svc.Buy(ctx, f.userID, buy("600.00", "0"))
	require.NoError(t, err)
	res, err := f.svc.Sell(ctx, f.userID, sell("0.01", "0"))
	require.NoError(t, err)

	assert.True(t, f.fiat(t).Equal(dec("1000.00")))
	assert.True(t, f.wallet(t, domain.AssetBTC).IsZero())
	assert.Equal(t, domain.TradeSell, res.Trade.Type)
	assert.Equal(t, domain.DirectionCredit, res.FiatEntry.Type)
	assert.True(t, res.Trade.USDAmount.Equal(dec("600.00")))
}

// lockOrder records the row locks each transaction takes.
type lockOrder struct {
	*memory.Store
	mu    sync.Mutex
	locks []string
}

func (l *lockOrder) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return l.Store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return fn(ctx, &lockOrderTx{Tx: tx, rec: l})
	})
}

func (l *lockOrder) record(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locks = append(l.locks, name)
}

func (l *lockOrder) take() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.locks
	l.locks = nil
	return out
}

type lockOrderTx struct {
	store.Tx
	rec *lockOrder
}

func (t *lockOrderTx) LockAccounts(ctx context.Context, userID uuid.UUID, kinds ...domain.AccountKind) (map[domain.AccountKind]*domain.Account, error) {
	t.rec.record("accounts")
	return t.Tx.LockAccounts(ctx, userID, kinds...)
}

func (t *lockOrderTx) LockCryptoWallet(ctx context.Context, userID uuid.UUID, asset domain.AssetID) (*domain.CryptoWallet, error) {
	t.rec.record("wallet")
	return t.Tx.LockCryptoWallet(ctx, userID, asset)
}

func TestBuyAndSellLockInTheSameOrder(t *testing.T) {
	f := setup(t, "1000.00", nil)
	ctx := context.Background()
	f.store.SeedWallet(f.userID, domain.AssetBTC, dec("1"))
	f.prices.On("GetPrice", mock.Anything, domain.AssetBTC).Return(dec("50000"), nil)
	rec := &lockOrder{Store: f.store}
	svc := NewService(rec, f.prices, nil, f.events, logger.NewNop(), metrics.Nop(), time.Second)

	_, err := svc.Buy(ctx, f.userID, buy("500.00", "0"))
	require.NoError(t, err)
	assert.Equal(t, []string{"accounts", "wallet"}, rec.take())

	_, err = svc.Sell(ctx, f.userID, sell("0.01", "0"))
	require.NoError(t, err)
	assert.Equal(t, []string{"accounts", "wallet"}, rec.take())
}

func TestConcurrentBuysAndSellsConserveBalances(t *testing.T) {
	f := setup(t, "10000.00", nil)
	ctx := context.Background()
	f.store.SeedWallet(f.userID, domain.AssetBTC, dec("1"))
	f.prices.On("GetPrice", mock.Anything, domain.AssetBTC).Return(dec("50000"), nil)

	const rounds = 10
	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.Buy(ctx, f.userID, buy("500.00", "0"))
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.Sell(ctx, f.userID, sell("0.01", "0"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.True(t, f.fiat(t).Equal(dec("10000.00")))
	assert.True(t, f.wallet(t, domain.AssetBTC).Equal(dec("1")))
	trades, err := f.svc.History(ctx, f.userID, 100)
	require.NoError(t, err)
	assert.Len(t, trades, 2*rounds)
}

func TestSellDeductsFee(t *testing.T) {
	f := setup(t, "0", nil)
	f.store.SeedWallet(f.userID, domain.AssetETH, dec("2"))
	f.prices.On("GetPrice", mock.Anything, domain.AssetETH).Return(dec("3000"), nil)

	req := sell("0.5", "5.00")
	req.Asset = domain.AssetETH
	res, err := f.svc.Sell(context.Background(), f.userID, req)
	require.NoError(t, err)

	assert.True(t, res.FiatBalance.Equal(dec("1495.00")))
	assert.True(t, f.wallet(t, domain.AssetETH).Equal(dec("1.5")))

	req.CryptoAmount = dec("0.001")
	req.Fee = dec("3.00")
	_, err = f.svc.Sell(context.Background(), f.userID, req)
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestTradingBlocked(t *testing.T) {
	f := setup(t, "1000.00", nil)
	ctx := context.Background()
	require.NoError(t, f.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.UpsertTradingControl(ctx, &domain.TradingControl{
			UserID:      f.userID,
			BuyEnabled:  false,
			SellEnabled: true,
			BlockReason: "pending compliance review",
		})
	}))
	f.store.SeedWallet(f.userID, domain.AssetBTC, dec("0.01"))
	f.prices.On("GetPrice", mock.Anything, domain.AssetBTC).Return(dec("60000"), nil)

	_, err := f.svc.Buy(ctx, f.userID, buy("100.00", "0"))
	assert.ErrorIs(t, err, errors.ErrTradingBlocked)
	assert.Equal(t, "pending compliance review", errors.BlockReason(err))
	assert.True(t, f.fiat(t).Equal(dec("1000.00")))

	_, err = f.svc.Sell(ctx, f.userID, sell("0.01", "0"))
	assert.NoError(t, err)
}

func TestInsufficientBalances(t *testing.T) {
	f := setup(t, "1000.00", nil)
	ctx := context.Background()
	f.prices.On("GetPrice", mock.Anything, domain.AssetBTC).Return(dec("60000"), nil)

	_, err := f.svc.Buy(ctx, f.userID, buy("1000.00", "2.00"))
	assert.ErrorIs(t, err, errors.ErrInsufficientFunds)

	_, err = f.svc.Sell(ctx, f.userID, sell("0.5", "0"))
	assert.ErrorIs(t, err, errors.ErrInsufficientFunds)

	assert.True(t, f.fiat(t).Equal(dec("1000.00")))
	assert.True(t, f.wallet(t, domain.AssetBTC).IsZero())
	assert.Empty(t, f.events.Events())
}

func TestBuyIsAllOrNothing(t *testing.T) {
	f := setup(t, "1000.00", nil)
	f.prices.On("GetPrice", mock.Anything, domain.AssetBTC).Return(dec("60000"), nil)
	f.store.FailOn("InsertCryptoTransaction", errors.New("disk full"))

	_, err := f.svc.Buy(context.Background(), f.userID, buy("600.00", "2.00"))

	require.Error(t, err)
	assert.True(t, f.fiat(t).Equal(dec("1000.00")))
	assert.True(t, f.wallet(t, domain.AssetBTC).IsZero())
	n, err := f.store.CountTransactions(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPriceFailuresAreSurfaced(t *testing.T) {
	f := setup(t, "1000.00", nil)
	f.prices.On("GetPrice", mock.Anything, domain.AssetBTC).Return(decimal.Zero, context.DeadlineExceeded).Once()
	f.prices.On("GetPrice", mock.Anything, domain.AssetBTC).Return(decimal.Zero, nil).Once()

	_, err := f.svc.Buy(context.Background(), f.userID, buy("600.00", "0"))
	assert.ErrorIs(t, err, errors.ErrTimeout)
	assert.True(t, errors.IsRetryable(err))

	_, err = f.svc.Buy(context.Background(), f.userID, buy("600.00", "0"))
	assert.ErrorIs(t, err, errors.ErrPriceUnavailable)
	assert.True(t, f.fiat(t).Equal(dec("1000.00")))
}

func TestOrderValidation(t *testing.T) {
	f := setup(t, "1000.00", nil)
	ctx := context.Background()

	bad := []Order{
		BuyRequest{Asset: "doge", USDAmount: dec("1"), FundingAccount: domain.AccountChecking},
		BuyRequest{Asset: domain.AssetBTC, USDAmount: dec("0"), FundingAccount: domain.AccountChecking},
		BuyRequest{Asset: domain.AssetBTC, USDAmount: dec("1"), Fee: dec("-1"), FundingAccount: domain.AccountChecking},
		BuyRequest{Asset: domain.AssetBTC, USDAmount: dec("1"), FundingAccount: "brokerage"},
		SellRequest{Asset: domain.AssetBTC, CryptoAmount: dec("0.000000001"), FundingAccount: domain.AccountChecking},
		SellRequest{Asset: domain.AssetBTC, CryptoAmount: dec("-1"), FundingAccount: domain.AccountChecking},
	}
	for _, o := range bad {
		var err error
		switch r := o.(type) {
		case BuyRequest:
			_, err = f.svc.Buy(ctx, f.userID, r)
		case SellRequest:
			_, err = f.svc.Sell(ctx, f.userID, r)
		}
		assert.ErrorIs(t, err, errors.ErrValidation, "%+v", o)
	}
	f.prices.AssertNotCalled(t, "GetPrice", mock.Anything, mock.Anything)
}

type codeSink struct {
	mu   sync.Mutex
	last string
}

func (c *codeSink) Send(_ context.Context, _ uuid.UUID, _, code string, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = code
	return nil
}

func TestTradesRequireOTPWhenGated(t *testing.T) {
	codes := &codeSink{}
	gate := otp.NewService(otp.NewMemoryStore(), codes, logger.NewNop(), metrics.Nop(), otp.Config{HashCost: bcrypt.MinCost})
	f := setup(t, "1000.00", gate)
	ctx := context.Background()
	f.prices.On("GetPrice", mock.Anything, domain.AssetBTC).Return(dec("60000"), nil)

	req := buy("600.00", "2.00")
	_, err := f.svc.Buy(ctx, f.userID, req)
	assert.ErrorIs(t, err, errors.ErrOTPMismatch)

	issued, err := f.svc.RequestAuthorization(ctx, f.userID, req)
	require.NoError(t, err)

	bigger := req
	bigger.USDAmount = dec("900.00")
	bigger.OTP = &otp.Proof{ChallengeID: issued.ChallengeID, Code: codes.last}
	_, err = f.svc.Buy(ctx, f.userID, bigger)
	assert.ErrorIs(t, err, errors.ErrOTPScopeMismatch)

	req.OTP = &otp.Proof{ChallengeID: issued.ChallengeID, Code: codes.last}
	_, err = f.svc.Buy(ctx, f.userID, req)
	require.NoError(t, err)
	assert.True(t, f.fiat(t).Equal(dec("398.00")))
}

func TestPortfolio(t *testing.T) {
	f := setup(t, "0", nil)
	ctx := context.Background()
	f.store.SeedWallet(f.userID, domain.AssetBTC, dec("0.5"))
	f.store.SeedWallet(f.userID, domain.AssetETH, dec("3"))
	require.NoError(t, f.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SetCryptoValuation(ctx, f.userID, domain.AssetETH,
			decimal.NewNullDecimal(dec("3333.3333333333333333")), decimal.NewNullDecimal(dec("10000")))
	}))
	f.prices.On("GetPrice", mock.Anything, domain.AssetBTC).Return(dec("60000"), nil)
	f.prices.On("GetPrice", mock.Anything, domain.AssetADA).Return(dec("0.45"), nil)

	p, err := f.svc.Portfolio(ctx, f.userID)
	require.NoError(t, err)

	byAsset := map[domain.AssetID]Holding{}
	for _, h := range p.Holdings {
		byAsset[h.Asset] = h
	}
	assert.True(t, byAsset[domain.AssetBTC].ValueUSD.Equal(dec("30000")))
	assert.Equal(t, PriceSourceOracle, byAsset[domain.AssetBTC].PriceSource)
	assert.True(t, byAsset[domain.AssetETH].ValueUSD.Equal(dec("10000")))
	assert.Equal(t, PriceSourceAdmin, byAsset[domain.AssetETH].PriceSource)
	assert.True(t, byAsset[domain.AssetADA].ValueUSD.IsZero())
	assert.True(t, p.TotalUSD.Equal(dec("40000")))
}

func TestPortfolioRevaluesAfterTradeOnOverriddenWallet(t *testing.T) {
	f := setup(t, "0", nil)
	ctx := context.Background()
	f.store.SeedWallet(f.userID, domain.AssetBTC, dec("1"))
	require.NoError(t, f.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.SetCryptoValuation(ctx, f.userID, domain.AssetBTC,
			decimal.NewNullDecimal(dec("50000")), decimal.NewNullDecimal(dec("50000")))
	}))
	f.prices.On("GetPrice", mock.Anything, mock.Anything).Return(dec("60000"), nil)

	_, err := f.svc.Sell(ctx, f.userID, sell("0.5", "0"))
	require.NoError(t, err)

	w, err := f.store.GetCryptoWallet(ctx, f.userID, domain.AssetBTC)
	require.NoError(t, err)
	assert.False(t, w.PriceUSD.Valid)
	assert.False(t, w.AdminTotalUSD.Valid)

	p, err := f.svc.Portfolio(ctx, f.userID)
	require.NoError(t, err)
	var btc Holding
	for _, h := range p.Holdings {
		if h.Asset == domain.AssetBTC {
			btc = h
		}
	}
	assert.Equal(t, PriceSourceOracle, btc.PriceSource)
	assert.True(t, btc.ValueUSD.Equal(dec("30000")))

	_, err = f.svc.Sell(ctx, f.userID, sell("0.5", "0"))
	require.NoError(t, err)
	p, err = f.svc.Portfolio(ctx, f.userID)
	require.NoError(t, err)
	assert.True(t, p.TotalUSD.IsZero())
}
