package admin

import (
	"context"
	"testing"
	"time"

	"corebank/internal/domain"
	"corebank/internal/events"
	"corebank/internal/repository/memory"
	"corebank/internal/wire"
	"corebank/pkg/errors"
	"corebank/pkg/logger"
	"corebank/pkg/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	svc     *Service
	wires   *wire.Service
	store   *memory.Store
	events  *events.Recorder
	userID  uuid.UUID
	adminID uuid.UUID
}

func setup(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	rec := &events.Recorder{}
	userID := uuid.New()
	st.SeedAccount(userID, domain.AccountChecking, dec("100.00"))
	st.SeedAccount(userID, domain.AccountSavings, decimal.Zero)
	for _, a := range domain.Assets {
		st.SeedWallet(userID, a, decimal.Zero)
	}
	wires := wire.NewService(st, nil, rec, logger.NewNop(), metrics.Nop(), wire.Options{Timeout: time.Second})
	return &fixture{
		svc:     NewService(st, wires, rec, logger.NewNop(), metrics.Nop(), time.Second),
		wires:   wires,
		store:   st,
		events:  rec,
		userID:  userID,
		adminID: uuid.New(),
	}
}

func (f *fixture) checking(t *testing.T) decimal.Decimal {
	t.Helper()
	a, err := f.store.GetAccount(context.Background(), f.userID, domain.AccountChecking)
	require.NoError(t, err)
	return a.Balance
}

func TestSetAccountBalancePostsAdjustment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	up, err := f.svc.SetAccountBalance(ctx, f.adminID, f.userID, domain.AccountChecking, dec("250.00"), "goodwill credit")
	require.NoError(t, err)
	assert.True(t, up.Previous.Equal(dec("100.00")))
	assert.True(t, up.Balance.Equal(dec("250.00")))
	require.NotNil(t, up.Entry)
	assert.Equal(t, domain.DirectionCredit, up.Entry.Type)
	assert.True(t, up.Entry.Amount.Equal(dec("150.00")))
	assert.Equal(t, domain.CategoryAdminAdjustment, up.Entry.Category)
	require.NotNil(t, up.Entry.ActorID)
	assert.Equal(t, f.adminID, *up.Entry.ActorID)

	down, err := f.svc.SetAccountBalance(ctx, f.adminID, f.userID, domain.AccountChecking, dec("0"), "")
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionDebit, down.Entry.Type)
	assert.True(t, down.Entry.Amount.Equal(dec("250.00")))
	assert.True(t, f.checking(t).IsZero())

	same, err := f.svc.SetAccountBalance(ctx, f.adminID, f.userID, domain.AccountChecking, dec("0"), "")
	require.NoError(t, err)
	assert.Nil(t, same.Entry)

	n, err := f.store.CountTransactions(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	entries, err := f.svc.AuditLog(ctx, f.userID, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, []string{events.TypeAdminOverride, events.TypeAdminOverride}, f.events.Types())
}

func TestSetAccountBalanceValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.SetAccountBalance(ctx, f.adminID, f.userID, domain.AccountChecking, dec("-1"), "")
	assert.ErrorIs(t, err, errors.ErrValidation)
	_, err = f.svc.SetAccountBalance(ctx, f.adminID, f.userID, domain.AccountChecking, dec("1.005"), "")
	assert.ErrorIs(t, err, errors.ErrValidation)
	_, err = f.svc.SetAccountBalance(ctx, f.adminID, f.userID, "brokerage", dec("1"), "")
	assert.ErrorIs(t, err, errors.ErrValidation)
	_, err = f.svc.SetAccountBalance(ctx, f.adminID, uuid.New(), domain.AccountChecking, dec("1"), "")
	assert.ErrorIs(t, err, errors.ErrAccountNotFound)
	assert.True(t, f.checking(t).Equal(dec("100.00")))
}

func TestSetCryptoWalletSolvesForPrice(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res, err := f.svc.SetCryptoWallet(ctx, f.adminID, f.userID, domain.AssetETH, dec("3"), dec("10000.00"))
	require.NoError(t, err)

	w := res.Wallet
	assert.True(t, w.Balance.Equal(dec("3")))
	require.True(t, w.PriceUSD.Valid)
	require.True(t, w.AdminTotalUSD.Valid)
	assert.True(t, w.AdminTotalUSD.Decimal.Equal(dec("10000.00")))
	assert.True(t, w.Balance.Mul(w.PriceUSD.Decimal).Round(domain.FiatPlaces).Equal(dec("10000.00")))

	require.NotNil(t, res.Adjustment)
	assert.Equal(t, domain.TradeAdjustmentCredit, res.Adjustment.Type)
	assert.True(t, res.Adjustment.Amount.Equal(dec("3")))
	assert.True(t, res.Adjustment.USDAmount.Equal(dec("10000.00")))

	lowered, err := f.svc.SetCryptoWallet(ctx, f.adminID, f.userID, domain.AssetETH, dec("1"), dec("4000.00"))
	require.NoError(t, err)
	require.NotNil(t, lowered.Adjustment)
	assert.Equal(t, domain.TradeAdjustmentDebit, lowered.Adjustment.Type)
	assert.True(t, lowered.Adjustment.Amount.Equal(dec("2")))
	assert.True(t, lowered.Adjustment.PricePerUnit.Equal(dec("4000")))
	assert.True(t, lowered.Adjustment.USDAmount.Equal(dec("8000.00")))
	assert.True(t, lowered.Wallet.AdminTotalUSD.Decimal.Equal(dec("4000.00")))

	trades, err := f.store.ListCryptoTransactions(ctx, f.userID, 10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	replayed := decimal.Zero
	for _, tr := range trades {
		if tr.Type == domain.TradeAdjustmentDebit {
			replayed = replayed.Sub(tr.Amount)
		} else {
			replayed = replayed.Add(tr.Amount)
		}
	}
	assert.True(t, replayed.Equal(dec("1")), "wallet history rebuilds the balance")

	cleared, err := f.svc.SetCryptoWallet(ctx, f.adminID, f.userID, domain.AssetETH, dec("1"), decimal.Zero)
	require.NoError(t, err)
	assert.False(t, cleared.Wallet.PriceUSD.Valid)
	assert.Nil(t, cleared.Adjustment)
}

func TestSetCryptoWalletValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.SetCryptoWallet(ctx, f.adminID, f.userID, domain.AssetBTC, decimal.Zero, dec("50.00"))
	assert.ErrorIs(t, err, errors.ErrValidation)
	_, err = f.svc.SetCryptoWallet(ctx, f.adminID, f.userID, domain.AssetBTC, dec("0.000000001"), dec("1"))
	assert.ErrorIs(t, err, errors.ErrValidation)
	_, err = f.svc.SetCryptoWallet(ctx, f.adminID, f.userID, "doge", dec("1"), dec("1"))
	assert.ErrorIs(t, err, errors.ErrValidation)
	_, err = f.svc.SetCryptoWallet(ctx, f.adminID, uuid.New(), domain.AssetBTC, dec("1"), dec("1"))
	assert.ErrorIs(t, err, errors.ErrWalletNotFound)
}

func TestForceWireStatusUsesTransitionRules(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	fee := dec("5.00")
	w, err := f.wires.Create(ctx, f.userID, wire.CreateRequest{
		FromAccount:   domain.AccountChecking,
		Amount:        dec("50.00"),
		Fee:           &fee,
		RecipientName: "Acme Corp",
		BankName:      "Bank of Test",
		RoutingNumber: "011000015",
		AccountNumber: "00012345",
		BankAddress:   "2 Side St",
	})
	require.NoError(t, err)
	_, err = f.svc.TransitionWire(ctx, f.adminID, w.ID, domain.WireStatusCompleted, "")
	require.NoError(t, err)
	require.True(t, f.checking(t).Equal(dec("45.00")))

	_, err = f.svc.ForceWireStatus(ctx, f.adminID, w.ID, domain.WireStatusCancelled, " ")
	assert.ErrorIs(t, err, errors.ErrValidation)

	got, err := f.svc.ForceWireStatus(ctx, f.adminID, w.ID, domain.WireStatusCancelled, "customer recall")
	require.NoError(t, err)
	assert.Equal(t, domain.WireStatusCancelled, got.Status)
	assert.True(t, f.checking(t).Equal(dec("100.00")))

	_, err = f.svc.ForceWireStatus(ctx, f.adminID, w.ID, domain.WireStatusPending, "reopen")
	assert.ErrorIs(t, err, errors.ErrIllegalTransition)
}

func TestSetTradingControlsRequiresReason(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.SetTradingControls(ctx, f.adminID, f.userID, false, true, "")
	assert.ErrorIs(t, err, errors.ErrValidation)

	ctl, err := f.svc.SetTradingControls(ctx, f.adminID, f.userID, false, true, "suspicious activity")
	require.NoError(t, err)
	stored, err := f.store.GetTradingControl(ctx, f.userID)
	require.NoError(t, err)
	assert.False(t, stored.BuyEnabled)
	assert.True(t, stored.SellEnabled)
	assert.Equal(t, "suspicious activity", stored.BlockReason)
	assert.Equal(t, f.adminID, *ctl.UpdatedBy)

	_, err = f.svc.SetTradingControls(ctx, f.adminID, f.userID, true, true, "stale reason")
	require.NoError(t, err)
	stored, err = f.store.GetTradingControl(ctx, f.userID)
	require.NoError(t, err)
	assert.Empty(t, stored.BlockReason)
}

func TestSetWireControlsBlocksCreation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.SetWireControls(ctx, f.adminID, f.userID, false, "")
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = f.svc.SetWireControls(ctx, f.adminID, f.userID, false, "documents expired")
	require.NoError(t, err)

	fee := decimal.Zero
	_, err = f.wires.Create(ctx, f.userID, wire.CreateRequest{
		FromAccount:   domain.AccountChecking,
		Amount:        dec("10.00"),
		Fee:           &fee,
		RecipientName: "Acme Corp",
		BankName:      "Bank of Test",
		RoutingNumber: "011000015",
		AccountNumber: "00012345",
		BankAddress:   "2 Side St",
	})
	assert.ErrorIs(t, err, errors.ErrTransferBlocked)
	assert.Equal(t, "documents expired", errors.BlockReason(err))

	entries, err := f.svc.AuditLog(ctx, f.userID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "wire.set_controls", entries[0].Action)
}
