package trading

import (
	"corebank/internal/domain"
	"corebank/internal/ledger"
	"corebank/internal/otp"
	"corebank/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is a buy or sell draft. Its scope binds an OTP to the exact order.
type Order interface {
	Side() domain.TradeType
	validate() error
	scope(userID uuid.UUID) string
}

type BuyRequest struct {
	Asset          domain.AssetID     `json:"asset_id" validate:"required,oneof=btc eth ada"`
	USDAmount      decimal.Decimal    `json:"usd_amount" validate:"required,gt=0"`
	Fee            decimal.Decimal    `json:"fee"`
	FundingAccount domain.AccountKind `json:"funding_account" validate:"required,oneof=checking savings"`
	OTP            *otp.Proof         `json:"otp,omitempty"`
}

func (BuyRequest) Side() domain.TradeType { return domain.TradeBuy }

func (r BuyRequest) validate() error {
	if err := validateCommon(r.Asset, r.FundingAccount, r.Fee); err != nil {
		return err
	}
	return ledger.ValidateAmount("usd_amount", r.USDAmount)
}

func (r BuyRequest) scope(userID uuid.UUID) string {
	return otp.Scope("crypto_buy", userID.String(), string(r.Asset), r.USDAmount.StringFixed(2),
		r.Fee.StringFixed(2), string(r.FundingAccount))
}

type SellRequest struct {
	Asset          domain.AssetID     `json:"asset_id" validate:"required,oneof=btc eth ada"`
	CryptoAmount   decimal.Decimal    `json:"crypto_amount" validate:"required,gt=0"`
	Fee            decimal.Decimal    `json:"fee"`
	FundingAccount domain.AccountKind `json:"funding_account" validate:"required,oneof=checking savings"`
	OTP            *otp.Proof         `json:"otp,omitempty"`
}

func (SellRequest) Side() domain.TradeType { return domain.TradeSell }

func (r SellRequest) validate() error {
	if err := validateCommon(r.Asset, r.FundingAccount, r.Fee); err != nil {
		return err
	}
	if !r.CryptoAmount.IsPositive() {
		return errors.Invalid("crypto_amount", "must be greater than zero")
	}
	if !r.CryptoAmount.Equal(r.CryptoAmount.Round(domain.CryptoPlaces)) {
		return errors.Invalid("crypto_amount", "at most 8 decimal places")
	}
	return nil
}

func (r SellRequest) scope(userID uuid.UUID) string {
	return otp.Scope("crypto_sell", userID.String(), string(r.Asset), r.CryptoAmount.StringFixed(domain.CryptoPlaces),
		r.Fee.StringFixed(2), string(r.FundingAccount))
}

func validateCommon(asset domain.AssetID, funding domain.AccountKind, fee decimal.Decimal) error {
	if !asset.Valid() {
		return errors.Invalid("asset_id", "must be btc, eth or ada")
	}
	if !funding.Valid() {
		return errors.Invalid("funding_account", "must be checking or savings")
	}
	return ledger.ValidateFee(fee)
}
