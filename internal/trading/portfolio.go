package trading

import (
	"context"

	"corebank/internal/domain"
	"corebank/pkg/errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PriceSourceOracle = "oracle"
	PriceSourceAdmin  = "admin_override"
)

type Holding struct {
	Asset       domain.AssetID  `json:"asset_id"`
	Balance     decimal.Decimal `json:"balance"`
	PriceUSD    decimal.Decimal `json:"price_usd"`
	ValueUSD    decimal.Decimal `json:"value_usd"`
	PriceSource string          `json:"price_source"`
}

type Portfolio struct {
	Holdings []Holding       `json:"holdings"`
	TotalUSD decimal.Decimal `json:"total_usd"`
}

// Portfolio values every wallet. The value is derived on each call; only an
// admin valuation override is taken as stored.
func (s *Service) Portfolio(ctx context.Context, userID uuid.UUID) (*Portfolio, error) {
	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	wallets, err := s.store.ListCryptoWallets(rctx, userID)
	cancel()
	if err != nil {
		return nil, errors.FromContext(err)
	}

	out := &Portfolio{Holdings: make([]Holding, 0, len(wallets)), TotalUSD: decimal.Zero}
	for _, w := range wallets {
		h := Holding{Asset: w.AssetID, Balance: w.Balance}
		switch {
		case w.PriceUSD.Valid:
			h.PriceUSD = w.PriceUSD.Decimal
			h.PriceSource = PriceSourceAdmin
			if w.AdminTotalUSD.Valid {
				h.ValueUSD = w.AdminTotalUSD.Decimal.Round(domain.FiatPlaces)
			} else {
				h.ValueUSD = w.Balance.Mul(h.PriceUSD).Round(domain.FiatPlaces)
			}
		case w.Balance.IsZero():
			h.PriceSource = PriceSourceOracle
			h.ValueUSD = decimal.Zero
			if price, err := s.prices.GetPrice(ctx, w.AssetID); err == nil {
				h.PriceUSD = price
			}
		default:
			price, err := s.price(ctx, w.AssetID)
			if err != nil {
				return nil, err
			}
			h.PriceUSD = price
			h.PriceSource = PriceSourceOracle
			h.ValueUSD = w.Balance.Mul(price).Round(domain.FiatPlaces)
		}
		out.TotalUSD = out.TotalUSD.Add(h.ValueUSD)
		out.Holdings = append(out.Holdings, h)
	}
	return out, nil
}
