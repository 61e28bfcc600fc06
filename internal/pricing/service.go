// Package pricing answers GetPrice(asset) for trade settlement and portfolio
// valuation. Providers are tried in order; answers are cached for a short TTL.
package pricing

import (
	"context"
	"sync"
	"time"

	"corebank/internal/domain"
	"corebank/pkg/errors"
	"corebank/pkg/logger"

	"github.com/shopspring/decimal"
)

// Quote is one price observation.
type Quote struct {
	Asset     domain.AssetID  `json:"asset"`
	PriceUSD  decimal.Decimal `json:"price_usd"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
}

type Provider interface {
	Name() string
	GetPrice(ctx context.Context, asset domain.AssetID) (decimal.Decimal, error)
}

// Cache is a shared quote cache. Get returns an error on a miss.
type Cache interface {
	Get(ctx context.Context, asset domain.AssetID) (*Quote, error)
	Set(ctx context.Context, q *Quote, ttl time.Duration) error
}

type Service struct {
	providers []Provider
	cache     Cache
	logger    logger.Logger
	ttl       time.Duration
	timeout   time.Duration

	mu    sync.RWMutex
	local map[domain.AssetID]*Quote
	now   func() time.Time
}

// NewService builds a price service. cache may be nil.
func NewService(providers []Provider, cache Cache, log logger.Logger, ttl, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Service{
		providers: providers,
		cache:     cache,
		logger:    log,
		ttl:       ttl,
		timeout:   timeout,
		local:     make(map[domain.AssetID]*Quote),
		now:       time.Now,
	}
}

// GetPrice returns the current USD price of one unit of asset.
func (s *Service) GetPrice(ctx context.Context, asset domain.AssetID) (decimal.Decimal, error) {
	q, err := s.Quote(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}
	return q.PriceUSD, nil
}

// Quote is GetPrice with provenance.
func (s *Service) Quote(ctx context.Context, asset domain.AssetID) (*Quote, error) {
	if !asset.Valid() {
		return nil, errors.Invalid("asset_id", "must be btc, eth or ada")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.mu.RLock()
	if q, ok := s.local[asset]; ok && s.fresh(q) {
		s.mu.RUnlock()
		return q, nil
	}
	s.mu.RUnlock()

	if s.cache != nil {
		if q, err := s.cache.Get(ctx, asset); err == nil && s.fresh(q) {
			s.remember(q)
			return q, nil
		}
	}

	for _, p := range s.providers {
		price, err := p.GetPrice(ctx, asset)
		if err == nil && !price.IsPositive() {
			err = errors.New("non-positive price")
		}
		if err != nil {
			s.logger.Warn("Price provider failed", map[string]interface{}{
				"provider": p.Name(),
				"asset":    asset,
				"error":    err.Error(),
			})
			if ctx.Err() != nil {
				return nil, errors.FromContext(ctx.Err())
			}
			continue
		}

		q := &Quote{Asset: asset, PriceUSD: price, Source: p.Name(), FetchedAt: s.now().UTC()}
		s.remember(q)
		if s.cache != nil {
			if err := s.cache.Set(ctx, q, s.ttl); err != nil {
				s.logger.Warn("Failed to cache price", map[string]interface{}{"asset": asset, "error": err.Error()})
			}
		}
		return q, nil
	}
	return nil, errors.ErrPriceUnavailable
}

func (s *Service) fresh(q *Quote) bool {
	return s.ttl > 0 && s.now().Sub(q.FetchedAt) < s.ttl
}

func (s *Service) remember(q *Quote) {
	s.mu.Lock()
	s.local[q.Asset] = q
	s.mu.Unlock()
}
