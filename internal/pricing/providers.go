package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"corebank/internal/domain"
	"corebank/pkg/cache"
	"corebank/pkg/errors"

	"github.com/shopspring/decimal"
)

// StaticProvider serves fixed prices. It backs local runs and is the last
// provider in the chain.
type StaticProvider struct {
	prices map[domain.AssetID]decimal.Decimal
}

func NewStaticProvider(prices map[string]decimal.Decimal) *StaticProvider {
	p := &StaticProvider{prices: make(map[domain.AssetID]decimal.Decimal, len(prices))}
	for k, v := range prices {
		p.prices[domain.AssetID(strings.ToLower(k))] = v
	}
	return p
}

func (p *StaticProvider) Name() string {
	return "static"
}

func (p *StaticProvider) GetPrice(_ context.Context, asset domain.AssetID) (decimal.Decimal, error) {
	price, ok := p.prices[asset]
	if !ok {
		return decimal.Zero, errors.ErrPriceUnavailable
	}
	return price, nil
}

// HTTPProvider queries a JSON price endpoint:
// GET {baseURL}/prices/{asset} -> {"price_usd": "60000.00"}
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Name() string {
	return "http"
}

func (p *HTTPProvider) GetPrice(ctx context.Context, asset domain.AssetID) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/prices/"+string(asset), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to fetch price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		PriceUSD decimal.Decimal `json:"price_usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode price: %w", err)
	}
	return body.PriceUSD, nil
}

// RedisCache shares quotes between API replicas.
type RedisCache struct {
	cache *cache.RedisCache
}

func NewRedisCache(c *cache.RedisCache) *RedisCache {
	return &RedisCache{cache: c}
}

func (c *RedisCache) Get(ctx context.Context, asset domain.AssetID) (*Quote, error) {
	var q Quote
	if err := c.cache.Get(ctx, "price:"+string(asset), &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (c *RedisCache) Set(ctx context.Context, q *Quote, ttl time.Duration) error {
	return c.cache.Set(ctx, "price:"+string(q.Asset), q, ttl)
}
