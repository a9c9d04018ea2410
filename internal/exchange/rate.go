package exchange

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"lightning-gateway/pkg/logger"

	"github.com/btcsuite/btcd/btcutil"
	"go.uber.org/zap"
)

// RateSource yields the current exchange rate in satoshis per US dollar.
type RateSource interface {
	GetSatPerUSD(ctx context.Context) (int64, error)
}

// Rates converts a BTC/USD spot price into satoshis per dollar.
type Rates struct {
	provider PriceProvider
}

// NewRates creates a rate source on top of provider.
func NewRates(provider PriceProvider) *Rates {
	return &Rates{provider: provider}
}

// GetSatPerUSD fetches the spot price and converts it. The result is
// rounded to the nearest satoshi.
func (r *Rates) GetSatPerUSD(ctx context.Context) (int64, error) {
	price, err := r.provider.GetPrice(ctx)
	if err != nil {
		return 0, err
	}

	rate := int64(math.Round(btcutil.SatoshiPerBitcoin / price))
	if rate <= 0 {
		return 0, fmt.Errorf("exchange rate out of range: price %f", price)
	}
	return rate, nil
}

// rateCache is the slice of the cache this package needs.
type rateCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

const rateCacheKey = "exchange:sat_per_usd"

// CachedRates caches the sat/USD rate for a fixed TTL so invoice bursts do
// not hammer the price API. Cache failures fall through to the source.
type CachedRates struct {
	source RateSource
	cache  rateCache
	ttl    time.Duration
}

// NewCachedRates wraps source with a cache holding values for ttl.
func NewCachedRates(source RateSource, cache rateCache, ttl time.Duration) *CachedRates {
	return &CachedRates{source: source, cache: cache, ttl: ttl}
}

func (c *CachedRates) GetSatPerUSD(ctx context.Context) (int64, error) {
	if cached, err := c.cache.Get(ctx, rateCacheKey); err == nil && cached != "" {
		rate, err := strconv.ParseInt(cached, 10, 64)
		if err == nil && rate > 0 {
			return rate, nil
		}
		logger.Warn("Discarding malformed cached rate", zap.String("value", cached))
	}

	rate, err := c.source.GetSatPerUSD(ctx)
	if err != nil {
		return 0, err
	}

	if err := c.cache.Set(ctx, rateCacheKey, strconv.FormatInt(rate, 10), c.ttl); err != nil {
		logger.Warn("Failed to cache exchange rate", zap.Error(err))
	}
	return rate, nil
}
