package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"losslessMarket/internal/model"
)

// ErrNotFound is returned when a cache key does not exist.
var ErrNotFound = errors.New("not found")

const defaultMarketTTL = 2 * time.Minute

// MarketCache stores market snapshots as JSON.
//
// Key schema:
//
//	lossless:markets:{chainID}           - JSON array of the last full list
//	lossless:market:{chainID}:{address}  - JSON of one market
type MarketCache struct {
	rdb     *redis.Client
	chainID uint64
	ttl     time.Duration
}

func NewMarketCache(c *Client, chainID uint64, ttl time.Duration) *MarketCache {
	if ttl <= 0 {
		ttl = defaultMarketTTL
	}
	return &MarketCache{rdb: c.rdb, chainID: chainID, ttl: ttl}
}

func (mc *MarketCache) listKey() string {
	return fmt.Sprintf("lossless:markets:%d", mc.chainID)
}

func (mc *MarketCache) marketKey(address string) string {
	return fmt.Sprintf("lossless:market:%d:%s", mc.chainID, strings.ToLower(address))
}

// SetAll replaces the cached list and refreshes every per-market entry.
func (mc *MarketCache) SetAll(ctx context.Context, markets []model.Market) error {
	data, err := json.Marshal(markets)
	if err != nil {
		return fmt.Errorf("redis: marshal markets: %w", err)
	}

	pipe := mc.rdb.TxPipeline()
	pipe.Set(ctx, mc.listKey(), data, mc.ttl)
	for _, m := range markets {
		item, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("redis: marshal market %s: %w", m.Address, err)
		}
		pipe.Set(ctx, mc.marketKey(m.Address), item, mc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set markets: %w", err)
	}
	return nil
}

// All returns the cached list or ErrNotFound.
func (mc *MarketCache) All(ctx context.Context) ([]model.Market, error) {
	data, err := mc.rdb.Get(ctx, mc.listKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis: get markets: %w", err)
	}
	var markets []model.Market
	if err := json.Unmarshal(data, &markets); err != nil {
		return nil, fmt.Errorf("redis: unmarshal markets: %w", err)
	}
	return markets, nil
}

// Set stores one market snapshot.
func (mc *MarketCache) Set(ctx context.Context, m model.Market) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("redis: marshal market %s: %w", m.Address, err)
	}
	if err := mc.rdb.Set(ctx, mc.marketKey(m.Address), data, mc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set market %s: %w", m.Address, err)
	}
	return nil
}

// Get returns one market snapshot or ErrNotFound.
func (mc *MarketCache) Get(ctx context.Context, address string) (model.Market, error) {
	data, err := mc.rdb.Get(ctx, mc.marketKey(address)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Market{}, ErrNotFound
		}
		return model.Market{}, fmt.Errorf("redis: get market %s: %w", address, err)
	}
	var m model.Market
	if err := json.Unmarshal(data, &m); err != nil {
		return model.Market{}, fmt.Errorf("redis: unmarshal market %s: %w", address, err)
	}
	return m, nil
}

// Invalidate drops one market and the list snapshot after a mutating call.
func (mc *MarketCache) Invalidate(ctx context.Context, address string) error {
	pipe := mc.rdb.TxPipeline()
	pipe.Del(ctx, mc.marketKey(address))
	pipe.Del(ctx, mc.listKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: invalidate market %s: %w", address, err)
	}
	return nil
}
