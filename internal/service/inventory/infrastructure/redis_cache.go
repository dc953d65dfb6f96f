package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"stockledger/internal/service/inventory/domain"
)

const stockCacheKeyPrefix = "inventory:stock:"

// RedisStockCache 以 SKU 为 key 缓存库存列表的 JSON 快照
type RedisStockCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisStockCache(client redis.UniversalClient, ttl time.Duration) *RedisStockCache {
	return &RedisStockCache{client: client, ttl: ttl}
}

func stockCacheKey(sku string) string {
	return stockCacheKeyPrefix + sku
}

func (c *RedisStockCache) Get(ctx context.Context, sku string) ([]*domain.StockRecord, bool, error) {
	raw, err := c.client.Get(ctx, stockCacheKey(sku)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "get stock cache for %s", sku)
	}
	var records []*domain.StockRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, false, errors.Wrapf(err, "decode stock cache for %s", sku)
	}
	return records, true, nil
}

func (c *RedisStockCache) Set(ctx context.Context, sku string, records []*domain.StockRecord) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return errors.Wrapf(err, "encode stock cache for %s", sku)
	}
	return errors.Wrapf(c.client.Set(ctx, stockCacheKey(sku), raw, c.ttl).Err(), "set stock cache for %s", sku)
}

func (c *RedisStockCache) Invalidate(ctx context.Context, sku string) error {
	return errors.Wrapf(c.client.Del(ctx, stockCacheKey(sku)).Err(), "invalidate stock cache for %s", sku)
}
