package redis

import (
	"context"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// StockCache 缓存商品的展示库存。
// 权威库存永远在 DB 事务内，缓存只服务货架/POS 屏的展示查询，
// 允许短暂陈旧，所以写入全部 best-effort，失败由调用方决定是否忽略。
type StockCache struct {
	rdb *rd.Client
	ttl time.Duration
}

func NewStockCache(rdb *rd.Client, ttl time.Duration) *StockCache {
	return &StockCache{rdb: rdb, ttl: ttl}
}

// Get 读取展示库存。found=false 表示缓存未命中，调用方应回源 DB。
func (c *StockCache) Get(ctx context.Context, productID uint) (int64, bool, error) {
	val, err := c.rdb.Get(ctx, StockKey(productID)).Int64()
	if err != nil {
		if err == rd.Nil {
			return 0, false, nil
		}
		return 0, false, err
	}
	return val, true, nil
}

// Set 刷新展示库存并重置 TTL。
func (c *StockCache) Set(ctx context.Context, productID uint, stock int64) error {
	return c.rdb.Set(ctx, StockKey(productID), stock, c.ttl).Err()
}

// Invalidate 删除缓存键，下一次查询回源 DB。
func (c *StockCache) Invalidate(ctx context.Context, productID uint) error {
	return c.rdb.Del(ctx, StockKey(productID)).Err()
}
