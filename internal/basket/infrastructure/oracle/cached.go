package oracle

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/basketfund/internal/basket/domain"
)

// JSONCache 键值缓存，pkg/cache.RedisCache 实现了该接口
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Cached 在 ttl 内复用上游价格；缓存读写失败时直接回源
type Cached struct {
	upstream domain.PriceOracle
	cache    JSONCache
	ttl      time.Duration
	logger   *slog.Logger
}

// NewCached 包装上游预言机
func NewCached(upstream domain.PriceOracle, cache JSONCache, ttl time.Duration, logger *slog.Logger) *Cached {
	return &Cached{upstream: upstream, cache: cache, ttl: ttl, logger: logger}
}

func cacheKey(feed string) string { return "basket:price:" + feed }

// LatestPrice 实现 domain.PriceOracle
func (c *Cached) LatestPrice(ctx context.Context, feed string) (decimal.Decimal, error) {
	var price decimal.Decimal
	hit, err := c.cache.GetJSON(ctx, cacheKey(feed), &price)
	if err != nil {
		c.logger.WarnContext(ctx, "price cache read failed", "feed", feed, "error", err)
	} else if hit {
		return price, nil
	}

	price, err = c.upstream.LatestPrice(ctx, feed)
	if err != nil {
		return decimal.Zero, err
	}
	if err := c.cache.SetJSON(ctx, cacheKey(feed), price, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "price cache write failed", "feed", feed, "error", err)
	}
	return price, nil
}
