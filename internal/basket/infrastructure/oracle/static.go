package oracle

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/basketfund/internal/basket/domain"
)

// Static 固定价格表，用于模拟盘与测试。feed 不区分大小写，viper 读取配置时会把 key 转为小写
type Static struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStatic 创建固定价格预言机
func NewStatic(prices map[string]decimal.Decimal) *Static {
	s := &Static{prices: make(map[string]decimal.Decimal, len(prices))}
	for feed, p := range prices {
		s.prices[strings.ToLower(feed)] = p
	}
	return s
}

// ParseStatic 从 feed → 价格字符串 的配置构造
func ParseStatic(raw map[string]string) (*Static, error) {
	prices := make(map[string]decimal.Decimal, len(raw))
	for feed, v := range raw {
		p, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("parse price of %s: %w", feed, err)
		}
		prices[feed] = p
	}
	return NewStatic(prices), nil
}

// Set 更新价格
func (s *Static) Set(feed string, price decimal.Decimal) {
	s.mu.Lock()
	s.prices[strings.ToLower(feed)] = price
	s.mu.Unlock()
}

// LatestPrice 实现 domain.PriceOracle
func (s *Static) LatestPrice(_ context.Context, feed string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[strings.ToLower(feed)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", domain.ErrPriceUnavailable, feed)
	}
	return p, nil
}
