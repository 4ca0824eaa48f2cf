// Package oracle 价格预言机适配器
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/basketfund/internal/basket/domain"
)

// priceResponse 价格接口返回体
type priceResponse struct {
	Feed      string          `json:"feed"`
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// HTTPFeed 通过 HTTP 价格服务读取最新价格：GET {base}/v1/prices/{feed}
type HTTPFeed struct {
	client *resty.Client
	logger *slog.Logger
}

// NewHTTPFeed 创建 HTTP 预言机
func NewHTTPFeed(baseURL string, timeout time.Duration, logger *slog.Logger) *HTTPFeed {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &HTTPFeed{client: client, logger: logger}
}

// LatestPrice 实现 domain.PriceOracle
func (o *HTTPFeed) LatestPrice(ctx context.Context, feed string) (decimal.Decimal, error) {
	var body priceResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetPathParam("feed", feed).
		SetResult(&body).
		Get("/v1/prices/{feed}")
	if err != nil {
		o.logger.ErrorContext(ctx, "price request failed", "feed", feed, "error", err)
		return decimal.Zero, fmt.Errorf("%w: %s: %v", domain.ErrPriceUnavailable, feed, err)
	}
	if resp.IsError() {
		o.logger.WarnContext(ctx, "price service returned error", "feed", feed, "status", resp.StatusCode())
		return decimal.Zero, fmt.Errorf("%w: %s: status %d", domain.ErrPriceUnavailable, feed, resp.StatusCode())
	}
	o.logger.DebugContext(ctx, "price fetched", "feed", feed, "price", body.Price.String(), "updated_at", body.UpdatedAt)
	return body.Price, nil
}
