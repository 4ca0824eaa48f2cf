package venue

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/basketfund/internal/basket/domain"
	"github.com/wyfcoding/basketfund/pkg/metrics"
)

// Metered 为兑换执行计数的装饰器，报价不计数
type Metered struct {
	domain.SwapVenue
	metrics *metrics.Metrics
}

// NewMetered 包装 venue
func NewMetered(venue domain.SwapVenue, m *metrics.Metrics) *Metered {
	return &Metered{SwapVenue: venue, metrics: m}
}

func (v *Metered) ExecuteExactInput(ctx context.Context, p domain.ExactInputParams) (decimal.Decimal, error) {
	out, err := v.SwapVenue.ExecuteExactInput(ctx, p)
	if err == nil {
		v.metrics.RecordSwap("exact_input")
	}
	return out, err
}

func (v *Metered) ExecuteExactOutput(ctx context.Context, p domain.ExactOutputParams) (decimal.Decimal, error) {
	in, err := v.SwapVenue.ExecuteExactOutput(ctx, p)
	if err == nil {
		v.metrics.RecordSwap("exact_output")
	}
	return in, err
}
