package domain_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/basketfund/internal/basket/domain"
)

type holding struct {
	asset   string
	weight  uint32
	price   int64
	reserve int64
}

// rebalanceFund 构造 decimals 为 0 的基金，并设置价格与托管余额
func (e *env) rebalanceFund(deviance uint32, holdings ...holding) *domain.Fund {
	e.t.Helper()
	cs := make([]domain.Constituent, 0, len(holdings))
	for _, h := range holdings {
		feed := h.asset + "/USD"
		cs = append(cs, domain.Constituent{Asset: h.asset, SeedPerShare: d(1), Weight: h.weight, PriceFeed: feed})
		e.oracle.Set(feed, d(h.price))
		if h.reserve > 0 {
			e.mint(h.asset, fundAddr, h.reserve)
		}
	}
	f, err := domain.NewFund("bkt", "Rebalance Basket", "BKT", fundAddr, usd, treasury, cs)
	require.NoError(e.t, err)
	require.NoError(e.t, f.SetRebalanceParams(time.Hour, deviance))
	return f
}

func phases(r *domain.RebalanceRecord) []string {
	out := make([]string, len(r.Trades))
	for i, t := range r.Trades {
		out[i] = t.Phase
	}
	return out
}

func TestPlan_TargetAndBand(t *testing.T) {
	e := newEnv(t)
	f := twoAssetFund(t)
	require.NoError(t, f.SetRebalanceParams(0, 50_000))

	snap := &domain.MarketSnapshot{
		Reserves: []decimal.Decimal{d(65), d(17)},
		Prices:   []decimal.Decimal{d(10), d(20)},
		Values:   []decimal.Decimal{d(650), d(350)},
		Total:    d(1000),
	}
	plan := e.rebalancer.Plan(f, snap)

	assert.Equal(t, "600", plan[0].Target.String())
	assert.Equal(t, "570", plan[0].Lower.String())
	assert.Equal(t, "630", plan[0].Upper.String())
	assert.Equal(t, "-50", plan[0].DeltaValue.String())
	assert.Equal(t, "-5", plan[0].DeltaAmount.String())

	assert.Equal(t, "400", plan[1].Target.String())
	assert.Equal(t, "50", plan[1].DeltaValue.String())
	assert.Equal(t, "2", plan[1].DeltaAmount.String())

	snap.Values = []decimal.Decimal{d(620), d(380)}
	plan = e.rebalancer.Plan(f, snap)
	assert.True(t, plan[0].DeltaAmount.IsZero())
	assert.True(t, plan[1].DeltaAmount.IsZero())
}

func TestPlan_ZeroWeightUntouched(t *testing.T) {
	e := newEnv(t)
	f := twoAssetFund(t)
	require.NoError(t, f.SetWeights(map[string]uint32{"A": 1_000_000, "B": 0}))
	snap := &domain.MarketSnapshot{
		Prices: []decimal.Decimal{d(10), d(20)},
		Values: []decimal.Decimal{d(100), d(900)},
		Total:  d(1000),
	}
	plan := e.rebalancer.Plan(f, snap)
	assert.Equal(t, "90", plan[0].DeltaAmount.String())
	assert.True(t, plan[1].DeltaAmount.IsZero())
}

func TestMarketValues(t *testing.T) {
	e := newEnv(t)
	f := e.rebalanceFund(0,
		holding{asset: "A", weight: 500_000, price: 10, reserve: 70},
		holding{asset: "B", weight: 500_000, price: 3, reserve: 11},
	)
	f.Constituents[1].Decimals = 1 // 1.1 个 B

	snap, err := e.rebalancer.MarketValues(e.ctx, f)
	require.NoError(t, err)
	assert.Equal(t, "700", snap.Values[0].String())
	assert.Equal(t, "3", snap.Values[1].String()) // floor(11*3/10)
	assert.Equal(t, "703", snap.Total.String())
}

func TestRebalance_Preconditions(t *testing.T) {
	e := newEnv(t)
	f := e.rebalanceFund(0,
		holding{asset: "A", weight: 600_000, price: 10, reserve: 60},
		holding{asset: "B", weight: 400_000, price: 20, reserve: 20},
	)

	t.Run("weights must sum to one million", func(t *testing.T) {
		require.NoError(t, f.SetWeights(map[string]uint32{"A": 599_999}))
		defer func() { require.NoError(t, f.SetWeights(map[string]uint32{"A": 600_000})) }()
		_, err := e.rebalancer.Rebalance(e.ctx, f)
		assert.ErrorIs(t, err, domain.ErrInvalidTotalWeights)
	})

	t.Run("interval not elapsed", func(t *testing.T) {
		f.MarkRebalanced(e.now.Add(-59 * time.Minute))
		defer func() { f.LastRebalanceAt = nil }()
		_, err := e.rebalancer.Rebalance(e.ctx, f)
		assert.ErrorIs(t, err, domain.ErrNotRebalanceTime)
	})

	t.Run("missing price feed", func(t *testing.T) {
		require.NoError(t, f.SetPriceFeed("B", ""))
		defer func() { require.NoError(t, f.SetPriceFeed("B", "B/USD")) }()
		_, err := e.rebalancer.Rebalance(e.ctx, f)
		assert.ErrorIs(t, err, domain.ErrMissingPriceFeed)
	})

	t.Run("non-positive price", func(t *testing.T) {
		e.oracle.Set("B/USD", d(0))
		defer e.oracle.Set("B/USD", d(20))
		_, err := e.rebalancer.Rebalance(e.ctx, f)
		assert.ErrorIs(t, err, domain.ErrInvalidPrice)
	})

	t.Run("interval elapsed and in band", func(t *testing.T) {
		f.MarkRebalanced(e.now.Add(-time.Hour))
		rec, err := e.rebalancer.Rebalance(e.ctx, f)
		require.NoError(t, err)
		assert.Empty(t, rec.Trades)
		require.NotNil(t, f.LastRebalanceAt)
		assert.True(t, f.LastRebalanceAt.Equal(e.now))
	})
}

func TestRebalance_NoRouteRollsBack(t *testing.T) {
	e := newEnv(t)
	f := e.rebalanceFund(0,
		holding{asset: "A", weight: 500_000, price: 10, reserve: 70_000},
		holding{asset: "B", weight: 500_000, price: 20, reserve: 15_000},
	)
	before := e.snapshot(f)

	err := e.ledger.Atomic(e.ctx, func(ctx context.Context) error {
		_, err := e.rebalancer.Rebalance(ctx, f)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNoRoute)
	assert.Equal(t, before, e.snapshot(f))
	assert.Nil(t, f.LastRebalanceAt)
}

func TestRebalance_SkipsDustRedistribution(t *testing.T) {
	e := newEnv(t)
	f := e.rebalanceFund(100_000,
		holding{asset: "A", weight: 400_000, price: 1, reserve: 635_000},
		holding{asset: "B", weight: 300_000, price: 1, reserve: 380_000},
		holding{asset: "C", weight: 300_000, price: 350_000, reserve: 11},
	)
	f.Constituents[2].Decimals = 1 // 1.1 个 C，市值 385000
	e.pool("A", usd, 3000, 10_000_000, 10_000_000)
	e.pool("B", usd, 3000, 10_000_000, 10_000_000)
	e.pool("C", usd, 3000, 1_000, 35_000_000)

	rec, err := e.rebalancer.Rebalance(e.ctx, f)
	require.NoError(t, err)

	// A 超配卖出 75000；C 分到的结算资产买不到一个最小单位，跳过
	assert.Equal(t, []string{domain.PhaseSell, domain.PhaseRedistribute, domain.PhaseRedistribute}, phases(rec))
	sell, toA, toB := rec.Trades[0], rec.Trades[1], rec.Trades[2]
	assert.Equal(t, "75000", sell.AmountIn.String())
	assert.Equal(t, "A", toA.AssetOut)
	assert.Equal(t, "B", toB.AssetOut)

	assert.Equal(t, "11", e.balance("C", fundAddr).String())
	left := sell.AmountOut.Sub(toA.AmountIn).Sub(toB.AmountIn)
	assert.True(t, left.IsPositive())
	assert.True(t, e.balance(usd, fundAddr).Equal(left))
	require.NotNil(t, f.LastRebalanceAt)
}

func TestRebalance_SellsThenBuysThenStops(t *testing.T) {
	e := newEnv(t)
	f := e.rebalanceFund(0,
		holding{asset: "A", weight: 100_000, price: 10, reserve: 80_000},
		holding{asset: "B", weight: 100_000, price: 20, reserve: 2_500},
		holding{asset: "C", weight: 700_000, price: 5, reserve: 20_000},
		holding{asset: "D", weight: 100_000, price: 5, reserve: 10_000},
	)
	e.pool("A", usd, 3000, 1_000_000, 10_000_000)
	e.pool("B", usd, 3000, 1_000_000, 20_000_000)
	e.pool("C", usd, 3000, 4_000_000, 20_000_000)
	e.pool("D", usd, 3000, 4_000_000, 20_000_000)

	rec, err := e.rebalancer.Rebalance(e.ctx, f)
	require.NoError(t, err)

	// 卖出 70000 A；B 的精确买入被覆盖；C 资金不足，花光余额后停止买入，D 不再处理
	assert.Equal(t, []string{domain.PhaseSell, domain.PhaseBuy, domain.PhaseBuy}, phases(rec))
	sell, buyB, buyC := rec.Trades[0], rec.Trades[1], rec.Trades[2]
	assert.Equal(t, "70000", sell.AmountIn.String())
	assert.Equal(t, "652371", sell.AmountOut.String())
	assert.Equal(t, "B", buyB.AssetOut)
	assert.Equal(t, "2500", buyB.AmountOut.String())
	assert.Equal(t, "C", buyC.AssetOut)
	assert.True(t, buyC.AmountIn.Equal(sell.AmountOut.Sub(buyB.AmountIn)))

	assert.Equal(t, "10000", e.balance("A", fundAddr).String())
	assert.Equal(t, "5000", e.balance("B", fundAddr).String())
	assert.True(t, e.balance("C", fundAddr).Equal(buyC.AmountOut.Add(d(20_000))))
	assert.Equal(t, "10000", e.balance("D", fundAddr).String())
	assert.True(t, e.balance(usd, fundAddr).IsZero())

	assert.Equal(t, "80000", rec.Before.Get("A").String())
	assert.Equal(t, "10000", rec.After.Get("A").String())
	assert.True(t, rec.ExecutedAt.Equal(e.now))
}

func TestRebalance_RedistributesLeftover(t *testing.T) {
	e := newEnv(t)
	f := e.rebalanceFund(200_000,
		holding{asset: "A", weight: 400_000, price: 10, reserve: 65_000},
		holding{asset: "B", weight: 300_000, price: 20, reserve: 17_500},
		holding{asset: "C", weight: 300_000, price: 5, reserve: 70_000},
	)
	e.pool("A", usd, 3000, 1_000_000, 10_000_000)
	e.pool("B", usd, 3000, 1_000_000, 20_000_000)
	e.pool("C", usd, 3000, 4_000_000, 20_000_000)

	rec, err := e.rebalancer.Rebalance(e.ctx, f)
	require.NoError(t, err)

	// 只有 A 超出区间，卖出所得按 40/30/30 重新分配
	assert.Equal(t, []string{domain.PhaseSell, domain.PhaseRedistribute, domain.PhaseRedistribute, domain.PhaseRedistribute}, phases(rec))
	proceeds := rec.Trades[0].AmountOut
	assert.Equal(t, "11000", rec.Trades[0].AmountIn.String())
	assert.True(t, rec.Trades[1].AmountIn.Equal(domain.PPMOf(proceeds, 400_000)))
	assert.True(t, rec.Trades[2].AmountIn.Equal(domain.PPMOf(proceeds, 300_000)))
	assert.True(t, rec.Trades[3].AmountIn.Equal(domain.PPMOf(proceeds, 300_000)))
	assert.True(t, e.balance(usd, fundAddr).LessThan(d(3)))
	assert.True(t, e.balance("B", fundAddr).GreaterThan(d(17_500)))
}

func TestRebalance_CoveredBuyThenRedistribute(t *testing.T) {
	e := newEnv(t)
	f := e.rebalanceFund(100_000,
		holding{asset: "A", weight: 400_000, price: 10, reserve: 65_000},
		holding{asset: "B", weight: 300_000, price: 20, reserve: 16_000},
		holding{asset: "C", weight: 300_000, price: 5, reserve: 76_000},
	)
	e.pool("A", usd, 3000, 1_000_000, 10_000_000)
	e.pool("B", usd, 3000, 1_000_000, 20_000_000)
	e.pool("C", usd, 3000, 4_000_000, 20_000_000)

	rec, err := e.rebalancer.Rebalance(e.ctx, f)
	require.NoError(t, err)
	assert.Equal(t, []string{
		domain.PhaseSell, domain.PhaseBuy,
		domain.PhaseRedistribute, domain.PhaseRedistribute, domain.PhaseRedistribute,
	}, phases(rec))
	assert.Equal(t, "4250", rec.Trades[1].AmountOut.String())
	assert.True(t, e.balance("B", fundAddr).GreaterThan(d(20_250)))
}

func TestRebalance_SettlementConstituentIsBookEntry(t *testing.T) {
	e := newEnv(t)
	f := e.rebalanceFund(0,
		holding{asset: "A", weight: 500_000, price: 10, reserve: 70_000},
		holding{asset: usd, weight: 500_000, price: 1, reserve: 300_000},
	)
	e.pool("A", usd, 3000, 1_000_000, 10_000_000)

	rec, err := e.rebalancer.Rebalance(e.ctx, f)
	require.NoError(t, err)
	require.Len(t, rec.Trades, 1)
	assert.Equal(t, "20000", rec.Trades[0].AmountIn.String())
	assert.Equal(t, "50000", e.balance("A", fundAddr).String())
	assert.True(t, e.balance(usd, fundAddr).Equal(rec.Trades[0].AmountOut.Add(d(300_000))))
}
