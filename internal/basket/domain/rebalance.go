package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MarketSnapshot 一次再平衡使用的市值快照，仅在内存中存在
type MarketSnapshot struct {
	Reserves []decimal.Decimal `json:"reserves"`
	Prices   []decimal.Decimal `json:"prices"`
	Values   []decimal.Decimal `json:"values"`
	Total    decimal.Decimal   `json:"total"`
}

// Allocation 单个成分的目标区间与调整量
type Allocation struct {
	Asset       string          `json:"asset"`
	Current     decimal.Decimal `json:"current"`
	Target      decimal.Decimal `json:"target"`
	Lower       decimal.Decimal `json:"lower"`
	Upper       decimal.Decimal `json:"upper"`
	DeltaValue  decimal.Decimal `json:"delta_value"`
	DeltaAmount decimal.Decimal `json:"delta_amount"` // 正数买入，负数卖出
}

// TradeHook 每执行一笔再平衡兑换后回调
type TradeHook func(ctx context.Context, fund *Fund, trade Trade)

// RebalanceEngine 按目标权重与偏离阈值调整基金持仓，所有兑换以结算资产为中转
type RebalanceEngine struct {
	accounting *AccountingEngine
	quoter     *PathQuoter
	oracle     PriceOracle
	venue      SwapVenue
	now        func() time.Time
	onTrade    TradeHook
}

// RebalanceOption 再平衡引擎选项
type RebalanceOption func(*RebalanceEngine)

// WithClock 替换时钟
func WithClock(now func() time.Time) RebalanceOption {
	return func(e *RebalanceEngine) { e.now = now }
}

// WithTradeHook 设置交易回调
func WithTradeHook(h TradeHook) RebalanceOption {
	return func(e *RebalanceEngine) { e.onTrade = h }
}

// NewRebalanceEngine 创建再平衡引擎
func NewRebalanceEngine(accounting *AccountingEngine, quoter *PathQuoter, oracle PriceOracle, venue SwapVenue, opts ...RebalanceOption) *RebalanceEngine {
	e := &RebalanceEngine{
		accounting: accounting,
		quoter:     quoter,
		oracle:     oracle,
		venue:      venue,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MarketValues 读取各成分的余额与价格并计算市值：value = reserve*price/10^decimals
func (e *RebalanceEngine) MarketValues(ctx context.Context, fund *Fund) (*MarketSnapshot, error) {
	reserves, err := e.accounting.Reserves(ctx, fund)
	if err != nil {
		return nil, err
	}
	snap := &MarketSnapshot{
		Reserves: reserves,
		Prices:   make([]decimal.Decimal, len(fund.Constituents)),
		Values:   make([]decimal.Decimal, len(fund.Constituents)),
		Total:    decimal.Zero,
	}
	for i, c := range fund.Constituents {
		if c.PriceFeed == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingPriceFeed, c.Asset)
		}
		price, err := e.oracle.LatestPrice(ctx, c.PriceFeed)
		if err != nil {
			return nil, fmt.Errorf("price of %s: %w", c.Asset, err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("%w: %s price %s", ErrInvalidPrice, c.Asset, price)
		}
		snap.Prices[i] = price
		snap.Values[i] = MulDivDown(reserves[i], price, Pow10(c.Decimals))
		snap.Total = snap.Total.Add(snap.Values[i])
	}
	return snap, nil
}

// Plan 计算每个成分的目标市值、容忍区间与需调整的资产数量。
// 落在 [target*(1-dev), target*(1+dev)] 内或权重为零的成分不调整。
func (e *RebalanceEngine) Plan(fund *Fund, snap *MarketSnapshot) []Allocation {
	dev := decimal.NewFromInt(int64(fund.RebalanceDeviance))
	lowerRate := ppm.Sub(dev)
	upperRate := ppm.Add(dev)

	plan := make([]Allocation, len(fund.Constituents))
	for i, c := range fund.Constituents {
		a := Allocation{
			Asset:       c.Asset,
			Current:     snap.Values[i],
			Target:      decimal.Zero,
			Lower:       decimal.Zero,
			Upper:       decimal.Zero,
			DeltaValue:  decimal.Zero,
			DeltaAmount: decimal.Zero,
		}
		if c.Weight == 0 {
			plan[i] = a
			continue
		}
		a.Target = PPMOf(snap.Total, c.Weight)
		a.Lower = MulDivDown(a.Target, lowerRate, ppm)
		a.Upper = MulDivDown(a.Target, upperRate, ppm)
		if a.Current.LessThan(a.Lower) || a.Current.GreaterThan(a.Upper) {
			a.DeltaValue = a.Target.Sub(a.Current)
			amount := MulDivDown(a.DeltaValue.Abs(), Pow10(c.Decimals), snap.Prices[i])
			if a.DeltaValue.IsNegative() {
				amount = amount.Neg()
			}
			a.DeltaAmount = amount
		}
		plan[i] = a
	}
	return plan
}

// Rebalance 执行一次再平衡：卖出超配资产换成结算资产，按篮子顺序买入低配资产，
// 剩余结算资产再按目标权重分配。
func (e *RebalanceEngine) Rebalance(ctx context.Context, fund *Fund) (*RebalanceRecord, error) {
	if fund.TotalWeight() != PPM {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTotalWeights, fund.TotalWeight())
	}
	now := e.now()
	if !fund.CanRebalance(now) {
		return nil, fmt.Errorf("%w: next at %s", ErrNotRebalanceTime, fund.NextRebalanceAt().Format(time.RFC3339))
	}

	snap, err := e.MarketValues(ctx, fund)
	if err != nil {
		return nil, err
	}
	before := pairAmounts(fund, snap.Reserves)
	plan := e.Plan(fund, snap)
	settlement := fund.SettlementAsset

	var trades Trades
	balance := decimal.Zero

	for _, a := range plan {
		if !a.DeltaAmount.IsNegative() {
			continue
		}
		amount := a.DeltaAmount.Abs()
		if a.Asset == settlement {
			balance = balance.Add(amount)
			continue
		}
		t, err := e.swapExactInput(ctx, fund, PhaseSell, a.Asset, settlement, amount)
		if err != nil {
			return nil, err
		}
		if t == nil {
			continue
		}
		balance = balance.Add(t.AmountOut)
		trades = append(trades, *t)
	}

	for _, a := range plan {
		if !a.DeltaAmount.IsPositive() {
			continue
		}
		amount := a.DeltaAmount
		if a.Asset == settlement {
			if balance.LessThan(amount) {
				balance = decimal.Zero
				break
			}
			balance = balance.Sub(amount)
			continue
		}

		q := e.quoter.QuoteExactOutput(ctx, settlement, a.Asset, amount)
		if !q.Found() {
			return nil, fmt.Errorf("%w: buy %s %s", ErrNoRoute, amount, a.Asset)
		}
		if balance.GreaterThanOrEqual(q.Amount) {
			spent, err := e.venue.ExecuteExactOutput(ctx, ExactOutputParams{
				Path:            q.Path,
				Payer:           fund.Address,
				Recipient:       fund.Address,
				AmountOut:       amount,
				AmountInMaximum: balance,
			})
			if err != nil {
				return nil, fmt.Errorf("buy %s: %w", a.Asset, err)
			}
			balance = balance.Sub(spent)
			t := Trade{Phase: PhaseBuy, AssetIn: settlement, AssetOut: a.Asset, AmountIn: spent, AmountOut: amount, Path: q.Path}
			trades = append(trades, t)
			e.traded(ctx, fund, t)
			continue
		}

		if balance.IsPositive() {
			t, err := e.swapExactInput(ctx, fund, PhaseBuy, settlement, a.Asset, balance)
			if err != nil {
				return nil, err
			}
			if t != nil {
				trades = append(trades, *t)
				balance = decimal.Zero
			}
		}
		break
	}

	if balance.IsPositive() {
		budget := balance
		for _, c := range fund.Constituents {
			if budget.IsZero() {
				break
			}
			alloc := MinDecimal(PPMOf(balance, c.Weight), budget)
			if !alloc.IsPositive() {
				continue
			}
			if c.Asset != settlement {
				t, err := e.swapExactInput(ctx, fund, PhaseRedistribute, settlement, c.Asset, alloc)
				if err != nil {
					return nil, err
				}
				if t == nil {
					continue
				}
				trades = append(trades, *t)
			}
			budget = budget.Sub(alloc)
		}
	}

	after, err := e.accounting.Reserves(ctx, fund)
	if err != nil {
		return nil, err
	}
	fund.MarkRebalanced(now)

	return &RebalanceRecord{
		RecordID:   newRecordID("rbl"),
		FundID:     fund.FundID,
		Before:     before,
		After:      pairAmounts(fund, after),
		Trades:     trades,
		ValueTotal: snap.Total,
		ExecutedAt: now,
	}, nil
}

// swapExactInput 最优路径精确输入兑换；产出为零时返回 nil, nil
func (e *RebalanceEngine) swapExactInput(ctx context.Context, fund *Fund, phase, tokenIn, tokenOut string, amountIn decimal.Decimal) (*Trade, error) {
	q := e.quoter.QuoteExactInput(ctx, tokenIn, tokenOut, amountIn)
	if !q.Found() {
		return nil, fmt.Errorf("%w: %s %s %s -> %s", ErrNoRoute, phase, amountIn, tokenIn, tokenOut)
	}
	if !q.Amount.IsPositive() {
		// 不足一个最小单位的零头，不成交
		return nil, nil
	}
	out, err := e.venue.ExecuteExactInput(ctx, ExactInputParams{
		Path:             q.Path,
		Payer:            fund.Address,
		Recipient:        fund.Address,
		AmountIn:         amountIn,
		AmountOutMinimum: q.Amount,
	})
	if err != nil {
		return nil, fmt.Errorf("%s %s -> %s: %w", phase, tokenIn, tokenOut, err)
	}
	t := Trade{Phase: phase, AssetIn: tokenIn, AssetOut: tokenOut, AmountIn: amountIn, AmountOut: out, Path: q.Path}
	e.traded(ctx, fund, t)
	return &t, nil
}

func (e *RebalanceEngine) traded(ctx context.Context, fund *Fund, t Trade) {
	if e.onTrade != nil {
		e.onTrade(ctx, fund, t)
	}
}
