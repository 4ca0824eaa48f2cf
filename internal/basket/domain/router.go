package domain

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// InvestWithSettlementRequest 以结算资产申购
type InvestWithSettlementRequest struct {
	Payer           string
	To              string
	MintAmount      decimal.Decimal
	MaxSettlementIn decimal.Decimal
	// Paths 与成分一一对应，按 成分 → 结算资产 排列（精确输出编码）
	Paths []SwapPath
}

// RedeemToSettlementRequest 赎回为结算资产
type RedeemToSettlementRequest struct {
	Owner            string
	To               string
	BurnAmount       decimal.Decimal
	MinSettlementOut decimal.Decimal
	// Paths 与成分一一对应，按 成分 → 结算资产 排列
	Paths []SwapPath
}

// SettlementQuote 结算资产路由报价
type SettlementQuote struct {
	Amounts          AssetAmounts      `json:"amounts"`
	Paths            []SwapPath        `json:"paths"`
	PerAsset         []decimal.Decimal `json:"per_asset"`
	SettlementAmount decimal.Decimal   `json:"settlement_amount"`
}

// SwapExecutionRouter 在结算资产与一篮子成分之间兑换，使用户只需持有结算资产
type SwapExecutionRouter struct {
	accounting *AccountingEngine
	quoter     *PathQuoter
	assets     AssetLedger
	venue      SwapVenue
}

// NewSwapExecutionRouter 创建路由
func NewSwapExecutionRouter(accounting *AccountingEngine, quoter *PathQuoter, assets AssetLedger, venue SwapVenue) *SwapExecutionRouter {
	return &SwapExecutionRouter{accounting: accounting, quoter: quoter, assets: assets, venue: venue}
}

// InvestWithSettlement 从 payer 划入不超过 MaxSettlementIn 的结算资产，
// 兑换出申购所需的各成分后铸造份额，未用完的结算资产退回 payer。
func (r *SwapExecutionRouter) InvestWithSettlement(ctx context.Context, fund *Fund, req InvestWithSettlementRequest) (*InvestmentRecord, error) {
	if len(req.Paths) != len(fund.Constituents) {
		return nil, fmt.Errorf("%w: %d paths for %d constituents", ErrPathCountMismatch, len(req.Paths), len(fund.Constituents))
	}
	if err := requireNonNegative("max settlement in", req.MaxSettlementIn); err != nil {
		return nil, err
	}
	amounts, err := r.accounting.InvestQuote(ctx, fund, req.MintAmount)
	if err != nil {
		return nil, err
	}
	settlement := fund.SettlementAsset
	for i, amt := range amounts {
		if !amt.IsPositive() {
			continue
		}
		asset := fund.Constituents[i].Asset
		if !r.quoter.ValidatePath(asset, settlement, req.Paths[i]) {
			return nil, fmt.Errorf("%w: constituent %d (%s): %s", ErrInvalidPath, i, asset, req.Paths[i])
		}
	}

	staging := fund.StagingAccount()
	if req.MaxSettlementIn.IsPositive() {
		if err := r.assets.TransferFrom(ctx, settlement, fund.Address, req.Payer, staging, req.MaxSettlementIn); err != nil {
			return nil, fmt.Errorf("collect settlement: %w", err)
		}
	}

	remaining := req.MaxSettlementIn
	for i, amt := range amounts {
		if !amt.IsPositive() {
			continue
		}
		asset := fund.Constituents[i].Asset
		if asset == settlement {
			if remaining.LessThan(amt) {
				return nil, fmt.Errorf("%w: need %s %s, %s left", ErrOverSlippage, amt, asset, remaining)
			}
			remaining = remaining.Sub(amt)
			continue
		}
		spent, err := r.venue.ExecuteExactOutput(ctx, ExactOutputParams{
			Path:            req.Paths[i],
			Payer:           staging,
			Recipient:       staging,
			AmountOut:       amt,
			AmountInMaximum: remaining,
		})
		if err != nil {
			return nil, fmt.Errorf("buy %s: %w", asset, err)
		}
		remaining = remaining.Sub(spent)
	}

	// 托管余额与份额总量在兑换期间不变，铸造时的报价与上面一致
	record, err := r.accounting.Invest(ctx, fund, req.To, req.MintAmount)
	if err != nil {
		return nil, err
	}
	for _, aa := range record.Amounts {
		if !aa.Amount.IsPositive() {
			continue
		}
		if err := r.assets.Transfer(ctx, aa.Asset, staging, fund.Address, aa.Amount); err != nil {
			return nil, fmt.Errorf("deposit %s: %w", aa.Asset, err)
		}
	}
	if remaining.IsPositive() {
		if err := r.assets.Transfer(ctx, settlement, staging, req.Payer, remaining); err != nil {
			return nil, fmt.Errorf("refund settlement: %w", err)
		}
	}

	record.Payer = req.Payer
	record.SettlementIn = req.MaxSettlementIn.Sub(remaining)
	return record, nil
}

// RedeemToSettlement 赎回到托管账户，把各成分兑换成结算资产后支付给 To；
// 兑换所得低于 MinSettlementOut 时整体失败。
func (r *SwapExecutionRouter) RedeemToSettlement(ctx context.Context, fund *Fund, req RedeemToSettlementRequest) (*RedemptionRecord, error) {
	if len(req.Paths) != len(fund.Constituents) {
		return nil, fmt.Errorf("%w: %d paths for %d constituents", ErrPathCountMismatch, len(req.Paths), len(fund.Constituents))
	}
	if err := requireNonNegative("min settlement out", req.MinSettlementOut); err != nil {
		return nil, err
	}

	record, err := r.accounting.Redeem(ctx, fund, req.Owner, fund.Address, req.BurnAmount)
	if err != nil {
		return nil, err
	}

	settlement := fund.SettlementAsset
	total := decimal.Zero
	for i, aa := range record.Amounts {
		if !aa.Amount.IsPositive() {
			continue
		}
		if !r.quoter.ValidatePath(aa.Asset, settlement, req.Paths[i]) {
			return nil, fmt.Errorf("%w: constituent %d (%s): %s", ErrInvalidPath, i, aa.Asset, req.Paths[i])
		}
		if aa.Asset == settlement {
			total = total.Add(aa.Amount)
			continue
		}
		out, err := r.venue.ExecuteExactInput(ctx, ExactInputParams{
			Path:             req.Paths[i],
			Payer:            fund.Address,
			Recipient:        fund.Address,
			AmountIn:         aa.Amount,
			AmountOutMinimum: decimal.Zero,
		})
		if err != nil {
			return nil, fmt.Errorf("sell %s: %w", aa.Asset, err)
		}
		total = total.Add(out)
	}

	if total.LessThan(req.MinSettlementOut) {
		return nil, fmt.Errorf("%w: got %s, want at least %s", ErrOverSlippage, total, req.MinSettlementOut)
	}
	if total.IsPositive() {
		if err := r.assets.Transfer(ctx, settlement, fund.Address, req.To, total); err != nil {
			return nil, fmt.Errorf("pay settlement: %w", err)
		}
	}

	record.Recipient = req.To
	record.SettlementOut = total
	return record, nil
}

// QuoteInvestWithSettlement 为申购 mintAmount 份额寻找各成分的最优精确输出路径
func (r *SwapExecutionRouter) QuoteInvestWithSettlement(ctx context.Context, fund *Fund, mintAmount decimal.Decimal) (*SettlementQuote, error) {
	amounts, err := r.accounting.InvestQuote(ctx, fund, mintAmount)
	if err != nil {
		return nil, err
	}
	return r.quoteLegs(fund, amounts, func(asset string, amt decimal.Decimal) Quote {
		return r.quoter.QuoteExactOutput(ctx, fund.SettlementAsset, asset, amt)
	})
}

// QuoteRedeemToSettlement 为赎回 burnAmount 份额寻找各成分的最优精确输入路径
func (r *SwapExecutionRouter) QuoteRedeemToSettlement(ctx context.Context, fund *Fund, burnAmount decimal.Decimal) (*SettlementQuote, error) {
	amounts, err := r.accounting.RedeemQuote(ctx, fund, burnAmount)
	if err != nil {
		return nil, err
	}
	return r.quoteLegs(fund, amounts, func(asset string, amt decimal.Decimal) Quote {
		return r.quoter.QuoteExactInput(ctx, asset, fund.SettlementAsset, amt)
	})
}

func (r *SwapExecutionRouter) quoteLegs(fund *Fund, amounts []decimal.Decimal, quote func(asset string, amt decimal.Decimal) Quote) (*SettlementQuote, error) {
	settlement := fund.SettlementAsset
	out := &SettlementQuote{
		Amounts:          pairAmounts(fund, amounts),
		Paths:            make([]SwapPath, len(amounts)),
		PerAsset:         make([]decimal.Decimal, len(amounts)),
		SettlementAmount: decimal.Zero,
	}
	for i, amt := range amounts {
		asset := fund.Constituents[i].Asset
		if asset == settlement || !amt.IsPositive() {
			out.Paths[i] = SelfPath(settlement)
			out.PerAsset[i] = amt
			if asset != settlement {
				out.PerAsset[i] = decimal.Zero
			}
			out.SettlementAmount = out.SettlementAmount.Add(out.PerAsset[i])
			continue
		}
		q := quote(asset, amt)
		if !q.Found() {
			return nil, fmt.Errorf("%w: %s %s <-> %s", ErrNoRoute, amt, asset, settlement)
		}
		out.Paths[i] = q.Path
		out.PerAsset[i] = q.Amount
		out.SettlementAmount = out.SettlementAmount.Add(q.Amount)
	}
	return out, nil
}
