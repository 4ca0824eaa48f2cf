package domain

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// AccountingEngine 份额与成分资产之间的比例换算。
// 申购按向上取整收取资产，赎回按向下取整支付资产，保证基金不会因取整亏损。
type AccountingEngine struct {
	shares ShareLedger
	assets AssetLedger
}

// NewAccountingEngine 创建记账引擎
func NewAccountingEngine(shares ShareLedger, assets AssetLedger) *AccountingEngine {
	return &AccountingEngine{shares: shares, assets: assets}
}

// Reserves 基金托管账户中各成分资产的余额，按篮子顺序
func (e *AccountingEngine) Reserves(ctx context.Context, fund *Fund) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(fund.Constituents))
	for i, c := range fund.Constituents {
		bal, err := e.assets.BalanceOf(ctx, c.Asset, fund.Address)
		if err != nil {
			return nil, fmt.Errorf("read reserve of %s: %w", c.Asset, err)
		}
		out[i] = bal
	}
	return out, nil
}

// TotalSupply 基金份额总量
func (e *AccountingEngine) TotalSupply(ctx context.Context, fund *Fund) (decimal.Decimal, error) {
	return e.shares.TotalSupply(ctx, fund.Symbol)
}

// InvestQuote 铸造 mintAmount 份额所需的各成分资产数量
func (e *AccountingEngine) InvestQuote(ctx context.Context, fund *Fund, mintAmount decimal.Decimal) ([]decimal.Decimal, error) {
	if err := RequireAmount("mint amount", mintAmount); err != nil {
		return nil, err
	}
	if mintAmount.LessThan(fund.MinMintAmount) {
		return nil, fmt.Errorf("%w: %s < %s", ErrBelowMinimumMint, mintAmount, fund.MinMintAmount)
	}
	supply, err := e.shares.TotalSupply(ctx, fund.Symbol)
	if err != nil {
		return nil, err
	}

	amounts := make([]decimal.Decimal, len(fund.Constituents))
	if supply.IsZero() {
		for i, c := range fund.Constituents {
			amounts[i] = MulDivUp(mintAmount, c.SeedPerShare, wad)
		}
		return amounts, nil
	}

	reserves, err := e.Reserves(ctx, fund)
	if err != nil {
		return nil, err
	}
	for i := range fund.Constituents {
		amounts[i] = MulDivUp(reserves[i], mintAmount, supply)
	}
	return amounts, nil
}

// Invest 按报价铸造份额：费用份额归费用账户，其余归 to。
// 报价中的资产由调用方按返回的数量划入托管账户。
func (e *AccountingEngine) Invest(ctx context.Context, fund *Fund, to string, mintAmount decimal.Decimal) (*InvestmentRecord, error) {
	amounts, err := e.InvestQuote(ctx, fund, mintAmount)
	if err != nil {
		return nil, err
	}

	fee := PPMOf(mintAmount, fund.InvestFee)
	if fee.IsPositive() {
		if err := e.shares.Mint(ctx, fund.Symbol, fund.FeeRecipient, fee); err != nil {
			return nil, fmt.Errorf("mint fee shares: %w", err)
		}
	}
	if err := e.shares.Mint(ctx, fund.Symbol, to, mintAmount.Sub(fee)); err != nil {
		return nil, fmt.Errorf("mint shares: %w", err)
	}

	return &InvestmentRecord{
		RecordID:     newRecordID("inv"),
		FundID:       fund.FundID,
		Recipient:    to,
		MintAmount:   mintAmount,
		Fee:          fee,
		Amounts:      pairAmounts(fund, amounts),
		SettlementIn: decimal.Zero,
	}, nil
}

// RedeemQuote 销毁 burnAmount 份额可得的各成分资产数量，基于销毁前的总量
func (e *AccountingEngine) RedeemQuote(ctx context.Context, fund *Fund, burnAmount decimal.Decimal) ([]decimal.Decimal, error) {
	if err := RequireAmount("burn amount", burnAmount); err != nil {
		return nil, err
	}
	supply, err := e.shares.TotalSupply(ctx, fund.Symbol)
	if err != nil {
		return nil, err
	}
	if supply.IsZero() {
		return nil, ErrZeroSupply
	}
	if burnAmount.GreaterThan(supply) {
		return nil, fmt.Errorf("%w: %s > %s", ErrExceedsSupply, burnAmount, supply)
	}

	net := burnAmount.Sub(PPMOf(burnAmount, fund.RedeemFee))
	reserves, err := e.Reserves(ctx, fund)
	if err != nil {
		return nil, err
	}
	amounts := make([]decimal.Decimal, len(fund.Constituents))
	for i := range fund.Constituents {
		amounts[i] = MulDivDown(reserves[i], net, supply)
	}
	return amounts, nil
}

// Redeem 销毁 owner 的份额并支付成分资产；to 为托管账户本身时资产留在托管中
func (e *AccountingEngine) Redeem(ctx context.Context, fund *Fund, owner, to string, burnAmount decimal.Decimal) (*RedemptionRecord, error) {
	amounts, err := e.RedeemQuote(ctx, fund, burnAmount)
	if err != nil {
		return nil, err
	}

	fee := PPMOf(burnAmount, fund.RedeemFee)
	if err := e.shares.Burn(ctx, fund.Symbol, owner, burnAmount); err != nil {
		return nil, fmt.Errorf("burn shares: %w", err)
	}
	if fee.IsPositive() {
		if err := e.shares.Mint(ctx, fund.Symbol, fund.FeeRecipient, fee); err != nil {
			return nil, fmt.Errorf("mint fee shares: %w", err)
		}
	}

	if to != fund.Address {
		for i, amt := range amounts {
			if !amt.IsPositive() {
				continue
			}
			asset := fund.Constituents[i].Asset
			if err := e.assets.Transfer(ctx, asset, fund.Address, to, amt); err != nil {
				return nil, fmt.Errorf("pay %s: %w", asset, err)
			}
		}
	}

	return &RedemptionRecord{
		RecordID:      newRecordID("red"),
		FundID:        fund.FundID,
		Owner:         owner,
		Recipient:     to,
		BurnAmount:    burnAmount,
		Fee:           fee,
		Amounts:       pairAmounts(fund, amounts),
		SettlementOut: decimal.Zero,
	}, nil
}

// InvestInKind 直接以成分资产申购：按报价从 payer 划转资产后铸造份额。
// 基金托管账户作为被授权方，payer 需事先授予足够额度。
func (e *AccountingEngine) InvestInKind(ctx context.Context, fund *Fund, payer, to string, mintAmount decimal.Decimal) (*InvestmentRecord, error) {
	record, err := e.Invest(ctx, fund, to, mintAmount)
	if err != nil {
		return nil, err
	}
	record.Payer = payer
	for _, aa := range record.Amounts {
		if !aa.Amount.IsPositive() {
			continue
		}
		if err := e.assets.TransferFrom(ctx, aa.Asset, fund.Address, payer, fund.Address, aa.Amount); err != nil {
			return nil, fmt.Errorf("collect %s: %w", aa.Asset, err)
		}
	}
	return record, nil
}
