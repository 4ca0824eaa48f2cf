package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// ShareLedger 基金份额账本
type ShareLedger interface {
	Mint(ctx context.Context, token, account string, amount decimal.Decimal) error
	Burn(ctx context.Context, token, account string, amount decimal.Decimal) error
	TotalSupply(ctx context.Context, token string) (decimal.Decimal, error)
	BalanceOf(ctx context.Context, token, account string) (decimal.Decimal, error)
}

// AssetLedger 成分资产账本
type AssetLedger interface {
	BalanceOf(ctx context.Context, asset, holder string) (decimal.Decimal, error)
	Transfer(ctx context.Context, asset, from, to string, amount decimal.Decimal) error
	// TransferFrom 由 spender 在 owner 授权额度内代为划转
	TransferFrom(ctx context.Context, asset, spender, owner, to string, amount decimal.Decimal) error
	Approve(ctx context.Context, asset, owner, spender string, amount decimal.Decimal) error
	Allowance(ctx context.Context, asset, owner, spender string) (decimal.Decimal, error)
}

// UnitOfWork 原子执行单元，fn 返回错误时其间所有账本与仓储变更全部回滚
type UnitOfWork interface {
	Atomic(ctx context.Context, fn func(ctx context.Context) error) error
}

// PriceOracle 价格预言机，价格为计价单位下每一整单位资产的整数价格
type PriceOracle interface {
	LatestPrice(ctx context.Context, feed string) (decimal.Decimal, error)
}

// ExactInputParams 精确输入兑换参数，Path 按 输入 → 输出 排列
type ExactInputParams struct {
	Path             SwapPath
	Payer            string
	Recipient        string
	AmountIn         decimal.Decimal
	AmountOutMinimum decimal.Decimal
}

// ExactOutputParams 精确输出兑换参数，Path 按 输出 → 输入 排列
type ExactOutputParams struct {
	Path            SwapPath
	Payer           string
	Recipient       string
	AmountOut       decimal.Decimal
	AmountInMaximum decimal.Decimal
}

// SwapVenue 兑换场所。
// 执行时超出 AmountOutMinimum / AmountInMaximum 约束返回 ErrOverSlippage。
type SwapVenue interface {
	QuoteExactInput(ctx context.Context, path SwapPath, amountIn decimal.Decimal) (decimal.Decimal, error)
	QuoteExactOutput(ctx context.Context, path SwapPath, amountOut decimal.Decimal) (decimal.Decimal, error)
	ExecuteExactInput(ctx context.Context, params ExactInputParams) (decimal.Decimal, error)
	ExecuteExactOutput(ctx context.Context, params ExactOutputParams) (decimal.Decimal, error)
}

// Action 受控的管理操作
type Action string

const (
	ActionCreateFund         Action = "create_fund"
	ActionUpdateWeights      Action = "update_weights"
	ActionUpdateFees         Action = "update_fees"
	ActionSetPriceFeed       Action = "set_price_feed"
	ActionAddAsset           Action = "add_asset"
	ActionRemoveAsset        Action = "remove_asset"
	ActionSetRebalanceParams Action = "set_rebalance_params"
	ActionSetMinMintAmount   Action = "set_min_mint_amount"
	ActionSetFeeRecipient    Action = "set_fee_recipient"
)

// AccessController 权限校验，未授权返回 ErrUnauthorized
type AccessController interface {
	Authorize(ctx context.Context, fund *Fund, action Action) error
}
