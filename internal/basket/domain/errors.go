package domain

import "errors"

// 前置条件错误，操作失败时不产生任何状态变化
var (
	ErrFundNotFound        = errors.New("fund not found")
	ErrFundExists          = errors.New("fund already exists")
	ErrSymbolInUse         = errors.New("share symbol already in use")
	ErrAddressInUse        = errors.New("custody address already in use")
	ErrInvalidFund         = errors.New("invalid fund configuration")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrBelowMinimumMint    = errors.New("mint amount below minimum")
	ErrAssetNotFound       = errors.New("asset not found")
	ErrAssetExists         = errors.New("asset already exists")
	ErrAssetInUse          = errors.New("asset still has weight or reserve")
	ErrInvalidWeight       = errors.New("invalid weight")
	ErrInvalidFee          = errors.New("invalid fee")
	ErrInvalidTotalWeights = errors.New("total weights must equal 1000000")
	ErrNotRebalanceTime    = errors.New("rebalance interval has not elapsed")
	ErrUnauthorized        = errors.New("caller is not authorized")
	ErrInvalidPath         = errors.New("invalid swap path")
	ErrPathCountMismatch   = errors.New("path count does not match constituent count")
	ErrMissingPriceFeed    = errors.New("constituent has no price feed")
	ErrZeroSupply          = errors.New("fund has no shares outstanding")
	ErrExceedsSupply       = errors.New("burn amount exceeds total supply")
)

// 执行期错误，所在的原子单元整体回滚
var (
	ErrOverSlippage          = errors.New("slippage limit exceeded")
	ErrNoRoute               = errors.New("no route found")
	ErrInvalidPrice          = errors.New("invalid oracle price")
	ErrPriceUnavailable      = errors.New("oracle price unavailable")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrPoolNotFound          = errors.New("pool not found")
	ErrInsufficientLiquidity = errors.New("insufficient pool liquidity")
)
