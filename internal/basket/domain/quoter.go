package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// QuoteFailureHook 单个候选路径报价失败时回调
type QuoteFailureHook func(ctx context.Context, path SwapPath, err error)

// PathQuoter 在固定候选集合内寻找最优兑换路径。
// 候选为各费率档的直连路径，以及经每个中间资产、两跳费率两两组合的路径。
type PathQuoter struct {
	venue          SwapVenue
	feeTiers       []uint32
	intermediaries []string
	onFailure      QuoteFailureHook
}

// QuoterOption 报价器选项
type QuoterOption func(*PathQuoter)

// WithQuoteFailureHook 设置候选失败回调
func WithQuoteFailureHook(h QuoteFailureHook) QuoterOption {
	return func(q *PathQuoter) { q.onFailure = h }
}

// NewPathQuoter 创建路径报价器
func NewPathQuoter(venue SwapVenue, feeTiers []uint32, intermediaries []string, opts ...QuoterOption) *PathQuoter {
	q := &PathQuoter{
		venue:          venue,
		feeTiers:       append([]uint32(nil), feeTiers...),
		intermediaries: append([]string(nil), intermediaries...),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// FeeTiers 候选费率档
func (q *PathQuoter) FeeTiers() []uint32 {
	return append([]uint32(nil), q.feeTiers...)
}

// EnumeratePaths 按固定顺序列出 a 到 b 的全部候选路径：
// 先是各费率档直连，再按中间资产逐个列出 入口费率 × 出口费率 的两跳路径。
// 中间资产与端点相同的组合不做剔除。
func (q *PathQuoter) EnumeratePaths(a, b string) []SwapPath {
	n := len(q.feeTiers)
	paths := make([]SwapPath, 0, n+len(q.intermediaries)*n*n)
	for _, fee := range q.feeTiers {
		paths = append(paths, SwapPath{{TokenIn: a, Fee: fee, TokenOut: b}})
	}
	for _, mid := range q.intermediaries {
		for _, feeIn := range q.feeTiers {
			for _, feeOut := range q.feeTiers {
				paths = append(paths, SwapPath{
					{TokenIn: a, Fee: feeIn, TokenOut: mid},
					{TokenIn: mid, Fee: feeOut, TokenOut: b},
				})
			}
		}
	}
	return paths
}

// QuoteExactOutput 获得 amountOut 个 tokenOut 所需 tokenIn 最少的路径，
// 返回路径按 输出 → 输入 排列。全部候选失败时返回零值 Quote。
func (q *PathQuoter) QuoteExactOutput(ctx context.Context, tokenIn, tokenOut string, amountOut decimal.Decimal) Quote {
	var best Quote
	for _, path := range q.EnumeratePaths(tokenOut, tokenIn) {
		amountIn, err := q.venue.QuoteExactOutput(ctx, path, amountOut)
		if err != nil {
			q.failed(ctx, path, err)
			continue
		}
		if !best.Found() || amountIn.LessThan(best.Amount) {
			best = Quote{Path: path, Amount: amountIn}
		}
	}
	return best
}

// QuoteExactInput 卖出 amountIn 个 tokenIn 得到 tokenOut 最多的路径。
// 报价成功但产出为零的候选照常参与比较；全部候选失败时返回零值 Quote。
func (q *PathQuoter) QuoteExactInput(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal) Quote {
	var best Quote
	for _, path := range q.EnumeratePaths(tokenIn, tokenOut) {
		amountOut, err := q.venue.QuoteExactInput(ctx, path, amountIn)
		if err != nil {
			q.failed(ctx, path, err)
			continue
		}
		if !best.Found() || amountOut.GreaterThan(best.Amount) {
			best = Quote{Path: path, Amount: amountOut}
		}
	}
	return best
}

// ValidatePath 校验路径从 a 出发、到达 b 且各跳首尾相接；
// a == b 时只接受唯一一跳 a → a。
func (q *PathQuoter) ValidatePath(a, b string, path SwapPath) bool {
	if len(path) == 0 || path.First() != a {
		return false
	}
	if a == b {
		return path.IsSelf()
	}
	return path.Contiguous() && path.Last() == b
}

func (q *PathQuoter) failed(ctx context.Context, path SwapPath, err error) {
	if q.onFailure != nil {
		q.onFailure(ctx, path, err)
	}
}
