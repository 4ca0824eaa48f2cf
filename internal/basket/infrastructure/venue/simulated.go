// Package venue 兑换场所适配器
package venue

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/basketfund/internal/basket/domain"
)

// routerAccount 多跳兑换中间资产的暂存账户
const routerAccount = "venue:router"

var ppm = decimal.NewFromInt(domain.PPM)

type poolKey struct {
	token0, token1 string
	fee            uint32
}

func newPoolKey(a, b string, fee uint32) poolKey {
	if a > b {
		a, b = b, a
	}
	return poolKey{token0: a, token1: b, fee: fee}
}

// Account 池子在账本中的账户名
func (k poolKey) Account() string {
	return fmt.Sprintf("pool:%s-%s-%d", k.token0, k.token1, k.fee)
}

// BalanceLocker 账本可选实现：在当前事务内加行锁读取余额
type BalanceLocker interface {
	LockBalance(ctx context.Context, token, account string) (decimal.Decimal, error)
}

// balanceReader 读取池子储备
type balanceReader func(ctx context.Context, token, account string) (decimal.Decimal, error)

// Simulated 恒定乘积池组成的模拟兑换场所。
// 池子储备即账本中池子账户的余额，兑换与调用方的其他账本操作处于同一原子单元。
// 账本实现 BalanceLocker 时，执行兑换前对储备加行锁，并发兑换同一池子按提交顺序计价；报价不加锁。
type Simulated struct {
	ledger domain.AssetLedger

	mu    sync.RWMutex
	pools map[poolKey]struct{}
}

// NewSimulated 创建模拟兑换场所
func NewSimulated(ledger domain.AssetLedger) *Simulated {
	return &Simulated{ledger: ledger, pools: make(map[poolKey]struct{})}
}

// CreatePool 注册 a/b 费率为 fee 的池子，返回池子账户
func (s *Simulated) CreatePool(a, b string, fee uint32) (string, error) {
	if a == b {
		return "", fmt.Errorf("%w: identical tokens %s", domain.ErrInvalidPath, a)
	}
	if fee >= domain.PPM {
		return "", fmt.Errorf("%w: pool fee %d", domain.ErrInvalidFee, fee)
	}
	key := newPoolKey(a, b, fee)
	s.mu.Lock()
	s.pools[key] = struct{}{}
	s.mu.Unlock()
	return key.Account(), nil
}

// AddLiquidity 由 provider 向池子注入流动性
func (s *Simulated) AddLiquidity(ctx context.Context, a, b string, fee uint32, provider string, amountA, amountB decimal.Decimal) error {
	key := newPoolKey(a, b, fee)
	if !s.hasPool(key) {
		return fmt.Errorf("%w: %s", domain.ErrPoolNotFound, key.Account())
	}
	if err := s.ledger.Transfer(ctx, a, provider, key.Account(), amountA); err != nil {
		return err
	}
	return s.ledger.Transfer(ctx, b, provider, key.Account(), amountB)
}

// Pools 已注册池子的账户列表
func (s *Simulated) Pools() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.pools))
	for k := range s.pools {
		out = append(out, k.Account())
	}
	sort.Strings(out)
	return out
}

// QuoteExactInput 按 输入 → 输出 路径逐跳计算产出
func (s *Simulated) QuoteExactInput(ctx context.Context, path domain.SwapPath, amountIn decimal.Decimal) (decimal.Decimal, error) {
	legs, err := s.planExactInput(ctx, s.ledger.BalanceOf, path, amountIn)
	if err != nil {
		return decimal.Zero, err
	}
	return legs[len(legs)-1].amountOut, nil
}

// QuoteExactOutput 按 输出 → 输入 路径逐跳倒推所需投入
func (s *Simulated) QuoteExactOutput(ctx context.Context, path domain.SwapPath, amountOut decimal.Decimal) (decimal.Decimal, error) {
	legs, err := s.planExactOutput(ctx, s.ledger.BalanceOf, path, amountOut)
	if err != nil {
		return decimal.Zero, err
	}
	return legs[0].amountIn, nil
}

// ExecuteExactInput 执行精确输入兑换
func (s *Simulated) ExecuteExactInput(ctx context.Context, p domain.ExactInputParams) (decimal.Decimal, error) {
	legs, err := s.planExactInput(ctx, s.lockingReader(), p.Path, p.AmountIn)
	if err != nil {
		return decimal.Zero, err
	}
	out := legs[len(legs)-1].amountOut
	if out.LessThan(p.AmountOutMinimum) {
		return decimal.Zero, fmt.Errorf("%w: out %s < minimum %s", domain.ErrOverSlippage, out, p.AmountOutMinimum)
	}
	if err := s.settle(ctx, legs, p.Payer, p.Recipient); err != nil {
		return decimal.Zero, err
	}
	return out, nil
}

// ExecuteExactOutput 执行精确输出兑换
func (s *Simulated) ExecuteExactOutput(ctx context.Context, p domain.ExactOutputParams) (decimal.Decimal, error) {
	legs, err := s.planExactOutput(ctx, s.lockingReader(), p.Path, p.AmountOut)
	if err != nil {
		return decimal.Zero, err
	}
	in := legs[0].amountIn
	if in.GreaterThan(p.AmountInMaximum) {
		return decimal.Zero, fmt.Errorf("%w: in %s > maximum %s", domain.ErrOverSlippage, in, p.AmountInMaximum)
	}
	if err := s.settle(ctx, legs, p.Payer, p.Recipient); err != nil {
		return decimal.Zero, err
	}
	return in, nil
}

// leg 按实际兑换方向排列的一跳
type leg struct {
	pool      poolKey
	tokenIn   string
	tokenOut  string
	amountIn  decimal.Decimal
	amountOut decimal.Decimal
}

func (s *Simulated) lockingReader() balanceReader {
	if l, ok := s.ledger.(BalanceLocker); ok {
		return l.LockBalance
	}
	return s.ledger.BalanceOf
}

func (s *Simulated) planExactInput(ctx context.Context, read balanceReader, path domain.SwapPath, amountIn decimal.Decimal) ([]leg, error) {
	if len(path) == 0 || !path.Contiguous() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidPath, path)
	}
	legs := make([]leg, 0, len(path))
	amount := amountIn
	for _, h := range path {
		key, err := s.pool(h)
		if err != nil {
			return nil, err
		}
		rIn, rOut, err := reserves(ctx, read, key, h.TokenIn, h.TokenOut)
		if err != nil {
			return nil, err
		}
		out := getAmountOut(amount, rIn, rOut, h.Fee)
		legs = append(legs, leg{pool: key, tokenIn: h.TokenIn, tokenOut: h.TokenOut, amountIn: amount, amountOut: out})
		amount = out
	}
	return legs, nil
}

// planExactOutput 路径按 输出 → 输入 排列，返回的 legs 按实际兑换顺序排列
func (s *Simulated) planExactOutput(ctx context.Context, read balanceReader, path domain.SwapPath, amountOut decimal.Decimal) ([]leg, error) {
	if len(path) == 0 || !path.Contiguous() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidPath, path)
	}
	legs := make([]leg, len(path))
	amount := amountOut
	for i, h := range path {
		key, err := s.pool(h)
		if err != nil {
			return nil, err
		}
		// 该跳实际方向为 h.TokenOut → h.TokenIn
		rIn, rOut, err := reserves(ctx, read, key, h.TokenOut, h.TokenIn)
		if err != nil {
			return nil, err
		}
		in, err := getAmountIn(amount, rIn, rOut, h.Fee)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key.Account(), err)
		}
		legs[len(path)-1-i] = leg{pool: key, tokenIn: h.TokenOut, tokenOut: h.TokenIn, amountIn: in, amountOut: amount}
		amount = in
	}
	return legs, nil
}

// settle 按 legs 顺序在账本上完成划转，中间资产经 routerAccount 中转
func (s *Simulated) settle(ctx context.Context, legs []leg, payer, recipient string) error {
	from := payer
	for i, l := range legs {
		to := routerAccount
		if i == len(legs)-1 {
			to = recipient
		}
		account := l.pool.Account()
		if err := s.ledger.Transfer(ctx, l.tokenIn, from, account, l.amountIn); err != nil {
			return err
		}
		if err := s.ledger.Transfer(ctx, l.tokenOut, account, to, l.amountOut); err != nil {
			return err
		}
		from = to
	}
	return nil
}

func (s *Simulated) pool(h domain.Hop) (poolKey, error) {
	if h.TokenIn == h.TokenOut {
		return poolKey{}, fmt.Errorf("%w: identical tokens %s", domain.ErrPoolNotFound, h.TokenIn)
	}
	key := newPoolKey(h.TokenIn, h.TokenOut, h.Fee)
	if !s.hasPool(key) {
		return poolKey{}, fmt.Errorf("%w: %s", domain.ErrPoolNotFound, key.Account())
	}
	return key, nil
}

func (s *Simulated) hasPool(key poolKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pools[key]
	return ok
}

func reserves(ctx context.Context, read balanceReader, key poolKey, tokenIn, tokenOut string) (decimal.Decimal, decimal.Decimal, error) {
	rIn, err := read(ctx, tokenIn, key.Account())
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	rOut, err := read(ctx, tokenOut, key.Account())
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if !rIn.IsPositive() || !rOut.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s", domain.ErrInsufficientLiquidity, key.Account())
	}
	return rIn, rOut, nil
}

// getAmountOut out = rOut*inAfterFee/(rIn+inAfterFee)，向下取整
func getAmountOut(amountIn, rIn, rOut decimal.Decimal, fee uint32) decimal.Decimal {
	inAfterFee := domain.MulDivDown(amountIn, ppm.Sub(decimal.NewFromInt(int64(fee))), ppm)
	return domain.MulDivDown(rOut, inAfterFee, rIn.Add(inAfterFee))
}

// getAmountIn 产出 amountOut 所需的投入（含手续费），向上取整
func getAmountIn(amountOut, rIn, rOut decimal.Decimal, fee uint32) (decimal.Decimal, error) {
	if amountOut.GreaterThanOrEqual(rOut) {
		return decimal.Zero, fmt.Errorf("%w: want %s of reserve %s", domain.ErrInsufficientLiquidity, amountOut, rOut)
	}
	net := domain.MulDivUp(rIn, amountOut, rOut.Sub(amountOut))
	return domain.MulDivUp(net, ppm, ppm.Sub(decimal.NewFromInt(int64(fee)))), nil
}
