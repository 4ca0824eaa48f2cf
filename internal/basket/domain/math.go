package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PPM 百万分之一计量的满值，权重、费率与偏离阈值均以此为单位
const PPM = 1_000_000

var (
	one  = decimal.NewFromInt(1)
	ppm  = decimal.NewFromInt(PPM)
	wad  = decimal.New(1, 18) // 种子份额金额的精度
	zero = decimal.Zero
)

// MulDivDown 计算 floor(a*b/den)，参数均为非负整数
func MulDivDown(a, b, den decimal.Decimal) decimal.Decimal {
	q, _ := a.Mul(b).QuoRem(den, 0)
	return q
}

// MulDivUp 计算 ceil(a*b/den)，参数均为非负整数
func MulDivUp(a, b, den decimal.Decimal) decimal.Decimal {
	q, r := a.Mul(b).QuoRem(den, 0)
	if !r.IsZero() {
		q = q.Add(one)
	}
	return q
}

// PPMOf 计算 floor(amount*rate/1e6)
func PPMOf(amount decimal.Decimal, rate uint32) decimal.Decimal {
	if rate == 0 {
		return zero
	}
	return MulDivDown(amount, decimal.NewFromInt(int64(rate)), ppm)
}

// Pow10 返回 10^exp
func Pow10(exp int32) decimal.Decimal {
	return decimal.New(1, exp)
}

// MinDecimal 返回较小值
func MinDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// RequireAmount 校验金额为正整数
func RequireAmount(name string, amount decimal.Decimal) error {
	if !amount.IsInteger() || !amount.IsPositive() {
		return fmt.Errorf("%w: %s must be a positive integer, got %s", ErrInvalidAmount, name, amount.String())
	}
	return nil
}

// requireNonNegative 校验金额为非负整数
func requireNonNegative(name string, amount decimal.Decimal) error {
	if !amount.IsInteger() || amount.IsNegative() {
		return fmt.Errorf("%w: %s must be a non-negative integer, got %s", ErrInvalidAmount, name, amount.String())
	}
	return nil
}
