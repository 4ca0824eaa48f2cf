package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Hop 一跳兑换：TokenIn 与 TokenOut 两个资产之间、费率为 Fee 的池子
type Hop struct {
	TokenIn  string `json:"token_in"`
	Fee      uint32 `json:"fee"`
	TokenOut string `json:"token_out"`
}

// SwapPath 多跳兑换路径。
// 精确输入时按 输入 → 输出 排列；精确输出时按 输出 → 输入 排列，
// 此时每一跳的 TokenIn 是该跳实际产出的资产。
type SwapPath []Hop

// NewSwapPath 构造路径，拒绝空路径与首尾不相接的跳
func NewSwapPath(hops ...Hop) (SwapPath, error) {
	path := SwapPath(hops)
	if !path.Contiguous() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
	return path, nil
}

// PathOf 依次连接资产与费率构造路径，tokens 比 fees 多一个
func PathOf(tokens []string, fees []uint32) (SwapPath, error) {
	if len(tokens) < 2 || len(fees) != len(tokens)-1 {
		return nil, fmt.Errorf("%w: %d tokens with %d fees", ErrInvalidPath, len(tokens), len(fees))
	}
	hops := make([]Hop, 0, len(fees))
	for i, fee := range fees {
		hops = append(hops, Hop{TokenIn: tokens[i], Fee: fee, TokenOut: tokens[i+1]})
	}
	return NewSwapPath(hops...)
}

// SelfPath 结算资产自身的单跳路径，表示无需兑换
func SelfPath(asset string) SwapPath {
	return SwapPath{{TokenIn: asset, TokenOut: asset}}
}

// First 路径起点资产
func (p SwapPath) First() string {
	if len(p) == 0 {
		return ""
	}
	return p[0].TokenIn
}

// Last 路径终点资产
func (p SwapPath) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1].TokenOut
}

// Contiguous 相邻两跳首尾相接
func (p SwapPath) Contiguous() bool {
	if len(p) == 0 {
		return false
	}
	for i := 1; i < len(p); i++ {
		if p[i-1].TokenOut != p[i].TokenIn {
			return false
		}
	}
	return true
}

// IsSelf 是否为自身单跳路径
func (p SwapPath) IsSelf() bool {
	return len(p) == 1 && p[0].TokenIn == p[0].TokenOut
}

func (p SwapPath) String() string {
	if len(p) == 0 {
		return "<empty>"
	}
	var b strings.Builder
	b.WriteString(p[0].TokenIn)
	for _, h := range p {
		fmt.Fprintf(&b, " -(%d)-> %s", h.Fee, h.TokenOut)
	}
	return b.String()
}

// Quote 路径报价结果，Path 为空表示无可用路径
type Quote struct {
	Path   SwapPath        `json:"path"`
	Amount decimal.Decimal `json:"amount"`
}

// Found 是否找到可用路径
func (q Quote) Found() bool {
	return len(q.Path) > 0
}
