// Package ledger 份额与资产账本实现：内存版用于测试与模拟盘，GORM 版持久化到数据库
package ledger

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/basketfund/internal/basket/domain"
)

type allowanceKey struct {
	token, owner, spender string
}

type memoryState struct {
	balances   map[string]map[string]decimal.Decimal
	supplies   map[string]decimal.Decimal
	allowances map[allowanceKey]decimal.Decimal
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		balances:   make(map[string]map[string]decimal.Decimal, len(s.balances)),
		supplies:   maps.Clone(s.supplies),
		allowances: maps.Clone(s.allowances),
	}
	for token, accounts := range s.balances {
		out.balances[token] = maps.Clone(accounts)
	}
	return out
}

type memoryTxKey struct{}

// Memory 内存账本，同时实现 ShareLedger、AssetLedger 与 UnitOfWork。
// 原子单元之间互斥执行，失败时恢复进入前的快照。
type Memory struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state memoryState
}

// NewMemory 创建内存账本
func NewMemory() *Memory {
	return &Memory{state: memoryState{
		balances:   make(map[string]map[string]decimal.Decimal),
		supplies:   make(map[string]decimal.Decimal),
		allowances: make(map[allowanceKey]decimal.Decimal),
	}}
}

// Atomic 实现 domain.UnitOfWork，嵌套调用并入外层单元
func (m *Memory) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memoryTxKey{}) == m {
		return fn(ctx)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.RLock()
	snapshot := m.state.clone()
	m.mu.RUnlock()

	if err := fn(context.WithValue(ctx, memoryTxKey{}, m)); err != nil {
		m.mu.Lock()
		m.state = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

// BalanceOf 查询余额
func (m *Memory) BalanceOf(_ context.Context, token, account string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balanceLocked(token, account), nil
}

// TotalSupply 查询总量
func (m *Memory) TotalSupply(_ context.Context, token string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.state.supplies[token]; ok {
		return s, nil
	}
	return decimal.Zero, nil
}

// Mint 增发到 account
func (m *Memory) Mint(_ context.Context, token, account string, amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(token, account, m.balanceLocked(token, account).Add(amount))
	m.state.supplies[token] = m.supplyLocked(token).Add(amount)
	return nil
}

// Burn 从 account 销毁
func (m *Memory) Burn(_ context.Context, token, account string, amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bal := m.balanceLocked(token, account)
	if bal.LessThan(amount) {
		return insufficient(token, account, bal, amount)
	}
	m.setLocked(token, account, bal.Sub(amount))
	m.state.supplies[token] = m.supplyLocked(token).Sub(amount)
	return nil
}

// Transfer 划转
func (m *Memory) Transfer(_ context.Context, token, from, to string, amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transferLocked(token, from, to, amount)
}

// TransferFrom 在授权额度内代为划转
func (m *Memory) TransferFrom(_ context.Context, token, spender, owner, to string, amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := allowanceKey{token: token, owner: owner, spender: spender}
	allowed := m.state.allowances[key]
	if allowed.LessThan(amount) {
		return fmt.Errorf("%w: %s %s -> %s has %s, need %s", domain.ErrInsufficientAllowance, token, owner, spender, allowed, amount)
	}
	if err := m.transferLocked(token, owner, to, amount); err != nil {
		return err
	}
	m.state.allowances[key] = allowed.Sub(amount)
	return nil
}

// Approve 设置授权额度
func (m *Memory) Approve(_ context.Context, token, owner, spender string, amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.allowances[allowanceKey{token: token, owner: owner, spender: spender}] = amount
	return nil
}

// Allowance 查询授权额度
func (m *Memory) Allowance(_ context.Context, token, owner, spender string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if a, ok := m.state.allowances[allowanceKey{token: token, owner: owner, spender: spender}]; ok {
		return a, nil
	}
	return decimal.Zero, nil
}

func (m *Memory) transferLocked(token, from, to string, amount decimal.Decimal) error {
	bal := m.balanceLocked(token, from)
	if bal.LessThan(amount) {
		return insufficient(token, from, bal, amount)
	}
	m.setLocked(token, from, bal.Sub(amount))
	m.setLocked(token, to, m.balanceLocked(token, to).Add(amount))
	return nil
}

func (m *Memory) balanceLocked(token, account string) decimal.Decimal {
	if b, ok := m.state.balances[token][account]; ok {
		return b
	}
	return decimal.Zero
}

func (m *Memory) supplyLocked(token string) decimal.Decimal {
	if s, ok := m.state.supplies[token]; ok {
		return s
	}
	return decimal.Zero
}

func (m *Memory) setLocked(token, account string, amount decimal.Decimal) {
	accounts, ok := m.state.balances[token]
	if !ok {
		accounts = make(map[string]decimal.Decimal)
		m.state.balances[token] = accounts
	}
	accounts[account] = amount
}

func checkAmount(amount decimal.Decimal) error {
	if !amount.IsInteger() || amount.IsNegative() {
		return fmt.Errorf("%w: ledger amount %s", domain.ErrInvalidAmount, amount)
	}
	return nil
}

func insufficient(token, account string, have, need decimal.Decimal) error {
	return fmt.Errorf("%w: %s of %s has %s, need %s", domain.ErrInsufficientBalance, token, account, have, need)
}
