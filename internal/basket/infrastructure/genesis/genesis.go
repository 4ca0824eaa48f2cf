// Package genesis 从 YAML 定义初始化基金、兑换池与账户余额，重复执行不会重复创建或注资
package genesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/basketfund/internal/basket/domain"
	"gopkg.in/yaml.v3"
)

// File 初始定义文件
type File struct {
	Funds    []FundSpec    `yaml:"funds"`
	Pools    []PoolSpec    `yaml:"pools"`
	Balances []BalanceSpec `yaml:"balances"`
}

// FundSpec 基金定义，金额均为整数字符串
type FundSpec struct {
	FundID            string            `yaml:"fund_id"`
	Name              string            `yaml:"name"`
	Symbol            string            `yaml:"symbol"`
	SettlementAsset   string            `yaml:"settlement_asset"`
	FeeRecipient      string            `yaml:"fee_recipient"`
	InvestFee         uint32            `yaml:"invest_fee"`
	RedeemFee         uint32            `yaml:"redeem_fee"`
	MinMintAmount     string            `yaml:"min_mint_amount"`
	RebalanceInterval string            `yaml:"rebalance_interval"`
	RebalanceDeviance uint32            `yaml:"rebalance_deviance"`
	Constituents      []ConstituentSpec `yaml:"constituents"`
}

// ConstituentSpec 成分资产定义
type ConstituentSpec struct {
	Asset        string `yaml:"asset"`
	Decimals     int32  `yaml:"decimals"`
	SeedPerShare string `yaml:"seed_per_share"`
	Weight       uint32 `yaml:"weight"`
	PriceFeed    string `yaml:"price_feed"`
}

// PoolSpec 兑换池定义，池子为空时由 Provider 注资
type PoolSpec struct {
	TokenA   string `yaml:"token_a"`
	TokenB   string `yaml:"token_b"`
	Fee      uint32 `yaml:"fee"`
	Provider string `yaml:"provider"`
	AmountA  string `yaml:"amount_a"`
	AmountB  string `yaml:"amount_b"`
}

// BalanceSpec 账户初始余额，账户余额为零时铸造
type BalanceSpec struct {
	Token   string `yaml:"token"`
	Account string `yaml:"account"`
	Amount  string `yaml:"amount"`
}

// PoolRegistry 可注册池子的兑换场所
type PoolRegistry interface {
	CreatePool(a, b string, fee uint32) (string, error)
	AddLiquidity(ctx context.Context, a, b string, fee uint32, provider string, amountA, amountB decimal.Decimal) error
}

// Load 读取并解析定义文件
func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis file: %w", err)
	}
	return Parse(raw)
}

// Parse 解析 YAML 定义
func Parse(raw []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse genesis: %w", err)
	}
	return &f, nil
}

// Loader 将定义写入仓储、账本与兑换场所
type Loader struct {
	funds  domain.FundRepository
	uow    domain.UnitOfWork
	ledger domain.ShareLedger
	venue  PoolRegistry
	logger *slog.Logger
}

// NewLoader 创建初始化器
func NewLoader(funds domain.FundRepository, uow domain.UnitOfWork, ledger domain.ShareLedger, venue PoolRegistry, logger *slog.Logger) *Loader {
	return &Loader{funds: funds, uow: uow, ledger: ledger, venue: venue, logger: logger.With("module", "genesis")}
}

// Apply 在一个原子单元内应用定义
func (l *Loader) Apply(ctx context.Context, f *File) error {
	funds := make([]*domain.Fund, 0, len(f.Funds))
	for _, spec := range f.Funds {
		fund, err := spec.build()
		if err != nil {
			return fmt.Errorf("fund %s: %w", spec.FundID, err)
		}
		funds = append(funds, fund)
	}
	// 池子注册在内存中，先于账本变更完成
	for _, p := range f.Pools {
		if _, err := l.venue.CreatePool(p.TokenA, p.TokenB, p.Fee); err != nil {
			return fmt.Errorf("pool %s/%s: %w", p.TokenA, p.TokenB, err)
		}
	}

	return l.uow.Atomic(ctx, func(ctx context.Context) error {
		for _, fund := range funds {
			if err := l.createFund(ctx, fund); err != nil {
				return err
			}
		}
		for _, p := range f.Pools {
			if err := l.fundPool(ctx, p); err != nil {
				return err
			}
		}
		for _, b := range f.Balances {
			if err := l.seedBalance(ctx, b); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *Loader) createFund(ctx context.Context, fund *domain.Fund) error {
	_, err := l.funds.GetByFundID(ctx, fund.FundID)
	if err == nil {
		l.logger.DebugContext(ctx, "fund already exists", "fund_id", fund.FundID)
		return nil
	}
	if !errors.Is(err, domain.ErrFundNotFound) {
		return err
	}
	if err := l.funds.Create(ctx, fund); err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "fund created", "fund_id", fund.FundID, "assets", fund.Assets())
	return nil
}

func (l *Loader) fundPool(ctx context.Context, p PoolSpec) error {
	if p.Provider == "" {
		return nil
	}
	amountA, err := parseAmount("amount_a", p.AmountA)
	if err != nil {
		return err
	}
	amountB, err := parseAmount("amount_b", p.AmountB)
	if err != nil {
		return err
	}
	account, err := l.venue.CreatePool(p.TokenA, p.TokenB, p.Fee)
	if err != nil {
		return err
	}
	reserve, err := l.ledger.BalanceOf(ctx, p.TokenA, account)
	if err != nil {
		return err
	}
	if reserve.IsPositive() {
		return nil
	}
	if err := l.ledger.Mint(ctx, p.TokenA, p.Provider, amountA); err != nil {
		return err
	}
	if err := l.ledger.Mint(ctx, p.TokenB, p.Provider, amountB); err != nil {
		return err
	}
	if err := l.venue.AddLiquidity(ctx, p.TokenA, p.TokenB, p.Fee, p.Provider, amountA, amountB); err != nil {
		return err
	}
	l.logger.InfoContext(ctx, "pool funded", "pool", account, "amount_a", amountA, "amount_b", amountB)
	return nil
}

func (l *Loader) seedBalance(ctx context.Context, b BalanceSpec) error {
	amount, err := parseAmount("balance", b.Amount)
	if err != nil {
		return err
	}
	have, err := l.ledger.BalanceOf(ctx, b.Token, b.Account)
	if err != nil {
		return err
	}
	if !have.IsZero() {
		return nil
	}
	return l.ledger.Mint(ctx, b.Token, b.Account, amount)
}

func (s FundSpec) build() (*domain.Fund, error) {
	constituents := make([]domain.Constituent, 0, len(s.Constituents))
	for _, c := range s.Constituents {
		seed, err := parseAmount("seed_per_share", c.SeedPerShare)
		if err != nil {
			return nil, err
		}
		constituents = append(constituents, domain.Constituent{
			Asset:        c.Asset,
			Decimals:     c.Decimals,
			SeedPerShare: seed,
			Weight:       c.Weight,
			PriceFeed:    c.PriceFeed,
		})
	}
	fund, err := domain.NewFund(s.FundID, s.Name, s.Symbol, domain.FundAddress(s.FundID), s.SettlementAsset, s.FeeRecipient, constituents)
	if err != nil {
		return nil, err
	}
	if err := fund.SetFees(s.InvestFee, s.RedeemFee); err != nil {
		return nil, err
	}
	if s.MinMintAmount != "" {
		minMint, err := parseAmount("min_mint_amount", s.MinMintAmount)
		if err != nil {
			return nil, err
		}
		if err := fund.SetMinMintAmount(minMint); err != nil {
			return nil, err
		}
	}
	var interval time.Duration
	if s.RebalanceInterval != "" {
		if interval, err = time.ParseDuration(s.RebalanceInterval); err != nil {
			return nil, fmt.Errorf("%w: rebalance_interval %q", domain.ErrInvalidFund, s.RebalanceInterval)
		}
	}
	if err := fund.SetRebalanceParams(interval, s.RebalanceDeviance); err != nil {
		return nil, err
	}
	return fund, nil
}

func parseAmount(name, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil || v.IsNegative() || !v.IsInteger() {
		return decimal.Zero, fmt.Errorf("%w: %s %q", domain.ErrInvalidAmount, name, raw)
	}
	return v, nil
}
