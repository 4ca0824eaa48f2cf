// Package domain 篮子基金领域模型：基金聚合、记账、路径报价、再平衡与结算资产路由
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Fund 篮子基金聚合根
type Fund struct {
	gorm.Model
	FundID            string          `gorm:"column:fund_id;type:varchar(32);uniqueIndex;not null" json:"fund_id"`
	Name              string          `gorm:"column:name;type:varchar(128);not null" json:"name"`
	Symbol            string          `gorm:"column:symbol;type:varchar(32);uniqueIndex;not null" json:"symbol"`
	Address           string          `gorm:"column:address;type:varchar(64);not null" json:"address"`
	SettlementAsset   string          `gorm:"column:settlement_asset;type:varchar(64);not null" json:"settlement_asset"`
	FeeRecipient      string          `gorm:"column:fee_recipient;type:varchar(64);not null" json:"fee_recipient"`
	InvestFee         uint32          `gorm:"column:invest_fee;not null;default:0" json:"invest_fee"`
	RedeemFee         uint32          `gorm:"column:redeem_fee;not null;default:0" json:"redeem_fee"`
	MinMintAmount     decimal.Decimal `gorm:"column:min_mint_amount;type:varchar(80);not null" json:"min_mint_amount"`
	RebalanceInterval time.Duration   `gorm:"column:rebalance_interval;not null;default:0" json:"rebalance_interval"`
	RebalanceDeviance uint32          `gorm:"column:rebalance_deviance;not null;default:0" json:"rebalance_deviance"`
	LastRebalanceAt   *time.Time      `gorm:"column:last_rebalance_at" json:"last_rebalance_at"`
	Constituents      []Constituent   `gorm:"foreignKey:FundID;references:FundID" json:"constituents"`
}

// Constituent 成分资产，Position 决定其在篮子中的顺序
type Constituent struct {
	gorm.Model
	FundID       string          `gorm:"column:fund_id;type:varchar(32);uniqueIndex:idx_fund_asset;not null" json:"fund_id"`
	Asset        string          `gorm:"column:asset;type:varchar(64);uniqueIndex:idx_fund_asset;not null" json:"asset"`
	Position     int             `gorm:"column:position;not null" json:"position"`
	Decimals     int32           `gorm:"column:decimals;not null" json:"decimals"`
	SeedPerShare decimal.Decimal `gorm:"column:seed_per_share;type:varchar(80);not null" json:"seed_per_share"`
	Weight       uint32          `gorm:"column:weight;not null;default:0" json:"weight"`
	PriceFeed    string          `gorm:"column:price_feed;type:varchar(128)" json:"price_feed"`
}

// TableName 成分资产表名
func (Constituent) TableName() string {
	return "fund_constituents"
}

// NewFund 创建基金并校验初始配置
func NewFund(fundID, name, symbol, address, settlement, feeRecipient string, constituents []Constituent) (*Fund, error) {
	f := &Fund{
		FundID:          fundID,
		Name:            name,
		Symbol:          symbol,
		Address:         address,
		SettlementAsset: settlement,
		FeeRecipient:    feeRecipient,
		MinMintAmount:   decimal.Zero,
	}
	for _, c := range constituents {
		if err := f.AddAsset(c); err != nil {
			return nil, err
		}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate 校验基金配置
func (f *Fund) Validate() error {
	switch {
	case strings.TrimSpace(f.FundID) == "":
		return fmt.Errorf("%w: fund id is required", ErrInvalidFund)
	case f.Symbol == "" || f.Address == "":
		return fmt.Errorf("%w: symbol and address are required", ErrInvalidFund)
	case f.SettlementAsset == "":
		return fmt.Errorf("%w: settlement asset is required", ErrInvalidFund)
	case f.SettlementAsset == f.Symbol:
		return fmt.Errorf("%w: settlement asset equals share symbol", ErrInvalidFund)
	case f.FeeRecipient == "":
		return fmt.Errorf("%w: fee recipient is required", ErrInvalidFund)
	case len(f.Constituents) == 0:
		return fmt.Errorf("%w: at least one constituent is required", ErrInvalidFund)
	case f.InvestFee >= PPM || f.RedeemFee >= PPM:
		return ErrInvalidFee
	case f.RebalanceDeviance > PPM:
		return fmt.Errorf("%w: deviance %d", ErrInvalidWeight, f.RebalanceDeviance)
	}
	if f.TotalWeight() > PPM {
		return ErrInvalidTotalWeights
	}
	return requireNonNegative("min mint amount", f.MinMintAmount)
}

// FundAddress 由基金 ID 派生的托管账户
func FundAddress(fundID string) string {
	return "fund:" + fundID
}

// StagingAccount 结算资产路由使用的暂存账户
func (f *Fund) StagingAccount() string {
	return f.Address + "/staging"
}

// IndexOf 返回资产在篮子中的位置
func (f *Fund) IndexOf(asset string) (int, bool) {
	for i := range f.Constituents {
		if f.Constituents[i].Asset == asset {
			return i, true
		}
	}
	return -1, false
}

// Constituent 按资产查找成分
func (f *Fund) Constituent(asset string) (*Constituent, error) {
	i, ok := f.IndexOf(asset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, asset)
	}
	return &f.Constituents[i], nil
}

// Assets 成分资产列表，按篮子顺序
func (f *Fund) Assets() []string {
	out := make([]string, len(f.Constituents))
	for i, c := range f.Constituents {
		out[i] = c.Asset
	}
	return out
}

// TotalWeight 目标权重之和
func (f *Fund) TotalWeight() uint64 {
	var sum uint64
	for _, c := range f.Constituents {
		sum += uint64(c.Weight)
	}
	return sum
}

// AddAsset 追加成分资产到篮子末尾
func (f *Fund) AddAsset(c Constituent) error {
	if c.Asset == "" {
		return fmt.Errorf("%w: asset is required", ErrInvalidFund)
	}
	if c.Asset == f.Symbol {
		return fmt.Errorf("%w: fund cannot hold its own shares", ErrInvalidFund)
	}
	if _, ok := f.IndexOf(c.Asset); ok {
		return fmt.Errorf("%w: %s", ErrAssetExists, c.Asset)
	}
	if c.Weight > PPM {
		return fmt.Errorf("%w: %s weight %d", ErrInvalidWeight, c.Asset, c.Weight)
	}
	if c.Decimals < 0 {
		return fmt.Errorf("%w: %s decimals %d", ErrInvalidFund, c.Asset, c.Decimals)
	}
	if err := requireNonNegative("seed per share", c.SeedPerShare); err != nil {
		return err
	}
	c.ID = 0
	c.FundID = f.FundID
	c.Position = len(f.Constituents)
	f.Constituents = append(f.Constituents, c)
	return nil
}

// RemoveAsset 移除成分资产，要求权重为零且托管余额为零
func (f *Fund) RemoveAsset(asset string, reserve decimal.Decimal) error {
	i, ok := f.IndexOf(asset)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAssetNotFound, asset)
	}
	if f.Constituents[i].Weight != 0 || reserve.IsPositive() {
		return fmt.Errorf("%w: %s weight=%d reserve=%s", ErrAssetInUse, asset, f.Constituents[i].Weight, reserve)
	}
	f.Constituents = append(f.Constituents[:i], f.Constituents[i+1:]...)
	for j := range f.Constituents {
		f.Constituents[j].Position = j
	}
	return nil
}

// SetWeights 更新目标权重；权重之和在再平衡前校验
func (f *Fund) SetWeights(weights map[string]uint32) error {
	for asset, w := range weights {
		if _, ok := f.IndexOf(asset); !ok {
			return fmt.Errorf("%w: %s", ErrAssetNotFound, asset)
		}
		if w > PPM {
			return fmt.Errorf("%w: %s weight %d", ErrInvalidWeight, asset, w)
		}
	}
	for asset, w := range weights {
		i, _ := f.IndexOf(asset)
		f.Constituents[i].Weight = w
	}
	return nil
}

// SetFees 更新申购与赎回费率
func (f *Fund) SetFees(investFee, redeemFee uint32) error {
	if investFee >= PPM || redeemFee >= PPM {
		return fmt.Errorf("%w: invest=%d redeem=%d", ErrInvalidFee, investFee, redeemFee)
	}
	f.InvestFee = investFee
	f.RedeemFee = redeemFee
	return nil
}

// SetPriceFeed 设置成分资产的价格源
func (f *Fund) SetPriceFeed(asset, feed string) error {
	c, err := f.Constituent(asset)
	if err != nil {
		return err
	}
	c.PriceFeed = feed
	return nil
}

// SetRebalanceParams 设置再平衡间隔与偏离阈值
func (f *Fund) SetRebalanceParams(interval time.Duration, deviance uint32) error {
	if interval < 0 {
		return fmt.Errorf("%w: negative rebalance interval", ErrInvalidFund)
	}
	if deviance > PPM {
		return fmt.Errorf("%w: deviance %d", ErrInvalidWeight, deviance)
	}
	f.RebalanceInterval = interval
	f.RebalanceDeviance = deviance
	return nil
}

// SetMinMintAmount 设置最小申购份额
func (f *Fund) SetMinMintAmount(amount decimal.Decimal) error {
	if err := requireNonNegative("min mint amount", amount); err != nil {
		return err
	}
	f.MinMintAmount = amount
	return nil
}

// SetFeeRecipient 设置费用份额接收账户
func (f *Fund) SetFeeRecipient(account string) error {
	if account == "" {
		return fmt.Errorf("%w: fee recipient is required", ErrInvalidFund)
	}
	f.FeeRecipient = account
	return nil
}

// NextRebalanceAt 下一次允许再平衡的时间
func (f *Fund) NextRebalanceAt() time.Time {
	if f.LastRebalanceAt == nil {
		return time.Time{}
	}
	return f.LastRebalanceAt.Add(f.RebalanceInterval)
}

// MarkRebalanced 记录再平衡完成时间
func (f *Fund) MarkRebalanced(at time.Time) {
	f.LastRebalanceAt = &at
}

// CanRebalance now 是否已达到再平衡间隔
func (f *Fund) CanRebalance(now time.Time) bool {
	return !now.Before(f.NextRebalanceAt())
}
