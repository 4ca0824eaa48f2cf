package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AssetAmount 资产与数量
type AssetAmount struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

// AssetAmounts 以 JSON 文本持久化的资产数量列表
type AssetAmounts []AssetAmount

// Value 实现 driver.Valuer
func (a AssetAmounts) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner
func (a *AssetAmounts) Scan(src any) error {
	return scanJSON(src, a)
}

// Get 按资产查找数量，不存在时为零
func (a AssetAmounts) Get(asset string) decimal.Decimal {
	for _, aa := range a {
		if aa.Asset == asset {
			return aa.Amount
		}
	}
	return decimal.Zero
}

// Trade 再平衡中的一笔兑换
type Trade struct {
	Phase     string          `json:"phase"`
	AssetIn   string          `json:"asset_in"`
	AssetOut  string          `json:"asset_out"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
	Path      SwapPath        `json:"path,omitempty"`
}

// 再平衡交易阶段
const (
	PhaseSell         = "sell"
	PhaseBuy          = "buy"
	PhaseRedistribute = "redistribute"
)

// Trades 以 JSON 文本持久化的交易列表
type Trades []Trade

// Value 实现 driver.Valuer
func (t Trades) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan 实现 sql.Scanner
func (t *Trades) Scan(src any) error {
	return scanJSON(src, t)
}

func scanJSON(src, dest any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
}

// InvestmentRecord 申购记录
type InvestmentRecord struct {
	gorm.Model
	RecordID     string          `gorm:"column:record_id;type:varchar(64);uniqueIndex;not null" json:"record_id"`
	FundID       string          `gorm:"column:fund_id;type:varchar(32);index;not null" json:"fund_id"`
	Payer        string          `gorm:"column:payer;type:varchar(64)" json:"payer"`
	Recipient    string          `gorm:"column:recipient;type:varchar(64);not null" json:"recipient"`
	MintAmount   decimal.Decimal `gorm:"column:mint_amount;type:varchar(80);not null" json:"mint_amount"`
	Fee          decimal.Decimal `gorm:"column:fee;type:varchar(80);not null" json:"fee"`
	Amounts      AssetAmounts    `gorm:"column:amounts;type:text" json:"amounts"`
	SettlementIn decimal.Decimal `gorm:"column:settlement_in;type:varchar(80);not null" json:"settlement_in"`
}

// RedemptionRecord 赎回记录
type RedemptionRecord struct {
	gorm.Model
	RecordID      string          `gorm:"column:record_id;type:varchar(64);uniqueIndex;not null" json:"record_id"`
	FundID        string          `gorm:"column:fund_id;type:varchar(32);index;not null" json:"fund_id"`
	Owner         string          `gorm:"column:owner;type:varchar(64);not null" json:"owner"`
	Recipient     string          `gorm:"column:recipient;type:varchar(64);not null" json:"recipient"`
	BurnAmount    decimal.Decimal `gorm:"column:burn_amount;type:varchar(80);not null" json:"burn_amount"`
	Fee           decimal.Decimal `gorm:"column:fee;type:varchar(80);not null" json:"fee"`
	Amounts       AssetAmounts    `gorm:"column:amounts;type:text" json:"amounts"`
	SettlementOut decimal.Decimal `gorm:"column:settlement_out;type:varchar(80);not null" json:"settlement_out"`
}

// RebalanceRecord 再平衡记录
type RebalanceRecord struct {
	gorm.Model
	RecordID   string          `gorm:"column:record_id;type:varchar(64);uniqueIndex;not null" json:"record_id"`
	FundID     string          `gorm:"column:fund_id;type:varchar(32);index;not null" json:"fund_id"`
	Before     AssetAmounts    `gorm:"column:before_reserves;type:text" json:"before"`
	After      AssetAmounts    `gorm:"column:after_reserves;type:text" json:"after"`
	Trades     Trades          `gorm:"column:trades;type:text" json:"trades"`
	ValueTotal decimal.Decimal `gorm:"column:value_total;type:varchar(80);not null" json:"value_total"`
	ExecutedAt time.Time       `gorm:"column:executed_at;not null" json:"executed_at"`
}

func newRecordID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

func pairAmounts(fund *Fund, amounts []decimal.Decimal) AssetAmounts {
	out := make(AssetAmounts, len(amounts))
	for i, amt := range amounts {
		out[i] = AssetAmount{Asset: fund.Constituents[i].Asset, Amount: amt}
	}
	return out
}
