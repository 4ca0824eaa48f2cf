package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DomainEvent interface {
	EventName() string
	OccurredAt() time.Time
	AggregateID() string
}

// InvestedEvent 申购完成事件
type InvestedEvent struct {
	FundID       string          `json:"fund_id"`
	RecordID     string          `json:"record_id"`
	Recipient    string          `json:"recipient"`
	MintAmount   decimal.Decimal `json:"mint_amount"`
	Fee          decimal.Decimal `json:"fee"`
	Amounts      AssetAmounts    `json:"amounts"`
	SettlementIn decimal.Decimal `json:"settlement_in"`
	Timestamp    time.Time       `json:"timestamp"`
}

func (e *InvestedEvent) EventName() string     { return "basket.invested" }
func (e *InvestedEvent) OccurredAt() time.Time { return e.Timestamp }
func (e *InvestedEvent) AggregateID() string   { return e.FundID }

// RedeemedEvent 赎回完成事件
type RedeemedEvent struct {
	FundID        string          `json:"fund_id"`
	RecordID      string          `json:"record_id"`
	Owner         string          `json:"owner"`
	Recipient     string          `json:"recipient"`
	BurnAmount    decimal.Decimal `json:"burn_amount"`
	Fee           decimal.Decimal `json:"fee"`
	Amounts       AssetAmounts    `json:"amounts"`
	SettlementOut decimal.Decimal `json:"settlement_out"`
	Timestamp     time.Time       `json:"timestamp"`
}

func (e *RedeemedEvent) EventName() string     { return "basket.redeemed" }
func (e *RedeemedEvent) OccurredAt() time.Time { return e.Timestamp }
func (e *RedeemedEvent) AggregateID() string   { return e.FundID }

// RebalancedEvent 再平衡完成事件
type RebalancedEvent struct {
	FundID    string       `json:"fund_id"`
	RecordID  string       `json:"record_id"`
	Before    AssetAmounts `json:"before"`
	After     AssetAmounts `json:"after"`
	Trades    int          `json:"trades"`
	Timestamp time.Time    `json:"timestamp"`
}

func (e *RebalancedEvent) EventName() string     { return "basket.rebalanced" }
func (e *RebalancedEvent) OccurredAt() time.Time { return e.Timestamp }
func (e *RebalancedEvent) AggregateID() string   { return e.FundID }

// ConfigChangedEvent 基金配置变更事件
type ConfigChangedEvent struct {
	FundID    string    `json:"fund_id"`
	Action    Action    `json:"action"`
	Caller    string    `json:"caller"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *ConfigChangedEvent) EventName() string     { return "basket.config_changed" }
func (e *ConfigChangedEvent) OccurredAt() time.Time { return e.Timestamp }
func (e *ConfigChangedEvent) AggregateID() string   { return e.FundID }

// NewInvestedEvent 由申购记录构造事件
func NewInvestedEvent(r *InvestmentRecord) *InvestedEvent {
	return &InvestedEvent{
		FundID:       r.FundID,
		RecordID:     r.RecordID,
		Recipient:    r.Recipient,
		MintAmount:   r.MintAmount,
		Fee:          r.Fee,
		Amounts:      r.Amounts,
		SettlementIn: r.SettlementIn,
		Timestamp:    time.Now(),
	}
}

// NewRedeemedEvent 由赎回记录构造事件
func NewRedeemedEvent(r *RedemptionRecord) *RedeemedEvent {
	return &RedeemedEvent{
		FundID:        r.FundID,
		RecordID:      r.RecordID,
		Owner:         r.Owner,
		Recipient:     r.Recipient,
		BurnAmount:    r.BurnAmount,
		Fee:           r.Fee,
		Amounts:       r.Amounts,
		SettlementOut: r.SettlementOut,
		Timestamp:     time.Now(),
	}
}

// NewRebalancedEvent 由再平衡记录构造事件
func NewRebalancedEvent(r *RebalanceRecord) *RebalancedEvent {
	return &RebalancedEvent{
		FundID:    r.FundID,
		RecordID:  r.RecordID,
		Before:    r.Before,
		After:     r.After,
		Trades:    len(r.Trades),
		Timestamp: r.ExecutedAt,
	}
}
