package domain

import "context"

// FundRepository 基金仓储
type FundRepository interface {
	Create(ctx context.Context, fund *Fund) error
	Save(ctx context.Context, fund *Fund) error
	GetByFundID(ctx context.Context, fundID string) (*Fund, error)
	List(ctx context.Context) ([]*Fund, error)
}

// RecordRepository 操作记录仓储
type RecordRepository interface {
	SaveInvestment(ctx context.Context, r *InvestmentRecord) error
	SaveRedemption(ctx context.Context, r *RedemptionRecord) error
	SaveRebalance(ctx context.Context, r *RebalanceRecord) error
	ListInvestments(ctx context.Context, fundID string, limit, offset int) ([]*InvestmentRecord, int64, error)
	ListRedemptions(ctx context.Context, fundID string, limit, offset int) ([]*RedemptionRecord, int64, error)
	ListRebalances(ctx context.Context, fundID string, limit, offset int) ([]*RebalanceRecord, int64, error)
}
