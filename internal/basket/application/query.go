package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/basketfund/internal/basket/domain"
	"github.com/wyfcoding/basketfund/pkg/utils"
)

// navScale 每份净值保留的小数位
const navScale = 18

// FundView 基金详情
type FundView struct {
	Fund            *domain.Fund        `json:"fund"`
	Reserves        domain.AssetAmounts `json:"reserves"`
	TotalSupply     decimal.Decimal     `json:"total_supply"`
	NextRebalanceAt time.Time           `json:"next_rebalance_at"`
}

// NAVView 基金净值，市值以结算资产计价
type NAVView struct {
	FundID      string                 `json:"fund_id"`
	Snapshot    *domain.MarketSnapshot `json:"snapshot"`
	TotalSupply decimal.Decimal        `json:"total_supply"`
	NAVPerShare decimal.Decimal        `json:"nav_per_share"`
}

// RebalancePlanView 再平衡预览
type RebalancePlanView struct {
	FundID          string              `json:"fund_id"`
	Total           decimal.Decimal     `json:"total"`
	Allocations     []domain.Allocation `json:"allocations"`
	CanRebalance    bool                `json:"can_rebalance"`
	NextRebalanceAt time.Time           `json:"next_rebalance_at"`
}

// Page 分页结果
type Page[T any] struct {
	Items      []T               `json:"items"`
	Pagination *utils.Pagination `json:"pagination"`
}

// QueryService 基金查询服务
type QueryService struct {
	funds      domain.FundRepository
	records    domain.RecordRepository
	assets     domain.AssetLedger
	accounting *domain.AccountingEngine
	rebalancer *domain.RebalanceEngine
	router     *domain.SwapExecutionRouter
	logger     *slog.Logger
}

// NewQueryService 创建查询服务
func NewQueryService(deps Dependencies) *QueryService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryService{
		funds:      deps.Funds,
		records:    deps.Records,
		assets:     deps.Assets,
		accounting: deps.Accounting,
		rebalancer: deps.Rebalancer,
		router:     deps.Router,
		logger:     logger.With("module", "basket_query"),
	}
}

// GetFund 基金配置、托管余额与份额总量
func (s *QueryService) GetFund(ctx context.Context, fundID string) (*FundView, error) {
	fund, err := s.funds.GetByFundID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, fund)
}

// ListFunds 全部基金
func (s *QueryService) ListFunds(ctx context.Context) ([]*FundView, error) {
	funds, err := s.funds.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*FundView, 0, len(funds))
	for _, f := range funds {
		v, err := s.view(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *QueryService) view(ctx context.Context, fund *domain.Fund) (*FundView, error) {
	reserves, err := s.accounting.Reserves(ctx, fund)
	if err != nil {
		return nil, err
	}
	supply, err := s.accounting.TotalSupply(ctx, fund)
	if err != nil {
		return nil, err
	}
	amounts := make(domain.AssetAmounts, len(reserves))
	for i, r := range reserves {
		amounts[i] = domain.AssetAmount{Asset: fund.Constituents[i].Asset, Amount: r}
	}
	return &FundView{Fund: fund, Reserves: amounts, TotalSupply: supply, NextRebalanceAt: fund.NextRebalanceAt()}, nil
}

// NetAssetValue 按预言机价格计算基金市值与每份净值
func (s *QueryService) NetAssetValue(ctx context.Context, fundID string) (*NAVView, error) {
	fund, err := s.funds.GetByFundID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	snap, err := s.rebalancer.MarketValues(ctx, fund)
	if err != nil {
		return nil, err
	}
	supply, err := s.accounting.TotalSupply(ctx, fund)
	if err != nil {
		return nil, err
	}
	nav := decimal.Zero
	if supply.IsPositive() {
		nav = snap.Total.DivRound(supply, navScale)
	}
	return &NAVView{FundID: fund.FundID, Snapshot: snap, TotalSupply: supply, NAVPerShare: nav}, nil
}

// RebalancePlan 预览当前市值下的目标区间与调整量，不执行任何兑换
func (s *QueryService) RebalancePlan(ctx context.Context, fundID string, now time.Time) (*RebalancePlanView, error) {
	fund, err := s.funds.GetByFundID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	snap, err := s.rebalancer.MarketValues(ctx, fund)
	if err != nil {
		return nil, err
	}
	return &RebalancePlanView{
		FundID:          fund.FundID,
		Total:           snap.Total,
		Allocations:     s.rebalancer.Plan(fund, snap),
		CanRebalance:    fund.TotalWeight() == domain.PPM && fund.CanRebalance(now),
		NextRebalanceAt: fund.NextRebalanceAt(),
	}, nil
}

// InvestQuote 申购 mintAmount 份额所需的各成分数量
func (s *QueryService) InvestQuote(ctx context.Context, fundID string, mintAmount decimal.Decimal) (domain.AssetAmounts, error) {
	fund, err := s.funds.GetByFundID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	amounts, err := s.accounting.InvestQuote(ctx, fund, mintAmount)
	if err != nil {
		return nil, err
	}
	return pair(fund, amounts), nil
}

// RedeemQuote 赎回 burnAmount 份额可得的各成分数量
func (s *QueryService) RedeemQuote(ctx context.Context, fundID string, burnAmount decimal.Decimal) (domain.AssetAmounts, error) {
	fund, err := s.funds.GetByFundID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	amounts, err := s.accounting.RedeemQuote(ctx, fund, burnAmount)
	if err != nil {
		return nil, err
	}
	return pair(fund, amounts), nil
}

// QuoteInvestWithSettlement 结算资产申购的最优路径与所需结算资产
func (s *QueryService) QuoteInvestWithSettlement(ctx context.Context, fundID string, mintAmount decimal.Decimal) (*domain.SettlementQuote, error) {
	fund, err := s.funds.GetByFundID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	return s.router.QuoteInvestWithSettlement(ctx, fund, mintAmount)
}

// QuoteRedeemToSettlement 赎回为结算资产的最优路径与可得结算资产
func (s *QueryService) QuoteRedeemToSettlement(ctx context.Context, fundID string, burnAmount decimal.Decimal) (*domain.SettlementQuote, error) {
	fund, err := s.funds.GetByFundID(ctx, fundID)
	if err != nil {
		return nil, err
	}
	return s.router.QuoteRedeemToSettlement(ctx, fund, burnAmount)
}

// ListInvestments 申购记录
func (s *QueryService) ListInvestments(ctx context.Context, fundID string, page, pageSize int) (*Page[*domain.InvestmentRecord], error) {
	p := utils.NewPagination(page, pageSize, 0)
	items, total, err := s.records.ListInvestments(ctx, fundID, p.Limit(), p.Offset())
	if err != nil {
		return nil, err
	}
	return &Page[*domain.InvestmentRecord]{Items: items, Pagination: p.WithTotal(total)}, nil
}

// ListRedemptions 赎回记录
func (s *QueryService) ListRedemptions(ctx context.Context, fundID string, page, pageSize int) (*Page[*domain.RedemptionRecord], error) {
	p := utils.NewPagination(page, pageSize, 0)
	items, total, err := s.records.ListRedemptions(ctx, fundID, p.Limit(), p.Offset())
	if err != nil {
		return nil, err
	}
	return &Page[*domain.RedemptionRecord]{Items: items, Pagination: p.WithTotal(total)}, nil
}

// ListRebalances 再平衡记录
func (s *QueryService) ListRebalances(ctx context.Context, fundID string, page, pageSize int) (*Page[*domain.RebalanceRecord], error) {
	p := utils.NewPagination(page, pageSize, 0)
	items, total, err := s.records.ListRebalances(ctx, fundID, p.Limit(), p.Offset())
	if err != nil {
		return nil, err
	}
	return &Page[*domain.RebalanceRecord]{Items: items, Pagination: p.WithTotal(total)}, nil
}

// Balance 账户在 token 上的余额，token 可以是份额代码或资产
func (s *QueryService) Balance(ctx context.Context, token, account string) (decimal.Decimal, error) {
	return s.assets.BalanceOf(ctx, token, account)
}

// Allowance 授权额度
func (s *QueryService) Allowance(ctx context.Context, token, owner, spender string) (decimal.Decimal, error) {
	return s.assets.Allowance(ctx, token, owner, spender)
}

func pair(fund *domain.Fund, amounts []decimal.Decimal) domain.AssetAmounts {
	out := make(domain.AssetAmounts, len(amounts))
	for i, amt := range amounts {
		out[i] = domain.AssetAmount{Asset: fund.Constituents[i].Asset, Amount: amt}
	}
	return out
}
