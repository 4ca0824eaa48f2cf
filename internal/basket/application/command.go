// Package application 篮子基金应用层：命令按基金串行、在同一原子单元内完成记账与留痕，提交后发布事件
package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/basketfund/internal/basket/domain"
	"github.com/wyfcoding/basketfund/pkg/contextx"
	"github.com/wyfcoding/basketfund/pkg/metrics"
)

// EventPublisher 领域事件发布
type EventPublisher interface {
	Publish(ctx context.Context, event domain.DomainEvent) error
}

// Dependencies 应用服务依赖
type Dependencies struct {
	Funds      domain.FundRepository
	Records    domain.RecordRepository
	UnitOfWork domain.UnitOfWork
	Shares     domain.ShareLedger
	Assets     domain.AssetLedger
	Accounting *domain.AccountingEngine
	Quoter     *domain.PathQuoter
	Rebalancer *domain.RebalanceEngine
	Router     *domain.SwapExecutionRouter
	Access     domain.AccessController
	Locker     *FundLocker
	Publisher  EventPublisher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// CommandService 基金命令服务
type CommandService struct {
	funds      domain.FundRepository
	records    domain.RecordRepository
	uow        domain.UnitOfWork
	shares     domain.ShareLedger
	assets     domain.AssetLedger
	accounting *domain.AccountingEngine
	rebalancer *domain.RebalanceEngine
	router     *domain.SwapExecutionRouter
	access     domain.AccessController
	locker     *FundLocker
	publisher  EventPublisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewCommandService 创建命令服务
func NewCommandService(deps Dependencies) *CommandService {
	locker := deps.Locker
	if locker == nil {
		locker = NewFundLocker(nil, 0)
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandService{
		funds:      deps.Funds,
		records:    deps.Records,
		uow:        deps.UnitOfWork,
		shares:     deps.Shares,
		assets:     deps.Assets,
		accounting: deps.Accounting,
		rebalancer: deps.Rebalancer,
		router:     deps.Router,
		access:     deps.Access,
		locker:     locker,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
		logger:     logger.With("module", "basket_command"),
	}
}

// execute 加基金锁后在原子单元内加载基金并执行 fn，成功提交后发布 fn 返回的事件
func (s *CommandService) execute(ctx context.Context, op, fundID string, fn func(ctx context.Context, fund *domain.Fund) (domain.DomainEvent, error)) error {
	start := time.Now()
	unlock, err := s.locker.Lock(ctx, fundID)
	if err != nil {
		s.metrics.ObserveOperation(op, time.Since(start).Seconds(), err)
		return err
	}
	defer unlock()

	var event domain.DomainEvent
	err = s.uow.Atomic(ctx, func(ctx context.Context) error {
		fund, err := s.funds.GetByFundID(ctx, fundID)
		if err != nil {
			return err
		}
		event, err = fn(ctx, fund)
		return err
	})
	s.metrics.ObserveOperation(op, time.Since(start).Seconds(), err)
	if err != nil {
		s.logger.WarnContext(ctx, "fund operation failed", "operation", op, "fund_id", fundID, "error", err)
		return err
	}
	s.logger.InfoContext(ctx, "fund operation committed", "operation", op, "fund_id", fundID, "duration", time.Since(start))
	s.publish(ctx, event)
	return nil
}

func (s *CommandService) publish(ctx context.Context, event domain.DomainEvent) {
	if s.publisher == nil || event == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish event", "event", event.EventName(), "fund_id", event.AggregateID(), "error", err)
	}
}

// CreateFundCommand 创建基金命令
type CreateFundCommand struct {
	FundID            string
	Name              string
	Symbol            string
	SettlementAsset   string
	FeeRecipient      string
	InvestFee         uint32
	RedeemFee         uint32
	MinMintAmount     decimal.Decimal
	RebalanceInterval time.Duration
	RebalanceDeviance uint32
	Constituents      []domain.Constituent
}

// CreateFund 创建基金，需要管理员权限。托管账户由基金 ID 派生；
// 基金 ID 或份额代码已存在时返回 ErrFundExists，份额代码已有流通量或被用作资产时返回 ErrSymbolInUse，
// 派生的托管账户已有余额时返回 ErrAddressInUse。
func (s *CommandService) CreateFund(ctx context.Context, cmd CreateFundCommand) (*domain.Fund, error) {
	fund, err := domain.NewFund(cmd.FundID, cmd.Name, cmd.Symbol, domain.FundAddress(cmd.FundID), cmd.SettlementAsset, cmd.FeeRecipient, cmd.Constituents)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, fund, domain.ActionCreateFund); err != nil {
		s.logger.WarnContext(ctx, "fund creation rejected", "fund_id", fund.FundID, "error", err)
		return nil, err
	}
	if err := fund.SetFees(cmd.InvestFee, cmd.RedeemFee); err != nil {
		return nil, err
	}
	if !cmd.MinMintAmount.IsZero() {
		if err := fund.SetMinMintAmount(cmd.MinMintAmount); err != nil {
			return nil, err
		}
	}
	if err := fund.SetRebalanceParams(cmd.RebalanceInterval, cmd.RebalanceDeviance); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, fund.FundID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	if err := s.uow.Atomic(ctx, func(ctx context.Context) error {
		if err := s.checkCollisions(ctx, fund); err != nil {
			return err
		}
		return s.funds.Create(ctx, fund)
	}); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "fund created", "fund_id", fund.FundID, "symbol", fund.Symbol, "assets", fund.Assets())
	return fund, nil
}

// checkCollisions 份额代码与托管账户不得与现有基金、资产或余额重叠
func (s *CommandService) checkCollisions(ctx context.Context, fund *domain.Fund) error {
	existing, err := s.funds.List(ctx)
	if err != nil {
		return err
	}
	tokens := map[string]struct{}{fund.Symbol: {}, fund.SettlementAsset: {}}
	for _, a := range fund.Assets() {
		tokens[a] = struct{}{}
	}
	for _, other := range existing {
		switch {
		case other.FundID == fund.FundID || other.Symbol == fund.Symbol:
			return fmt.Errorf("%w: %s", domain.ErrFundExists, fund.FundID)
		case other.Address == fund.Address, other.StagingAccount() == fund.Address, other.Address == fund.StagingAccount():
			return fmt.Errorf("%w: %s", domain.ErrAddressInUse, fund.Address)
		case other.SettlementAsset == fund.Symbol:
			return fmt.Errorf("%w: %s is settlement of fund %s", domain.ErrSymbolInUse, fund.Symbol, other.FundID)
		}
		if _, ok := other.IndexOf(fund.Symbol); ok {
			return fmt.Errorf("%w: %s is held by fund %s", domain.ErrSymbolInUse, fund.Symbol, other.FundID)
		}
		for _, a := range other.Assets() {
			tokens[a] = struct{}{}
		}
		tokens[other.Symbol] = struct{}{}
		tokens[other.SettlementAsset] = struct{}{}
	}

	supply, err := s.shares.TotalSupply(ctx, fund.Symbol)
	if err != nil {
		return err
	}
	if supply.IsPositive() {
		return fmt.Errorf("%w: %s has supply %s", domain.ErrSymbolInUse, fund.Symbol, supply)
	}

	for token := range tokens {
		for _, account := range []string{fund.Address, fund.StagingAccount()} {
			bal, err := s.assets.BalanceOf(ctx, token, account)
			if err != nil {
				return err
			}
			if bal.IsPositive() {
				return fmt.Errorf("%w: %s holds %s %s", domain.ErrAddressInUse, account, bal, token)
			}
		}
	}
	return nil
}

// InvestCommand 以成分资产申购；Payer 需事先授权基金地址划转所需数量
type InvestCommand struct {
	FundID     string
	Payer      string
	Recipient  string
	MintAmount decimal.Decimal
}

// Invest 以成分资产申购
func (s *CommandService) Invest(ctx context.Context, cmd InvestCommand) (*domain.InvestmentRecord, error) {
	var record *domain.InvestmentRecord
	err := s.execute(ctx, "invest", cmd.FundID, func(ctx context.Context, fund *domain.Fund) (domain.DomainEvent, error) {
		rec, err := s.accounting.InvestInKind(ctx, fund, cmd.Payer, cmd.Recipient, cmd.MintAmount)
		if err != nil {
			return nil, err
		}
		if err := s.records.SaveInvestment(ctx, rec); err != nil {
			return nil, err
		}
		record = rec
		return domain.NewInvestedEvent(rec), nil
	})
	return record, err
}

// RedeemCommand 赎回为成分资产
type RedeemCommand struct {
	FundID     string
	Owner      string
	Recipient  string
	BurnAmount decimal.Decimal
}

// Redeem 赎回为成分资产
func (s *CommandService) Redeem(ctx context.Context, cmd RedeemCommand) (*domain.RedemptionRecord, error) {
	var record *domain.RedemptionRecord
	err := s.execute(ctx, "redeem", cmd.FundID, func(ctx context.Context, fund *domain.Fund) (domain.DomainEvent, error) {
		rec, err := s.accounting.Redeem(ctx, fund, cmd.Owner, cmd.Recipient, cmd.BurnAmount)
		if err != nil {
			return nil, err
		}
		if err := s.records.SaveRedemption(ctx, rec); err != nil {
			return nil, err
		}
		record = rec
		return domain.NewRedeemedEvent(rec), nil
	})
	return record, err
}

// InvestWithSettlementCommand 以结算资产申购
type InvestWithSettlementCommand struct {
	FundID          string
	Payer           string
	Recipient       string
	MintAmount      decimal.Decimal
	MaxSettlementIn decimal.Decimal
	Paths           []domain.SwapPath
}

// InvestWithSettlement 以结算资产申购
func (s *CommandService) InvestWithSettlement(ctx context.Context, cmd InvestWithSettlementCommand) (*domain.InvestmentRecord, error) {
	var record *domain.InvestmentRecord
	err := s.execute(ctx, "invest_with_settlement", cmd.FundID, func(ctx context.Context, fund *domain.Fund) (domain.DomainEvent, error) {
		rec, err := s.router.InvestWithSettlement(ctx, fund, domain.InvestWithSettlementRequest{
			Payer:           cmd.Payer,
			To:              cmd.Recipient,
			MintAmount:      cmd.MintAmount,
			MaxSettlementIn: cmd.MaxSettlementIn,
			Paths:           cmd.Paths,
		})
		if err != nil {
			return nil, err
		}
		if err := s.records.SaveInvestment(ctx, rec); err != nil {
			return nil, err
		}
		record = rec
		return domain.NewInvestedEvent(rec), nil
	})
	return record, err
}

// RedeemToSettlementCommand 赎回为结算资产
type RedeemToSettlementCommand struct {
	FundID           string
	Owner            string
	Recipient        string
	BurnAmount       decimal.Decimal
	MinSettlementOut decimal.Decimal
	Paths            []domain.SwapPath
}

// RedeemToSettlement 赎回为结算资产
func (s *CommandService) RedeemToSettlement(ctx context.Context, cmd RedeemToSettlementCommand) (*domain.RedemptionRecord, error) {
	var record *domain.RedemptionRecord
	err := s.execute(ctx, "redeem_to_settlement", cmd.FundID, func(ctx context.Context, fund *domain.Fund) (domain.DomainEvent, error) {
		rec, err := s.router.RedeemToSettlement(ctx, fund, domain.RedeemToSettlementRequest{
			Owner:            cmd.Owner,
			To:               cmd.Recipient,
			BurnAmount:       cmd.BurnAmount,
			MinSettlementOut: cmd.MinSettlementOut,
			Paths:            cmd.Paths,
		})
		if err != nil {
			return nil, err
		}
		if err := s.records.SaveRedemption(ctx, rec); err != nil {
			return nil, err
		}
		record = rec
		return domain.NewRedeemedEvent(rec), nil
	})
	return record, err
}

// Rebalance 执行再平衡并持久化新的再平衡时间
func (s *CommandService) Rebalance(ctx context.Context, fundID string) (*domain.RebalanceRecord, error) {
	var record *domain.RebalanceRecord
	err := s.execute(ctx, "rebalance", fundID, func(ctx context.Context, fund *domain.Fund) (domain.DomainEvent, error) {
		rec, err := s.rebalancer.Rebalance(ctx, fund)
		if err != nil {
			return nil, err
		}
		if err := s.funds.Save(ctx, fund); err != nil {
			return nil, err
		}
		if err := s.records.SaveRebalance(ctx, rec); err != nil {
			return nil, err
		}
		record = rec
		return domain.NewRebalancedEvent(rec), nil
	})
	return record, err
}

// configure 校验权限后修改基金配置并保存
func (s *CommandService) configure(ctx context.Context, fundID string, action domain.Action, detail string, mutate func(ctx context.Context, fund *domain.Fund) error) (*domain.Fund, error) {
	var out *domain.Fund
	err := s.execute(ctx, string(action), fundID, func(ctx context.Context, fund *domain.Fund) (domain.DomainEvent, error) {
		if err := s.access.Authorize(ctx, fund, action); err != nil {
			return nil, err
		}
		if err := mutate(ctx, fund); err != nil {
			return nil, err
		}
		if err := s.funds.Save(ctx, fund); err != nil {
			return nil, err
		}
		out = fund
		return &domain.ConfigChangedEvent{
			FundID:    fund.FundID,
			Action:    action,
			Caller:    contextx.Caller(ctx),
			Detail:    detail,
			Timestamp: time.Now(),
		}, nil
	})
	return out, err
}

// UpdateWeights 更新目标权重，权重之和在下一次再平衡时校验
func (s *CommandService) UpdateWeights(ctx context.Context, fundID string, weights map[string]uint32) (*domain.Fund, error) {
	return s.configure(ctx, fundID, domain.ActionUpdateWeights, fmt.Sprintf("%v", weights), func(_ context.Context, f *domain.Fund) error {
		return f.SetWeights(weights)
	})
}

// UpdateFees 更新申购与赎回费率
func (s *CommandService) UpdateFees(ctx context.Context, fundID string, investFee, redeemFee uint32) (*domain.Fund, error) {
	detail := fmt.Sprintf("invest=%d redeem=%d", investFee, redeemFee)
	return s.configure(ctx, fundID, domain.ActionUpdateFees, detail, func(_ context.Context, f *domain.Fund) error {
		return f.SetFees(investFee, redeemFee)
	})
}

// SetPriceFeed 设置成分资产价格源
func (s *CommandService) SetPriceFeed(ctx context.Context, fundID, asset, feed string) (*domain.Fund, error) {
	return s.configure(ctx, fundID, domain.ActionSetPriceFeed, asset+"="+feed, func(_ context.Context, f *domain.Fund) error {
		return f.SetPriceFeed(asset, feed)
	})
}

// AddAsset 追加成分资产
func (s *CommandService) AddAsset(ctx context.Context, fundID string, c domain.Constituent) (*domain.Fund, error) {
	return s.configure(ctx, fundID, domain.ActionAddAsset, c.Asset, func(_ context.Context, f *domain.Fund) error {
		return f.AddAsset(c)
	})
}

// RemoveAsset 移除权重为零且托管余额为零的成分资产
func (s *CommandService) RemoveAsset(ctx context.Context, fundID, asset string) (*domain.Fund, error) {
	return s.configure(ctx, fundID, domain.ActionRemoveAsset, asset, func(ctx context.Context, f *domain.Fund) error {
		if _, err := f.Constituent(asset); err != nil {
			return err
		}
		reserve, err := s.assets.BalanceOf(ctx, asset, f.Address)
		if err != nil {
			return err
		}
		return f.RemoveAsset(asset, reserve)
	})
}

// SetRebalanceParams 设置再平衡间隔与偏离阈值
func (s *CommandService) SetRebalanceParams(ctx context.Context, fundID string, interval time.Duration, deviance uint32) (*domain.Fund, error) {
	detail := fmt.Sprintf("interval=%s deviance=%d", interval, deviance)
	return s.configure(ctx, fundID, domain.ActionSetRebalanceParams, detail, func(_ context.Context, f *domain.Fund) error {
		return f.SetRebalanceParams(interval, deviance)
	})
}

// SetMinMintAmount 设置最小申购份额
func (s *CommandService) SetMinMintAmount(ctx context.Context, fundID string, amount decimal.Decimal) (*domain.Fund, error) {
	return s.configure(ctx, fundID, domain.ActionSetMinMintAmount, amount.String(), func(_ context.Context, f *domain.Fund) error {
		return f.SetMinMintAmount(amount)
	})
}

// SetFeeRecipient 设置费用份额接收账户
func (s *CommandService) SetFeeRecipient(ctx context.Context, fundID, account string) (*domain.Fund, error) {
	return s.configure(ctx, fundID, domain.ActionSetFeeRecipient, account, func(_ context.Context, f *domain.Fund) error {
		return f.SetFeeRecipient(account)
	})
}

// ApproveCommand 授权 spender 代为划转 owner 的资产
type ApproveCommand struct {
	Token   string
	Owner   string
	Spender string
	Amount  decimal.Decimal
}

// Approve 在资产账本上设置授权额度
func (s *CommandService) Approve(ctx context.Context, cmd ApproveCommand) error {
	if cmd.Owner == "" || cmd.Spender == "" || cmd.Token == "" {
		return fmt.Errorf("%w: token, owner and spender are required", ErrInvalidArgument)
	}
	return s.uow.Atomic(ctx, func(ctx context.Context) error {
		return s.assets.Approve(ctx, cmd.Token, cmd.Owner, cmd.Spender, cmd.Amount)
	})
}
