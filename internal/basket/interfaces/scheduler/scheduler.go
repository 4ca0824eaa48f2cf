// Package scheduler 定时对全部基金触发再平衡
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"github.com/wyfcoding/basketfund/internal/basket/application"
	"github.com/wyfcoding/basketfund/internal/basket/domain"
)

// FundLister 列出基金
type FundLister interface {
	ListFunds(ctx context.Context) ([]*application.FundView, error)
}

// Rebalancer 触发单只基金再平衡
type Rebalancer interface {
	Rebalance(ctx context.Context, fundID string) (*domain.RebalanceRecord, error)
}

// Scheduler 再平衡定时任务
type Scheduler struct {
	cron       *cron.Cron
	funds      FundLister
	rebalancer Rebalancer
	ctx        context.Context
	logger     *slog.Logger
}

// New 创建调度器，cron 表达式带秒字段
func New(ctx context.Context, funds FundLister, rebalancer Rebalancer, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds()),
		funds:      funds,
		rebalancer: rebalancer,
		ctx:        ctx,
		logger:     logger.With("module", "rebalance_scheduler"),
	}
}

// Register 注册再平衡任务
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, func() { s.RunOnce(s.ctx) }); err != nil {
		return fmt.Errorf("register rebalance task: %w", err)
	}
	return nil
}

// Start 启动调度
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop 停止调度并等待运行中的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// RunOnce 依次尝试再平衡每只基金，返回成功执行的数量。
// 间隔未到的基金静默跳过，单只基金失败不影响其他基金。
func (s *Scheduler) RunOnce(ctx context.Context) int {
	funds, err := s.funds.ListFunds(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to list funds", "error", err)
		return 0
	}
	done := 0
	for _, f := range funds {
		id := f.Fund.FundID
		rec, err := s.rebalancer.Rebalance(ctx, id)
		switch {
		case err == nil:
			done++
			s.logger.InfoContext(ctx, "fund rebalanced", "fund_id", id, "trades", len(rec.Trades))
		case errors.Is(err, domain.ErrNotRebalanceTime):
			s.logger.DebugContext(ctx, "rebalance not due", "fund_id", id)
		default:
			s.logger.WarnContext(ctx, "rebalance failed", "fund_id", id, "error", err)
		}
	}
	return done
}
