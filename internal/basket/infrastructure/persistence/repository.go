// Package persistence 篮子基金仓储与事务管理的 GORM 实现
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/basketfund/internal/basket/domain"
	"github.com/wyfcoding/basketfund/pkg/contextx"
	"github.com/wyfcoding/basketfund/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migrate 创建基金与记录表
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Fund{},
		&domain.Constituent{},
		&domain.InvestmentRecord{},
		&domain.RedemptionRecord{},
		&domain.RebalanceRecord{},
	)
}

// baseRepository 基础仓储，优先使用 context 中的事务句柄
type baseRepository struct {
	db *gorm.DB
}

func (r *baseRepository) getDB(ctx context.Context) *gorm.DB {
	return db.Conn(ctx, r.db)
}

// TransactionManager 事务管理器，实现 domain.UnitOfWork
type TransactionManager struct {
	db *db.DB
}

// NewTransactionManager 创建事务管理器
func NewTransactionManager(gdb *gorm.DB) *TransactionManager {
	return &TransactionManager{db: &db.DB{DB: gdb}}
}

// Atomic 在事务中执行 fn；context 中已有事务时并入该事务
func (tm *TransactionManager) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx, ok := contextx.GetTx(ctx).(*gorm.DB); ok && tx != nil {
		return fn(ctx)
	}
	return tm.db.WithTx(ctx, func(ctx context.Context, _ *gorm.DB) error {
		return fn(ctx)
	})
}

// --- Fund Repository ---

// GormFundRepository 基金仓储
type GormFundRepository struct {
	baseRepository
}

// NewGormFundRepository 创建基金仓储
func NewGormFundRepository(db *gorm.DB) *GormFundRepository {
	return &GormFundRepository{baseRepository{db: db}}
}

func withConstituents(db *gorm.DB) *gorm.DB {
	return db.Preload("Constituents", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	})
}

// Create 新建基金及其成分
func (r *GormFundRepository) Create(ctx context.Context, fund *domain.Fund) error {
	var count int64
	if err := r.getDB(ctx).Model(&domain.Fund{}).
		Where("fund_id = ? OR symbol = ?", fund.FundID, fund.Symbol).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", domain.ErrFundExists, fund.FundID)
	}
	return r.getDB(ctx).Create(fund).Error
}

// Save 保存基金配置；不在篮子中的成分行被物理删除，其余按 (fund_id, asset) 更新
func (r *GormFundRepository) Save(ctx context.Context, fund *domain.Fund) error {
	db := r.getDB(ctx)
	if err := db.Omit(clause.Associations).Save(fund).Error; err != nil {
		return err
	}

	var existing []domain.Constituent
	if err := db.Where("fund_id = ?", fund.FundID).Find(&existing).Error; err != nil {
		return err
	}
	ids := make(map[string]uint, len(existing))
	for _, c := range existing {
		ids[c.Asset] = c.ID
	}

	for i := range fund.Constituents {
		c := &fund.Constituents[i]
		c.FundID = fund.FundID
		if c.ID == 0 {
			c.ID = ids[c.Asset]
		}
		delete(ids, c.Asset)
		if err := db.Save(c).Error; err != nil {
			return err
		}
	}
	if len(ids) == 0 {
		return nil
	}
	stale := make([]uint, 0, len(ids))
	for _, id := range ids {
		stale = append(stale, id)
	}
	return db.Unscoped().Delete(&domain.Constituent{}, stale).Error
}

// GetByFundID 按业务 ID 加载基金
func (r *GormFundRepository) GetByFundID(ctx context.Context, fundID string) (*domain.Fund, error) {
	var fund domain.Fund
	err := withConstituents(r.getDB(ctx)).Where("fund_id = ?", fundID).First(&fund).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrFundNotFound, fundID)
	}
	if err != nil {
		return nil, err
	}
	return &fund, nil
}

// List 全部基金
func (r *GormFundRepository) List(ctx context.Context) ([]*domain.Fund, error) {
	var funds []*domain.Fund
	if err := withConstituents(r.getDB(ctx)).Order("id ASC").Find(&funds).Error; err != nil {
		return nil, err
	}
	return funds, nil
}

// --- Record Repository ---

// GormRecordRepository 申购、赎回与再平衡记录仓储
type GormRecordRepository struct {
	baseRepository
}

// NewGormRecordRepository 创建记录仓储
func NewGormRecordRepository(db *gorm.DB) *GormRecordRepository {
	return &GormRecordRepository{baseRepository{db: db}}
}

func (r *GormRecordRepository) SaveInvestment(ctx context.Context, rec *domain.InvestmentRecord) error {
	return r.getDB(ctx).Create(rec).Error
}

func (r *GormRecordRepository) SaveRedemption(ctx context.Context, rec *domain.RedemptionRecord) error {
	return r.getDB(ctx).Create(rec).Error
}

func (r *GormRecordRepository) SaveRebalance(ctx context.Context, rec *domain.RebalanceRecord) error {
	return r.getDB(ctx).Create(rec).Error
}

func (r *GormRecordRepository) ListInvestments(ctx context.Context, fundID string, limit, offset int) ([]*domain.InvestmentRecord, int64, error) {
	var out []*domain.InvestmentRecord
	total, err := listByFund(r.getDB(ctx), &domain.InvestmentRecord{}, &out, fundID, limit, offset)
	return out, total, err
}

func (r *GormRecordRepository) ListRedemptions(ctx context.Context, fundID string, limit, offset int) ([]*domain.RedemptionRecord, int64, error) {
	var out []*domain.RedemptionRecord
	total, err := listByFund(r.getDB(ctx), &domain.RedemptionRecord{}, &out, fundID, limit, offset)
	return out, total, err
}

func (r *GormRecordRepository) ListRebalances(ctx context.Context, fundID string, limit, offset int) ([]*domain.RebalanceRecord, int64, error) {
	var out []*domain.RebalanceRecord
	total, err := listByFund(r.getDB(ctx), &domain.RebalanceRecord{}, &out, fundID, limit, offset)
	return out, total, err
}

func listByFund(db *gorm.DB, model, dest any, fundID string, limit, offset int) (int64, error) {
	query := db.Model(model).Where("fund_id = ?", fundID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(dest).Error; err != nil {
		return 0, err
	}
	return total, nil
}
