package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/basketfund/internal/basket/domain"
	"github.com/wyfcoding/basketfund/pkg/contextx"
	"github.com/wyfcoding/basketfund/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BalanceRow 账户余额
type BalanceRow struct {
	ID        uint            `gorm:"primarykey"`
	Token     string          `gorm:"column:token;type:varchar(64);uniqueIndex:idx_token_account;not null"`
	Account   string          `gorm:"column:account;type:varchar(128);uniqueIndex:idx_token_account;not null"`
	Amount    decimal.Decimal `gorm:"column:amount;type:varchar(80);not null"`
	UpdatedAt time.Time
}

// TableName 余额表
func (BalanceRow) TableName() string { return "ledger_balances" }

// AllowanceRow 授权额度
type AllowanceRow struct {
	ID        uint            `gorm:"primarykey"`
	Token     string          `gorm:"column:token;type:varchar(64);uniqueIndex:idx_allowance;not null"`
	Owner     string          `gorm:"column:owner;type:varchar(128);uniqueIndex:idx_allowance;not null"`
	Spender   string          `gorm:"column:spender;type:varchar(128);uniqueIndex:idx_allowance;not null"`
	Amount    decimal.Decimal `gorm:"column:amount;type:varchar(80);not null"`
	UpdatedAt time.Time
}

// TableName 授权表
func (AllowanceRow) TableName() string { return "ledger_allowances" }

// SupplyRow 代币总量
type SupplyRow struct {
	ID        uint            `gorm:"primarykey"`
	Token     string          `gorm:"column:token;type:varchar(64);uniqueIndex;not null"`
	Amount    decimal.Decimal `gorm:"column:amount;type:varchar(80);not null"`
	UpdatedAt time.Time
}

// TableName 总量表
func (SupplyRow) TableName() string { return "ledger_supplies" }

// Gorm 数据库账本。
// 调用方通过 context 中的事务句柄把账本变更并入同一个数据库事务。
type Gorm struct {
	db *gorm.DB
}

// NewGorm 创建数据库账本
func NewGorm(gdb *gorm.DB) *Gorm {
	return &Gorm{db: gdb}
}

// AutoMigrate 创建账本表
func (g *Gorm) AutoMigrate() error {
	return g.db.AutoMigrate(&BalanceRow{}, &AllowanceRow{}, &SupplyRow{})
}

// BalanceOf 查询余额
func (g *Gorm) BalanceOf(ctx context.Context, token, account string) (decimal.Decimal, error) {
	var row BalanceRow
	err := db.Conn(ctx, g.db).Where("token = ? AND account = ?", token, account).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return row.Amount, nil
}

// LockBalance 在 context 中的事务内以 SELECT ... FOR UPDATE 读取余额，
// 没有事务或数据库为 sqlite 时退化为普通读取
func (g *Gorm) LockBalance(ctx context.Context, token, account string) (decimal.Decimal, error) {
	conn := db.Conn(ctx, g.db)
	if _, ok := contextx.GetTx(ctx).(*gorm.DB); ok && g.db.Dialector.Name() != "sqlite" {
		conn = conn.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row BalanceRow
	err := conn.Where("token = ? AND account = ?", token, account).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return row.Amount, nil
}

// TotalSupply 查询总量
func (g *Gorm) TotalSupply(ctx context.Context, token string) (decimal.Decimal, error) {
	var row SupplyRow
	err := db.Conn(ctx, g.db).Where("token = ?", token).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return row.Amount, nil
}

// Mint 增发
func (g *Gorm) Mint(ctx context.Context, token, account string, amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return g.inTx(ctx, func(tx *gorm.DB) error {
		if err := g.adjustBalance(tx, token, account, amount); err != nil {
			return err
		}
		return g.adjustSupply(tx, token, amount)
	})
}

// Burn 销毁
func (g *Gorm) Burn(ctx context.Context, token, account string, amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return g.inTx(ctx, func(tx *gorm.DB) error {
		if err := g.adjustBalance(tx, token, account, amount.Neg()); err != nil {
			return err
		}
		return g.adjustSupply(tx, token, amount.Neg())
	})
}

// Transfer 划转
func (g *Gorm) Transfer(ctx context.Context, token, from, to string, amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return g.inTx(ctx, func(tx *gorm.DB) error {
		return g.move(tx, token, from, to, amount)
	})
}

// TransferFrom 在授权额度内代为划转
func (g *Gorm) TransferFrom(ctx context.Context, token, spender, owner, to string, amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	return g.inTx(ctx, func(tx *gorm.DB) error {
		var row AllowanceRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("token = ? AND owner = ? AND spender = ?", token, owner, spender).
			First(&row).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if row.ID == 0 || row.Amount.LessThan(amount) {
			return fmt.Errorf("%w: %s %s -> %s has %s, need %s", domain.ErrInsufficientAllowance, token, owner, spender, row.Amount, amount)
		}
		if err := tx.Model(&row).Update("amount", row.Amount.Sub(amount)).Error; err != nil {
			return err
		}
		return g.move(tx, token, owner, to, amount)
	})
}

// Approve 设置授权额度
func (g *Gorm) Approve(ctx context.Context, token, owner, spender string, amount decimal.Decimal) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	row := AllowanceRow{Token: token, Owner: owner, Spender: spender, Amount: amount}
	return db.Conn(ctx, g.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}, {Name: "owner"}, {Name: "spender"}},
		DoUpdates: clause.AssignmentColumns([]string{"amount", "updated_at"}),
	}).Create(&row).Error
}

// Allowance 查询授权额度
func (g *Gorm) Allowance(ctx context.Context, token, owner, spender string) (decimal.Decimal, error) {
	var row AllowanceRow
	err := db.Conn(ctx, g.db).Where("token = ? AND owner = ? AND spender = ?", token, owner, spender).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return row.Amount, nil
}

// inTx 复用 context 中的事务，没有时开启新事务
func (g *Gorm) inTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if _, ok := contextx.GetTx(ctx).(*gorm.DB); ok {
		return fn(db.Conn(ctx, g.db))
	}
	return g.db.WithContext(ctx).Transaction(fn)
}

func (g *Gorm) move(tx *gorm.DB, token, from, to string, amount decimal.Decimal) error {
	if err := g.adjustBalance(tx, token, from, amount.Neg()); err != nil {
		return err
	}
	return g.adjustBalance(tx, token, to, amount)
}

func (g *Gorm) adjustBalance(tx *gorm.DB, token, account string, delta decimal.Decimal) error {
	var row BalanceRow
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("token = ? AND account = ?", token, account).
		First(&row).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	next := row.Amount.Add(delta)
	if next.IsNegative() {
		return insufficient(token, account, row.Amount, delta.Neg())
	}
	if row.ID == 0 {
		return tx.Create(&BalanceRow{Token: token, Account: account, Amount: next}).Error
	}
	return tx.Model(&row).Update("amount", next).Error
}

func (g *Gorm) adjustSupply(tx *gorm.DB, token string, delta decimal.Decimal) error {
	var row SupplyRow
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("token = ?", token).First(&row).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	next := row.Amount.Add(delta)
	if next.IsNegative() {
		return fmt.Errorf("%w: supply of %s would become %s", domain.ErrInsufficientBalance, token, next)
	}
	if row.ID == 0 {
		return tx.Create(&SupplyRow{Token: token, Amount: next}).Error
	}
	return tx.Model(&row).Update("amount", next).Error
}
