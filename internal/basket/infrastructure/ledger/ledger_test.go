package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/basketfund/internal/basket/domain"
	"github.com/wyfcoding/basketfund/internal/basket/infrastructure/ledger"
	"github.com/wyfcoding/basketfund/pkg/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type ledgerUnderTest interface {
	domain.ShareLedger
	domain.AssetLedger
}

type atomicFunc func(ctx context.Context, fn func(ctx context.Context) error) error

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return gdb
}

func implementations(t *testing.T) map[string]func(t *testing.T) (ledgerUnderTest, atomicFunc) {
	return map[string]func(t *testing.T) (ledgerUnderTest, atomicFunc){
		"memory": func(t *testing.T) (ledgerUnderTest, atomicFunc) {
			m := ledger.NewMemory()
			return m, m.Atomic
		},
		"gorm": func(t *testing.T) (ledgerUnderTest, atomicFunc) {
			gdb := openSQLite(t)
			g := ledger.NewGorm(gdb)
			require.NoError(t, g.AutoMigrate())
			wrapped := &db.DB{DB: gdb}
			return g, func(ctx context.Context, fn func(ctx context.Context) error) error {
				return wrapped.WithTx(ctx, func(ctx context.Context, _ *gorm.DB) error { return fn(ctx) })
			}
		},
	}
}

func balance(t *testing.T, l ledgerUnderTest, token, account string) string {
	t.Helper()
	b, err := l.BalanceOf(context.Background(), token, account)
	require.NoError(t, err)
	return b.String()
}

func supply(t *testing.T, l ledgerUnderTest, token string) string {
	t.Helper()
	s, err := l.TotalSupply(context.Background(), token)
	require.NoError(t, err)
	return s.String()
}

func TestLedger_MintBurnTransfer(t *testing.T) {
	for name, open := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			l, _ := open(t)
			ctx := context.Background()

			assert.Equal(t, "0", balance(t, l, "BKT", "alice"))
			assert.Equal(t, "0", supply(t, l, "BKT"))

			require.NoError(t, l.Mint(ctx, "BKT", "alice", d(100)))
			require.NoError(t, l.Mint(ctx, "BKT", "bob", d(50)))
			require.NoError(t, l.Transfer(ctx, "BKT", "alice", "bob", d(30)))
			require.NoError(t, l.Burn(ctx, "BKT", "bob", d(20)))

			assert.Equal(t, "70", balance(t, l, "BKT", "alice"))
			assert.Equal(t, "60", balance(t, l, "BKT", "bob"))
			assert.Equal(t, "130", supply(t, l, "BKT"))

			err := l.Transfer(ctx, "BKT", "alice", "bob", d(71))
			assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
			err = l.Burn(ctx, "BKT", "carol", d(1))
			assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
			assert.Equal(t, "70", balance(t, l, "BKT", "alice"))

			err = l.Mint(ctx, "BKT", "alice", decimal.RequireFromString("1.5"))
			assert.ErrorIs(t, err, domain.ErrInvalidAmount)
			err = l.Transfer(ctx, "BKT", "alice", "bob", d(-1))
			assert.ErrorIs(t, err, domain.ErrInvalidAmount)
		})
	}
}

func TestLedger_Allowances(t *testing.T) {
	for name, open := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			l, _ := open(t)
			ctx := context.Background()
			require.NoError(t, l.Mint(ctx, "A", "alice", d(100)))

			err := l.TransferFrom(ctx, "A", "fund", "alice", "fund", d(1))
			assert.ErrorIs(t, err, domain.ErrInsufficientAllowance)

			require.NoError(t, l.Approve(ctx, "A", "alice", "fund", d(10)))
			require.NoError(t, l.Approve(ctx, "A", "alice", "fund", d(40)))
			allowance, err := l.Allowance(ctx, "A", "alice", "fund")
			require.NoError(t, err)
			assert.Equal(t, "40", allowance.String())

			require.NoError(t, l.TransferFrom(ctx, "A", "fund", "alice", "custody", d(25)))
			assert.Equal(t, "75", balance(t, l, "A", "alice"))
			assert.Equal(t, "25", balance(t, l, "A", "custody"))
			allowance, err = l.Allowance(ctx, "A", "alice", "fund")
			require.NoError(t, err)
			assert.Equal(t, "15", allowance.String())

			err = l.TransferFrom(ctx, "A", "fund", "alice", "custody", d(16))
			assert.ErrorIs(t, err, domain.ErrInsufficientAllowance)
		})
	}
}

func TestLedger_AtomicRollsBack(t *testing.T) {
	for name, open := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			l, atomic := open(t)
			ctx := context.Background()
			require.NoError(t, l.Mint(ctx, "A", "alice", d(100)))
			require.NoError(t, l.Approve(ctx, "A", "alice", "fund", d(100)))

			boom := errors.New("boom")
			err := atomic(ctx, func(ctx context.Context) error {
				if err := l.TransferFrom(ctx, "A", "fund", "alice", "custody", d(60)); err != nil {
					return err
				}
				if err := l.Mint(ctx, "BKT", "alice", d(5)); err != nil {
					return err
				}
				return boom
			})
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, "100", balance(t, l, "A", "alice"))
			assert.Equal(t, "0", balance(t, l, "A", "custody"))
			assert.Equal(t, "0", supply(t, l, "BKT"))
			allowance, err := l.Allowance(ctx, "A", "alice", "fund")
			require.NoError(t, err)
			assert.Equal(t, "100", allowance.String())

			err = atomic(ctx, func(ctx context.Context) error {
				return l.Transfer(ctx, "A", "alice", "custody", d(60))
			})
			require.NoError(t, err)
			assert.Equal(t, "60", balance(t, l, "A", "custody"))
		})
	}
}

func TestMemory_NestedAtomicJoinsOuter(t *testing.T) {
	m := ledger.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Mint(ctx, "A", "alice", d(10)))

	err := m.Atomic(ctx, func(ctx context.Context) error {
		require.NoError(t, m.Atomic(ctx, func(ctx context.Context) error {
			return m.Transfer(ctx, "A", "alice", "bob", d(4))
		}))
		return m.Transfer(ctx, "A", "alice", "bob", d(7))
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

	b, err := m.BalanceOf(ctx, "A", "bob")
	require.NoError(t, err)
	assert.True(t, b.IsZero())
}

func TestGorm_LockBalance(t *testing.T) {
	ctx := context.Background()
	gdb := openSQLite(t)
	g := ledger.NewGorm(gdb)
	require.NoError(t, g.AutoMigrate())
	require.NoError(t, g.Mint(ctx, "USD", "pool", decimal.NewFromInt(42)))

	b, err := g.LockBalance(ctx, "USD", "pool")
	require.NoError(t, err)
	assert.Equal(t, "42", b.String())

	wrapped := &db.DB{DB: gdb}
	require.NoError(t, wrapped.WithTx(ctx, func(ctx context.Context, _ *gorm.DB) error {
		b, err := g.LockBalance(ctx, "USD", "pool")
		if err != nil {
			return err
		}
		assert.Equal(t, "42", b.String())
		missing, err := g.LockBalance(ctx, "USD", "nobody")
		if err != nil {
			return err
		}
		assert.True(t, missing.IsZero())
		return nil
	}))
}
