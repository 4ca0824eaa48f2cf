package application_test

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/basketfund/internal/basket/application"
	"github.com/wyfcoding/basketfund/internal/basket/domain"
	"github.com/wyfcoding/basketfund/internal/basket/infrastructure/auth"
	"github.com/wyfcoding/basketfund/internal/basket/infrastructure/ledger"
	"github.com/wyfcoding/basketfund/internal/basket/infrastructure/oracle"
	"github.com/wyfcoding/basketfund/internal/basket/infrastructure/persistence"
	"github.com/wyfcoding/basketfund/internal/basket/infrastructure/venue"
	"github.com/wyfcoding/basketfund/pkg/contextx"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type capturePublisher struct {
	mu     sync.Mutex
	events []domain.DomainEvent
}

func (p *capturePublisher) Publish(_ context.Context, e domain.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *capturePublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventName()
	}
	return out
}

type suite struct {
	ctx       context.Context
	ledger    *ledger.Gorm
	cmd       *application.CommandService
	query     *application.QueryService
	published *capturePublisher
}

func newSuite(t *testing.T) *suite {
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
	require.NoError(t, persistence.Migrate(gdb))

	l := ledger.NewGorm(gdb)
	require.NoError(t, l.AutoMigrate())
	v := venue.NewSimulated(l)
	prices := oracle.NewStatic(map[string]decimal.Decimal{"A/USD": d(3), "B/USD": d(8)})

	accounting := domain.NewAccountingEngine(l, l)
	quoter := domain.NewPathQuoter(v, []uint32{500, 3000}, nil)
	published := &capturePublisher{}
	deps := application.Dependencies{
		Funds:      persistence.NewGormFundRepository(gdb),
		Records:    persistence.NewGormRecordRepository(gdb),
		UnitOfWork: persistence.NewTransactionManager(gdb),
		Shares:     l,
		Assets:     l,
		Accounting: accounting,
		Quoter:     quoter,
		Rebalancer: domain.NewRebalanceEngine(accounting, quoter, prices, v),
		Router:     domain.NewSwapExecutionRouter(accounting, quoter, l, v),
		Access:     auth.NewStaticAccessControl([]string{"admin"}),
		Publisher:  published,
		Logger:     slog.Default(),
	}
	s := &suite{
		ctx:       context.Background(),
		ledger:    l,
		cmd:       application.NewCommandService(deps),
		query:     application.NewQueryService(deps),
		published: published,
	}

	_, err = s.cmd.CreateFund(contextx.WithCaller(s.ctx, "admin"), application.CreateFundCommand{
		FundID:            "bkt",
		Name:              "Test Basket",
		Symbol:            "BKT",
		SettlementAsset:   "USD",
		FeeRecipient:      "treasury",
		InvestFee:         1000,
		MinMintAmount:     d(100),
		RebalanceInterval: time.Hour,
		RebalanceDeviance: 50_000,
		Constituents: []domain.Constituent{
			{Asset: "A", SeedPerShare: decimal.RequireFromString("2000000000000000000"), Weight: 600_000, PriceFeed: "A/USD"},
			{Asset: "B", SeedPerShare: decimal.RequireFromString("500000000000000000"), Weight: 400_000, PriceFeed: "B/USD"},
		},
	})
	require.NoError(t, err)
	return s
}

func (s *suite) fund(t *testing.T, account string, a, b int64) {
	t.Helper()
	require.NoError(t, s.ledger.Mint(s.ctx, "A", account, d(a)))
	require.NoError(t, s.ledger.Mint(s.ctx, "B", account, d(b)))
	require.NoError(t, s.cmd.Approve(s.ctx, application.ApproveCommand{Token: "A", Owner: account, Spender: "fund:bkt", Amount: d(a)}))
	require.NoError(t, s.cmd.Approve(s.ctx, application.ApproveCommand{Token: "B", Owner: account, Spender: "fund:bkt", Amount: d(b)}))
}

func (s *suite) balance(t *testing.T, token, account string) string {
	t.Helper()
	b, err := s.query.Balance(s.ctx, token, account)
	require.NoError(t, err)
	return b.String()
}

func TestCreateFund_Duplicate(t *testing.T) {
	s := newSuite(t)
	_, err := s.cmd.CreateFund(contextx.WithCaller(s.ctx, "admin"), application.CreateFundCommand{
		FundID: "bkt", Name: "Again", Symbol: "BKT2", SettlementAsset: "USD", FeeRecipient: "treasury",
		Constituents: []domain.Constituent{{Asset: "A"}},
	})
	assert.ErrorIs(t, err, domain.ErrFundExists)
}

func TestCreateFund_RequiresAdmin(t *testing.T) {
	s := newSuite(t)
	cmd := application.CreateFundCommand{
		FundID: "evil", Name: "Evil", Symbol: "EVL", SettlementAsset: "USD", FeeRecipient: "mallory",
		Constituents: []domain.Constituent{{Asset: "A", Weight: 1_000_000}},
	}

	_, err := s.cmd.CreateFund(s.ctx, cmd)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = s.cmd.CreateFund(contextx.WithCaller(s.ctx, "mallory"), cmd)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = s.query.GetFund(s.ctx, "evil")
	assert.ErrorIs(t, err, domain.ErrFundNotFound)

	fund, err := s.cmd.CreateFund(contextx.WithCaller(s.ctx, "admin"), cmd)
	require.NoError(t, err)
	assert.Equal(t, "fund:evil", fund.Address)
}

func TestCreateFund_Collisions(t *testing.T) {
	s := newSuite(t)
	admin := contextx.WithCaller(s.ctx, "admin")
	require.NoError(t, s.ledger.Mint(s.ctx, "USD", "bob", d(1_000_000)))
	require.NoError(t, s.ledger.Mint(s.ctx, "GOLD", "bob", d(10)))
	require.NoError(t, s.ledger.Mint(s.ctx, "C", "fund:dusty", d(5)))

	tests := []struct {
		name     string
		fundID   string
		symbol   string
		settle   string
		constits []domain.Constituent
		want     error
	}{
		{"symbol of existing fund", "f1", "BKT", "USD", []domain.Constituent{{Asset: "A"}}, domain.ErrFundExists},
		{"symbol is a token with supply", "f2", "GOLD", "USD", []domain.Constituent{{Asset: "A"}}, domain.ErrSymbolInUse},
		{"symbol is a constituent of another fund", "f3", "A", "USD", []domain.Constituent{{Asset: "B"}}, domain.ErrSymbolInUse},
		{"symbol is settlement of another fund", "f4", "USD", "B", []domain.Constituent{{Asset: "A"}}, domain.ErrSymbolInUse},
		{"symbol equals own settlement", "f5", "XYZ", "XYZ", []domain.Constituent{{Asset: "A"}}, domain.ErrInvalidFund},
		{"symbol equals own constituent", "f6", "XYZ", "USD", []domain.Constituent{{Asset: "XYZ"}}, domain.ErrInvalidFund},
		{"custody address already funded", "dusty", "DST", "USD", []domain.Constituent{{Asset: "C"}}, domain.ErrAddressInUse},
		{"custody address is another fund's staging", "bkt/staging", "STG", "USD", []domain.Constituent{{Asset: "A"}}, domain.ErrAddressInUse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.cmd.CreateFund(admin, application.CreateFundCommand{
				FundID: tt.fundID, Name: tt.name, Symbol: tt.symbol, SettlementAsset: tt.settle,
				FeeRecipient: "treasury", Constituents: tt.constits,
			})
			assert.ErrorIs(t, err, tt.want)
			_, err = s.query.GetFund(s.ctx, tt.fundID)
			assert.ErrorIs(t, err, domain.ErrFundNotFound)
		})
	}
	assert.Equal(t, "1000000", s.balance(t, "USD", "bob"))
}

func TestInvestAndRedeem(t *testing.T) {
	s := newSuite(t)
	s.fund(t, "alice", 2000, 500)

	inv, err := s.cmd.Invest(s.ctx, application.InvestCommand{FundID: "bkt", Payer: "alice", Recipient: "alice", MintAmount: d(1000)})
	require.NoError(t, err)
	assert.Equal(t, "1", inv.Fee.String())
	assert.Equal(t, "2000", inv.Amounts.Get("A").String())
	assert.Equal(t, "500", inv.Amounts.Get("B").String())
	assert.Equal(t, "999", s.balance(t, "BKT", "alice"))
	assert.Equal(t, "1", s.balance(t, "BKT", "treasury"))
	assert.Equal(t, "0", s.balance(t, "A", "alice"))

	view, err := s.query.GetFund(s.ctx, "bkt")
	require.NoError(t, err)
	assert.Equal(t, "1000", view.TotalSupply.String())
	assert.Equal(t, "2000", view.Reserves.Get("A").String())

	red, err := s.cmd.Redeem(s.ctx, application.RedeemCommand{FundID: "bkt", Owner: "alice", Recipient: "bob", BurnAmount: d(400)})
	require.NoError(t, err)
	assert.Equal(t, "800", red.Amounts.Get("A").String())
	assert.Equal(t, "800", s.balance(t, "A", "bob"))
	assert.Equal(t, "200", s.balance(t, "B", "bob"))
	assert.Equal(t, "599", s.balance(t, "BKT", "alice"))

	invs, err := s.query.ListInvestments(s.ctx, "bkt", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), invs.Pagination.Total)
	assert.Equal(t, inv.RecordID, invs.Items[0].RecordID)
	reds, err := s.query.ListRedemptions(s.ctx, "bkt", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, red.RecordID, reds.Items[0].RecordID)

	assert.Equal(t, []string{"basket.invested", "basket.redeemed"}, s.published.names())
}

func TestInvest_FailureRollsBackEverything(t *testing.T) {
	s := newSuite(t)
	s.fund(t, "alice", 2000, 500)
	require.NoError(t, s.cmd.Approve(s.ctx, application.ApproveCommand{Token: "B", Owner: "alice", Spender: "fund:bkt", Amount: d(499)}))

	_, err := s.cmd.Invest(s.ctx, application.InvestCommand{FundID: "bkt", Payer: "alice", Recipient: "alice", MintAmount: d(1000)})
	assert.ErrorIs(t, err, domain.ErrInsufficientAllowance)

	assert.Equal(t, "0", s.balance(t, "BKT", "alice"))
	assert.Equal(t, "2000", s.balance(t, "A", "alice"))
	allowance, err := s.query.Allowance(s.ctx, "A", "alice", "fund:bkt")
	require.NoError(t, err)
	assert.Equal(t, "2000", allowance.String())
	page, err := s.query.ListInvestments(s.ctx, "bkt", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.Pagination.Total)
	assert.Empty(t, s.published.names())
}

func TestInvest_BelowMinimum(t *testing.T) {
	s := newSuite(t)
	_, err := s.query.InvestQuote(s.ctx, "bkt", d(99))
	assert.ErrorIs(t, err, domain.ErrBelowMinimumMint)

	amounts, err := s.query.InvestQuote(s.ctx, "bkt", d(100))
	require.NoError(t, err)
	assert.Equal(t, "200", amounts.Get("A").String())
	assert.Equal(t, "50", amounts.Get("B").String())
}

func TestRebalance_RecordsAndEnforcesInterval(t *testing.T) {
	s := newSuite(t)
	s.fund(t, "alice", 2000, 500)
	_, err := s.cmd.Invest(s.ctx, application.InvestCommand{FundID: "bkt", Payer: "alice", Recipient: "alice", MintAmount: d(1000)})
	require.NoError(t, err)

	nav, err := s.query.NetAssetValue(s.ctx, "bkt")
	require.NoError(t, err)
	assert.Equal(t, "10000", nav.Snapshot.Total.String())
	assert.Equal(t, "10", nav.NAVPerShare.String())

	plan, err := s.query.RebalancePlan(s.ctx, "bkt", time.Now())
	require.NoError(t, err)
	assert.True(t, plan.CanRebalance)
	for _, a := range plan.Allocations {
		assert.True(t, a.DeltaAmount.IsZero(), a.Asset)
	}

	rec, err := s.cmd.Rebalance(s.ctx, "bkt")
	require.NoError(t, err)
	assert.Empty(t, rec.Trades)

	_, err = s.cmd.Rebalance(s.ctx, "bkt")
	assert.ErrorIs(t, err, domain.ErrNotRebalanceTime)

	view, err := s.query.GetFund(s.ctx, "bkt")
	require.NoError(t, err)
	require.NotNil(t, view.Fund.LastRebalanceAt)
	assert.False(t, view.NextRebalanceAt.IsZero())

	page, err := s.query.ListRebalances(s.ctx, "bkt", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Pagination.Total)
	assert.Contains(t, s.published.names(), "basket.rebalanced")
}

func TestAdminOperations_RequireAuthorization(t *testing.T) {
	s := newSuite(t)

	_, err := s.cmd.UpdateFees(contextx.WithCaller(s.ctx, "mallory"), "bkt", 0, 0)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = s.cmd.UpdateFees(s.ctx, "bkt", 0, 0)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	admin := contextx.WithCaller(s.ctx, "admin")
	fund, err := s.cmd.UpdateFees(admin, "bkt", 2000, 3000)
	require.NoError(t, err)
	assert.Equal(t, uint32(3000), fund.RedeemFee)

	require.Len(t, s.published.events, 1)
	ev, ok := s.published.events[0].(*domain.ConfigChangedEvent)
	require.True(t, ok)
	assert.Equal(t, "admin", ev.Caller)
	assert.Equal(t, domain.ActionUpdateFees, ev.Action)

	view, err := s.query.GetFund(s.ctx, "bkt")
	require.NoError(t, err)
	assert.Equal(t, uint32(2000), view.Fund.InvestFee)
}

func TestAddAndRemoveAsset(t *testing.T) {
	s := newSuite(t)
	admin := contextx.WithCaller(s.ctx, "admin")

	_, err := s.cmd.AddAsset(admin, "bkt", domain.Constituent{Asset: "C", PriceFeed: "C/USD"})
	require.NoError(t, err)
	_, err = s.cmd.AddAsset(admin, "bkt", domain.Constituent{Asset: "C"})
	assert.ErrorIs(t, err, domain.ErrAssetExists)

	_, err = s.cmd.RemoveAsset(admin, "bkt", "A")
	assert.ErrorIs(t, err, domain.ErrAssetInUse)

	// 权重为零但仍有托管余额
	require.NoError(t, s.ledger.Mint(s.ctx, "C", "fund:bkt", d(1)))
	_, err = s.cmd.RemoveAsset(admin, "bkt", "C")
	assert.ErrorIs(t, err, domain.ErrAssetInUse)
	require.NoError(t, s.ledger.Burn(s.ctx, "C", "fund:bkt", d(1)))

	fund, err := s.cmd.RemoveAsset(admin, "bkt", "C")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, fund.Assets())

	_, err = s.cmd.RemoveAsset(admin, "bkt", "Z")
	assert.ErrorIs(t, err, domain.ErrAssetNotFound)
}

func TestApprove_RequiresFields(t *testing.T) {
	s := newSuite(t)
	err := s.cmd.Approve(s.ctx, application.ApproveCommand{Token: "A", Owner: "alice", Amount: d(1)})
	assert.ErrorIs(t, err, application.ErrInvalidArgument)
}

func TestFundLocker_SerializesPerFund(t *testing.T) {
	locker := application.NewFundLocker(nil, 0)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "bkt")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		release, err := locker.Lock(ctx, "bkt")
		if err == nil {
			release()
		}
		close(acquired)
	}()

	other, err := locker.Lock(ctx, "other")
	require.NoError(t, err)
	other()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()
	<-acquired
}

type busyLease struct{ calls int }

func (b *busyLease) Lock(context.Context, string, time.Duration) (func(context.Context) error, error) {
	b.calls++
	return nil, fmt.Errorf("held elsewhere")
}

func TestFundLocker_LeaseUnavailable(t *testing.T) {
	lease := &busyLease{}
	locker := application.NewFundLocker(lease, time.Second)

	_, err := locker.Lock(context.Background(), "bkt")
	assert.ErrorIs(t, err, application.ErrFundBusy)
	assert.Equal(t, 5, lease.calls)

	// 本地互斥已释放
	lease2 := application.NewFundLocker(nil, 0)
	release, err := lease2.Lock(context.Background(), "bkt")
	require.NoError(t, err)
	release()
}
