package domain_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/basketfund/internal/basket/domain"
	"github.com/wyfcoding/basketfund/internal/basket/infrastructure/ledger"
	"github.com/wyfcoding/basketfund/internal/basket/infrastructure/oracle"
	"github.com/wyfcoding/basketfund/internal/basket/infrastructure/venue"
)

const (
	usd      = "USD"
	fundAddr = "fund:bkt"
	treasury = "treasury"
	alice    = "alice"
	bob      = "bob"
	lp       = "lp"
)

var feeTiers = []uint32{100, 500, 3000, 10000}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func seed(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type env struct {
	t          *testing.T
	ctx        context.Context
	ledger     *ledger.Memory
	venue      *venue.Simulated
	oracle     *oracle.Static
	accounting *domain.AccountingEngine
	quoter     *domain.PathQuoter
	rebalancer *domain.RebalanceEngine
	router     *domain.SwapExecutionRouter
	now        time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		t:      t,
		ctx:    context.Background(),
		ledger: ledger.NewMemory(),
		oracle: oracle.NewStatic(nil),
		now:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	e.venue = venue.NewSimulated(e.ledger)
	e.accounting = domain.NewAccountingEngine(e.ledger, e.ledger)
	e.quoter = domain.NewPathQuoter(e.venue, feeTiers, []string{"WETH"})
	e.rebalancer = domain.NewRebalanceEngine(e.accounting, e.quoter, e.oracle, e.venue,
		domain.WithClock(func() time.Time { return e.now }))
	e.router = domain.NewSwapExecutionRouter(e.accounting, e.quoter, e.ledger, e.venue)
	return e
}

// pool 创建 a/b 池子并注入流动性
func (e *env) pool(a, b string, fee uint32, amountA, amountB int64) {
	e.t.Helper()
	_, err := e.venue.CreatePool(a, b, fee)
	require.NoError(e.t, err)
	e.mint(a, lp, amountA)
	e.mint(b, lp, amountB)
	require.NoError(e.t, e.venue.AddLiquidity(e.ctx, a, b, fee, lp, d(amountA), d(amountB)))
}

func (e *env) mint(token, account string, amount int64) {
	e.t.Helper()
	require.NoError(e.t, e.ledger.Mint(e.ctx, token, account, d(amount)))
}

func (e *env) balance(token, account string) decimal.Decimal {
	e.t.Helper()
	b, err := e.ledger.BalanceOf(e.ctx, token, account)
	require.NoError(e.t, err)
	return b
}

func (e *env) supply(token string) decimal.Decimal {
	e.t.Helper()
	s, err := e.ledger.TotalSupply(e.ctx, token)
	require.NoError(e.t, err)
	return s
}

func (e *env) approve(token, owner string, amount int64) {
	e.t.Helper()
	require.NoError(e.t, e.ledger.Approve(e.ctx, token, owner, fundAddr, d(amount)))
}

// twoAssetFund A 每份 2 个、B 每份 0.5 个，权重 60/40
func twoAssetFund(t *testing.T) *domain.Fund {
	t.Helper()
	f, err := domain.NewFund("bkt", "Test Basket", "BKT", fundAddr, usd, treasury, []domain.Constituent{
		{Asset: "A", Decimals: 0, SeedPerShare: seed("2000000000000000000"), Weight: 600_000, PriceFeed: "A/USD"},
		{Asset: "B", Decimals: 0, SeedPerShare: seed("500000000000000000"), Weight: 400_000, PriceFeed: "B/USD"},
	})
	require.NoError(t, err)
	return f
}

// investInKind 以成分资产直接申购
func (e *env) investInKind(f *domain.Fund, who string, mint int64) *domain.InvestmentRecord {
	e.t.Helper()
	quote, err := e.accounting.InvestQuote(e.ctx, f, d(mint))
	require.NoError(e.t, err)
	for i, amt := range quote {
		asset := f.Constituents[i].Asset
		require.NoError(e.t, e.ledger.Mint(e.ctx, asset, who, amt))
		require.NoError(e.t, e.ledger.Approve(e.ctx, asset, who, fundAddr, amt))
	}
	rec, err := e.accounting.InvestInKind(e.ctx, f, who, who, d(mint))
	require.NoError(e.t, err)
	return rec
}

// snapshot 基金与账户的关键余额，用于校验回滚
type snapshot map[string]string

func (e *env) snapshot(f *domain.Fund, accounts ...string) snapshot {
	e.t.Helper()
	s := snapshot{"supply": e.supply(f.Symbol).String()}
	tokens := append([]string{f.Symbol, f.SettlementAsset}, f.Assets()...)
	holders := append([]string{f.Address, f.StagingAccount(), treasury}, accounts...)
	for _, tok := range tokens {
		for _, h := range holders {
			s[tok+"@"+h] = e.balance(tok, h).String()
		}
	}
	for _, p := range e.venue.Pools() {
		for _, tok := range tokens {
			s[tok+"@"+p] = e.balance(tok, p).String()
		}
	}
	return s
}
