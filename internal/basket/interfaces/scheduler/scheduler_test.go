package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wyfcoding/basketfund/internal/basket/application"
	"github.com/wyfcoding/basketfund/internal/basket/domain"
)

type stubFunds struct {
	ids []string
	err error
}

func (s stubFunds) ListFunds(context.Context) ([]*application.FundView, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([]*application.FundView, len(s.ids))
	for i, id := range s.ids {
		out[i] = &application.FundView{Fund: &domain.Fund{FundID: id}}
	}
	return out, nil
}

type stubRebalancer struct {
	results map[string]error
	called  []string
}

func (s *stubRebalancer) Rebalance(_ context.Context, id string) (*domain.RebalanceRecord, error) {
	s.called = append(s.called, id)
	if err := s.results[id]; err != nil {
		return nil, err
	}
	return &domain.RebalanceRecord{FundID: id}, nil
}

func TestRunOnce_ContinuesPastFailures(t *testing.T) {
	r := &stubRebalancer{results: map[string]error{
		"early":  domain.ErrNotRebalanceTime,
		"broken": errors.New("venue down"),
	}}
	s := New(context.Background(), stubFunds{ids: []string{"early", "broken", "ok"}}, r, slog.Default())

	assert.Equal(t, 1, s.RunOnce(context.Background()))
	assert.Equal(t, []string{"early", "broken", "ok"}, r.called)
}

func TestRunOnce_ListError(t *testing.T) {
	r := &stubRebalancer{}
	s := New(context.Background(), stubFunds{err: errors.New("db down")}, r, slog.Default())
	assert.Zero(t, s.RunOnce(context.Background()))
	assert.Empty(t, r.called)
}

func TestRegister_RejectsBadSpec(t *testing.T) {
	s := New(context.Background(), stubFunds{}, &stubRebalancer{}, slog.Default())
	assert.Error(t, s.Register("not a cron"))
	assert.NoError(t, s.Register("0 */5 * * * *"))
}
