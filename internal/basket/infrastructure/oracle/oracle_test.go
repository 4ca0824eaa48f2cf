package oracle_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/basketfund/internal/basket/domain"
	"github.com/wyfcoding/basketfund/internal/basket/infrastructure/oracle"
)

func TestHTTPFeed_LatestPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/prices/ETH-USD":
			_, _ = io.WriteString(w, `{"feed":"ETH-USD","price":"3125","updated_at":"2026-01-01T00:00:00Z"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"unknown feed"}`)
		}
	}))
	defer srv.Close()

	feed := oracle.NewHTTPFeed(srv.URL, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))

	price, err := feed.LatestPrice(context.Background(), "ETH-USD")
	require.NoError(t, err)
	assert.Equal(t, "3125", price.String())

	_, err = feed.LatestPrice(context.Background(), "DOGE-USD")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestHTTPFeed_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	feed := oracle.NewHTTPFeed(url, 200*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := feed.LatestPrice(context.Background(), "ETH-USD")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestStatic(t *testing.T) {
	s, err := oracle.ParseStatic(map[string]string{"A/USD": "10", "B/USD": "3"})
	require.NoError(t, err)

	p, err := s.LatestPrice(context.Background(), "A/USD")
	require.NoError(t, err)
	assert.Equal(t, "10", p.String())

	s.Set("A/USD", decimal.NewFromInt(12))
	p, err = s.LatestPrice(context.Background(), "A/USD")
	require.NoError(t, err)
	assert.Equal(t, "12", p.String())

	p, err = s.LatestPrice(context.Background(), "b/usd")
	require.NoError(t, err)
	assert.Equal(t, "3", p.String())

	_, err = s.LatestPrice(context.Background(), "C/USD")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)

	_, err = oracle.ParseStatic(map[string]string{"A/USD": "ten"})
	assert.Error(t, err)
}
