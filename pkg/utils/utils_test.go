package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryWithBackoff(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), 3, time.Millisecond, 2*time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("busy")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = RetryWithBackoff(ctx, 5, time.Second, time.Second, func() error {
		calls++
		return errors.New("busy")
	})
	assert.EqualError(t, err, "busy")
	assert.Equal(t, 1, calls)
}

func TestPagination(t *testing.T) {
	p := NewPagination(3, 10, 0)
	assert.Equal(t, 20, p.Offset())
	assert.Equal(t, 10, p.Limit())

	p = p.WithTotal(25)
	assert.Equal(t, int64(3), p.Pages)

	p = NewPagination(0, 5000, 0)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 1000, p.PageSize)
}
