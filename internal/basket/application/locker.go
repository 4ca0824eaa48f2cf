package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wyfcoding/basketfund/pkg/utils"
)

// Leaser 分布式租约，pkg/cache.RedisCache 实现了该接口
type Leaser interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// FundLocker 按基金串行化变更操作：进程内互斥，配置了 Leaser 时再加分布式租约
type FundLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
	lease Leaser
	ttl   time.Duration
}

// NewFundLocker 创建基金锁，lease 为 nil 时只做进程内互斥
func NewFundLocker(lease Leaser, ttl time.Duration) *FundLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &FundLocker{locks: make(map[string]*sync.Mutex), lease: lease, ttl: ttl}
}

func (l *FundLocker) local(fundID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[fundID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[fundID] = m
	}
	return m
}

// Lock 获取基金锁，返回释放函数
func (l *FundLocker) Lock(ctx context.Context, fundID string) (func(), error) {
	m := l.local(fundID)
	m.Lock()
	if l.lease == nil {
		return m.Unlock, nil
	}

	var release func(context.Context) error
	err := utils.RetryWithBackoff(ctx, 5, 20*time.Millisecond, 200*time.Millisecond, func() error {
		var err error
		release, err = l.lease.Lock(ctx, "basket:lock:"+fundID, l.ttl)
		return err
	})
	if err != nil {
		m.Unlock()
		return nil, fmt.Errorf("%w: %s: %v", ErrFundBusy, fundID, err)
	}
	return func() {
		_ = release(context.WithoutCancel(ctx))
		m.Unlock()
	}, nil
}
