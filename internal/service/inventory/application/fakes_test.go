package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"stockledger/internal/service/inventory/domain"
	"stockledger/internal/service/inventory/infrastructure"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu        sync.Mutex
	movements []domain.MovementRecorded
	lowStock  []domain.LowStockDetected
}

func (p *recordingPublisher) PublishMovement(_ context.Context, e domain.MovementRecorded) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.movements = append(p.movements, e)
	return nil
}

func (p *recordingPublisher) PublishLowStock(_ context.Context, e domain.LowStockDetected) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lowStock = append(p.lowStock, e)
	return nil
}

// memoryCache 是进程内的 StockCache，记录失效调用
type memoryCache struct {
	mu          sync.Mutex
	data        map[string][]*domain.StockRecord
	invalidated []string
	hits        int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]*domain.StockRecord{}}
}

func (c *memoryCache) Get(_ context.Context, sku string) ([]*domain.StockRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[sku]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *memoryCache) Set(_ context.Context, sku string, records []*domain.StockRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[sku] = records
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, sku string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, sku)
	c.invalidated = append(c.invalidated, sku)
	return nil
}

type thresholdRule struct{}

func (thresholdRule) Evaluate(s *domain.StockRecord) (bool, error) {
	return s.Available() <= s.LowStockThreshold, nil
}

var errTransient = errors.New("transient store failure")

// flakyStore 在事务体执行成功后仍返回 errTransient，迫使事务回滚，用来验证重试
type flakyStore struct {
	*infrastructure.GormStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (s *flakyStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.GormStore.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := fn(ctx, repos); err != nil {
			return err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.failures > 0 {
			s.failures--
			return errTransient
		}
		return nil
	})
}

// failNthTxStore 让第 failOn 个事务在事务体执行后回滚，其余事务正常提交
type failNthTxStore struct {
	*infrastructure.GormStore
	mu     sync.Mutex
	failOn int
	calls  int
}

func (s *failNthTxStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	s.mu.Lock()
	s.calls++
	fail := s.calls == s.failOn
	s.mu.Unlock()
	return s.GormStore.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := fn(ctx, repos); err != nil {
			return err
		}
		if fail {
			return errTransient
		}
		return nil
	})
}
