package port

import (
	"context"

	"stockledger/internal/service/inventory/domain"
)

// StockCache 是按 SKU 缓存库存快照的出站端口。
// 任何已提交的库存变更都必须让对应 SKU 的缓存失效。
type StockCache interface {
	// Get 返回缓存的库存列表，未命中时 ok 为 false
	Get(ctx context.Context, sku string) (records []*domain.StockRecord, ok bool, err error)
	Set(ctx context.Context, sku string, records []*domain.StockRecord) error
	Invalidate(ctx context.Context, sku string) error
}

// EventPublisher 是库存事件的出站端口，在事务提交后调用
type EventPublisher interface {
	PublishMovement(ctx context.Context, event domain.MovementRecorded) error
	PublishLowStock(ctx context.Context, event domain.LowStockDetected) error
}

// AlertRule 判断一条库存记录是否处于低库存状态
type AlertRule interface {
	Evaluate(stock *domain.StockRecord) (bool, error)
}

// Locker 是跨进程互斥锁，保证同一时刻只有一个过期清理器在运行
type Locker interface {
	Lock(ctx context.Context) error
	Unlock() error
}

// NoopStockCache 不缓存任何内容
type NoopStockCache struct{}

func (NoopStockCache) Get(context.Context, string) ([]*domain.StockRecord, bool, error) {
	return nil, false, nil
}
func (NoopStockCache) Set(context.Context, string, []*domain.StockRecord) error { return nil }
func (NoopStockCache) Invalidate(context.Context, string) error                 { return nil }

// NoopEventPublisher 丢弃所有事件
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishMovement(context.Context, domain.MovementRecorded) error { return nil }
func (NoopEventPublisher) PublishLowStock(context.Context, domain.LowStockDetected) error { return nil }
