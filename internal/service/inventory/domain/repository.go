// internal/service/inventory/domain/repository.go
package domain

import (
	"context"
	"time"
)

// StockRepository 定义了 StockRecord 的持久化接口。
// Lock* 方法必须在事务内调用，持有行锁直到事务提交或回滚。
type StockRepository interface {
	// LockBySKUAndWarehouse 对 (sku, warehouse) 行加排他锁并返回，不存在时返回 ErrNotFound
	LockBySKUAndWarehouse(ctx context.Context, sku, warehouse string) (*StockRecord, error)

	// Save 持久化 on_hand / reserved / updated_at
	Save(ctx context.Context, stock *StockRecord) error

	// ListBySKU 返回某个 SKU 在所有仓库的库存，按仓库排序
	ListBySKU(ctx context.Context, sku string) ([]*StockRecord, error)

	// Upsert 按 (sku, warehouse) 创建或覆盖库存行，返回持久化后的记录
	Upsert(ctx context.Context, stock *StockRecord) (*StockRecord, error)
}

// ReservationRepository 定义了 Reservation 的持久化接口
type ReservationRepository interface {
	Create(ctx context.Context, r *Reservation) error

	// Save 只持久化 released 标志，预占的其它字段创建后不可变
	Save(ctx context.Context, r *Reservation) error

	// LockByID 对预占行加排他锁，不存在时返回 ErrNotFound
	LockByID(ctx context.Context, id string) (*Reservation, error)

	// FindActiveByIdempotencyKey 查找 (key, reference) 对应的未释放预占，没有时返回 nil, nil
	FindActiveByIdempotencyKey(ctx context.Context, key, reference string) (*Reservation, error)

	// FindReleasedByIdempotencyKey 查找该 key 对应的已释放预占，没有时返回 nil, nil
	FindReleasedByIdempotencyKey(ctx context.Context, key string) (*Reservation, error)

	// ListExpiredIDs 返回 expires_at <= now 且未释放的预占ID，按过期时间排序；limit <= 0 表示不限制
	ListExpiredIDs(ctx context.Context, now time.Time, limit int) ([]string, error)

	List(ctx context.Context, filter ReservationFilter) ([]*Reservation, error)
}

// MovementLog 是只追加的库存流水
type MovementLog interface {
	Append(ctx context.Context, entry *MovementEntry) error
	List(ctx context.Context, filter MovementFilter) ([]*MovementEntry, error)
}

// Repositories 是绑定到同一个事务（或同一个连接池）上的仓储集合
type Repositories struct {
	Stock        StockRepository
	Reservations ReservationRepository
	Movements    MovementLog
}

// Store 是账本存储：提供行锁和原子提交/回滚。
// WithinTx 中 fn 返回错误时整个事务回滚。
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	Repos() Repositories
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// MovementFilter 是流水查询条件，空字段表示不过滤
type MovementFilter struct {
	SKU       string
	Warehouse string
	Reference string
	Limit     int
}

// ReservationFilter 是预占查询条件，空字段表示不过滤
type ReservationFilter struct {
	SKU       string
	Warehouse string
	Reference string
	Released  *bool
	Limit     int
}

// NormalizeLimit 将 limit 限制在 [1, MaxListLimit]，0 使用默认值
func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
