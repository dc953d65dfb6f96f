// internal/service/inventory/domain/stock.go
package domain

import (
	"fmt"
	"time"
)

// StockRecord 是 (SKU, 仓库) 维度的库存计数器。
// on_hand 是实际在库数量，reserved 是已被预占但尚未出库的数量。
type StockRecord struct {
	ID                string    `json:"id"`
	ProductID         string    `json:"product_id,omitempty"` // 外部商品ID，仅作引用
	SKU               string    `json:"sku"`
	Warehouse         string    `json:"warehouse"`
	OnHand            int       `json:"on_hand"`
	Reserved          int       `json:"reserved"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Available 返回可供新预占的数量
func (s *StockRecord) Available() int {
	return s.OnHand - s.Reserved
}

// CheckInvariant 校验 0 <= reserved <= on_hand
func (s *StockRecord) CheckInvariant() error {
	if s.Reserved < 0 || s.Reserved > s.OnHand {
		return fmt.Errorf("%w: %s@%s has on_hand=%d reserved=%d", ErrInvalidArgument, s.SKU, s.Warehouse, s.OnHand, s.Reserved)
	}
	return nil
}

// Reserve 增加预占数量，可用库存不足时返回 *InsufficientStockError
func (s *StockRecord) Reserve(qty int) error {
	if available := s.Available(); available < qty {
		return &InsufficientStockError{
			SKU:       s.SKU,
			Warehouse: s.Warehouse,
			Requested: qty,
			Available: available,
		}
	}
	s.Reserved += qty
	return nil
}

// ReleaseReserved 减少预占数量，结果不会小于 0。
// 即使数据发生漂移（例如重复释放），reserved 也不会变成负数。
func (s *StockRecord) ReleaseReserved(qty int) {
	s.Reserved -= qty
	if s.Reserved < 0 {
		s.Reserved = 0
	}
}

// Ship 将已预占的库存出库，同时扣减 reserved 和 on_hand。
// 这是唯一会减少 on_hand 的操作。
func (s *StockRecord) Ship(qty int) error {
	if s.Reserved < qty {
		return fmt.Errorf("%w: cannot ship %d of %s@%s, only %d reserved", ErrInvalidState, qty, s.SKU, s.Warehouse, s.Reserved)
	}
	s.Reserved -= qty
	s.OnHand -= qty
	return nil
}

func (s *StockRecord) String() string {
	return s.SKU + "@" + s.Warehouse
}
