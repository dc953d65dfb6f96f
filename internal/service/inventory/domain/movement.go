// internal/service/inventory/domain/movement.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MovementType 定义了库存流水的类型
type MovementType string

const (
	MovementIn      MovementType = "IN"
	MovementOut     MovementType = "OUT"
	MovementReserve MovementType = "RESERVE"
	MovementRelease MovementType = "RELEASE"
	MovementShip    MovementType = "SHIP"
	MovementAdjust  MovementType = "ADJUST"
)

// Valid 判断是否为已知的流水类型
func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementReserve, MovementRelease, MovementShip, MovementAdjust:
		return true
	}
	return false
}

// MovementEntry 是一条不可变的库存流水，每次改变库存状态的操作写入一条。
// SKU 和 Warehouse 来自所属的 StockRecord，仅用于读取。
type MovementEntry struct {
	ID            string       `json:"id"`
	StockRecordID string       `json:"stock_record_id"`
	SKU           string       `json:"sku"`
	Warehouse     string       `json:"warehouse"`
	Type          MovementType `json:"movement_type"`
	Qty           int          `json:"qty"`
	Reference     string       `json:"reference,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// NewMovement 为 stock 生成一条流水
func NewMovement(stock *StockRecord, typ MovementType, qty int, reference string, now time.Time) *MovementEntry {
	return &MovementEntry{
		ID:            uuid.NewString(),
		StockRecordID: stock.ID,
		SKU:           stock.SKU,
		Warehouse:     stock.Warehouse,
		Type:          typ,
		Qty:           qty,
		Reference:     reference,
		CreatedAt:     now,
	}
}
