// internal/service/inventory/domain/event.go
package domain

import "time"

// MovementRecorded 在一条库存流水提交后发布
type MovementRecorded struct {
	MovementID string       `json:"movementId"`
	Type       MovementType `json:"movementType"`
	SKU        string       `json:"sku"`
	Warehouse  string       `json:"warehouse"`
	Qty        int          `json:"qty"`
	Reference  string       `json:"reference,omitempty"`
	OnHand     int          `json:"onHand"`
	Reserved   int          `json:"reserved"`
	Available  int          `json:"available"`
	OccurredAt time.Time    `json:"occurredAt"`
	TraceID    string       `json:"traceId,omitempty"`
}

// LowStockDetected 在库存更新后命中低库存规则时发布
type LowStockDetected struct {
	SKU               string    `json:"sku"`
	Warehouse         string    `json:"warehouse"`
	ProductID         string    `json:"productId,omitempty"`
	OnHand            int       `json:"onHand"`
	Reserved          int       `json:"reserved"`
	Available         int       `json:"available"`
	LowStockThreshold int       `json:"lowStockThreshold"`
	DetectedAt        time.Time `json:"detectedAt"`
	TraceID           string    `json:"traceId,omitempty"`
}

// NewMovementRecorded 由流水和提交时的库存快照构造事件
func NewMovementRecorded(entry *MovementEntry, snapshot StockRecord) MovementRecorded {
	return MovementRecorded{
		MovementID: entry.ID,
		Type:       entry.Type,
		SKU:        entry.SKU,
		Warehouse:  entry.Warehouse,
		Qty:        entry.Qty,
		Reference:  entry.Reference,
		OnHand:     snapshot.OnHand,
		Reserved:   snapshot.Reserved,
		Available:  snapshot.Available(),
		OccurredAt: entry.CreatedAt,
	}
}

// NewLowStockDetected 由库存快照构造低库存事件
func NewLowStockDetected(snapshot StockRecord, now time.Time) LowStockDetected {
	return LowStockDetected{
		SKU:               snapshot.SKU,
		Warehouse:         snapshot.Warehouse,
		ProductID:         snapshot.ProductID,
		OnHand:            snapshot.OnHand,
		Reserved:          snapshot.Reserved,
		Available:         snapshot.Available(),
		LowStockThreshold: snapshot.LowStockThreshold,
		DetectedAt:        now,
	}
}
