// internal/service/inventory/domain/release.go
package domain

import "fmt"

// ReleaseRequest 是释放预占的三种方式之一：
// ReleaseByID | ReleaseByIdempotencyKey | ReleaseByStockTuple。
// 应用层通过一次 type switch 决定处理路径。
type ReleaseRequest interface {
	releaseRequest()
}

// ReleaseByID 按预占ID释放（首选方式）
type ReleaseByID struct {
	ReservationID string
}

// ReleaseByIdempotencyKey 只做幂等重放：仅当该 key 已有已释放的预占时返回它
type ReleaseByIdempotencyKey struct {
	Key string
}

// ReleaseByStockTuple 在没有原始预占时直接按 (sku, warehouse, qty) 释放。
// 若 IdempotencyKey 非空，先尝试幂等重放。
type ReleaseByStockTuple struct {
	SKU            string
	Warehouse      string
	Qty            int
	Reference      string
	IdempotencyKey string
}

func (ReleaseByID) releaseRequest()             {}
func (ReleaseByIdempotencyKey) releaseRequest() {}
func (ReleaseByStockTuple) releaseRequest()     {}

// NewReleaseRequest 根据调用方提供的字段构造对应的 ReleaseRequest。
// qty 为 nil 表示调用方没有提供数量。
func NewReleaseRequest(reservationID, idempotencyKey, sku, warehouse string, qty *int, reference string) (ReleaseRequest, error) {
	switch {
	case reservationID != "":
		return ReleaseByID{ReservationID: reservationID}, nil
	case sku != "" && warehouse != "" && qty != nil:
		if *qty <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive", ErrInvalidArgument)
		}
		return ReleaseByStockTuple{
			SKU:            sku,
			Warehouse:      warehouse,
			Qty:            *qty,
			Reference:      reference,
			IdempotencyKey: idempotencyKey,
		}, nil
	case idempotencyKey != "":
		return ReleaseByIdempotencyKey{Key: idempotencyKey}, nil
	default:
		return nil, fmt.Errorf("%w: provide reservation_id or (sku, warehouse, quantity)", ErrInvalidArgument)
	}
}
