package application

import (
	"fmt"

	"stockledger/internal/service/inventory/domain"
)

// ReserveRequest 是预占库存的入参
type ReserveRequest struct {
	SKU            string
	Warehouse      string
	Qty            int
	Reference      string
	IdempotencyKey string
	TTLSeconds     int // <= 0 时使用默认有效期
}

func (r ReserveRequest) validate() error {
	if r.SKU == "" || r.Warehouse == "" || r.Qty <= 0 {
		return fmt.Errorf("%w: sku, warehouse, and positive quantity required", domain.ErrInvalidArgument)
	}
	if r.TTLSeconds > domain.MaxReservationTTLSeconds {
		return fmt.Errorf("%w: ttl_seconds must not exceed %d", domain.ErrInvalidArgument, domain.MaxReservationTTLSeconds)
	}
	return nil
}

// ShipRequest 是出库的入参。
// ReservationID 非空时，出库会消耗该预占：预占被标记为已释放，未出库的剩余数量退回可用库存。
type ShipRequest struct {
	SKU            string
	Warehouse      string
	Qty            int
	Reference      string
	IdempotencyKey string // 仅记录，不做去重
	ReservationID  string
}

func (r ShipRequest) validate() error {
	if r.SKU == "" || r.Warehouse == "" || r.Qty <= 0 {
		return fmt.Errorf("%w: sku, warehouse, and positive quantity required", domain.ErrInvalidArgument)
	}
	return nil
}
