// internal/service/inventory/domain/reservation.go
package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultReservationTTL 是未指定 ttl 时预占的有效期
const DefaultReservationTTL = 900 * time.Second

// MaxReservationTTLSeconds 是调用方可指定的最长有效期（一年）
const MaxReservationTTLSeconds = 365 * 24 * 60 * 60

// Reservation 是对可用库存的一次限时占用。
// 通过 (sku, warehouse) 逻辑关联 StockRecord，而不是外键。
// Released 只能从 false 变为 true，一旦释放便不再修改，作为审计记录永久保留。
type Reservation struct {
	ID             string    `json:"id"`
	SKU            string    `json:"sku"`
	Warehouse      string    `json:"warehouse"`
	Qty            int       `json:"qty"`
	Reference      string    `json:"reference,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Released       bool      `json:"released"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}

// NewReservation 创建一个新的、未释放的预占
func NewReservation(sku, warehouse string, qty int, reference, idempotencyKey string, now time.Time, ttl time.Duration) *Reservation {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	return &Reservation{
		ID:             uuid.NewString(),
		SKU:            sku,
		Warehouse:      warehouse,
		Qty:            qty,
		Reference:      reference,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		IdempotencyKey: idempotencyKey,
	}
}

// NewReleasedReservation 用于按 (sku, warehouse, qty) 释放时生成的审计记录，
// 该路径没有原始预占可更新。
func NewReleasedReservation(sku, warehouse string, qty int, reference, idempotencyKey string, now time.Time) *Reservation {
	return &Reservation{
		ID:             uuid.NewString(),
		SKU:            sku,
		Warehouse:      warehouse,
		Qty:            qty,
		Reference:      reference,
		CreatedAt:      now,
		ExpiresAt:      now,
		Released:       true,
		IdempotencyKey: idempotencyKey,
	}
}

// IsExpired 判断预占在 now 时刻是否已过期且仍未释放
func (r *Reservation) IsExpired(now time.Time) bool {
	return !r.Released && !r.ExpiresAt.After(now)
}

// MarkReleased 将预占标记为已释放。已释放时返回 false。
func (r *Reservation) MarkReleased() bool {
	if r.Released {
		return false
	}
	r.Released = true
	return true
}
