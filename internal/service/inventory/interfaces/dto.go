package interfaces

import (
	"time"

	"stockledger/internal/service/inventory/domain"
)

type reserveBody struct {
	SKU            string `json:"sku"`
	Warehouse      string `json:"warehouse"`
	Quantity       int    `json:"quantity"`
	Reference      string `json:"reference"`
	IdempotencyKey string `json:"idempotency_key"`
	TTLSeconds     int    `json:"ttl_seconds"`
}

type releaseBody struct {
	ReservationID  string `json:"reservation_id"`
	SKU            string `json:"sku"`
	Warehouse      string `json:"warehouse"`
	Quantity       *int   `json:"quantity"`
	Reference      string `json:"reference"`
	IdempotencyKey string `json:"idempotency_key"`
}

type shipBody struct {
	SKU            string `json:"sku"`
	Warehouse      string `json:"warehouse"`
	Quantity       int    `json:"quantity"`
	Reference      string `json:"reference"`
	IdempotencyKey string `json:"idempotency_key"`
	ReservationID  string `json:"reservation_id"`
}

type provisionBody struct {
	SKU               string `json:"sku"`
	Warehouse         string `json:"warehouse"`
	OnHand            int    `json:"on_hand"`
	Reserved          int    `json:"reserved"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	ProductID         string `json:"product_id"`
}

// stockResponse 在库存记录上附加派生的 available
type stockResponse struct {
	ID                string    `json:"id"`
	ProductID         string    `json:"product_id,omitempty"`
	SKU               string    `json:"sku"`
	Warehouse         string    `json:"warehouse"`
	OnHand            int       `json:"on_hand"`
	Reserved          int       `json:"reserved"`
	Available         int       `json:"available"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func toStockResponse(s *domain.StockRecord) stockResponse {
	return stockResponse{
		ID:                s.ID,
		ProductID:         s.ProductID,
		SKU:               s.SKU,
		Warehouse:         s.Warehouse,
		OnHand:            s.OnHand,
		Reserved:          s.Reserved,
		Available:         s.Available(),
		LowStockThreshold: s.LowStockThreshold,
		UpdatedAt:         s.UpdatedAt,
	}
}

func toStockResponses(records []*domain.StockRecord) []stockResponse {
	out := make([]stockResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toStockResponse(r))
	}
	return out
}

type errorResponse struct {
	Detail    string `json:"detail"`
	Available *int   `json:"available,omitempty"`
}
