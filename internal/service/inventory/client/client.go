// Package client 是库存服务 HTTP 接口的 Go 客户端，错误会被还原为 domain 中的错误类型
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"stockledger/internal/pkg/httpclient"
	"stockledger/internal/service/inventory/domain"
)

const idempotencyHeader = "Idempotency-Key"

// InventoryClient 调用远端的 inventory-service
type InventoryClient struct {
	baseURL string
	http    *httpclient.Client
}

func NewInventoryClient(baseURL string, c *httpclient.Client) *InventoryClient {
	return &InventoryClient{baseURL: strings.TrimRight(baseURL, "/"), http: c}
}

// ReserveInput 对应 POST /inventory/reserve
type ReserveInput struct {
	SKU            string `json:"sku"`
	Warehouse      string `json:"warehouse"`
	Quantity       int    `json:"quantity"`
	Reference      string `json:"reference,omitempty"`
	IdempotencyKey string `json:"-"`
	TTLSeconds     int    `json:"ttl_seconds,omitempty"`
}

// ShipInput 对应 POST /inventory/ship
type ShipInput struct {
	SKU            string `json:"sku"`
	Warehouse      string `json:"warehouse"`
	Quantity       int    `json:"quantity"`
	Reference      string `json:"reference,omitempty"`
	IdempotencyKey string `json:"-"`
	ReservationID  string `json:"reservation_id,omitempty"`
}

type releaseBody struct {
	ReservationID string `json:"reservation_id,omitempty"`
	SKU           string `json:"sku,omitempty"`
	Warehouse     string `json:"warehouse,omitempty"`
	Quantity      *int   `json:"quantity,omitempty"`
	Reference     string `json:"reference,omitempty"`
}

type errorBody struct {
	Detail    string `json:"detail"`
	Available *int   `json:"available"`
}

func (c *InventoryClient) Reserve(ctx context.Context, in ReserveInput) (*domain.Reservation, error) {
	var out domain.Reservation
	if err := c.call(ctx, http.MethodPost, "/inventory/reserve", in.IdempotencyKey, in, &out, in.Quantity); err != nil {
		return nil, err
	}
	return &out, nil
}

// Release 按 ReleaseRequest 的具体类型组装请求体
func (c *InventoryClient) Release(ctx context.Context, req domain.ReleaseRequest) (*domain.Reservation, error) {
	var (
		body releaseBody
		key  string
	)
	switch r := req.(type) {
	case domain.ReleaseByID:
		body.ReservationID = r.ReservationID
	case domain.ReleaseByIdempotencyKey:
		key = r.Key
	case domain.ReleaseByStockTuple:
		qty := r.Qty
		body = releaseBody{SKU: r.SKU, Warehouse: r.Warehouse, Quantity: &qty, Reference: r.Reference}
		key = r.IdempotencyKey
	default:
		return nil, errors.Wrap(domain.ErrInvalidArgument, "unsupported release request")
	}
	var out domain.Reservation
	if err := c.call(ctx, http.MethodPost, "/inventory/release", key, body, &out, 0); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *InventoryClient) Ship(ctx context.Context, in ShipInput) (*domain.StockRecord, error) {
	var out domain.StockRecord
	if err := c.call(ctx, http.MethodPost, "/inventory/ship", in.IdempotencyKey, in, &out, in.Quantity); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *InventoryClient) GetStock(ctx context.Context, sku string) ([]*domain.StockRecord, error) {
	var out []*domain.StockRecord
	path := "/inventory/by_sku?sku=" + url.QueryEscape(sku)
	if err := c.call(ctx, http.MethodGet, path, "", nil, &out, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// ReapExpired 让远端执行一次过期预占清理，返回释放的数量
func (c *InventoryClient) ReapExpired(ctx context.Context) (int, error) {
	var out struct {
		Released int `json:"released"`
	}
	if err := c.call(ctx, http.MethodPost, "/inventory/reap", "", nil, &out, 0); err != nil {
		return 0, err
	}
	return out.Released, nil
}

func (c *InventoryClient) call(ctx context.Context, method, path, key string, in, out interface{}, requested int) error {
	header := http.Header{}
	if key != "" {
		header.Set(idempotencyHeader, key)
	}
	err := c.http.DoJSON(ctx, method, c.baseURL+path, header, in, out)
	return toDomainError(err, requested)
}

// toDomainError 把 HTTP 状态码还原为领域错误，其余错误原样返回
func toDomainError(err error, requested int) error {
	var statusErr *httpclient.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}
	var body errorBody
	_ = json.Unmarshal(statusErr.Body, &body)
	detail := body.Detail
	if detail == "" {
		detail = fmt.Sprintf("status %d", statusErr.StatusCode)
	}

	switch statusErr.StatusCode {
	case http.StatusNotFound:
		return errors.Wrap(domain.ErrNotFound, detail)
	case http.StatusBadRequest:
		return errors.Wrap(domain.ErrInvalidArgument, detail)
	case http.StatusConflict:
		if body.Available != nil {
			return &domain.InsufficientStockError{Requested: requested, Available: *body.Available}
		}
		return errors.Wrap(domain.ErrInvalidState, detail)
	default:
		return err
	}
}
