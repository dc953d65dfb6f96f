package interfaces

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stockledger/internal/pkg/logger"
	"stockledger/internal/service/inventory/application"
	"stockledger/internal/service/inventory/domain"
)

const idempotencyHeader = "Idempotency-Key"

// InventoryHandler 封装了库存服务的 HTTP 处理器
type InventoryHandler struct {
	service  *application.ReservationService
	gatherer prometheus.Gatherer
}

// NewInventoryHandler 创建一个新的 HTTP 处理器实例，gatherer 为 nil 时使用默认注册表
func NewInventoryHandler(service *application.ReservationService, gatherer prometheus.Gatherer) *InventoryHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &InventoryHandler{service: service, gatherer: gatherer}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *InventoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("GET /inventory/by_sku", withTracing(h.handleBySKU))
	mux.Handle("POST /inventory/reserve", withTracing(h.handleReserve))
	mux.Handle("POST /inventory/release", withTracing(h.handleRelease))
	mux.Handle("POST /inventory/ship", withTracing(h.handleShip))
	mux.Handle("POST /inventory/provision", withTracing(h.handleProvision))
	mux.Handle("POST /inventory/reap", withTracing(h.handleReap))
	mux.Handle("GET /movements", withTracing(h.handleListMovements))
	mux.Handle("GET /reservations", withTracing(h.handleListReservations))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
}

func (h *InventoryHandler) handleBySKU(w http.ResponseWriter, r *http.Request) {
	sku := r.URL.Query().Get("sku")
	if sku == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "sku required"})
		return
	}
	records, err := h.service.GetStock(r.Context(), sku)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockResponses(records))
}

func (h *InventoryHandler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var body reserveBody
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := h.service.Reserve(r.Context(), application.ReserveRequest{
		SKU:            body.SKU,
		Warehouse:      body.Warehouse,
		Qty:            body.Quantity,
		Reference:      body.Reference,
		IdempotencyKey: idempotencyKey(r, body.IdempotencyKey),
		TTLSeconds:     body.TTLSeconds,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *InventoryHandler) handleRelease(w http.ResponseWriter, r *http.Request) {
	var body releaseBody
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := domain.NewReleaseRequest(
		body.ReservationID,
		idempotencyKey(r, body.IdempotencyKey),
		body.SKU,
		body.Warehouse,
		body.Quantity,
		body.Reference,
	)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.service.Release(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *InventoryHandler) handleShip(w http.ResponseWriter, r *http.Request) {
	var body shipBody
	if !decodeBody(w, r, &body) {
		return
	}
	stock, err := h.service.Ship(r.Context(), application.ShipRequest{
		SKU:            body.SKU,
		Warehouse:      body.Warehouse,
		Qty:            body.Quantity,
		Reference:      body.Reference,
		IdempotencyKey: idempotencyKey(r, body.IdempotencyKey),
		ReservationID:  body.ReservationID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockResponse(stock))
}

func (h *InventoryHandler) handleProvision(w http.ResponseWriter, r *http.Request) {
	var body provisionBody
	if !decodeBody(w, r, &body) {
		return
	}
	stock, err := h.service.Provision(r.Context(), &domain.StockRecord{
		SKU:               body.SKU,
		Warehouse:         body.Warehouse,
		OnHand:            body.OnHand,
		Reserved:          body.Reserved,
		LowStockThreshold: body.LowStockThreshold,
		ProductID:         body.ProductID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStockResponse(stock))
}

func (h *InventoryHandler) handleReap(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.ReapExpired(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"released": n})
}

func (h *InventoryHandler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := h.service.ListMovements(r.Context(), domain.MovementFilter{
		SKU:       q.Get("sku"),
		Warehouse: q.Get("warehouse"),
		Reference: q.Get("reference"),
		Limit:     limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *InventoryHandler) handleListReservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter := domain.ReservationFilter{
		SKU:       q.Get("sku"),
		Warehouse: q.Get("warehouse"),
		Reference: q.Get("reference"),
		Limit:     limit,
	}
	if v := q.Get("released"); v != "" {
		released, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, errors.Wrapf(domain.ErrInvalidArgument, "released=%q", v))
			return
		}
		filter.Released = &released
	}
	reservations, err := h.service.ListReservations(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservations)
}

// idempotencyKey 请求头优先于请求体中的字段
func idempotencyKey(r *http.Request, fromBody string) string {
	if v := r.Header.Get(idempotencyHeader); v != "" {
		return v
	}
	return fromBody
}

func parseLimit(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.Wrapf(domain.ErrInvalidArgument, "limit=%q", v)
	}
	return n, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "Invalid request body"})
		return false
	}
	return true
}

// StatusFor 根据错误类型返回 HTTP 状态码
func StatusFor(err error) int {
	switch domain.Kind(err) {
	case domain.KindNone:
		return http.StatusOK
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInsufficientStock, domain.KindInvalidState:
		return http.StatusConflict
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	resp := errorResponse{Detail: err.Error()}

	var insufficient *domain.InsufficientStockError
	if errors.As(err, &insufficient) {
		available := insufficient.Available
		resp.Detail = "Insufficient stock"
		resp.Available = &available
	}
	if status == http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		resp.Detail = "internal error"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
