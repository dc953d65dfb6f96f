package application

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockledger/internal/pkg/logger"
	"stockledger/internal/pkg/metrics"
	"stockledger/internal/service/inventory/domain"
	"stockledger/internal/service/inventory/domain/port"
)

const (
	opReserve          = "reserve"
	opRelease          = "release"
	opShip             = "ship"
	opReap             = "reap_expired"
	opGetStock         = "get_stock"
	opListMovements    = "list_movements"
	opListReservations = "list_reservations"
	opProvision        = "provision"

	defaultRetryAttempts = 3
	retryBackoff         = 20 * time.Millisecond
)

// ReservationService 是库存账本和预占引擎。
// 每个写操作在一个事务中完成：先按固定顺序加行锁（预占行先于库存行），
// 再读取数量并修改，最后追加流水。
type ReservationService struct {
	store      domain.Store
	clock      domain.Clock
	tracer     trace.Tracer
	metrics    *metrics.Inventory
	cache      port.StockCache
	publisher  port.EventPublisher
	alertRule  port.AlertRule
	retryable  func(error) bool
	attempts   int
	defaultTTL time.Duration
	reapLimit  int
}

// NewReservationService 创建一个新的库存引擎实例
func NewReservationService(store domain.Store, opts ...Option) *ReservationService {
	s := &ReservationService{
		store:      store,
		clock:      domain.SystemClock{},
		tracer:     otel.Tracer("inventory-service"),
		cache:      port.NoopStockCache{},
		publisher:  port.NoopEventPublisher{},
		retryable:  func(error) bool { return false },
		attempts:   defaultRetryAttempts,
		defaultTTL: domain.DefaultReservationTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reserve 从可用库存中预占 qty 个单位。
// 带幂等键的重复请求返回已有的未释放预占，不再修改库存。
func (s *ReservationService) Reserve(ctx context.Context, req ReserveRequest) (res *domain.Reservation, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.Reserve")
	defer span.End()
	start := time.Now()
	defer func() { s.finish(ctx, span, opReserve, start, err) }()

	span.SetAttributes(
		attribute.String("inventory.sku", req.SKU),
		attribute.String("inventory.warehouse", req.Warehouse),
		attribute.Int("inventory.qty", req.Qty),
		attribute.String("inventory.reference", req.Reference),
		attribute.Bool("inventory.idempotent", req.IdempotencyKey != ""),
	)

	if err := req.validate(); err != nil {
		return nil, err
	}
	ttl := s.defaultTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	// 快速路径：重放请求不需要拿库存行锁
	if req.IdempotencyKey != "" {
		existing, err := s.store.Repos().Reservations.FindActiveByIdempotencyKey(ctx, req.IdempotencyKey, req.Reference)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			span.AddEvent("idempotent replay")
			return existing, nil
		}
	}

	fx, err := s.runTx(ctx, opReserve, func(ctx context.Context, repos domain.Repositories, fx *effects) error {
		res = nil
		stock, err := repos.Stock.LockBySKUAndWarehouse(ctx, req.SKU, req.Warehouse)
		if err != nil {
			return err
		}

		// 持有库存行锁后再查一次，同一库存行上并发的重复请求在这里串行化
		if req.IdempotencyKey != "" {
			existing, err := repos.Reservations.FindActiveByIdempotencyKey(ctx, req.IdempotencyKey, req.Reference)
			if err != nil {
				return err
			}
			if existing != nil {
				res = existing
				return nil
			}
		}

		if err := stock.Reserve(req.Qty); err != nil {
			return err
		}
		now := s.clock.Now()
		stock.UpdatedAt = now
		if err := repos.Stock.Save(ctx, stock); err != nil {
			return err
		}

		r := domain.NewReservation(req.SKU, req.Warehouse, req.Qty, req.Reference, req.IdempotencyKey, now, ttl)
		if err := repos.Reservations.Create(ctx, r); err != nil {
			return err
		}
		entry := domain.NewMovement(stock, domain.MovementReserve, req.Qty, req.Reference, now)
		if err := repos.Movements.Append(ctx, entry); err != nil {
			return err
		}
		fx.record(stock, entry)
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, fx)

	span.SetAttributes(attribute.String("inventory.reservation_id", res.ID))
	logger.Ctx(ctx).Info().
		Str("reservation_id", res.ID).
		Str("sku", res.SKU).
		Str("warehouse", res.Warehouse).
		Int("qty", res.Qty).
		Time("expires_at", res.ExpiresAt).
		Msg("stock reserved")
	return res, nil
}

// Release 按 ReleaseRequest 的具体类型选择释放路径
func (s *ReservationService) Release(ctx context.Context, req domain.ReleaseRequest) (res *domain.Reservation, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.Release")
	defer span.End()
	start := time.Now()
	defer func() { s.finish(ctx, span, opRelease, start, err) }()

	switch r := req.(type) {
	case domain.ReleaseByID:
		span.SetAttributes(attribute.String("inventory.release_path", "id"), attribute.String("inventory.reservation_id", r.ReservationID))
		res, err = s.releaseByID(ctx, r)
	case domain.ReleaseByIdempotencyKey:
		span.SetAttributes(attribute.String("inventory.release_path", "idempotency_key"))
		res, err = s.releaseByKey(ctx, r)
	case domain.ReleaseByStockTuple:
		span.SetAttributes(
			attribute.String("inventory.release_path", "stock_tuple"),
			attribute.String("inventory.sku", r.SKU),
			attribute.String("inventory.warehouse", r.Warehouse),
			attribute.Int("inventory.qty", r.Qty),
		)
		res, err = s.releaseByTuple(ctx, r)
	default:
		err = fmt.Errorf("%w: provide reservation_id or (sku, warehouse, quantity)", domain.ErrInvalidArgument)
	}
	if err != nil {
		return nil, err
	}

	logger.Ctx(ctx).Info().
		Str("reservation_id", res.ID).
		Str("sku", res.SKU).
		Str("warehouse", res.Warehouse).
		Int("qty", res.Qty).
		Msg("reservation released")
	return res, nil
}

func (s *ReservationService) releaseByID(ctx context.Context, req domain.ReleaseByID) (*domain.Reservation, error) {
	var res *domain.Reservation
	fx, err := s.runTx(ctx, opRelease, func(ctx context.Context, repos domain.Repositories, fx *effects) error {
		r, err := repos.Reservations.LockByID(ctx, req.ReservationID)
		if err != nil {
			return err
		}
		res = r
		if r.Released {
			return nil
		}

		stock, err := repos.Stock.LockBySKUAndWarehouse(ctx, r.SKU, r.Warehouse)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		if err := s.releaseStock(ctx, repos, fx, stock, r.Qty, r.Reference, now); err != nil {
			return err
		}
		r.MarkReleased()
		return repos.Reservations.Save(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, fx)
	return res, nil
}

// releaseByKey 只做幂等重放，找不到已释放的预占时视为参数不足
func (s *ReservationService) releaseByKey(ctx context.Context, req domain.ReleaseByIdempotencyKey) (*domain.Reservation, error) {
	existing, err := s.store.Repos().Reservations.FindReleasedByIdempotencyKey(ctx, req.Key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: no released reservation for idempotency key; provide reservation_id or (sku, warehouse, quantity)", domain.ErrInvalidArgument)
	}
	return existing, nil
}

// releaseByTuple 在没有原始预占的情况下直接减少 reserved，并生成一条已释放的预占作为审计记录。
// 原始预占（如果存在）不会被修改。
func (s *ReservationService) releaseByTuple(ctx context.Context, req domain.ReleaseByStockTuple) (*domain.Reservation, error) {
	if req.SKU == "" || req.Warehouse == "" || req.Qty <= 0 {
		return nil, fmt.Errorf("%w: sku, warehouse, and positive quantity required", domain.ErrInvalidArgument)
	}
	if req.IdempotencyKey != "" {
		existing, err := s.store.Repos().Reservations.FindReleasedByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	var res *domain.Reservation
	fx, err := s.runTx(ctx, opRelease, func(ctx context.Context, repos domain.Repositories, fx *effects) error {
		res = nil
		stock, err := repos.Stock.LockBySKUAndWarehouse(ctx, req.SKU, req.Warehouse)
		if err != nil {
			return err
		}
		if req.IdempotencyKey != "" {
			existing, err := repos.Reservations.FindReleasedByIdempotencyKey(ctx, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				res = existing
				return nil
			}
		}

		now := s.clock.Now()
		if err := s.releaseStock(ctx, repos, fx, stock, req.Qty, req.Reference, now); err != nil {
			return err
		}
		r := domain.NewReleasedReservation(req.SKU, req.Warehouse, req.Qty, req.Reference, req.IdempotencyKey, now)
		if err := repos.Reservations.Create(ctx, r); err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, fx)
	return res, nil
}

// releaseStock 把 qty 退回可用库存（reserved 不小于 0）并写入 RELEASE 流水。
// 调用方必须已经持有 stock 的行锁。
func (s *ReservationService) releaseStock(ctx context.Context, repos domain.Repositories, fx *effects, stock *domain.StockRecord, qty int, reference string, now time.Time) error {
	stock.ReleaseReserved(qty)
	stock.UpdatedAt = now
	if err := repos.Stock.Save(ctx, stock); err != nil {
		return err
	}
	entry := domain.NewMovement(stock, domain.MovementRelease, qty, reference, now)
	if err := repos.Movements.Append(ctx, entry); err != nil {
		return err
	}
	fx.record(stock, entry)
	return nil
}

// Ship 将已预占的库存出库，这是唯一减少 on_hand 的操作。
// 幂等键只记录在日志和链路中，不做去重。
func (s *ReservationService) Ship(ctx context.Context, req ShipRequest) (stock *domain.StockRecord, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.Ship")
	defer span.End()
	start := time.Now()
	defer func() { s.finish(ctx, span, opShip, start, err) }()

	span.SetAttributes(
		attribute.String("inventory.sku", req.SKU),
		attribute.String("inventory.warehouse", req.Warehouse),
		attribute.Int("inventory.qty", req.Qty),
		attribute.String("inventory.reference", req.Reference),
		attribute.String("inventory.idempotency_key", req.IdempotencyKey),
		attribute.String("inventory.reservation_id", req.ReservationID),
	)

	if err := req.validate(); err != nil {
		return nil, err
	}

	fx, err := s.runTx(ctx, opShip, func(ctx context.Context, repos domain.Repositories, fx *effects) error {
		stock = nil
		var r *domain.Reservation
		if req.ReservationID != "" {
			locked, err := repos.Reservations.LockByID(ctx, req.ReservationID)
			if err != nil {
				return err
			}
			if err := checkShippable(locked, req); err != nil {
				return err
			}
			r = locked
		}

		rec, err := repos.Stock.LockBySKUAndWarehouse(ctx, req.SKU, req.Warehouse)
		if err != nil {
			return err
		}
		now := s.clock.Now()

		if r != nil {
			if remainder := r.Qty - req.Qty; remainder > 0 {
				if err := s.releaseStock(ctx, repos, fx, rec, remainder, r.Reference, now); err != nil {
					return err
				}
			}
			r.MarkReleased()
			if err := repos.Reservations.Save(ctx, r); err != nil {
				return err
			}
		}

		if err := rec.Ship(req.Qty); err != nil {
			return err
		}
		rec.UpdatedAt = now
		if err := repos.Stock.Save(ctx, rec); err != nil {
			return err
		}
		entry := domain.NewMovement(rec, domain.MovementShip, req.Qty, req.Reference, now)
		if err := repos.Movements.Append(ctx, entry); err != nil {
			return err
		}
		fx.record(rec, entry)
		stock = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, fx)

	logger.Ctx(ctx).Info().
		Str("sku", stock.SKU).
		Str("warehouse", stock.Warehouse).
		Int("qty", req.Qty).
		Str("idempotency_key", req.IdempotencyKey).
		Str("reservation_id", req.ReservationID).
		Int("on_hand", stock.OnHand).
		Int("reserved", stock.Reserved).
		Msg("stock shipped")
	return stock, nil
}

func checkShippable(r *domain.Reservation, req ShipRequest) error {
	switch {
	case r.Released:
		return fmt.Errorf("%w: reservation %s is already released", domain.ErrInvalidState, r.ID)
	case r.SKU != req.SKU || r.Warehouse != req.Warehouse:
		return fmt.Errorf("%w: reservation %s belongs to %s@%s", domain.ErrInvalidArgument, r.ID, r.SKU, r.Warehouse)
	case req.Qty > r.Qty:
		return fmt.Errorf("%w: cannot ship %d against reservation %s of %d", domain.ErrInvalidArgument, req.Qty, r.ID, r.Qty)
	}
	return nil
}

// ReapExpired 释放所有已过期且未释放的预占，返回本次释放的数量。
// 每个预占在独立的事务中处理，单个失败不会回滚之前的释放。
func (s *ReservationService) ReapExpired(ctx context.Context) (n int, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.ReapExpired")
	defer span.End()
	start := time.Now()
	defer func() { s.finish(ctx, span, opReap, start, err) }()

	now := s.clock.Now()
	ids, err := s.store.Repos().Reservations.ListExpiredIDs(ctx, now, s.reapLimit)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("inventory.expired_found", len(ids)))

	failed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		released, err := s.reapOne(ctx, id, now)
		if err != nil {
			failed++
			logger.Ctx(ctx).Warn().Err(err).Str("reservation_id", id).Msg("failed to release expired reservation")
			continue
		}
		if released {
			n++
		}
	}

	s.metrics.AddReaped(n)
	span.SetAttributes(attribute.Int("inventory.reaped", n), attribute.Int("inventory.reap_failed", failed))
	logger.Ctx(ctx).Info().Int("found", len(ids)).Int("released", n).Int("failed", failed).Msg("expired reservations reaped")
	return n, nil
}

// reapOne 在锁住预占后重新判断是否过期，期间被其它请求释放的预占直接跳过
func (s *ReservationService) reapOne(ctx context.Context, id string, now time.Time) (bool, error) {
	released := false
	fx, err := s.runTx(ctx, opReap, func(ctx context.Context, repos domain.Repositories, fx *effects) error {
		released = false
		r, err := repos.Reservations.LockByID(ctx, id)
		if err != nil {
			return err
		}
		if !r.IsExpired(now) {
			return nil
		}

		stock, err := repos.Stock.LockBySKUAndWarehouse(ctx, r.SKU, r.Warehouse)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			logger.Ctx(ctx).Warn().Str("reservation_id", r.ID).Str("sku", r.SKU).Str("warehouse", r.Warehouse).
				Msg("stock record missing, releasing reservation without stock mutation")
		case err != nil:
			return err
		default:
			if err := s.releaseStock(ctx, repos, fx, stock, r.Qty, r.Reference, now); err != nil {
				return err
			}
		}

		r.MarkReleased()
		if err := repos.Reservations.Save(ctx, r); err != nil {
			return err
		}
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	s.afterCommit(ctx, fx)
	return released, nil
}

// GetStock 返回某个 SKU 在所有仓库的库存，优先读缓存
func (s *ReservationService) GetStock(ctx context.Context, sku string) (records []*domain.StockRecord, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.GetStock")
	defer span.End()
	start := time.Now()
	defer func() { s.finish(ctx, span, opGetStock, start, err) }()

	span.SetAttributes(attribute.String("inventory.sku", sku))
	if sku == "" {
		return nil, fmt.Errorf("%w: sku required", domain.ErrInvalidArgument)
	}

	cached, ok, err := s.cache.Get(ctx, sku)
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("sku", sku).Msg("stock cache read failed")
	} else if ok {
		span.SetAttributes(attribute.Bool("inventory.cache_hit", true))
		return cached, nil
	}

	records, err = s.store.Repos().Stock.ListBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, sku, records); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("sku", sku).Msg("stock cache write failed")
	}
	return records, nil
}

// ListMovements 返回库存流水，最新的在前
func (s *ReservationService) ListMovements(ctx context.Context, filter domain.MovementFilter) (entries []*domain.MovementEntry, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.ListMovements")
	defer span.End()
	start := time.Now()
	defer func() { s.finish(ctx, span, opListMovements, start, err) }()

	filter.Limit = domain.NormalizeLimit(filter.Limit)
	span.SetAttributes(attribute.String("inventory.sku", filter.SKU), attribute.Int("inventory.limit", filter.Limit))
	return s.store.Repos().Movements.List(ctx, filter)
}

// ListReservations 返回预占记录，最新的在前
func (s *ReservationService) ListReservations(ctx context.Context, filter domain.ReservationFilter) (reservations []*domain.Reservation, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.ListReservations")
	defer span.End()
	start := time.Now()
	defer func() { s.finish(ctx, span, opListReservations, start, err) }()

	filter.Limit = domain.NormalizeLimit(filter.Limit)
	span.SetAttributes(attribute.String("inventory.sku", filter.SKU), attribute.Int("inventory.limit", filter.Limit))
	return s.store.Repos().Reservations.List(ctx, filter)
}

// Provision 创建或覆盖一条库存记录，用于初始化数据，不产生流水
func (s *ReservationService) Provision(ctx context.Context, rec *domain.StockRecord) (saved *domain.StockRecord, err error) {
	ctx, span := s.tracer.Start(ctx, "inventory.Provision")
	defer span.End()
	start := time.Now()
	defer func() { s.finish(ctx, span, opProvision, start, err) }()

	span.SetAttributes(attribute.String("inventory.sku", rec.SKU), attribute.String("inventory.warehouse", rec.Warehouse))
	if rec.SKU == "" || rec.Warehouse == "" {
		return nil, fmt.Errorf("%w: sku and warehouse required", domain.ErrInvalidArgument)
	}
	if rec.LowStockThreshold < 0 {
		return nil, fmt.Errorf("%w: low_stock_threshold must not be negative", domain.ErrInvalidArgument)
	}
	if err := rec.CheckInvariant(); err != nil {
		return nil, err
	}

	fx, err := s.runTx(ctx, opProvision, func(ctx context.Context, repos domain.Repositories, fx *effects) error {
		in := *rec
		in.UpdatedAt = s.clock.Now()
		out, err := repos.Stock.Upsert(ctx, &in)
		if err != nil {
			return err
		}
		fx.touch(out.SKU)
		saved = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, fx)
	return saved, nil
}

// ProvisionAll 依次写入 records，遇到第一个错误时停止，返回已写入的数量
func (s *ReservationService) ProvisionAll(ctx context.Context, records []*domain.StockRecord) (int, error) {
	for i, rec := range records {
		if _, err := s.Provision(ctx, rec); err != nil {
			return i, errors.WithMessagef(err, "provision %s", rec)
		}
	}
	return len(records), nil
}

// runTx 在一个事务中执行 fn，死锁或锁等待超时时整体重试。
// 每次尝试使用新的 effects，只有最终提交的那次尝试的副作用会被返回。
func (s *ReservationService) runTx(ctx context.Context, op string, fn func(ctx context.Context, repos domain.Repositories, fx *effects) error) (*effects, error) {
	for attempt := 1; ; attempt++ {
		fx := &effects{}
		err := s.store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
			return fn(ctx, repos, fx)
		})
		if err == nil {
			return fx, nil
		}
		if attempt >= s.attempts || domain.IsDomainError(err) || !s.retryable(err) {
			return nil, err
		}

		logger.Ctx(ctx).Warn().Err(err).Str("operation", op).Int("attempt", attempt).Msg("transient store error, retrying transaction")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * retryBackoff):
		}
	}
}

// finish 统一记录指标、链路错误和失败日志
func (s *ReservationService) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	kind := domain.Kind(err)
	s.metrics.ObserveOperation(op, string(kind), time.Since(start))
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("inventory.error_kind", string(kind)))

	ev := logger.Ctx(ctx).Warn()
	if kind == domain.KindInternal {
		ev = logger.Ctx(ctx).Error()
	}
	ev.Err(err).Str("operation", op).Str("kind", string(kind)).Msg("inventory operation failed")
}
