package infrastructure

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stockledger/internal/service/inventory/domain"
)

// forUpdate 是 SELECT ... FOR UPDATE，行锁持有到事务结束
var forUpdate = clause.Locking{Strength: "UPDATE"}

// GormStockRepository 是 StockRepository 的 GORM 实现
type GormStockRepository struct {
	db *gorm.DB
}

func NewGormStockRepository(db *gorm.DB) *GormStockRepository {
	return &GormStockRepository{db: db}
}

func (r *GormStockRepository) LockBySKUAndWarehouse(ctx context.Context, sku, warehouse string) (*domain.StockRecord, error) {
	var model StockRecordModel
	err := r.db.WithContext(ctx).
		Clauses(forUpdate).
		Where("sku = ? AND warehouse = ?", sku, warehouse).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(domain.ErrNotFound, "stock record %s@%s", sku, warehouse)
		}
		return nil, errors.Wrapf(err, "lock stock record %s@%s", sku, warehouse)
	}
	return ToDomainStockRecord(&model), nil
}

// Save 只更新计数器和更新时间
func (r *GormStockRepository) Save(ctx context.Context, stock *domain.StockRecord) error {
	updateData := map[string]interface{}{
		"on_hand":    stock.OnHand,
		"reserved":   stock.Reserved,
		"updated_at": stock.UpdatedAt,
	}
	err := r.db.WithContext(ctx).Model(&StockRecordModel{}).Where("id = ?", stock.ID).Updates(updateData).Error
	return errors.Wrapf(err, "save stock record %s", stock)
}

func (r *GormStockRepository) ListBySKU(ctx context.Context, sku string) ([]*domain.StockRecord, error) {
	var models []StockRecordModel
	err := r.db.WithContext(ctx).Where("sku = ?", sku).Order("warehouse").Find(&models).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list stock for sku %s", sku)
	}
	out := make([]*domain.StockRecord, 0, len(models))
	for i := range models {
		out = append(out, ToDomainStockRecord(&models[i]))
	}
	return out, nil
}

// Upsert 按 (sku, warehouse) 插入或覆盖，已存在的行保留原有 ID
func (r *GormStockRepository) Upsert(ctx context.Context, stock *domain.StockRecord) (*domain.StockRecord, error) {
	model := FromDomainStockRecord(stock)
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	db := r.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku"}, {Name: "warehouse"}},
		DoUpdates: clause.AssignmentColumns([]string{"product_id", "on_hand", "reserved", "low_stock_threshold", "updated_at"}),
	}).Create(model).Error
	if err != nil {
		return nil, errors.Wrapf(err, "upsert stock record %s", stock)
	}

	var saved StockRecordModel
	if err := db.Where("sku = ? AND warehouse = ?", stock.SKU, stock.Warehouse).Take(&saved).Error; err != nil {
		return nil, errors.Wrapf(err, "reload stock record %s", stock)
	}
	return ToDomainStockRecord(&saved), nil
}

// GormReservationRepository 是 ReservationRepository 的 GORM 实现
type GormReservationRepository struct {
	db *gorm.DB
}

func NewGormReservationRepository(db *gorm.DB) *GormReservationRepository {
	return &GormReservationRepository{db: db}
}

func (r *GormReservationRepository) Create(ctx context.Context, res *domain.Reservation) error {
	err := r.db.WithContext(ctx).Create(FromDomainReservation(res)).Error
	return errors.Wrapf(err, "create reservation %s", res.ID)
}

// Save 预占创建后只有 released 会变化
func (r *GormReservationRepository) Save(ctx context.Context, res *domain.Reservation) error {
	err := r.db.WithContext(ctx).Model(&ReservationModel{}).
		Where("id = ?", res.ID).
		Updates(map[string]interface{}{"released": res.Released}).Error
	return errors.Wrapf(err, "save reservation %s", res.ID)
}

func (r *GormReservationRepository) LockByID(ctx context.Context, id string) (*domain.Reservation, error) {
	var model ReservationModel
	err := r.db.WithContext(ctx).Clauses(forUpdate).Where("id = ?", id).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(domain.ErrNotFound, "reservation %s", id)
		}
		return nil, errors.Wrapf(err, "lock reservation %s", id)
	}
	return ToDomainReservation(&model), nil
}

func (r *GormReservationRepository) FindActiveByIdempotencyKey(ctx context.Context, key, reference string) (*domain.Reservation, error) {
	q := r.db.WithContext(ctx).Where("idempotency_key = ? AND released = ?", key, false)
	q = whereReference(q, reference)
	return r.first(q, "find active reservation by idempotency key")
}

func (r *GormReservationRepository) FindReleasedByIdempotencyKey(ctx context.Context, key string) (*domain.Reservation, error) {
	q := r.db.WithContext(ctx).Where("idempotency_key = ? AND released = ?", key, true)
	return r.first(q, "find released reservation by idempotency key")
}

// first 返回最新的一条匹配记录，没有时返回 nil, nil
func (r *GormReservationRepository) first(q *gorm.DB, op string) (*domain.Reservation, error) {
	var models []ReservationModel
	if err := q.Order("created_at DESC").Limit(1).Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, op)
	}
	if len(models) == 0 {
		return nil, nil
	}
	return ToDomainReservation(&models[0]), nil
}

func (r *GormReservationRepository) ListExpiredIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	q := r.db.WithContext(ctx).Model(&ReservationModel{}).
		Where("released = ? AND expires_at <= ?", false, now).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ids []string
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, errors.Wrap(err, "list expired reservations")
	}
	return ids, nil
}

func (r *GormReservationRepository) List(ctx context.Context, filter domain.ReservationFilter) ([]*domain.Reservation, error) {
	q := r.db.WithContext(ctx).Model(&ReservationModel{})
	if filter.SKU != "" {
		q = q.Where("sku = ?", filter.SKU)
	}
	if filter.Warehouse != "" {
		q = q.Where("warehouse = ?", filter.Warehouse)
	}
	if filter.Reference != "" {
		q = q.Where("reference = ?", filter.Reference)
	}
	if filter.Released != nil {
		q = q.Where("released = ?", *filter.Released)
	}

	var models []ReservationModel
	err := q.Order("created_at DESC").Limit(domain.NormalizeLimit(filter.Limit)).Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list reservations")
	}
	out := make([]*domain.Reservation, 0, len(models))
	for i := range models {
		out = append(out, ToDomainReservation(&models[i]))
	}
	return out, nil
}

// GormMovementLog 是 MovementLog 的 GORM 实现
type GormMovementLog struct {
	db *gorm.DB
}

func NewGormMovementLog(db *gorm.DB) *GormMovementLog {
	return &GormMovementLog{db: db}
}

func (l *GormMovementLog) Append(ctx context.Context, entry *domain.MovementEntry) error {
	if !entry.Type.Valid() {
		return errors.Wrapf(domain.ErrInvalidArgument, "unknown movement type %q", entry.Type)
	}
	err := l.db.WithContext(ctx).Omit(clause.Associations).Create(FromDomainMovement(entry)).Error
	return errors.Wrapf(err, "append %s movement for %s@%s", entry.Type, entry.SKU, entry.Warehouse)
}

func (l *GormMovementLog) List(ctx context.Context, filter domain.MovementFilter) ([]*domain.MovementEntry, error) {
	db := l.db.WithContext(ctx)
	q := db.Model(&MovementModel{}).Preload("StockRecord")
	if filter.SKU != "" || filter.Warehouse != "" {
		stockIDs := db.Model(&StockRecordModel{}).Select("id")
		if filter.SKU != "" {
			stockIDs = stockIDs.Where("sku = ?", filter.SKU)
		}
		if filter.Warehouse != "" {
			stockIDs = stockIDs.Where("warehouse = ?", filter.Warehouse)
		}
		q = q.Where("stock_record_id IN (?)", stockIDs)
	}
	if filter.Reference != "" {
		q = q.Where("reference = ?", filter.Reference)
	}

	var models []MovementModel
	err := q.Order("created_at DESC").Limit(domain.NormalizeLimit(filter.Limit)).Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list movements")
	}
	out := make([]*domain.MovementEntry, 0, len(models))
	for i := range models {
		out = append(out, ToDomainMovement(&models[i]))
	}
	return out, nil
}

// whereReference 空 reference 在库里是 NULL
func whereReference(q *gorm.DB, reference string) *gorm.DB {
	if reference == "" {
		return q.Where("reference IS NULL")
	}
	return q.Where("reference = ?", reference)
}
