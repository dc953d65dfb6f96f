package infrastructure

import (
	"time"

	"stockledger/internal/service/inventory/domain"
)

// StockRecordModel 对应数据库中的 inventory_stock_records 表
type StockRecordModel struct {
	ID                string    `gorm:"primaryKey;type:varchar(36)"`
	ProductID         *string   `gorm:"type:varchar(64)"`
	SKU               string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_sku_warehouse,priority:1"`
	Warehouse         string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_sku_warehouse,priority:2"`
	OnHand            int       `gorm:"not null"`
	Reserved          int       `gorm:"not null"`
	LowStockThreshold int       `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime:false"`
}

// TableName 指定 GORM 应该使用的表名
func (StockRecordModel) TableName() string {
	return "inventory_stock_records"
}

// ReservationModel 对应数据库中的 inventory_reservations 表。
// 通过 (sku, warehouse) 逻辑关联库存行，不设外键。
type ReservationModel struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)"`
	SKU            string    `gorm:"type:varchar(64);not null;index:idx_reservation_stock,priority:1"`
	Warehouse      string    `gorm:"type:varchar(64);not null;index:idx_reservation_stock,priority:2"`
	Qty            int       `gorm:"not null"`
	Reference      *string   `gorm:"type:varchar(128);index"`
	CreatedAt      time.Time `gorm:"autoCreateTime:false"`
	ExpiresAt      time.Time `gorm:"not null;index:idx_reservation_expiry,priority:2"`
	Released       bool      `gorm:"not null;index:idx_reservation_expiry,priority:1"`
	IdempotencyKey *string   `gorm:"type:varchar(128);index"`
}

func (ReservationModel) TableName() string {
	return "inventory_reservations"
}

// MovementModel 对应数据库中的 inventory_movements 表，只追加
type MovementModel struct {
	ID            string              `gorm:"primaryKey;type:varchar(36)"`
	StockRecordID string              `gorm:"type:varchar(36);not null;index"`
	Type          domain.MovementType `gorm:"column:movement_type;type:varchar(16);not null"`
	Qty           int                 `gorm:"not null"`
	Reference     *string             `gorm:"type:varchar(128);index"`
	CreatedAt     time.Time           `gorm:"autoCreateTime:false;index"`
	// 关联关系
	StockRecord StockRecordModel `gorm:"foreignKey:StockRecordID;constraint:OnDelete:CASCADE"`
}

func (MovementModel) TableName() string {
	return "inventory_movements"
}

// AllModels 返回需要迁移的全部模型
func AllModels() []interface{} {
	return []interface{}{&StockRecordModel{}, &ReservationModel{}, &MovementModel{}}
}
