package infrastructure

import (
	"stockledger/internal/service/inventory/domain"
)

// ToDomainStockRecord 将数据库模型转换为领域模型
func ToDomainStockRecord(model *StockRecordModel) *domain.StockRecord {
	if model == nil {
		return nil
	}
	return &domain.StockRecord{
		ID:                model.ID,
		ProductID:         deref(model.ProductID),
		SKU:               model.SKU,
		Warehouse:         model.Warehouse,
		OnHand:            model.OnHand,
		Reserved:          model.Reserved,
		LowStockThreshold: model.LowStockThreshold,
		UpdatedAt:         model.UpdatedAt.UTC(),
	}
}

// FromDomainStockRecord 将领域模型转换为数据库模型
func FromDomainStockRecord(dmn *domain.StockRecord) *StockRecordModel {
	if dmn == nil {
		return nil
	}
	return &StockRecordModel{
		ID:                dmn.ID,
		ProductID:         nullable(dmn.ProductID),
		SKU:               dmn.SKU,
		Warehouse:         dmn.Warehouse,
		OnHand:            dmn.OnHand,
		Reserved:          dmn.Reserved,
		LowStockThreshold: dmn.LowStockThreshold,
		UpdatedAt:         dmn.UpdatedAt,
	}
}

func ToDomainReservation(model *ReservationModel) *domain.Reservation {
	if model == nil {
		return nil
	}
	return &domain.Reservation{
		ID:             model.ID,
		SKU:            model.SKU,
		Warehouse:      model.Warehouse,
		Qty:            model.Qty,
		Reference:      deref(model.Reference),
		CreatedAt:      model.CreatedAt.UTC(),
		ExpiresAt:      model.ExpiresAt.UTC(),
		Released:       model.Released,
		IdempotencyKey: deref(model.IdempotencyKey),
	}
}

func FromDomainReservation(dmn *domain.Reservation) *ReservationModel {
	if dmn == nil {
		return nil
	}
	return &ReservationModel{
		ID:             dmn.ID,
		SKU:            dmn.SKU,
		Warehouse:      dmn.Warehouse,
		Qty:            dmn.Qty,
		Reference:      nullable(dmn.Reference),
		CreatedAt:      dmn.CreatedAt,
		ExpiresAt:      dmn.ExpiresAt,
		Released:       dmn.Released,
		IdempotencyKey: nullable(dmn.IdempotencyKey),
	}
}

// ToDomainMovement 需要预加载 StockRecord 才能填充 SKU 和仓库
func ToDomainMovement(model *MovementModel) *domain.MovementEntry {
	if model == nil {
		return nil
	}
	return &domain.MovementEntry{
		ID:            model.ID,
		StockRecordID: model.StockRecordID,
		SKU:           model.StockRecord.SKU,
		Warehouse:     model.StockRecord.Warehouse,
		Type:          model.Type,
		Qty:           model.Qty,
		Reference:     deref(model.Reference),
		CreatedAt:     model.CreatedAt.UTC(),
	}
}

func FromDomainMovement(dmn *domain.MovementEntry) *MovementModel {
	if dmn == nil {
		return nil
	}
	return &MovementModel{
		ID:            dmn.ID,
		StockRecordID: dmn.StockRecordID,
		Type:          dmn.Type,
		Qty:           dmn.Qty,
		Reference:     nullable(dmn.Reference),
		CreatedAt:     dmn.CreatedAt,
	}
}

// 空字符串在库里存为 NULL
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
