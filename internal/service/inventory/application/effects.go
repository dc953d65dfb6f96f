package application

import (
	"context"

	"stockledger/internal/pkg/logger"
	"stockledger/internal/pkg/tracing"
	"stockledger/internal/service/inventory/domain"
)

type recordedMovement struct {
	entry    *domain.MovementEntry
	snapshot domain.StockRecord // 写入流水时的库存状态
}

// effects 收集一次事务中产生的、需要在提交后执行的副作用。
// 每次事务尝试使用新的 effects，回滚的尝试不会留下任何副作用。
type effects struct {
	skus      []string
	movements []recordedMovement
}

func (fx *effects) touch(sku string) {
	for _, s := range fx.skus {
		if s == sku {
			return
		}
	}
	fx.skus = append(fx.skus, sku)
}

func (fx *effects) record(stock *domain.StockRecord, entry *domain.MovementEntry) {
	fx.touch(stock.SKU)
	fx.movements = append(fx.movements, recordedMovement{entry: entry, snapshot: *stock})
}

// latestSnapshots 返回每个库存行最后一次的快照，按首次出现的顺序
func (fx *effects) latestSnapshots() []domain.StockRecord {
	index := make(map[string]int)
	var out []domain.StockRecord
	for _, m := range fx.movements {
		if i, ok := index[m.snapshot.ID]; ok {
			out[i] = m.snapshot
			continue
		}
		index[m.snapshot.ID] = len(out)
		out = append(out, m.snapshot)
	}
	return out
}

// afterCommit 执行提交后的副作用：缓存失效、事件发布、低库存检测。
// 这些步骤失败只记录日志，不影响已提交的结果。
func (s *ReservationService) afterCommit(ctx context.Context, fx *effects) {
	if fx == nil {
		return
	}
	log := logger.Ctx(ctx)

	for _, sku := range fx.skus {
		if err := s.cache.Invalidate(ctx, sku); err != nil {
			log.Warn().Err(err).Str("sku", sku).Msg("stock cache invalidation failed")
		}
	}

	traceID := tracing.GetTraceIDFromContext(ctx)
	for _, m := range fx.movements {
		event := domain.NewMovementRecorded(m.entry, m.snapshot)
		event.TraceID = traceID
		if err := s.publisher.PublishMovement(ctx, event); err != nil {
			log.Warn().Err(err).Str("movement_id", m.entry.ID).Msg("publish movement event failed")
		}
	}

	if s.alertRule == nil {
		return
	}
	for _, snap := range fx.latestSnapshots() {
		hit, err := s.alertRule.Evaluate(&snap)
		if err != nil {
			log.Warn().Err(err).Str("stock", snap.String()).Msg("low stock rule evaluation failed")
			continue
		}
		if !hit {
			continue
		}
		s.metrics.IncLowStock(snap.Warehouse)
		event := domain.NewLowStockDetected(snap, s.clock.Now())
		event.TraceID = traceID
		log.Info().Str("stock", snap.String()).Int("available", snap.Available()).Msg("low stock detected")
		if err := s.publisher.PublishLowStock(ctx, event); err != nil {
			log.Warn().Err(err).Str("stock", snap.String()).Msg("publish low stock event failed")
		}
	}
}
