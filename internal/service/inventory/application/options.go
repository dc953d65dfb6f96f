package application

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"stockledger/internal/pkg/metrics"
	"stockledger/internal/service/inventory/domain"
	"stockledger/internal/service/inventory/domain/port"
)

// Option 配置 ReservationService
type Option func(*ReservationService)

func WithClock(clock domain.Clock) Option {
	return func(s *ReservationService) { s.clock = clock }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *ReservationService) { s.tracer = tracer }
}

func WithMetrics(m *metrics.Inventory) Option {
	return func(s *ReservationService) { s.metrics = m }
}

func WithStockCache(cache port.StockCache) Option {
	return func(s *ReservationService) { s.cache = cache }
}

func WithEventPublisher(publisher port.EventPublisher) Option {
	return func(s *ReservationService) { s.publisher = publisher }
}

// WithAlertRule 设置低库存规则，nil 表示不做低库存检测
func WithAlertRule(rule port.AlertRule) Option {
	return func(s *ReservationService) { s.alertRule = rule }
}

// WithRetry 设置事务的最大尝试次数和可重试错误的判断函数。
// 业务错误永远不会重试。
func WithRetry(attempts int, retryable func(error) bool) Option {
	return func(s *ReservationService) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if retryable != nil {
			s.retryable = retryable
		}
	}
}

func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *ReservationService) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

// WithReapBatchLimit 限制一次清理处理的预占数量，0 表示不限制
func WithReapBatchLimit(limit int) Option {
	return func(s *ReservationService) {
		if limit >= 0 {
			s.reapLimit = limit
		}
	}
}
