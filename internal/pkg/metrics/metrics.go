// internal/pkg/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Inventory 汇总了库存引擎暴露的 Prometheus 指标。
// nil 的 *Inventory 可以安全调用，所有方法都是空操作。
type Inventory struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	reaped     prometheus.Counter
	lowStock   *prometheus.CounterVec
}

// New 在 reg 上注册库存指标。reg 为 nil 时使用默认的 Registerer。
func New(reg prometheus.Registerer) *Inventory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Inventory{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_operations_total",
			Help: "Number of inventory engine operations by result kind.",
		}, []string{"operation", "result"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inventory_operation_duration_seconds",
			Help:    "Latency of inventory engine operations including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		reaped: f.NewCounter(prometheus.CounterOpts{
			Name: "inventory_reservations_reaped_total",
			Help: "Expired reservations released by the sweeper.",
		}),
		lowStock: f.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_low_stock_alerts_total",
			Help: "Low stock alerts raised after committed mutations.",
		}, []string{"warehouse"}),
	}
}

// ObserveOperation 记录一次操作的结果和耗时
func (m *Inventory) ObserveOperation(operation, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, result).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Inventory) AddReaped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reaped.Add(float64(n))
}

func (m *Inventory) IncLowStock(warehouse string) {
	if m == nil {
		return
	}
	m.lowStock.WithLabelValues(warehouse).Inc()
}
