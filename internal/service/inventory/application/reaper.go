package application

import (
	"context"
	"time"

	"stockledger/internal/pkg/logger"
	"stockledger/internal/service/inventory/domain/port"
)

// Sweeper 释放过期预占。本地是 *ReservationService，远程是库存服务的 HTTP 客户端。
type Sweeper interface {
	ReapExpired(ctx context.Context) (int, error)
}

// Reaper 定时调用 ReapExpired。
// 配置了 Locker 时，每一轮清理前先获取分布式锁，保证多个实例中同一时刻只有一个在清理。
type Reaper struct {
	sweeper  Sweeper
	locker   port.Locker
	interval time.Duration
}

func NewReaper(sweeper Sweeper, locker port.Locker, interval time.Duration) *Reaper {
	return &Reaper{sweeper: sweeper, locker: locker, interval: interval}
}

// Run 按 interval 周期执行清理，直到 ctx 结束
func (r *Reaper) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Dur("interval", r.interval).Msg("reservation reaper started")
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Ctx(ctx).Error().Err(err).Msg("reap pass failed")
			}
		case <-ctx.Done():
			logger.Ctx(ctx).Info().Msg("reservation reaper stopped")
			return nil
		}
	}
}

// RunOnce 执行一轮清理，返回释放的预占数量
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	if r.locker != nil {
		if err := r.locker.Lock(ctx); err != nil {
			return 0, err
		}
		defer func() {
			if err := r.locker.Unlock(); err != nil {
				logger.Ctx(ctx).Warn().Err(err).Msg("release reaper lock failed")
			}
		}()
	}
	return r.sweeper.ReapExpired(ctx)
}
