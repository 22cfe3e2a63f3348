package scheduler

import (
	"context"
	"errors"
	"time"

	"dev365-portal/internal/logging"
	"dev365-portal/internal/monitoring"
)

// CacheCollector 可回收闲置条目的缓存
type CacheCollector interface {
	GC(ctx context.Context, maxIdle time.Duration) (int, error)
}

// SessionSweeper 可清理过期会话的存储
type SessionSweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
	Count(ctx context.Context) (int, error)
}

// SessionGauge 接收当前会话数量
type SessionGauge interface {
	SetActiveSessions(count int)
}

// CacheGCJob 回收超过maxIdle未被读取的缓存条目
func CacheGCJob(cache CacheCollector, maxIdle time.Duration) JobFunc {
	return func(ctx context.Context) error {
		removed, err := cache.GC(ctx, maxIdle)
		if err != nil {
			return err
		}
		if removed > 0 {
			logging.DefaultLogger.Info("Cache GC removed %d idle entries", removed)
		}
		return nil
	}
}

// SessionSweepJob 清理过期会话并更新会话数量指标，gauge可为nil
func SessionSweepJob(store SessionSweeper, gauge SessionGauge) JobFunc {
	return func(ctx context.Context) error {
		removed, err := store.Sweep(ctx, time.Now())
		if err != nil {
			return err
		}
		if removed > 0 {
			logging.DefaultLogger.Info("Session sweep removed %d expired sessions", removed)
		}
		if gauge != nil {
			count, err := store.Count(ctx)
			if err != nil {
				return err
			}
			gauge.SetActiveSessions(count)
		}
		return nil
	}
}

// StatsCollector 采集主机资源使用情况
type StatsCollector interface {
	CollectSystemStats(ctx context.Context) (*monitoring.SystemStats, error)
}

// SystemStatsJob 定期采集CPU和内存使用率，结果由采集器写入指标
func SystemStatsJob(collector StatsCollector) JobFunc {
	return func(ctx context.Context) error {
		stats, err := collector.CollectSystemStats(ctx)
		if err != nil {
			return err
		}
		logging.DefaultLogger.Debug("System stats: cpu %.1f%%, memory %.1f%%", stats.CPUPercent, stats.MemoryPercent)
		return nil
	}
}

// MaintenanceJob 依次执行清理任务，单个任务失败不影响其余任务
func MaintenanceJob(tasks ...JobFunc) JobFunc {
	return func(ctx context.Context) error {
		var errs []error
		for _, task := range tasks {
			if err := task(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
