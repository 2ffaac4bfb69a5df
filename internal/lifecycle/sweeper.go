package lifecycle

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Ramsey-USA/mh-website-sub005/internal/cache"
)

// TagCacheCleanup 是触发一次过期清理的周期同步标签。
const TagCacheCleanup = "cache-cleanup"

// Sweeper 删除本应用所有分区中的过期条目。逐条读取、判断、删除，不持有全局锁，
// 可以与正常请求并发执行。
type Sweeper struct {
	store   cache.Store
	app     string
	maxAges func() cache.MaxAges
	now     func() time.Time
	logger  *logrus.Logger
}

// NewSweeper 的 maxAges 在每次清理时调用，配置热更新后立即生效。
func NewSweeper(store cache.Store, app string, maxAges func() cache.MaxAges, logger *logrus.Logger) *Sweeper {
	return &Sweeper{store: store, app: app, maxAges: maxAges, now: time.Now, logger: logger}
}

// WithClock 替换时钟，测试使用。
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Sweep 执行一次清理，返回删除的条目数。单个条目的读取失败只记录日志。
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	names, err := s.store.ListPartitions(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	now := s.now()
	ages := s.maxAges()
	for _, name := range names {
		if !cache.BelongsTo(name, s.app) {
			continue
		}
		maxAge := ages.MaxAgeFor(name)
		keys, err := s.store.Keys(ctx, name)
		if err != nil {
			s.warn(err, name, "sweep_keys_failed")
			continue
		}
		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				return removed, err
			}
			// 判断和删除在同一把 key 锁内完成，不会删掉刚写入的新条目。
			deleted, err := s.store.DeleteFunc(ctx, name, key, func(entry *cache.Entry) bool {
				return cache.IsExpired(entry, maxAge, now)
			})
			if err != nil {
				s.warn(err, name, "sweep_delete_failed")
				continue
			}
			if !deleted {
				continue
			}
			removed++
			cache.CacheEvictions.WithLabelValues("expired").Inc()
		}
	}
	return removed, nil
}

// Run 按 interval 周期清理，直到 ctx 取消；interval <= 0 时不启动。
// 每次清理后依次调用 hooks。
func (s *Sweeper) Run(ctx context.Context, interval time.Duration, hooks ...func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Sweep(ctx)
			entry := s.log().WithFields(logrus.Fields{"action": "sweep", "removed": removed})
			switch {
			case err == nil:
				entry.Debug("sweep_done")
			case !errors.Is(err, context.Canceled):
				entry.WithError(err).Warn("sweep_failed")
			}
			for _, hook := range hooks {
				if ctx.Err() != nil {
					return
				}
				hook(ctx)
			}
		}
	}
}

func (s *Sweeper) warn(err error, partition, msg string) {
	s.log().WithError(err).WithFields(logrus.Fields{
		"action":    "sweep",
		"partition": partition,
	}).Warn(msg)
}

func (s *Sweeper) log() *logrus.Logger {
	if s.logger != nil {
		return s.logger
	}
	return logrus.StandardLogger()
}
