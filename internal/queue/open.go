package queue

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/Ramsey-USA/mh-website-sub005/internal/config"
)

// Open 根据配置选择队列后端：leveldb 存放在 <StoragePath>/queue，redis 使用 RedisURL。
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Queue.Backend {
	case "", "leveldb":
		return NewLevelStore(filepath.Join(cfg.Global.StoragePath, "queue"))
	case "redis":
		return NewRedisStore(ctx, RedisConfig{URL: cfg.Queue.RedisURL, Prefix: cfg.Queue.RedisPrefix})
	default:
		return nil, fmt.Errorf("unsupported queue backend %q", cfg.Queue.Backend)
	}
}
