package strategy

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Ramsey-USA/mh-website-sub005/internal/cache"
	"github.com/Ramsey-USA/mh-website-sub005/internal/fetch"
)

// CacheFirst 优先返回新鲜缓存；未命中或过期时回源，回源失败时返回旧副本或交给 Fallback。
type CacheFirst struct {
	cache    cache.PartitionWriter
	network  fetch.Fetcher
	fallback Fallback
	logger   *logrus.Logger
}

// NewCacheFirst 构造 cache-first 策略；fallback 为 nil 时网络错误原样返回。
func NewCacheFirst(writer cache.PartitionWriter, network fetch.Fetcher, fallback Fallback, logger *logrus.Logger) *CacheFirst {
	return &CacheFirst{cache: writer, network: network, fallback: fallback, logger: logger}
}

func (h *CacheFirst) Handle(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	key := KeyFor(req)
	cached, fresh := lookup(ctx, h.cache, key, h.logger)
	if cached != nil && fresh {
		return FromEntry(cached, fetch.SourceCache), nil
	}

	resp, err := h.network.Fetch(ctx, req)
	if err != nil {
		if cached != nil {
			return FromEntry(cached, fetch.SourceStale), nil
		}
		if h.fallback != nil {
			return h.fallback(ctx, req, err)
		}
		return nil, err
	}
	store(ctx, h.cache, key, resp, h.logger)
	return resp, nil
}
