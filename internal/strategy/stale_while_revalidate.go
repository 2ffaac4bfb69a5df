package strategy

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Ramsey-USA/mh-website-sub005/internal/cache"
	"github.com/Ramsey-USA/mh-website-sub005/internal/fetch"
)

// StaleWhileRevalidate 命中时立即返回缓存并启动一次后台刷新；未命中时交给 miss（通常是 NetworkFirst），
// 由后者负责写缓存，不会再额外发起后台请求。
type StaleWhileRevalidate struct {
	cache   cache.PartitionWriter
	network fetch.Fetcher
	miss    Handler
	logger  *logrus.Logger

	inflight sync.WaitGroup
}

// NewStaleWhileRevalidate 构造 stale-while-revalidate 策略。
func NewStaleWhileRevalidate(writer cache.PartitionWriter, network fetch.Fetcher, miss Handler, logger *logrus.Logger) *StaleWhileRevalidate {
	return &StaleWhileRevalidate{cache: writer, network: network, miss: miss, logger: logger}
}

func (h *StaleWhileRevalidate) Handle(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	key := KeyFor(req)
	cached, fresh := lookup(ctx, h.cache, key, h.logger)
	if cached == nil {
		return h.miss.Handle(ctx, req)
	}

	h.inflight.Add(1)
	go h.refresh(context.WithoutCancel(ctx), req, key)

	source := fetch.SourceCache
	if !fresh {
		source = fetch.SourceStale
	}
	return FromEntry(cached, source), nil
}

func (h *StaleWhileRevalidate) refresh(ctx context.Context, req *fetch.Request, key cache.Key) {
	defer h.inflight.Done()
	resp, err := h.network.Fetch(ctx, req)
	if err != nil {
		if h.logger != nil {
			h.logger.WithError(err).WithFields(logrus.Fields{
				"action": "revalidate",
				"url":    key.URL,
			}).Info("background_refresh_failed")
		}
		return
	}
	store(ctx, h.cache, key, resp, h.logger)
}

// Drain 等待所有后台刷新结束，用于优雅退出与测试。
func (h *StaleWhileRevalidate) Drain() {
	h.inflight.Wait()
}
