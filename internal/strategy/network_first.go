package strategy

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Ramsey-USA/mh-website-sub005/internal/cache"
	"github.com/Ramsey-USA/mh-website-sub005/internal/fetch"
)

// DefaultNetworkTimeout 是网络优先策略的默认超时。
const DefaultNetworkTimeout = 8 * time.Second

// NetworkFirst 让网络请求与超时赛跑。超时不会取消请求本身：迟到的 2xx 响应仍会写入缓存。
type NetworkFirst struct {
	cache    cache.PartitionWriter
	network  fetch.Fetcher
	fallback Fallback
	timeout  time.Duration
	logger   *logrus.Logger
}

// NewNetworkFirst 构造 network-first 策略；timeout <= 0 时使用 DefaultNetworkTimeout。
func NewNetworkFirst(writer cache.PartitionWriter, network fetch.Fetcher, fallback Fallback, timeout time.Duration, logger *logrus.Logger) *NetworkFirst {
	if timeout <= 0 {
		timeout = DefaultNetworkTimeout
	}
	return &NetworkFirst{cache: writer, network: network, fallback: fallback, timeout: timeout, logger: logger}
}

type fetchResult struct {
	resp *fetch.Response
	err  error
}

func (h *NetworkFirst) Handle(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	key := KeyFor(req)
	detached := context.WithoutCancel(ctx)

	done := make(chan fetchResult, 1)
	go func() {
		resp, err := h.network.Fetch(detached, req)
		if err == nil {
			store(detached, h.cache, key, resp, h.logger)
		}
		done <- fetchResult{resp: resp, err: err}
	}()

	timer := time.NewTimer(h.timeout)
	defer timer.Stop()

	var cause error
	select {
	case r := <-done:
		if r.err == nil {
			return r.resp, nil
		}
		cause = r.err
	case <-timer.C:
		cause = ErrTimeout
		NetworkTimeouts.WithLabelValues(h.cache.Partition().Name).Inc()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if h.fallback == nil {
		return nil, cause
	}
	return h.fallback(ctx, req, cause)
}
