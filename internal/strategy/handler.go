// Package strategy implements the per-class caching strategies applied to
// intercepted requests: cache-first with TTL, network-first with a timeout,
// stale-while-revalidate and plain pass-through, together with the offline
// fallbacks (placeholder image, page fallback chain, structured API error).
package strategy

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/Ramsey-USA/mh-website-sub005/internal/cache"
	"github.com/Ramsey-USA/mh-website-sub005/internal/fetch"
)

// Handler 处理一次被拦截的请求。
type Handler interface {
	Handle(ctx context.Context, req *fetch.Request) (*fetch.Response, error)
}

// HandlerFunc 适配普通函数。
type HandlerFunc func(ctx context.Context, req *fetch.Request) (*fetch.Response, error)

func (f HandlerFunc) Handle(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
	return f(ctx, req)
}

// Fallback 在网络失败（或超时）后生成替代响应；cause 为原始错误。
type Fallback func(ctx context.Context, req *fetch.Request, cause error) (*fetch.Response, error)

// Matcher 跨分区查找缓存条目，cache.Store 与 cache.PartitionWriter 均满足。
type Matcher interface {
	Match(ctx context.Context, key cache.Key) (*cache.Entry, error)
}

// ErrTimeout 表示网络请求未在限定时间内返回。
var ErrTimeout = errors.New("network timeout")

// KeyFor 返回请求对应的缓存 key，只有 GET 请求才会被缓存。
func KeyFor(req *fetch.Request) cache.Key {
	return cache.Key{Method: req.Method, URL: req.URL.String()}
}

// FromEntry 将缓存条目转换为响应。
func FromEntry(entry *cache.Entry, source fetch.Source) *fetch.Response {
	header := entry.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	status := entry.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	return &fetch.Response{
		StatusCode: status,
		Header:     header,
		Body:       append([]byte(nil), entry.Body...),
		Source:     source,
	}
}

// ToEntry 将网络响应转换为待写入的缓存条目。
func ToEntry(resp *fetch.Response) *cache.Entry {
	return &cache.Entry{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       append([]byte(nil), resp.Body...),
	}
}

// lookup 读取分区缓存；存储错误按未命中处理并记录日志，不阻塞主流程。
func lookup(ctx context.Context, writer cache.PartitionWriter, key cache.Key, logger *logrus.Logger) (*cache.Entry, bool) {
	if !writer.Enabled() {
		return nil, false
	}
	entry, fresh, err := writer.Lookup(ctx, key)
	switch {
	case err == nil:
		return entry, fresh
	case errors.Is(err, cache.ErrNotFound):
	default:
		logWarn(logger, err, "cache_get_failed", writer.Partition().Name, key)
	}
	return nil, false
}

// store 写入 2xx 响应；失败只记录日志。
func store(ctx context.Context, writer cache.PartitionWriter, key cache.Key, resp *fetch.Response, logger *logrus.Logger) {
	if !writer.Enabled() || !resp.OK() || key.Method != http.MethodGet {
		return
	}
	if err := writer.Put(ctx, key, ToEntry(resp)); err != nil {
		logWarn(logger, err, "cache_put_failed", writer.Partition().Name, key)
	}
}

func logWarn(logger *logrus.Logger, err error, msg, partition string, key cache.Key) {
	if logger == nil {
		return
	}
	logger.WithError(err).WithFields(logrus.Fields{
		"action":    "strategy",
		"partition": partition,
		"url":       key.URL,
	}).Warn(msg)
}
