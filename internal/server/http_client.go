package server

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/Ramsey-USA/mh-website-sub005/internal/config"
)

const defaultUpstreamTimeout = 30 * time.Second

// NewUpstreamClient 返回 agent 唯一的出站 http.Client，拦截请求、预缓存和队列回放共用同一连接池。
// UpstreamTimeout 是每个网络调用的硬上限；network-first 的超时只决定何时改用回退，不会中断请求。
func NewUpstreamClient(cfg *config.Config) *http.Client {
	timeout := defaultUpstreamTimeout
	listenPort := 0
	if cfg != nil {
		if d := cfg.Global.UpstreamTimeout.DurationValue(); d > 0 {
			timeout = d
		}
		listenPort = cfg.Global.ListenPort
	}

	transport := &http.Transport{
		Proxy:                 upstreamProxy(listenPort, http.ProxyFromEnvironment),
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceAttemptHTTP2:     true,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// upstreamProxy 沿用 HTTP(S)_PROXY 环境变量，但忽略指向 agent 自身监听端口的代理，
// 否则浏览器与 agent 共用系统代理时出站请求会回到自己。
func upstreamProxy(listenPort int, lookup func(*http.Request) (*url.URL, error)) func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		proxyURL, err := lookup(req)
		if err != nil || proxyURL == nil {
			return proxyURL, err
		}
		host, port := normalizeHost(proxyURL.Host)
		if listenPort > 0 && port == listenPort && isLoopback(host) {
			return nil, nil
		}
		return proxyURL, nil
	}
}
