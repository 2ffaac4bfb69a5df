package server

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/Ramsey-USA/mh-website-sub005/internal/config"
)

// Target 是 Host 头解析出的上游站点。同源请求统一指向配置的 Origin，
// 这样别名访问与预缓存使用同一组缓存 key。
type Target struct {
	Host       string
	Base       *url.URL
	SameOrigin bool
}

// TargetResolver 将 Host / Host:port 映射到上游站点。
type TargetResolver struct {
	origin     *url.URL
	hosts      map[string]struct{}
	listenPort int
}

// NewTargetResolver 根据 Origin 与 Aliases 构建同源 host 集合。
func NewTargetResolver(cfg *config.Config) (*TargetResolver, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	origin := cfg.OriginURL()
	if origin.Host == "" {
		return nil, errors.New("origin host is empty")
	}

	hosts := make(map[string]struct{}, len(cfg.Global.Aliases)+2)
	hosts[strings.ToLower(origin.Host)] = struct{}{}
	for _, raw := range append([]string{origin.Host}, cfg.Global.Aliases...) {
		if host, _ := normalizeHost(raw); host != "" {
			hosts[host] = struct{}{}
		}
	}
	return &TargetResolver{
		origin:     &url.URL{Scheme: origin.Scheme, Host: origin.Host},
		hosts:      hosts,
		listenPort: cfg.Global.ListenPort,
	}, nil
}

// Resolve 解析 Host 头；forwardedProto 为空时跨域站点默认使用 https。
// 指向 agent 自身监听地址的 Host 返回 false，避免请求回环。
func (r *TargetResolver) Resolve(rawHost, forwardedProto string) (*Target, bool) {
	if r == nil {
		return nil, false
	}
	rawHost = strings.ToLower(strings.TrimSpace(rawHost))
	host, port := normalizeHost(rawHost)
	if host == "" {
		return nil, false
	}
	if _, ok := r.hosts[rawHost]; ok {
		return r.sameOrigin(rawHost), true
	}
	if _, ok := r.hosts[host]; ok {
		return r.sameOrigin(rawHost), true
	}
	if port == r.listenPort && isLoopback(host) {
		return nil, false
	}

	scheme := strings.ToLower(strings.TrimSpace(forwardedProto))
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	hostPort := host
	if port > 0 {
		hostPort = net.JoinHostPort(host, strconv.Itoa(port))
	}
	return &Target{
		Host: rawHost,
		Base: &url.URL{Scheme: scheme, Host: hostPort},
	}, true
}

// Hosts 返回同源 host 列表，供 /-/status 输出。
func (r *TargetResolver) Hosts() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.hosts))
	for host := range r.hosts {
		out = append(out, host)
	}
	return out
}

func (r *TargetResolver) sameOrigin(rawHost string) *Target {
	base := *r.origin
	return &Target{Host: rawHost, Base: &base, SameOrigin: true}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func normalizeHost(raw string) (string, int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0
	}

	host := raw
	port := 0

	if strings.Contains(raw, ":") {
		if h, p, err := net.SplitHostPort(raw); err == nil {
			host = h
			if parsedPort, err := strconv.Atoi(p); err == nil {
				port = parsedPort
			}
		} else if idx := strings.LastIndex(raw, ":"); idx > -1 && strings.Count(raw[idx+1:], ":") == 0 {
			if parsedPort, err := strconv.Atoi(raw[idx+1:]); err == nil {
				host = raw[:idx]
				port = parsedPort
			}
		}
	}

	host = strings.TrimSuffix(host, ".")
	host = strings.ToLower(host)
	return host, port
}
