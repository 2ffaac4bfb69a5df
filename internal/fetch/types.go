package fetch

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Source 标记响应的来源，对外通过 X-Agent-Cache 头暴露。
type Source string

const (
	SourceNetwork  Source = "network"
	SourceCache    Source = "cache"
	SourceStale    Source = "stale"
	SourceFallback Source = "fallback"
)

// HeaderSource 是暴露响应来源的头部名称。
const HeaderSource = "X-Agent-Cache"

// Request 是被拦截的请求；Body 已完整读入内存。
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

// NewRequest 解析 rawURL 构造请求，Header 永不为 nil。
func NewRequest(method, rawURL string, header http.Header, body []byte) (*Request, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if header == nil {
		header = make(http.Header)
	}
	return &Request{
		Method: strings.ToUpper(method),
		URL:    parsed,
		Header: header,
		Body:   body,
	}, nil
}

// WithURL 返回指向另一个 URL 的 GET 副本，用于回退链与预缓存。
func (r *Request) WithURL(target *url.URL) *Request {
	return &Request{
		Method: http.MethodGet,
		URL:    target,
		Header: r.Header.Clone(),
	}
}

// ResolvePath 返回同源下 path 对应的绝对 URL。
func (r *Request) ResolvePath(path string) *url.URL {
	return &url.URL{Scheme: r.URL.Scheme, Host: r.URL.Host, Path: path}
}

// Destination 返回 Sec-Fetch-Dest 头，近似浏览器 request.destination。
func (r *Request) Destination() string {
	return strings.ToLower(r.Header.Get("Sec-Fetch-Dest"))
}

// Response 是完整读入内存的响应。
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Source     Source
}

// OK 对应 2xx 状态。
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Fetcher 执行真实的网络请求。网络层失败返回 error，HTTP 错误状态仍返回 Response。
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// FetcherFunc 便于测试与适配。
type FetcherFunc func(ctx context.Context, req *Request) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
