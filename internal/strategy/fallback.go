package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Ramsey-USA/mh-website-sub005/internal/cache"
	"github.com/Ramsey-USA/mh-website-sub005/internal/fetch"
)

const placeholderSVG = `<svg width="400" height="300" xmlns="http://www.w3.org/2000/svg">
  <rect width="100%" height="100%" fill="#f3f4f6"/>
  <text x="50%" y="50%" text-anchor="middle" dy=".3em" fill="#6b7280" font-family="Arial, sans-serif" font-size="16">Image unavailable offline</text>
</svg>`

const offlineHTML = `<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>Offline</title></head>
<body style="font-family:Arial,sans-serif;text-align:center;padding:4rem 1rem;color:#374151">
<h1>You are offline</h1>
<p>This page is not available offline. Please check your connection and try again.</p>
</body>
</html>`

// OfflineMessage 描述 API 离线响应中的能力提示。
type OfflineMessage struct {
	Match   string
	Message string
}

// offlineMessages 按路径子串匹配，第一个命中生效。
var offlineMessages = []OfflineMessage{
	{Match: "/contact", Message: "Contact service requires internet connection. Your message will be sent when online."},
	{Match: "/estimat", Message: "The estimator requires an internet connection. Please try again when you are back online."},
	{Match: "/booking", Message: "Booking requests require an internet connection. Your request will be submitted when online."},
}

const genericOfflineMessage = "This service is unavailable while offline."

// offlineBody 是 503 离线响应的 JSON 结构。
type offlineBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// PlaceholderImage 返回内联 SVG 占位图（200，不可缓存）。
func PlaceholderImage() Fallback {
	return func(context.Context, *fetch.Request, error) (*fetch.Response, error) {
		return &fetch.Response{
			StatusCode: http.StatusOK,
			Header: http.Header{
				"Content-Type":  []string{"image/svg+xml"},
				"Cache-Control": []string{"no-cache"},
			},
			Body:   []byte(placeholderSVG),
			Source: fetch.SourceFallback,
		}, nil
	}
}

// PageFallback 依次尝试：同 URL 缓存、根文档、离线页，最后返回内置离线 HTML。
func PageFallback(matcher Matcher, offlinePath string, logger *logrus.Logger) Fallback {
	if offlinePath == "" {
		offlinePath = "/offline"
	}
	return func(ctx context.Context, req *fetch.Request, cause error) (*fetch.Response, error) {
		candidates := []string{req.URL.String(), req.ResolvePath("/").String(), req.ResolvePath(offlinePath).String()}
		for i, candidate := range candidates {
			entry, err := matchEntry(ctx, matcher, candidate, logger)
			if entry == nil || err != nil {
				continue
			}
			source := fetch.SourceStale
			if i > 0 {
				source = fetch.SourceFallback
			}
			return FromEntry(entry, source), nil
		}
		return &fetch.Response{
			StatusCode: http.StatusOK,
			Header: http.Header{
				"Content-Type":  []string{"text/html; charset=utf-8"},
				"Cache-Control": []string{"no-cache"},
			},
			Body:   []byte(offlineHTML),
			Source: fetch.SourceFallback,
		}, nil
	}
}

// APIFallback 先尝试同 URL 的缓存，否则生成 503 JSON 离线响应。
func APIFallback(matcher Matcher, logger *logrus.Logger) Fallback {
	return func(ctx context.Context, req *fetch.Request, cause error) (*fetch.Response, error) {
		if req.Method == http.MethodGet {
			if entry, err := matchEntry(ctx, matcher, req.URL.String(), logger); err == nil && entry != nil {
				return FromEntry(entry, fetch.SourceStale), nil
			}
		}
		return OfflineAPIResponse(req.URL.Path), nil
	}
}

// OfflineAPIResponse 生成 {error:"Offline", message} 的 503 响应。
func OfflineAPIResponse(path string) *fetch.Response {
	body, _ := json.Marshal(offlineBody{Error: "Offline", Message: OfflineMessageFor(path)})
	return &fetch.Response{
		StatusCode: http.StatusServiceUnavailable,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       body,
		Source:     fetch.SourceFallback,
	}
}

// OfflineMessageFor 根据路径选择能力提示文案。
func OfflineMessageFor(path string) string {
	lower := strings.ToLower(path)
	for _, m := range offlineMessages {
		if strings.Contains(lower, m.Match) {
			return m.Message
		}
	}
	return genericOfflineMessage
}

func matchEntry(ctx context.Context, matcher Matcher, url string, logger *logrus.Logger) (*cache.Entry, error) {
	if matcher == nil {
		return nil, cache.ErrNotFound
	}
	entry, err := matcher.Match(ctx, cache.GetKey(url))
	if err != nil && !errors.Is(err, cache.ErrNotFound) && logger != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"action": "fallback",
			"url":    url,
		}).Warn("cache_match_failed")
	}
	return entry, err
}
