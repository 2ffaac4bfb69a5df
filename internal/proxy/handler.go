package proxy

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/Ramsey-USA/mh-website-sub005/internal/agent"
	"github.com/Ramsey-USA/mh-website-sub005/internal/fetch"
	"github.com/Ramsey-USA/mh-website-sub005/internal/logging"
	"github.com/Ramsey-USA/mh-website-sub005/internal/server"
)

// Dispatcher 是 Handler 依赖的事件入口，*agent.Agent 满足该接口。
type Dispatcher interface {
	Dispatch(ctx context.Context, ev agent.Event) (agent.Outcome, error)
}

// Handler 把 Fiber 请求转换为 FetchEvent，交给 agent 按资源类别选择缓存策略，
// 再把结果（含 X-Agent-Cache 来源头）写回客户端。
type Handler struct {
	agent  Dispatcher
	logger *logrus.Logger
}

// NewHandler constructs a proxy handler on top of the agent dispatcher.
func NewHandler(dispatcher Dispatcher, logger *logrus.Logger) *Handler {
	return &Handler{
		agent:  dispatcher,
		logger: logger,
	}
}

// Handle 执行一次拦截请求；没有任何回退可用时返回 502。
func (h *Handler) Handle(c fiber.Ctx, target *server.Target) error {
	started := time.Now()
	requestID := server.RequestID(c)
	req := buildRequest(c, target)

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	out, err := h.agent.Dispatch(ctx, agent.FetchEvent{Request: req})
	if err != nil {
		h.logResult(req, out, requestID, 0, started, err)
		return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}

	resp := out.Response
	copyResponseHeaders(c, resp.Header)
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.StatusCode)
	h.logResult(req, out, requestID, resp.StatusCode, started, nil)
	if req.Method == http.MethodHead {
		return nil
	}
	return c.Send(resp.Body)
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(req *fetch.Request, out agent.Outcome, requestID string, status int, started time.Time, err error) {
	source := ""
	if out.Response != nil {
		source = string(out.Response.Source)
	}
	cacheHit := source == string(fetch.SourceCache) || source == string(fetch.SourceStale)
	fields := logging.RequestFields(string(out.Decision.Class), out.Decision.Partition.Name, source, cacheHit)
	fields["action"] = "proxy"
	fields["method"] = req.Method
	fields["upstream"] = req.URL.String()
	fields["upstream_status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	h.logger.WithFields(fields).Info("proxy_complete")
}

// buildRequest 以 target.Base 为站点拼出完整 URL；路径保持原样，避免改变缓存 key。
func buildRequest(c fiber.Ctx, target *server.Target) *fetch.Request {
	uri := c.Request().URI()
	relative := &url.URL{Path: requestPath(c)}
	if raw := string(uri.PathOriginal()); raw != "" {
		if parsed, err := url.ParseRequestURI(raw); err == nil {
			relative.Path = parsed.Path
			relative.RawPath = parsed.RawPath
		}
	}
	if query := uri.QueryString(); len(query) > 0 {
		relative.RawQuery = string(query)
	}

	header := fiberHeadersAsHTTP(c)
	header.Del(fiber.HeaderHost)
	header.Del(fiber.HeaderXForwardedProto)

	return &fetch.Request{
		Method: strings.ToUpper(c.Method()),
		URL:    target.Base.ResolveReference(relative),
		Header: header,
		Body:   append([]byte(nil), c.Body()...),
	}
}

func requestPath(c fiber.Ctx) string {
	if c == nil {
		return "/"
	}
	uri := c.Request().URI()
	if uri == nil {
		return "/"
	}
	pathVal := string(uri.Path())
	if pathVal == "" {
		return "/"
	}
	return pathVal
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if fetch.IsHopByHopHeader(key) || strings.EqualFold(key, fiber.HeaderContentLength) {
			continue
		}
		for _, value := range values {
			c.Response().Header.Add(key, value)
		}
	}
}
