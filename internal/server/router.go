package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProxyHandler 处理已确定上游的拦截请求，测试中可替换为假实现。
type ProxyHandler interface {
	Handle(fiber.Ctx, *Target) error
}

// ProxyHandlerFunc 把普通函数适配为 ProxyHandler。
type ProxyHandlerFunc func(fiber.Ctx, *Target) error

func (f ProxyHandlerFunc) Handle(c fiber.Ctx, target *Target) error {
	return f(c, target)
}

// AppOptions 描述监听端口上的 Fiber 应用。
type AppOptions struct {
	Logger     *logrus.Logger
	Targets    *TargetResolver
	Proxy      ProxyHandler
	ListenPort int
}

// agentPathPrefix 下的路径属于 Agent 自身（控制通道、队列、诊断），不做 Host 解析。
const agentPathPrefix = "/-/"

const (
	headerRequestID = "X-Request-ID"
	headerAgentHost = "X-Agent-Host"
)

// scopeKey 是每个请求在 Locals 中的状态槽位。
type scopeKey struct{}

// requestScope 是中间件为单个请求记录的状态。
type requestScope struct {
	id     string
	target *Target
}

// gateway 把监听端口上的请求分为两类：Agent 自身路径交给后续注册的路由，
// 其余按 Host 解析上游后交给 ProxyHandler。
type gateway struct {
	logger  *logrus.Logger
	targets *TargetResolver
	proxy   ProxyHandler
	port    int
}

// NewApp 构造带请求 ID、Host 解析与 JSON 错误输出的 Fiber 应用。
// /-/ 下的路由由调用方在返回的 app 上继续注册。
func NewApp(opts AppOptions) (*fiber.App, error) {
	switch {
	case opts.Logger == nil:
		return nil, errors.New("logger is required")
	case opts.Targets == nil:
		return nil, errors.New("target resolver is required")
	case opts.Proxy == nil:
		return nil, errors.New("proxy handler is required")
	case opts.ListenPort <= 0:
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	gw := &gateway{
		logger:  opts.Logger,
		targets: opts.Targets,
		proxy:   opts.Proxy,
		port:    opts.ListenPort,
	}
	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		BodyLimit:     32 << 20,
		ErrorHandler:  gw.renderError,
	})
	app.Use(recover.New(), gw.identify, gw.resolve)
	app.All("/*", gw.dispatch)
	return app, nil
}

// identify 沿用上游传入的 X-Request-ID，缺失时生成新的。
func (g *gateway) identify(c fiber.Ctx) error {
	id := strings.TrimSpace(c.Get(headerRequestID))
	if id == "" {
		id = uuid.NewString()
	}
	c.Locals(scopeKey{}, &requestScope{id: id})
	c.Set(headerRequestID, id)
	return c.Next()
}

func (g *gateway) resolve(c fiber.Ctx) error {
	if isAgentPath(c.Path()) {
		return c.Next()
	}
	host := requestHost(c)
	target, ok := g.targets.Resolve(host, c.Get(fiber.HeaderXForwardedProto))
	if !ok {
		return g.unmapped(c, host)
	}
	scopeOf(c).target = target
	return c.Next()
}

func (g *gateway) dispatch(c fiber.Ctx) error {
	if isAgentPath(c.Path()) {
		return c.Next()
	}
	target, ok := TargetFromContext(c)
	if !ok {
		return g.unmapped(c, "")
	}
	return g.proxy.Handle(c, target)
}

func (g *gateway) unmapped(c fiber.Ctx, host string) error {
	g.logger.WithFields(logrus.Fields{
		"action":    "host_lookup",
		"host":      host,
		"port":      g.port,
		"requestId": RequestID(c),
	}).Warn("host unmapped")
	if host != "" {
		c.Set(headerAgentHost, host)
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "host_unmapped"})
}

// renderError 统一以 JSON 输出路由未命中、请求体过大等 Fiber 错误。
func (g *gateway) renderError(c fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	entry := g.logger.WithError(err).WithFields(logrus.Fields{
		"action":    "http",
		"path":      c.Path(),
		"status":    status,
		"requestId": RequestID(c),
	})
	if status >= fiber.StatusInternalServerError {
		entry.Error("request_failed")
	} else {
		entry.Debug("request_rejected")
	}
	return c.Status(status).JSON(fiber.Map{"error": strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))})
}

func requestHost(c fiber.Ctx) string {
	if raw := c.Request().Header.Peek(fiber.HeaderHost); len(raw) > 0 {
		return strings.TrimSpace(string(raw))
	}
	return strings.TrimSpace(c.Hostname())
}

func scopeOf(c fiber.Ctx) *requestScope {
	if scope, ok := c.Locals(scopeKey{}).(*requestScope); ok {
		return scope
	}
	scope := &requestScope{}
	c.Locals(scopeKey{}, scope)
	return scope
}

// TargetFromContext 返回中间件解析出的上游。
func TargetFromContext(c fiber.Ctx) (*Target, bool) {
	scope, ok := c.Locals(scopeKey{}).(*requestScope)
	if !ok || scope.target == nil {
		return nil, false
	}
	return scope.target, true
}

// RequestID 返回当前请求的 ID，未经过中间件时为空。
func RequestID(c fiber.Ctx) string {
	if scope, ok := c.Locals(scopeKey{}).(*requestScope); ok {
		return scope.id
	}
	return ""
}

// WithRequestID 为未经过中间件的请求（例如直接构造的 Ctx）设置请求 ID。
func WithRequestID(c fiber.Ctx, id string) {
	scopeOf(c).id = id
}

func isAgentPath(path string) bool {
	return strings.HasPrefix(path, agentPathPrefix)
}
