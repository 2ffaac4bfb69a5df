package server

import (
	"bytes"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/Ramsey-USA/mh-website-sub005/internal/config"
)

func TestRouterResolvesOriginAlias(t *testing.T) {
	app := newTestApp(t, 5000)

	req := httptest.NewRequest("GET", "http://mhc-gc.com/about?x=1", nil)
	req.Host = "mhc-gc.com"

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 204 status, got %d (body=%s)", resp.StatusCode, string(body))
	}

	target := app.storage.lastTarget
	if target == nil || !target.SameOrigin {
		t.Fatalf("alias should resolve to the origin: %+v", target)
	}
	if target.Base.String() != "https://www.mhc-gc.com" {
		t.Fatalf("alias should use the canonical origin, got %s", target.Base)
	}
	if reqID := resp.Header.Get("X-Request-ID"); reqID == "" {
		t.Fatalf("expected X-Request-ID header to be set")
	}
}

func TestRouterPassesCrossOriginHosts(t *testing.T) {
	app := newTestApp(t, 5000)

	req := httptest.NewRequest("GET", "http://fonts.gstatic.com/s/inter.woff2", nil)
	req.Host = "fonts.gstatic.com"

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("expected 204 status, got %d", resp.StatusCode)
	}
	target := app.storage.lastTarget
	if target.SameOrigin || target.Base.String() != "https://fonts.gstatic.com" {
		t.Fatalf("unexpected cross-origin target: %+v", target)
	}
}

func TestRouterRejectsLoopToSelf(t *testing.T) {
	app := newTestApp(t, 5000)

	req := httptest.NewRequest("GET", "http://localhost:5000/", nil)
	req.Host = "localhost:5000"

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 status, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(`"host_unmapped"`)) {
		t.Fatalf("expected host_unmapped error, got %s", string(body))
	}
	if app.storage.lastTarget != nil {
		t.Fatalf("proxy should not be invoked for the agent's own address")
	}
}

func TestRouterLeavesAgentPathsToRoutes(t *testing.T) {
	app := newTestApp(t, 5000)
	app.Get("/-/ping", func(c fiber.Ctx) error {
		return c.SendString("pong")
	})

	req := httptest.NewRequest("GET", "http://localhost:5000/-/ping", nil)
	req.Host = "localhost:5000"
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || string(body) != "pong" {
		t.Fatalf("agent route not reached: %d %s", resp.StatusCode, body)
	}
}

func TestRouterKeepsInboundRequestID(t *testing.T) {
	app := newTestApp(t, 5000)
	var seen string
	app.storage.inspect = func(c fiber.Ctx) { seen = RequestID(c) }

	req := httptest.NewRequest("GET", "http://www.mhc-gc.com/", nil)
	req.Host = "www.mhc-gc.com"
	req.Header.Set("X-Request-ID", "edge-42")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if got := resp.Header.Get("X-Request-ID"); got != "edge-42" {
		t.Fatalf("inbound request id should be echoed, got %q", got)
	}
	if seen != "edge-42" {
		t.Fatalf("proxy should see the inbound request id, got %q", seen)
	}
}

func TestRouterRendersUnknownAgentPathAsJSON(t *testing.T) {
	app := newTestApp(t, 5000)

	req := httptest.NewRequest("GET", "http://localhost:5000/-/nope", nil)
	req.Host = "localhost:5000"
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusNotFound || !bytes.Contains(body, []byte(`"not_found"`)) {
		t.Fatalf("unknown agent path should render a JSON 404, got %d %s", resp.StatusCode, body)
	}
	if app.storage.lastTarget != nil {
		t.Fatalf("agent paths never reach the proxy")
	}
}

func TestTargetResolverHosts(t *testing.T) {
	resolver, err := NewTargetResolver(testConfig())
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	if _, ok := resolver.Resolve("", ""); ok {
		t.Fatalf("empty host must not resolve")
	}
	target, ok := resolver.Resolve("WWW.MHC-GC.COM.", "")
	if !ok || !target.SameOrigin {
		t.Fatalf("host matching should be case-insensitive: %+v", target)
	}
	target, ok = resolver.Resolve("api.partner.dev:8443", "http")
	if !ok || target.Base.String() != "http://api.partner.dev:8443" {
		t.Fatalf("forwarded proto and port should be kept: %+v", target)
	}
}

type testApp struct {
	*fiber.App
	storage *proxyRecorder
}

func testConfig() *config.Config {
	return &config.Config{
		Global: config.GlobalConfig{
			ListenPort: 5000,
			Origin:     "https://www.mhc-gc.com",
			Aliases:    []string{"mhc-gc.com"},
		},
	}
}

func newTestApp(t *testing.T, port int) *testApp {
	t.Helper()

	cfg := testConfig()
	cfg.Global.ListenPort = port
	resolver, err := NewTargetResolver(cfg)
	if err != nil {
		t.Fatalf("failed to create resolver: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	recorder := &proxyRecorder{}
	app, err := NewApp(AppOptions{
		Logger:     logger,
		Targets:    resolver,
		Proxy:      recorder,
		ListenPort: port,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	return &testApp{App: app, storage: recorder}
}

type proxyRecorder struct {
	lastTarget *Target
	inspect    func(fiber.Ctx)
}

func (p *proxyRecorder) Handle(c fiber.Ctx, target *Target) error {
	p.lastTarget = target
	if p.inspect != nil {
		p.inspect(c)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
