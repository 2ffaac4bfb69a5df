package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/Ramsey-USA/mh-website-sub005/internal/agent"
	"github.com/Ramsey-USA/mh-website-sub005/internal/cache"
	"github.com/Ramsey-USA/mh-website-sub005/internal/fetch"
	"github.com/Ramsey-USA/mh-website-sub005/internal/router"
	"github.com/Ramsey-USA/mh-website-sub005/internal/server"
)

type fakeDispatcher struct {
	last *fetch.Request
	out  agent.Outcome
	err  error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, ev agent.Event) (agent.Outcome, error) {
	if fe, ok := ev.(agent.FetchEvent); ok {
		f.last = fe.Request
	}
	return f.out, f.err
}

func testTarget() *server.Target {
	return &server.Target{
		Host:       "www.mhc-gc.com",
		Base:       &url.URL{Scheme: "https", Host: "www.mhc-gc.com"},
		SameOrigin: true,
	}
}

func newHandlerApp(t *testing.T, d *fakeDispatcher) *fiber.App {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	handler := NewForwarder(NewHandler(d, logger), logger)
	app := fiber.New()
	app.All("/*", func(c fiber.Ctx) error {
		return handler.Handle(c, testTarget())
	})
	return app
}

func TestHandlerWritesAgentResponse(t *testing.T) {
	d := &fakeDispatcher{out: agent.Outcome{
		Response: &fetch.Response{
			StatusCode: http.StatusOK,
			Header: http.Header{
				"Content-Type":     []string{"text/html"},
				"Connection":       []string{"keep-alive"},
				fetch.HeaderSource: []string{"stale"},
			},
			Body:   []byte("<h1>About</h1>"),
			Source: fetch.SourceStale,
		},
		Decision: router.Decision{
			Class:     router.ClassPage,
			Partition: cache.Partition{Name: "mh-construction-dynamic-v4"},
		},
	}}
	app := newHandlerApp(t, d)

	req := httptest.NewRequest(http.MethodGet, "http://www.mhc-gc.com/about/?ref=nav", nil)
	req.Header.Set("Sec-Fetch-Dest", "document")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "<h1>About</h1>" {
		t.Fatalf("unexpected response: %d %s", resp.StatusCode, body)
	}
	if got := resp.Header.Get(fetch.HeaderSource); got != "stale" {
		t.Fatalf("source header should be forwarded, got %q", got)
	}

	if d.last == nil {
		t.Fatalf("dispatcher not invoked")
	}
	if got := d.last.URL.String(); got != "https://www.mhc-gc.com/about/?ref=nav" {
		t.Fatalf("request URL should keep path and query, got %s", got)
	}
	if d.last.Destination() != "document" {
		t.Fatalf("request headers should be forwarded")
	}
	if d.last.Header.Get("Host") != "" {
		t.Fatalf("host header should be dropped")
	}
}

func TestHandlerReportsUpstreamFailure(t *testing.T) {
	d := &fakeDispatcher{err: errors.New("dial tcp: connection refused")}
	app := newHandlerApp(t, d)

	req := httptest.NewRequest(http.MethodPost, "http://www.mhc-gc.com/api/contact", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	if d.last.Method != http.MethodPost {
		t.Fatalf("method should be preserved, got %s", d.last.Method)
	}
}
