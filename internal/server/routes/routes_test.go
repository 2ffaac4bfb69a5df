package routes

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/Ramsey-USA/mh-website-sub005/internal/agent"
	"github.com/Ramsey-USA/mh-website-sub005/internal/config"
	"github.com/Ramsey-USA/mh-website-sub005/internal/control"
	"github.com/Ramsey-USA/mh-website-sub005/internal/fetch"
)

func newTestApp(t *testing.T) (*fiber.App, *agent.Agent) {
	t.Helper()
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(origin.Close)

	cfg := &config.Config{
		Global: config.GlobalConfig{
			ListenPort:      5000,
			StoragePath:     t.TempDir(),
			AppName:         "mh-construction",
			ReleaseTag:      "v1",
			Origin:          origin.URL,
			APIPrefix:       "/api/",
			NetworkTimeout:  config.Duration(time.Second),
			UpstreamTimeout: config.Duration(time.Second),
			OfflinePage:     "/offline",
		},
		Queue: config.QueueConfig{
			Backend: "leveldb",
			Endpoints: map[string]string{
				"contact-forms": "/api/contact",
				"bookings":      "/api/bookings",
				"testimonials":  "/api/testimonials",
			},
		},
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	a, err := agent.New(context.Background(), agent.Options{
		Config:  cfg,
		Logger:  logger,
		Network: fetch.NewHTTPFetcher(origin.Client(), "test"),
	})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	app := fiber.New()
	Register(app, a, logger)
	return app, a
}

func doRequest(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var payload map[string]any
	_ = json.Unmarshal(raw, &payload)
	return resp, payload
}

func TestQueueRoutes(t *testing.T) {
	app, _ := newTestApp(t)

	resp, payload := doRequest(t, app, http.MethodPost, "/-/queue/bookings", `{"name":"Ana","date":"2026-11-02"}`)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("enqueue expected 201, got %d", resp.StatusCode)
	}
	if payload["queue"] != "bookings" {
		t.Fatalf("unexpected enqueue payload: %v", payload)
	}

	resp, payload = doRequest(t, app, http.MethodGet, "/-/queue/bookings", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("list expected 200, got %d", resp.StatusCode)
	}
	pending, _ := payload["pending"].([]any)
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending mutation, got %v", payload["pending"])
	}

	resp, payload = doRequest(t, app, http.MethodPost, "/-/queue/invoices", `{}`)
	if resp.StatusCode != fiber.StatusNotFound || payload["error"] != "unknown_queue" {
		t.Fatalf("unknown queue should 404, got %d %v", resp.StatusCode, payload)
	}

	resp, payload = doRequest(t, app, http.MethodPost, "/-/queue/bookings", `{not json`)
	if resp.StatusCode != fiber.StatusBadRequest || payload["error"] != "invalid_payload" {
		t.Fatalf("invalid payload should 400, got %d %v", resp.StatusCode, payload)
	}
}

func TestControlIgnoresMalformedMessages(t *testing.T) {
	app, _ := newTestApp(t)

	resp, payload := doRequest(t, app, http.MethodPost, "/-/control", `{"type":"Reboot"}`)
	if resp.StatusCode != fiber.StatusAccepted || payload["status"] != "ignored" {
		t.Fatalf("malformed message should be ignored, got %d %v", resp.StatusCode, payload)
	}

	resp, payload = doRequest(t, app, http.MethodPost, "/-/control", `{"type":"SKIP_WAITING"}`)
	if resp.StatusCode != fiber.StatusOK || payload["type"] != string(control.TypeSkipWaiting) {
		t.Fatalf("skip waiting with nothing waiting should succeed, got %d %v", resp.StatusCode, payload)
	}
}

func TestSyncAndPeriodicSyncTags(t *testing.T) {
	app, a := newTestApp(t)

	if _, err := a.Queue().Enqueue(context.Background(), "contact-forms", json.RawMessage(`{"email":"a@b.c"}`)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	resp, payload := doRequest(t, app, http.MethodPost, "/-/sync?tag=contact-form-sync", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("sync expected 200, got %d %v", resp.StatusCode, payload)
	}
	if payload["processed"] != float64(1) {
		t.Fatalf("expected one replayed mutation, got %v", payload)
	}

	resp, payload = doRequest(t, app, http.MethodPost, "/-/sync?tag=unknown-sync", "")
	if resp.StatusCode != fiber.StatusBadRequest || payload["error"] != "unknown_tag" {
		t.Fatalf("unknown sync tag should 400, got %d %v", resp.StatusCode, payload)
	}

	resp, payload = doRequest(t, app, http.MethodPost, "/-/periodic-sync?tag=cache-cleanup", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("cache cleanup expected 200, got %d %v", resp.StatusCode, payload)
	}

	resp, _ = doRequest(t, app, http.MethodPost, "/-/periodic-sync?tag=reindex", "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("unknown periodic tag should 400, got %d", resp.StatusCode)
	}
}

func TestPushAndClick(t *testing.T) {
	app, _ := newTestApp(t)

	resp, payload := doRequest(t, app, http.MethodPost, "/-/push", `{"title":"New project","data":{"type":"project"}}`)
	if resp.StatusCode != fiber.StatusAccepted || payload["title"] != "New project" {
		t.Fatalf("push should return notification, got %d %v", resp.StatusCode, payload)
	}

	resp, payload = doRequest(t, app, http.MethodPost, "/-/notifications/click", `{"id":"n1","action":"close"}`)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("click expected 200, got %d %v", resp.StatusCode, payload)
	}

	resp, _ = doRequest(t, app, http.MethodPost, "/-/notifications/click", `[`)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("invalid click body should 400, got %d", resp.StatusCode)
	}
}

func TestDiagnosticsRoutes(t *testing.T) {
	app, a := newTestApp(t)
	if _, err := a.Queue().Enqueue(context.Background(), "testimonials", json.RawMessage(`{"text":"great"}`)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	resp, payload := doRequest(t, app, http.MethodGet, "/-/status", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status expected 200, got %d", resp.StatusCode)
	}
	if payload["configured_release"] != "v1" {
		t.Fatalf("unexpected release: %v", payload["configured_release"])
	}
	pending, _ := payload["pending"].(map[string]any)
	if pending["testimonials"] != float64(1) {
		t.Fatalf("expected pending testimonials count, got %v", payload["pending"])
	}

	resp, payload = doRequest(t, app, http.MethodGet, "/-/strategies", "")
	if resp.StatusCode != fiber.StatusOK || payload["strategies"] == nil {
		t.Fatalf("strategies expected list, got %d %v", resp.StatusCode, payload)
	}

	req := httptest.NewRequest(http.MethodGet, "/-/metrics", nil)
	metrics, err := app.Test(req)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(metrics.Body)
	_ = metrics.Body.Close()
	if metrics.StatusCode != fiber.StatusOK || !bytes.Contains(body, []byte("go_goroutines")) {
		t.Fatalf("metrics endpoint should expose prometheus text, got %d", metrics.StatusCode)
	}
}

func TestStreamMessagesWritesEventsUntilDisconnect(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	hub := control.NewHub(logger)
	client := hub.Connect("https://example.com/projects")

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	done := make(chan error, 1)
	go func() {
		done <- streamMessages(w, client, time.Hour)
	}()

	hub.Broadcast(control.NewMessage(control.TypeUpdateAvailable, map[string]string{"release": "v2"}))
	hub.Disconnect(client.ID)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stream should end cleanly, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not stop after disconnect")
	}

	out := buf.String()
	if !strings.Contains(out, "event: connected\ndata: {\"id\":\""+client.ID+"\"}") {
		t.Fatalf("missing connected event: %q", out)
	}
	if !strings.Contains(out, `"type":"UpdateAvailable"`) {
		t.Fatalf("missing broadcast message: %q", out)
	}
}
