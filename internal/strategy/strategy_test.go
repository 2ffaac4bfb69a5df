package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Ramsey-USA/mh-website-sub005/internal/cache"
	"github.com/Ramsey-USA/mh-website-sub005/internal/fetch"
)

const origin = "https://www.mhc-gc.com"

var errOffline = errors.New("dial tcp: connection refused")

func TestCacheFirstServesFreshHitWithoutNetwork(t *testing.T) {
	store := newTestStore(t)
	writer := partitionWriter(store, cache.KindStatic, time.Hour)
	seed(t, writer, origin+"/_next/static/app.js", "cached")

	var calls int32
	network := countingFetcher(&calls, okFetcher("fresh"))
	resp, err := NewCacheFirst(writer, network, nil, nil).Handle(context.Background(), getRequest(t, "/_next/static/app.js"))
	if err != nil {
		t.Fatalf("handle error: %v", err)
	}
	if string(resp.Body) != "cached" || resp.Source != fetch.SourceCache {
		t.Fatalf("expected cached body, got %s (%s)", resp.Body, resp.Source)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("fresh hit must not touch the network")
	}
}

func TestCacheFirstRefetchesExpiredEntry(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	writer := partitionWriter(store, cache.KindStatic, time.Hour).WithClock(func() time.Time { return now })
	seed(t, writer, origin+"/static/site.css", "old")
	now = now.Add(2 * time.Hour)

	resp, err := NewCacheFirst(writer, okFetcher("new"), nil, nil).Handle(context.Background(), getRequest(t, "/static/site.css"))
	if err != nil {
		t.Fatalf("handle error: %v", err)
	}
	if string(resp.Body) != "new" || resp.Source != fetch.SourceNetwork {
		t.Fatalf("expected network body, got %s (%s)", resp.Body, resp.Source)
	}
	entry, err := store.Get(context.Background(), writer.Partition().Name, cache.GetKey(origin+"/static/site.css"))
	if err != nil || string(entry.Body) != "new" {
		t.Fatalf("refetched response should be stored: %v", err)
	}
}

func TestCacheFirstServesStaleOnError(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	writer := partitionWriter(store, cache.KindImages, time.Hour).WithClock(func() time.Time { return now })
	seed(t, writer, origin+"/images/hero.webp", "stale-bytes")
	now = now.Add(48 * time.Hour)

	resp, err := NewCacheFirst(writer, failingFetcher(), PlaceholderImage(), nil).Handle(context.Background(), getRequest(t, "/images/hero.webp"))
	if err != nil {
		t.Fatalf("handle error: %v", err)
	}
	if string(resp.Body) != "stale-bytes" || resp.Source != fetch.SourceStale {
		t.Fatalf("expected stale copy, got %s (%s)", resp.Body, resp.Source)
	}
}

func TestCacheFirstImagePlaceholder(t *testing.T) {
	writer := partitionWriter(newTestStore(t), cache.KindImages, time.Hour)
	resp, err := NewCacheFirst(writer, failingFetcher(), PlaceholderImage(), nil).Handle(context.Background(), getRequest(t, "/images/missing.png"))
	if err != nil {
		t.Fatalf("handle error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/svg+xml" {
		t.Fatalf("expected svg placeholder, got %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("Cache-Control") != "no-cache" || resp.Source != fetch.SourceFallback {
		t.Fatalf("placeholder must be non-cacheable fallback")
	}
}

func TestCacheFirstStaticPropagatesError(t *testing.T) {
	writer := partitionWriter(newTestStore(t), cache.KindStatic, time.Hour)
	_, err := NewCacheFirst(writer, failingFetcher(), nil, nil).Handle(context.Background(), getRequest(t, "/static/missing.js"))
	if !errors.Is(err, errOffline) {
		t.Fatalf("expected network error to propagate, got %v", err)
	}
}

func TestCacheFirstDoesNotStoreErrorStatus(t *testing.T) {
	store := newTestStore(t)
	writer := partitionWriter(store, cache.KindStatic, time.Hour)
	network := fetch.FetcherFunc(func(context.Context, *fetch.Request) (*fetch.Response, error) {
		return &fetch.Response{StatusCode: http.StatusNotFound, Header: http.Header{}, Source: fetch.SourceNetwork}, nil
	})
	resp, err := NewCacheFirst(writer, network, nil, nil).Handle(context.Background(), getRequest(t, "/static/404.js"))
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("404 should be returned as-is: %v", err)
	}
	if _, err := store.Match(context.Background(), cache.GetKey(origin+"/static/404.js")); !errors.Is(err, cache.ErrNotFound) {
		t.Fatalf("non-2xx responses must not be cached")
	}
}

func TestNetworkFirstStoresSuccess(t *testing.T) {
	store := newTestStore(t)
	writer := partitionWriter(store, cache.KindDynamic, time.Hour)
	h := NewNetworkFirst(writer, okFetcher("page"), PageFallback(store, "/offline", nil), time.Second, nil)

	resp, err := h.Handle(context.Background(), getRequest(t, "/about"))
	if err != nil || string(resp.Body) != "page" {
		t.Fatalf("unexpected result: %v", err)
	}
	if _, err := store.Get(context.Background(), writer.Partition().Name, cache.GetKey(origin+"/about")); err != nil {
		t.Fatalf("successful response should be cached: %v", err)
	}
}

func TestNetworkFirstAPITimeoutReturnsOfflineResponse(t *testing.T) {
	store := newTestStore(t)
	writer := partitionWriter(store, cache.KindAPI, time.Hour)
	release := make(chan struct{})
	slow := fetch.FetcherFunc(func(context.Context, *fetch.Request) (*fetch.Response, error) {
		<-release
		return &fetch.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte(`{"late":true}`), Source: fetch.SourceNetwork}, nil
	})
	h := NewNetworkFirst(writer, slow, APIFallback(store, nil), 50*time.Millisecond, nil)

	started := time.Now()
	resp, err := h.Handle(context.Background(), getRequest(t, "/api/estimate"))
	if err != nil {
		t.Fatalf("handle error: %v", err)
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("fallback should fire shortly after the timeout, took %s", elapsed)
	}
	if resp.StatusCode != http.StatusServiceUnavailable || resp.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("expected 503 JSON, got %d", resp.StatusCode)
	}
	var body offlineBody
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != "Offline" || body.Message != OfflineMessageFor("/api/estimate") {
		t.Fatalf("unexpected offline body: %+v", body)
	}

	close(release)
	key := cache.GetKey(origin + "/api/estimate")
	waitFor(t, func() bool {
		_, err := store.Get(context.Background(), writer.Partition().Name, key)
		return err == nil
	})
}

func TestNetworkFirstAPIFallsBackToCachedCopy(t *testing.T) {
	store := newTestStore(t)
	writer := partitionWriter(store, cache.KindAPI, time.Hour)
	seed(t, writer, origin+"/api/projects", `[1,2]`)

	resp, err := NewNetworkFirst(writer, failingFetcher(), APIFallback(store, nil), time.Second, nil).
		Handle(context.Background(), getRequest(t, "/api/projects"))
	if err != nil || string(resp.Body) != `[1,2]` || resp.Source != fetch.SourceStale {
		t.Fatalf("expected cached api copy, got %v %s", err, resp.Body)
	}
}

func TestPageFallbackChain(t *testing.T) {
	store := newTestStore(t)
	writer := partitionWriter(store, cache.KindDynamic, time.Hour)
	h := NewNetworkFirst(writer, failingFetcher(), PageFallback(store, "/offline", nil), time.Second, nil)

	resp, err := h.Handle(context.Background(), getRequest(t, "/projects/42"))
	if err != nil {
		t.Fatalf("handle error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "text/html; charset=utf-8" {
		t.Fatalf("expected built-in offline html, got %d", resp.StatusCode)
	}

	static := partitionWriter(store, cache.KindStatic, time.Hour)
	seed(t, static, origin+"/offline", "offline-doc")
	resp, _ = h.Handle(context.Background(), getRequest(t, "/projects/42"))
	if string(resp.Body) != "offline-doc" {
		t.Fatalf("expected offline document, got %s", resp.Body)
	}

	seed(t, static, origin+"/", "root-doc")
	resp, _ = h.Handle(context.Background(), getRequest(t, "/projects/42"))
	if string(resp.Body) != "root-doc" || resp.Source != fetch.SourceFallback {
		t.Fatalf("expected root document, got %s", resp.Body)
	}

	seed(t, writer, origin+"/projects/42", "exact")
	resp, _ = h.Handle(context.Background(), getRequest(t, "/projects/42"))
	if string(resp.Body) != "exact" || resp.Source != fetch.SourceStale {
		t.Fatalf("expected exact-url copy, got %s", resp.Body)
	}
}

func TestStaleWhileRevalidateHitRefreshesOnce(t *testing.T) {
	store := newTestStore(t)
	writer := partitionWriter(store, cache.KindAPI, time.Hour)
	seed(t, writer, origin+"/api/contact", "v1")

	var calls int32
	network := countingFetcher(&calls, okFetcher("v2"))
	miss := NewNetworkFirst(writer, network, APIFallback(store, nil), time.Second, nil)
	h := NewStaleWhileRevalidate(writer, network, miss, nil)

	resp, err := h.Handle(context.Background(), getRequest(t, "/api/contact"))
	if err != nil || string(resp.Body) != "v1" || resp.Source != fetch.SourceCache {
		t.Fatalf("expected immediate cached response, got %v %s", err, resp.Body)
	}
	h.Drain()
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly one background refresh, got %d", calls)
	}
	entry, err := store.Get(context.Background(), writer.Partition().Name, cache.GetKey(origin+"/api/contact"))
	if err != nil || string(entry.Body) != "v2" {
		t.Fatalf("background refresh should update the cache: %v", err)
	}
}

func TestStaleWhileRevalidateMissDelegatesWithoutDuplicateFetch(t *testing.T) {
	store := newTestStore(t)
	writer := partitionWriter(store, cache.KindAPI, time.Hour)

	var calls int32
	network := countingFetcher(&calls, okFetcher("fresh"))
	miss := NewNetworkFirst(writer, network, APIFallback(store, nil), time.Second, nil)
	h := NewStaleWhileRevalidate(writer, network, miss, nil)

	resp, err := h.Handle(context.Background(), getRequest(t, "/api/contact"))
	if err != nil || string(resp.Body) != "fresh" {
		t.Fatalf("miss should use network-first: %v", err)
	}
	h.Drain()
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("miss must issue a single fetch, got %d", calls)
	}
}

func TestPassThroughPropagatesError(t *testing.T) {
	if _, err := NewPassThrough(failingFetcher()).Handle(context.Background(), getRequest(t, "/x")); !errors.Is(err, errOffline) {
		t.Fatalf("expected error, got %v", err)
	}
}

func TestOfflineMessageFor(t *testing.T) {
	cases := map[string]string{
		"/api/contact":       offlineMessages[0].Message,
		"/api/estimator/run": offlineMessages[1].Message,
		"/api/bookings":      offlineMessages[2].Message,
		"/api/projects":      genericOfflineMessage,
	}
	for path, want := range cases {
		if got := OfflineMessageFor(path); got != want {
			t.Fatalf("OfflineMessageFor(%s) = %q", path, got)
		}
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := newRegistry()
	if err := r.register(Profile{Class: "Page", Strategy: NameNetworkFirst}); err != nil {
		t.Fatalf("register error: %v", err)
	}
	if err := r.register(Profile{Class: "page", Strategy: NameCacheFirst}); err == nil {
		t.Fatalf("duplicate class should fail")
	}
	if err := r.register(Profile{Class: "img"}); err == nil {
		t.Fatalf("missing strategy should fail")
	}
	if p, ok := r.resolve(" PAGE "); !ok || p.Strategy != NameNetworkFirst {
		t.Fatalf("resolve should normalise class names")
	}
}

func newTestStore(t *testing.T) cache.Store {
	t.Helper()
	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func partitionWriter(store cache.Store, kind cache.Kind, maxAge time.Duration) cache.PartitionWriter {
	return cache.NewPartitionWriter(store, cache.Partition{
		Name:   cache.PartitionName("mh-construction", kind, "v1"),
		Kind:   kind,
		MaxAge: maxAge,
	})
}

func seed(t *testing.T, writer cache.PartitionWriter, url, body string) {
	t.Helper()
	entry := &cache.Entry{StatusCode: http.StatusOK, Header: http.Header{}, Body: []byte(body)}
	if err := writer.Put(context.Background(), cache.GetKey(url), entry); err != nil {
		t.Fatalf("seed %s: %v", url, err)
	}
}

func getRequest(t *testing.T, path string) *fetch.Request {
	t.Helper()
	req, err := fetch.NewRequest(http.MethodGet, origin+path, nil, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return req
}

func okFetcher(body string) fetch.Fetcher {
	return fetch.FetcherFunc(func(context.Context, *fetch.Request) (*fetch.Response, error) {
		return &fetch.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"text/plain"}},
			Body:       []byte(body),
			Source:     fetch.SourceNetwork,
		}, nil
	})
}

func failingFetcher() fetch.Fetcher {
	return fetch.FetcherFunc(func(context.Context, *fetch.Request) (*fetch.Response, error) {
		return nil, errOffline
	})
}

func countingFetcher(calls *int32, next fetch.Fetcher) fetch.Fetcher {
	return fetch.FetcherFunc(func(ctx context.Context, req *fetch.Request) (*fetch.Response, error) {
		atomic.AddInt32(calls, 1)
		return next.Fetch(ctx, req)
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
