package lifecycle

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-USA/mh-website-sub005/internal/cache"
	"github.com/Ramsey-USA/mh-website-sub005/internal/fetch"
	"github.com/Ramsey-USA/mh-website-sub005/internal/strategy"
)

// Claimer 接管已连接页面，control.Hub 满足该接口。
type Claimer interface {
	Claim(release string) int
}

// Options 描述一个发布版本的预缓存与接管参数。
type Options struct {
	AppName           string
	Release           string
	Origin            *url.URL
	CriticalAssets    []string
	StaticAssets      []string
	CriticalEndpoints []string
	MaxAges           cache.MaxAges
	Store             cache.Store
	Network           fetch.Fetcher
	Pages             Claimer
	Logger            *logrus.Logger
}

// Manager 驱动单个发布版本的安装、激活与退役。
type Manager struct {
	opts Options

	mu    sync.Mutex
	state State

	warm sync.WaitGroup
}

// NewManager 返回处于 installing 状态的管理器。
func NewManager(opts Options) *Manager {
	return &Manager{opts: opts, state: StateInstalling}
}

func (m *Manager) Release() string {
	return m.opts.Release
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !canTransition(m.state, to) {
		return transitionError(m.state, to)
	}
	m.state = to
	return nil
}

// Install 先完整缓存关键资源，再缓存其余静态资源；任一阶段失败则整个版本作废。
func (m *Manager) Install(ctx context.Context) error {
	if state := m.State(); state != StateInstalling {
		return transitionError(state, StateWaiting)
	}
	started := time.Now()
	writer := m.writer(cache.KindStatic)

	if err := m.precache(ctx, writer, m.opts.CriticalAssets); err != nil {
		_ = m.transition(StateRedundant)
		return fmt.Errorf("precache critical assets: %w", err)
	}
	rest := difference(m.opts.StaticAssets, m.opts.CriticalAssets)
	if err := m.precache(ctx, writer, rest); err != nil {
		_ = m.transition(StateRedundant)
		return fmt.Errorf("precache static assets: %w", err)
	}

	m.log().WithFields(logrus.Fields{
		"action":     "install",
		"release":    m.opts.Release,
		"critical":   len(m.opts.CriticalAssets),
		"static":     len(rest),
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Info("release_installed")
	return m.transition(StateWaiting)
}

// Activate 删除旧版本分区、接管页面，并在后台预热关键接口。
func (m *Manager) Activate(ctx context.Context) error {
	if err := m.transition(StateActivating); err != nil {
		return err
	}

	removed, err := m.collect(ctx)
	if err != nil {
		m.log().WithError(err).WithField("action", "activate").Warn("partition_gc_failed")
	}
	claimed := 0
	if m.opts.Pages != nil {
		claimed = m.opts.Pages.Claim(m.opts.Release)
	}

	m.warm.Add(1)
	go func() {
		defer m.warm.Done()
		m.warmup(context.WithoutCancel(ctx))
	}()

	m.log().WithFields(logrus.Fields{
		"action":  "activate",
		"release": m.opts.Release,
		"removed": removed,
		"claimed": claimed,
	}).Info("release_activated")
	return m.transition(StateActive)
}

// Supersede 标记当前版本已有等待中的新版本。
func (m *Manager) Supersede() error {
	return m.transition(StateSuperseded)
}

// Retire 使版本进入终态 redundant。
func (m *Manager) Retire() error {
	return m.transition(StateRedundant)
}

// WaitWarmup 等待激活时启动的预热结束。
func (m *Manager) WaitWarmup() {
	m.warm.Wait()
}

// precache 并发拉取 paths，全部成功后才写入，保证要么全部缓存要么都不缓存。
func (m *Manager) precache(ctx context.Context, writer cache.PartitionWriter, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	requests := make([]*fetch.Request, len(paths))
	responses := make([]*fetch.Response, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		i, path := i, path
		requests[i] = m.request(path)
		g.Go(func() error {
			resp, err := m.opts.Network.Fetch(gctx, requests[i])
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if !resp.OK() {
				return fmt.Errorf("%s: status %d", path, resp.StatusCode)
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i := range paths {
		if err := writer.Put(ctx, strategy.KeyFor(requests[i]), strategy.ToEntry(responses[i])); err != nil {
			return fmt.Errorf("%s: %w", paths[i], err)
		}
	}
	return nil
}

// collect 删除所有属于本应用但不带当前版本号的分区。
func (m *Manager) collect(ctx context.Context) ([]string, error) {
	names, err := m.opts.Store.ListPartitions(ctx)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, name := range names {
		if !cache.BelongsTo(name, m.opts.AppName) || cache.ReleaseOf(name, m.opts.Release) {
			continue
		}
		deleted, err := m.opts.Store.DeletePartition(ctx, name)
		if err != nil {
			return removed, fmt.Errorf("delete partition %s: %w", name, err)
		}
		if deleted {
			cache.CacheEvictions.WithLabelValues("superseded").Inc()
			removed = append(removed, name)
		}
	}
	return removed, nil
}

// warmup 逐个请求关键接口，成功的响应写入 api 分区；失败只记录日志。
func (m *Manager) warmup(ctx context.Context) {
	writer := m.writer(cache.KindAPI)
	for _, endpoint := range m.opts.CriticalEndpoints {
		req := m.request(endpoint)
		fields := logrus.Fields{"action": "warmup", "endpoint": endpoint}
		resp, err := m.opts.Network.Fetch(ctx, req)
		if err != nil {
			m.log().WithError(err).WithFields(fields).Info("warmup_skipped")
			continue
		}
		if !resp.OK() {
			m.log().WithFields(fields).WithField("status", resp.StatusCode).Info("warmup_skipped")
			continue
		}
		if err := writer.Put(ctx, strategy.KeyFor(req), strategy.ToEntry(resp)); err != nil {
			m.log().WithError(err).WithFields(fields).Warn("warmup_store_failed")
			continue
		}
		m.log().WithFields(fields).Debug("warmup_done")
	}
}

func (m *Manager) writer(kind cache.Kind) cache.PartitionWriter {
	return cache.NewPartitionWriter(m.opts.Store, cache.Partition{
		Name:   cache.PartitionName(m.opts.AppName, kind, m.opts.Release),
		Kind:   kind,
		MaxAge: m.opts.MaxAges.For(kind),
	})
}

func (m *Manager) request(path string) *fetch.Request {
	return &fetch.Request{
		Method: http.MethodGet,
		URL:    m.opts.Origin.ResolveReference(&url.URL{Path: path}),
		Header: make(http.Header),
	}
}

func (m *Manager) log() *logrus.Logger {
	if m.opts.Logger != nil {
		return m.opts.Logger
	}
	return logrus.StandardLogger()
}

// difference 返回 all 中不属于 exclude 的元素，保持原顺序。
func difference(all, exclude []string) []string {
	skip := make(map[string]struct{}, len(exclude))
	for _, item := range exclude {
		skip[item] = struct{}{}
	}
	var out []string
	for _, item := range all {
		if _, ok := skip[item]; !ok {
			out = append(out, item)
		}
	}
	return out
}
