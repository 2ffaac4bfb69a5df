// Package agent wires the cache store, mutation queue, control hub,
// notification relay and release registration into one process and routes
// every incoming event through a single dispatcher.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Ramsey-USA/mh-website-sub005/internal/cache"
	"github.com/Ramsey-USA/mh-website-sub005/internal/config"
	"github.com/Ramsey-USA/mh-website-sub005/internal/control"
	"github.com/Ramsey-USA/mh-website-sub005/internal/fetch"
	"github.com/Ramsey-USA/mh-website-sub005/internal/lifecycle"
	"github.com/Ramsey-USA/mh-website-sub005/internal/logging"
	"github.com/Ramsey-USA/mh-website-sub005/internal/notify"
	"github.com/Ramsey-USA/mh-website-sub005/internal/queue"
	"github.com/Ramsey-USA/mh-website-sub005/internal/router"
	"github.com/Ramsey-USA/mh-website-sub005/internal/strategy"
)

var (
	// ErrUnknownEvent 表示 Dispatch 收到无法识别的事件。
	ErrUnknownEvent = errors.New("unknown agent event")
	// ErrUnknownPeriodicTag 表示周期同步标签无法识别。
	ErrUnknownPeriodicTag = errors.New("unknown periodic sync tag")
)

// Options 描述 Agent 的依赖。Store/Queue/Hub 为空时按配置自行创建。
type Options struct {
	Config  *config.Config
	Logger  *logrus.Logger
	Network fetch.Fetcher
	Store   cache.Store
	Queue   queue.Store
	Hub     *control.Hub
}

// Agent 持有全部长生命周期组件。
type Agent struct {
	logger  *logrus.Logger
	network fetch.Fetcher

	cfg    atomic.Pointer[config.Config]
	router atomic.Pointer[router.Router]

	store        cache.Store
	queue        queue.Store
	hub          *control.Hub
	relay        *notify.Relay
	replayer     *queue.Replayer
	registration *lifecycle.Registration
	sweeper      *lifecycle.Sweeper

	pushSource *notify.AMQPSource
	background sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

// New 打开存储并装配各组件；不会发起网络请求，安装在 Start 中进行。
func New(ctx context.Context, opts Options) (*Agent, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	network := opts.Network
	if network == nil {
		network = fetch.NewHTTPFetcher(&http.Client{Timeout: cfg.Global.UpstreamTimeout.DurationValue()}, "")
	}

	store := opts.Store
	if store == nil {
		opened, err := cache.NewStore(filepath.Join(cfg.Global.StoragePath, "cache"))
		if err != nil {
			return nil, fmt.Errorf("open cache store: %w", err)
		}
		store = opened
	}
	mutations := opts.Queue
	if mutations == nil {
		opened, err := queue.Open(ctx, cfg)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("open mutation queue: %w", err)
		}
		mutations = opened
	}
	hub := opts.Hub
	if hub == nil {
		hub = control.NewHub(logger)
	}

	a := &Agent{
		logger:  logger,
		network: network,
		store:   store,
		queue:   mutations,
		hub:     hub,
	}
	a.cfg.Store(cfg)
	a.relay = notify.NewRelay(notify.NewHubDisplayer(hub), hub, notify.DefaultsFromConfig(cfg.Push), logger)
	a.replayer = queue.NewReplayer(mutations, network, cfg.OriginURL(), cfg.Queue.Endpoints, hub, logger)
	a.ctx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))
	a.sweeper = lifecycle.NewSweeper(store, cfg.Global.AppName, func() cache.MaxAges {
		return maxAges(a.Config())
	}, logger)
	a.registration = lifecycle.NewRegistration(a.newManager, cfg.Global.SkipWaitingOnInstall, hub, logger)
	a.registration.OnActivate(func(m *lifecycle.Manager) {
		a.swapRouter(m.Release())
	})
	// 安装完成前使用配置中的版本提供服务，已有分区可以直接命中。
	a.router.Store(a.buildRouter(cfg.Global.ReleaseTag))
	return a, nil
}

// Start 注册当前版本并启动后台任务（过期清理、可选的 AMQP 推送源）。
// 安装失败只记录日志：离线启动时仍可用已有缓存提供服务。
func (a *Agent) Start(ctx context.Context) {
	context.AfterFunc(ctx, a.cancel)
	ctx = a.ctx
	cfg := a.Config()

	if _, err := a.Dispatch(ctx, ReleaseEvent{Release: cfg.Global.ReleaseTag}); err != nil {
		a.logger.WithError(err).WithField("action", "startup").Warn("initial_install_failed")
	}

	a.background.Add(1)
	go func() {
		defer a.background.Done()
		a.sweeper.Run(ctx, cfg.Global.SweepInterval.DurationValue(), a.ensureActive, a.collectStale)
	}()

	if cfg.Push.AMQPURL != "" {
		source, err := notify.NewAMQPSource(notify.AMQPConfig{URL: cfg.Push.AMQPURL, Queue: cfg.Push.AMQPQueue}, a.logger)
		if err != nil {
			a.logger.WithError(err).WithField("action", "amqp_push").Warn("push_source_unavailable")
			return
		}
		a.pushSource = source
		a.background.Add(1)
		go func() {
			defer a.background.Done()
			if err := source.Run(ctx, a.relay); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.WithError(err).WithField("action", "amqp_push").Warn("push_source_stopped")
			}
		}()
	}
}

// Close 停止后台任务并关闭存储。
func (a *Agent) Close() error {
	a.cancel()
	if a.pushSource != nil {
		_ = a.pushSource.Close()
	}
	a.background.Wait()
	a.router.Load().Drain()
	if m := a.registration.Active(); m != nil {
		m.WaitWarmup()
	}
	return errors.Join(a.queue.Close(), a.store.Close())
}

// Dispatch 是所有事件的唯一入口，按事件类型委派给对应组件。
func (a *Agent) Dispatch(ctx context.Context, ev Event) (Outcome, error) {
	switch ev := ev.(type) {
	case FetchEvent:
		return a.handleFetch(ctx, ev.Request)
	case MessageEvent:
		return a.handleMessage(ctx, ev.Message)
	case SyncEvent:
		names, err := queue.QueuesForTag(ev.Tag)
		if err != nil {
			return Outcome{}, err
		}
		return a.sync(ctx, ev.Tag, names), nil
	case PeriodicSyncEvent:
		if ev.Tag != lifecycle.TagCacheCleanup {
			return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownPeriodicTag, ev.Tag)
		}
		removed, err := a.sweeper.Sweep(ctx)
		if err == nil {
			a.collectStale(ctx)
		}
		return Outcome{Swept: removed}, err
	case PushEvent:
		n, err := a.relay.Push(ctx, ev.Payload)
		return Outcome{Notification: &n}, err
	case ClickEvent:
		out, err := a.relay.Click(ctx, ev.Click)
		return Outcome{Click: &out}, err
	case ReleaseEvent:
		m, err := a.registration.Register(ctx, ev.Release)
		return Outcome{Manager: m}, err
	default:
		return Outcome{}, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
}

func (a *Agent) handleFetch(ctx context.Context, req *fetch.Request) (Outcome, error) {
	resp, decision, err := a.router.Load().Handle(ctx, req)
	out := Outcome{Response: resp, Decision: decision}
	if err != nil {
		return out, err
	}
	strategy.Responses.WithLabelValues(string(decision.Class), string(resp.Source)).Inc()
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	resp.Header.Set(fetch.HeaderSource, string(resp.Source))
	return out, nil
}

func (a *Agent) handleMessage(ctx context.Context, msg control.Message) (Outcome, error) {
	switch msg.Type {
	case control.TypeSkipWaiting:
		err := a.registration.SkipWaiting(ctx)
		if errors.Is(err, lifecycle.ErrNothingWaiting) {
			a.logger.WithField("action", "skip_waiting").Debug("nothing_waiting")
			return Outcome{}, nil
		}
		return Outcome{Manager: a.registration.Active()}, err
	case control.TypeRequestSync:
		return a.sync(ctx, queue.TagBackgroundSync, queue.Names), nil
	default:
		a.logger.WithFields(logrus.Fields{"action": "control_message", "type": msg.Type}).Warn("control_message_ignored")
		return Outcome{}, nil
	}
}

func (a *Agent) sync(ctx context.Context, tag string, names []queue.Name) Outcome {
	started := time.Now()
	result := a.replayer.Replay(ctx, names...)

	labels := make([]string, len(names))
	for i, name := range names {
		labels[i] = string(name)
	}
	fields := logging.SyncFields(tag, labels)
	fields["processed"] = result.Processed
	fields["failed"] = result.Failed
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if result.Err != nil {
		a.logger.WithFields(fields).WithError(result.Err).Warn("background_sync_incomplete")
		return Outcome{Sync: &result}
	}
	a.logger.WithFields(fields).Info("background_sync_done")
	// 同步成功说明已经联网，离线启动时未完成的安装在这里补上。
	a.ensureActive(ctx)
	return Outcome{Sync: &result}
}

// ensureActive 在没有激活版本时重新安装配置中的版本。
func (a *Agent) ensureActive(ctx context.Context) {
	if a.registration.Active() != nil {
		return
	}
	release := a.Config().Global.ReleaseTag
	if _, err := a.Dispatch(ctx, ReleaseEvent{Release: release}); err != nil {
		a.logger.WithError(err).WithFields(logrus.Fields{
			"action":  "install_retry",
			"release": release,
		}).Info("install_still_pending")
		return
	}
	a.logger.WithFields(logrus.Fields{"action": "install_retry", "release": release}).Info("install_recovered")
}

// collectStale 删除旧路由在切换后写回的旧版本分区。
func (a *Agent) collectStale(ctx context.Context) {
	removed, err := a.registration.Collect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		a.logger.WithError(err).WithField("action", "collect").Warn("partition_gc_failed")
		return
	}
	if len(removed) > 0 {
		a.logger.WithFields(logrus.Fields{"action": "collect", "removed": removed}).Info("stale_partitions_removed")
	}
}

// swapRouter 换上 release 的新路由。旧路由的后台刷新在排空后，再清理它们可能写回的旧分区。
func (a *Agent) swapRouter(release string) {
	old := a.router.Swap(a.buildRouter(release))
	if old == nil {
		return
	}
	a.background.Add(1)
	go func() {
		defer a.background.Done()
		old.Drain()
		if old.Release() != release {
			a.collectStale(a.ctx)
		}
	}()
}

// Config 返回当前生效的配置。
func (a *Agent) Config() *config.Config {
	return a.cfg.Load()
}

// Hub 返回控制通道。
func (a *Agent) Hub() *control.Hub {
	return a.hub
}

// Queue 返回离线提交队列。
func (a *Agent) Queue() queue.Store {
	return a.queue
}

// Store 返回缓存分区存储。
func (a *Agent) Store() cache.Store {
	return a.store
}

// Router 返回当前版本的路由。
func (a *Agent) Router() *router.Router {
	return a.router.Load()
}

// Registration 返回发布版本注册表。
func (a *Agent) Registration() *lifecycle.Registration {
	return a.registration
}

func (a *Agent) newManager(release string) *lifecycle.Manager {
	cfg := a.Config()
	return lifecycle.NewManager(lifecycle.Options{
		AppName:           cfg.Global.AppName,
		Release:           release,
		Origin:            cfg.OriginURL(),
		CriticalAssets:    cfg.Global.CriticalAssets,
		StaticAssets:      cfg.Global.StaticAssets,
		CriticalEndpoints: cfg.Global.CriticalEndpoints,
		MaxAges:           maxAges(cfg),
		Store:             a.store,
		Network:           a.network,
		Pages:             a.hub,
		Logger:            a.logger,
	})
}

func (a *Agent) buildRouter(release string) *router.Router {
	cfg := a.Config()
	return router.New(router.Options{
		AppName:     cfg.Global.AppName,
		Release:     release,
		OriginHost:  cfg.OriginURL().Host,
		Aliases:     cfg.Global.Aliases,
		APIPrefix:   cfg.Global.APIPrefix,
		Critical:    cfg.Global.CriticalEndpoints,
		OfflinePage: cfg.Global.OfflinePage,
		Timeout:     cfg.Global.NetworkTimeout.DurationValue(),
		MaxAges:     maxAges(cfg),
		Store:       a.store,
		Network:     a.network,
		Logger:      a.logger,
	})
}

func maxAges(cfg *config.Config) cache.MaxAges {
	return cache.MaxAges{
		Static:  cfg.Cache.StaticMaxAge.DurationValue(),
		Dynamic: cfg.Cache.DynamicMaxAge.DurationValue(),
		Images:  cfg.Cache.ImageMaxAge.DurationValue(),
		API:     cfg.Cache.APIMaxAge.DurationValue(),
	}
}
