package lifecycle

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Ramsey-USA/mh-website-sub005/internal/control"
)

// ErrNothingWaiting 表示没有等待激活的版本。
var ErrNothingWaiting = errors.New("no release waiting")

// Broadcaster 用于通知页面有新版本可用。
type Broadcaster interface {
	Broadcast(msg control.Message) int
}

// Factory 为指定发布版本创建 Manager。
type Factory func(release string) *Manager

// Registration 持有当前激活的版本与等待中的版本。
type Registration struct {
	factory     Factory
	skipWaiting bool
	pages       Broadcaster
	logger      *logrus.Logger
	onActivate  func(*Manager)

	// lifecycleMu 串行化 Register / SkipWaiting；mu 只保护字段读写。
	lifecycleMu sync.Mutex
	mu          sync.RWMutex
	active      *Manager
	waiting     *Manager
}

// NewRegistration 构造注册表；skipWaiting 为 true 时新版本安装完成后立即激活。
func NewRegistration(factory Factory, skipWaiting bool, pages Broadcaster, logger *logrus.Logger) *Registration {
	return &Registration{
		factory:     factory,
		skipWaiting: skipWaiting,
		pages:       pages,
		logger:      logger,
	}
}

// OnActivate 注册版本激活后的回调，需在首次 Register 之前设置。
func (r *Registration) OnActivate(fn func(*Manager)) {
	r.onActivate = fn
}

// Register 安装 release。首次注册或开启 skipWaiting 时直接激活；
// 否则新版本进入 waiting，当前版本标记为 superseded 并广播 UpdateAvailable。
func (r *Registration) Register(ctx context.Context, release string) (*Manager, error) {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	r.mu.RLock()
	active, waiting := r.active, r.waiting
	r.mu.RUnlock()
	if active != nil && active.Release() == release {
		return active, nil
	}
	if waiting != nil && waiting.Release() == release {
		return waiting, nil
	}

	m := r.factory(release)
	if err := m.Install(ctx); err != nil {
		r.log().WithError(err).WithFields(logrus.Fields{
			"action":  "install",
			"release": release,
		}).Error("install_failed")
		return nil, err
	}

	if waiting != nil {
		_ = waiting.Retire()
		r.setWaiting(nil)
	}
	if active == nil || r.skipWaiting {
		return m, r.promote(ctx, m)
	}

	r.setWaiting(m)
	if active.State() == StateActive {
		_ = active.Supersede()
	}
	if r.pages != nil {
		r.pages.Broadcast(control.NewMessage(control.TypeUpdateAvailable, map[string]string{
			"release": release,
			"current": active.Release(),
		}))
	}
	r.log().WithFields(logrus.Fields{
		"action":  "register",
		"release": release,
		"current": active.Release(),
	}).Info("release_waiting")
	return m, nil
}

// SkipWaiting 激活等待中的版本。
func (r *Registration) SkipWaiting(ctx context.Context) error {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	r.mu.RLock()
	waiting := r.waiting
	r.mu.RUnlock()
	if waiting == nil {
		return ErrNothingWaiting
	}
	r.setWaiting(nil)
	return r.promote(ctx, waiting)
}

// Active 返回当前激活的版本，可能为 nil。
func (r *Registration) Active() *Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Waiting 返回等待中的版本，可能为 nil。
func (r *Registration) Waiting() *Manager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.waiting
}

// promote 激活 m。旧版本的预热必须先结束，否则它可能在 GC 之后重新写入旧分区。
func (r *Registration) promote(ctx context.Context, m *Manager) error {
	if current := r.Active(); current != nil {
		current.WaitWarmup()
	}
	if err := m.Activate(ctx); err != nil {
		_ = m.Retire()
		return err
	}
	r.mu.Lock()
	previous := r.active
	r.active = m
	r.mu.Unlock()
	if previous != nil {
		_ = previous.Retire()
	}
	if r.onActivate != nil {
		r.onActivate(m)
	}
	return nil
}

// Collect 再次删除激活版本之外的分区，返回删除的分区名。有版本在等待激活时不做任何事，
// 否则会删掉等待版本的预缓存。旧路由排空后调用，清掉排空期间写回旧分区的条目。
func (r *Registration) Collect(ctx context.Context) ([]string, error) {
	r.lifecycleMu.Lock()
	defer r.lifecycleMu.Unlock()

	r.mu.RLock()
	active, waiting := r.active, r.waiting
	r.mu.RUnlock()
	if active == nil || waiting != nil {
		return nil, nil
	}
	return active.collect(ctx)
}

func (r *Registration) setWaiting(m *Manager) {
	r.mu.Lock()
	r.waiting = m
	r.mu.Unlock()
}

func (r *Registration) log() *logrus.Logger {
	if r.logger != nil {
		return r.logger
	}
	return logrus.StandardLogger()
}
