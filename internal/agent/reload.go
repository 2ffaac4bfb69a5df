package agent

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Ramsey-USA/mh-website-sub005/internal/config"
)

// Watch 监听配置文件；ReleaseTag 变化时注册新版本。资源清单与缓存时长随新配置生效，
// 存储路径、监听端口和队列后端需要重启才能变更。
func (a *Agent) Watch(ctx context.Context, path string) error {
	_, err := config.Watch(path, func(next *config.Config, err error) {
		if err != nil {
			a.logger.WithError(err).WithFields(logrus.Fields{
				"action":     "config_reload",
				"configPath": path,
			}).Warn("config_reload_rejected")
			return
		}
		a.Reload(ctx, next)
	})
	return err
}

// Reload 替换当前配置并按新配置重建当前路由（缓存时长、别名、关键接口等）。
// 发布版本变化时另外安装新版本，路由在新版本激活时再次切换。
func (a *Agent) Reload(ctx context.Context, next *config.Config) {
	prev := a.cfg.Swap(next)
	current := a.Router().Release()
	if active := a.registration.Active(); active != nil {
		current = active.Release()
	}
	a.swapRouter(current)
	if !config.ReleaseChanged(prev, next) {
		a.logger.WithFields(logrus.Fields{"action": "config_reload", "release": current}).Info("config_reloaded")
		return
	}
	fields := logrus.Fields{
		"action":  "config_reload",
		"from":    prev.Global.ReleaseTag,
		"release": next.Global.ReleaseTag,
	}
	if _, err := a.Dispatch(ctx, ReleaseEvent{Release: next.Global.ReleaseTag}); err != nil {
		a.logger.WithError(err).WithFields(fields).Warn("release_install_failed")
		return
	}
	a.logger.WithFields(fields).Info("release_registered")
}
