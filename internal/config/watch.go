package config

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ReloadFunc 在配置文件变更后被调用；解析失败时 cfg 为 nil、err 非空，调用方应保留旧配置。
type ReloadFunc func(cfg *Config, err error)

// Watch 读取配置并监听文件变化，每次写入或重命名都会重新解码并回调 onChange。
func Watch(path string, onChange ReloadFunc) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	baseDir := filepath.Dir(path)
	cfg, err := decode(v, baseDir)
	if err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !isReloadEvent(e) {
			return
		}
		next, err := decode(v, baseDir)
		if onChange != nil {
			onChange(next, err)
		}
	})
	v.WatchConfig()

	return cfg, nil
}

func isReloadEvent(e fsnotify.Event) bool {
	return e.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// ReleaseChanged 判断热更新是否引入了新的发布版本。
func ReleaseChanged(prev, next *Config) bool {
	if prev == nil || next == nil {
		return false
	}
	return prev.Global.ReleaseTag != next.Global.ReleaseTag
}
