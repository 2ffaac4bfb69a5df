package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// 预缓存清单的默认值，关键资源在前：首页、离线页、manifest 与图标。
var (
	defaultCriticalAssets = []string{
		"/",
		"/offline",
		"/manifest.json",
		"/icons/icon-192x192.png",
		"/icons/icon-512x512.png",
	}
	defaultStaticAssets = []string{
		"/about",
		"/services",
		"/projects",
		"/contact",
		"/team",
		"/careers",
		"/faq",
		"/testimonials",
		"/accessibility",
		"/privacy",
		"/terms",
	}
	defaultCriticalEndpoints = []string{"/api/contact"}
	defaultQueueEndpoints    = map[string]string{
		"contact-forms": "/api/contact",
		"bookings":      "/api/bookings",
		"testimonials":  "/api/testimonials",
	}
)

// Load 读取并解析 TOML 配置文件，同时注入默认值、合并预缓存清单并执行校验。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	return decode(v, filepath.Dir(path))
}

// decode 将 viper 中的配置解码为 Config，Load 与热更新共用。
func decode(v *viper.Viper, baseDir string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyCacheDefaults(&cfg.Cache)
	applyQueueDefaults(&cfg.Queue)
	applyPushDefaults(&cfg.Push)

	if manifestPath := strings.TrimSpace(cfg.Global.PrecacheManifest); manifestPath != "" {
		if !filepath.IsAbs(manifestPath) {
			manifestPath = filepath.Join(baseDir, manifestPath)
		}
		manifest, err := LoadManifest(manifestPath)
		if err != nil {
			return nil, err
		}
		manifest.Apply(&cfg.Global)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析存储目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("AppName", "mh-construction")
	v.SetDefault("APIPrefix", "/api/")
	v.SetDefault("NetworkTimeout", "8s")
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("SweepInterval", "1h")
	v.SetDefault("SkipWaitingOnInstall", true)
	v.SetDefault("OfflinePage", "/offline")
	v.SetDefault("CriticalAssets", defaultCriticalAssets)
	v.SetDefault("StaticAssets", defaultStaticAssets)
	v.SetDefault("CriticalEndpoints", defaultCriticalEndpoints)
	v.SetDefault("Cache.StaticMaxAge", "168h")
	v.SetDefault("Cache.DynamicMaxAge", "24h")
	v.SetDefault("Cache.ImageMaxAge", "720h")
	v.SetDefault("Cache.APIMaxAge", "5m")
	v.SetDefault("Queue.Backend", "leveldb")
	v.SetDefault("Queue.RedisPrefix", "offline-agent")
	v.SetDefault("Push.AMQPQueue", "offline-agent.push")
	v.SetDefault("Push.DefaultTitle", "MH Construction")
	v.SetDefault("Push.DefaultBody", "You have a new update from MH Construction")
	v.SetDefault("Push.DefaultIcon", "/icons/icon-192x192.png")
	v.SetDefault("Push.DefaultBadge", "/icons/badge-72x72.png")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if strings.TrimSpace(g.AppName) == "" {
		g.AppName = "mh-construction"
	}
	g.AppName = strings.ToLower(strings.TrimSpace(g.AppName))
	g.ReleaseTag = strings.TrimSpace(g.ReleaseTag)
	g.Origin = strings.TrimRight(strings.TrimSpace(g.Origin), "/")
	if g.APIPrefix == "" {
		g.APIPrefix = "/api/"
	}
	if !strings.HasPrefix(g.APIPrefix, "/") {
		g.APIPrefix = "/" + g.APIPrefix
	}
	if g.NetworkTimeout.DurationValue() == 0 {
		g.NetworkTimeout = Duration(8 * time.Second)
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.OfflinePage == "" {
		g.OfflinePage = "/offline"
	}
	for i, alias := range g.Aliases {
		g.Aliases[i] = strings.ToLower(strings.TrimSpace(alias))
	}
}

func applyCacheDefaults(c *CacheConfig) {
	if c.StaticMaxAge.DurationValue() == 0 {
		c.StaticMaxAge = Duration(7 * 24 * time.Hour)
	}
	if c.DynamicMaxAge.DurationValue() == 0 {
		c.DynamicMaxAge = Duration(24 * time.Hour)
	}
	if c.ImageMaxAge.DurationValue() == 0 {
		c.ImageMaxAge = Duration(30 * 24 * time.Hour)
	}
	if c.APIMaxAge.DurationValue() == 0 {
		c.APIMaxAge = Duration(5 * time.Minute)
	}
}

func applyQueueDefaults(q *QueueConfig) {
	q.Backend = strings.ToLower(strings.TrimSpace(q.Backend))
	if q.Backend == "" {
		q.Backend = "leveldb"
	}
	if q.RedisPrefix == "" {
		q.RedisPrefix = "offline-agent"
	}
	if q.Endpoints == nil {
		q.Endpoints = make(map[string]string, len(defaultQueueEndpoints))
	}
	for name, endpoint := range defaultQueueEndpoints {
		if _, ok := q.Endpoints[name]; !ok {
			q.Endpoints[name] = endpoint
		}
	}
}

func applyPushDefaults(p *PushConfig) {
	if p.AMQPQueue == "" {
		p.AMQPQueue = "offline-agent.push"
	}
	if p.DefaultTitle == "" {
		p.DefaultTitle = "MH Construction"
	}
	if p.DefaultIcon == "" {
		p.DefaultIcon = "/icons/icon-192x192.png"
	}
	if p.DefaultBadge == "" {
		p.DefaultBadge = "/icons/badge-72x72.png"
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
