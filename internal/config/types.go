package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述 agent 的全局运行参数：监听端口、日志、存储目录、发布版本与源站。
type GlobalConfig struct {
	ListenPort           int      `mapstructure:"ListenPort"`
	LogLevel             string   `mapstructure:"LogLevel"`
	LogFilePath          string   `mapstructure:"LogFilePath"`
	LogMaxSize           int      `mapstructure:"LogMaxSize"`
	LogMaxBackups        int      `mapstructure:"LogMaxBackups"`
	LogCompress          bool     `mapstructure:"LogCompress"`
	StoragePath          string   `mapstructure:"StoragePath"`
	AppName              string   `mapstructure:"AppName"`
	ReleaseTag           string   `mapstructure:"ReleaseTag"`
	Origin               string   `mapstructure:"Origin"`
	Aliases              []string `mapstructure:"Aliases"`
	APIPrefix            string   `mapstructure:"APIPrefix"`
	NetworkTimeout       Duration `mapstructure:"NetworkTimeout"`
	UpstreamTimeout      Duration `mapstructure:"UpstreamTimeout"`
	SweepInterval        Duration `mapstructure:"SweepInterval"`
	SkipWaitingOnInstall bool     `mapstructure:"SkipWaitingOnInstall"`
	OfflinePage          string   `mapstructure:"OfflinePage"`
	CriticalAssets       []string `mapstructure:"CriticalAssets"`
	StaticAssets         []string `mapstructure:"StaticAssets"`
	CriticalEndpoints    []string `mapstructure:"CriticalEndpoints"`
	PrecacheManifest     string   `mapstructure:"PrecacheManifest"`
}

// CacheConfig 对应 [Cache] 表，声明各分区的最大存活时间。
type CacheConfig struct {
	StaticMaxAge  Duration `mapstructure:"StaticMaxAge"`
	DynamicMaxAge Duration `mapstructure:"DynamicMaxAge"`
	ImageMaxAge   Duration `mapstructure:"ImageMaxAge"`
	APIMaxAge     Duration `mapstructure:"APIMaxAge"`
}

// QueueConfig 对应 [Queue] 表，决定离线提交队列的存储后端与回放地址。
type QueueConfig struct {
	Backend     string            `mapstructure:"Backend"`
	RedisURL    string            `mapstructure:"RedisURL"`
	RedisPrefix string            `mapstructure:"RedisPrefix"`
	Endpoints   map[string]string `mapstructure:"Endpoints"`
}

// PushConfig 对应 [Push] 表，包含通知默认展示参数与可选的 AMQP 推送源。
type PushConfig struct {
	AMQPURL      string `mapstructure:"AMQPURL"`
	AMQPQueue    string `mapstructure:"AMQPQueue"`
	DefaultTitle string `mapstructure:"DefaultTitle"`
	DefaultBody  string `mapstructure:"DefaultBody"`
	DefaultIcon  string `mapstructure:"DefaultIcon"`
	DefaultBadge string `mapstructure:"DefaultBadge"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Cache  CacheConfig  `mapstructure:"Cache"`
	Queue  QueueConfig  `mapstructure:"Queue"`
	Push   PushConfig   `mapstructure:"Push"`
}

// OriginURL 返回解析后的源站地址（假定 Validate 已经通过）。
func (c *Config) OriginURL() *url.URL {
	parsed, err := url.Parse(c.Global.Origin)
	if err != nil {
		return &url.URL{}
	}
	return parsed
}

// PartitionPrefix 返回所有分区共享的前缀，例如 mh-construction-。
func (c *Config) PartitionPrefix() string {
	return c.Global.AppName + "-"
}

// QueueEndpoint 返回队列对应的回放地址，未配置时返回空串。
func (c *Config) QueueEndpoint(queue string) string {
	if c.Queue.Endpoints == nil {
		return ""
	}
	return c.Queue.Endpoints[queue]
}

// Summary 输出启动日志使用的关键字段，避免把整份配置写进日志。
func (c *Config) Summary() map[string]interface{} {
	return map[string]interface{}{
		"release":        c.Global.ReleaseTag,
		"origin":         c.Global.Origin,
		"queue_backend":  c.Queue.Backend,
		"critical_count": len(c.Global.CriticalAssets),
		"static_count":   len(c.Global.StaticAssets),
		"amqp_push":      c.Push.AMQPURL != "",
	}
}
