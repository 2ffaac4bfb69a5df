package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var supportedQueueBackends = map[string]struct{}{
	"leveldb": {},
	"redis":   {},
}

var knownQueues = []string{"contact-forms", "bookings", "testimonials"}

// Validate 针对语义级别做进一步校验，防止非法配置启动 agent。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.AppName == "" || strings.ContainsAny(g.AppName, " /") {
		return newFieldError("Global.AppName", "不能为空且不能包含空格或斜杠")
	}
	if g.ReleaseTag == "" {
		return newFieldError("Global.ReleaseTag", "不能为空")
	}
	if strings.Contains(g.ReleaseTag, "-") {
		return newFieldError("Global.ReleaseTag", "不能包含 '-'，以免与分区名分隔符冲突")
	}
	if err := validateOrigin(g.Origin); err != nil {
		return fmt.Errorf("Global.Origin: %w", err)
	}
	if g.NetworkTimeout.DurationValue() <= 0 {
		return newFieldError("Global.NetworkTimeout", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.SweepInterval.DurationValue() < 0 {
		return newFieldError("Global.SweepInterval", "不能为负数")
	}
	if err := validatePaths("Global.CriticalAssets", g.CriticalAssets); err != nil {
		return err
	}
	if err := validatePaths("Global.StaticAssets", g.StaticAssets); err != nil {
		return err
	}
	if err := validatePaths("Global.CriticalEndpoints", g.CriticalEndpoints); err != nil {
		return err
	}
	for _, endpoint := range g.CriticalEndpoints {
		if !strings.HasPrefix(endpoint, g.APIPrefix) {
			return newFieldError("Global.CriticalEndpoints", fmt.Sprintf("%s 不在 %s 前缀下", endpoint, g.APIPrefix))
		}
	}

	cc := c.Cache
	if cc.StaticMaxAge.DurationValue() <= 0 || cc.DynamicMaxAge.DurationValue() <= 0 ||
		cc.ImageMaxAge.DurationValue() <= 0 || cc.APIMaxAge.DurationValue() <= 0 {
		return newFieldError("Cache.*MaxAge", "必须大于 0")
	}

	q := c.Queue
	if _, ok := supportedQueueBackends[q.Backend]; !ok {
		return newFieldError("Queue.Backend", "仅支持 leveldb|redis")
	}
	if q.Backend == "redis" && strings.TrimSpace(q.RedisURL) == "" {
		return newFieldError("Queue.RedisURL", "Backend=redis 时不能为空")
	}
	for _, name := range knownQueues {
		endpoint := q.Endpoints[name]
		if endpoint == "" || !strings.HasPrefix(endpoint, "/") {
			return newFieldError(queueField(name), "必须是以 / 开头的路径")
		}
	}
	for name := range q.Endpoints {
		if !isKnownQueue(name) {
			return newFieldError(queueField(name), "未知队列，仅支持 contact-forms|bookings|testimonials")
		}
	}

	if c.Push.AMQPURL != "" {
		parsed, err := url.Parse(c.Push.AMQPURL)
		if err != nil || (parsed.Scheme != "amqp" && parsed.Scheme != "amqps") {
			return newFieldError("Push.AMQPURL", "仅支持 amqp/amqps 地址")
		}
	}

	return nil
}

func validateOrigin(raw string) error {
	if raw == "" {
		return errors.New("缺少源站地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，源站: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("源站缺少 Host: %s", raw)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return fmt.Errorf("源站不应包含路径: %s", raw)
	}
	return nil
}

func validatePaths(field string, paths []string) error {
	for _, p := range paths {
		if !strings.HasPrefix(p, "/") {
			return newFieldError(field, fmt.Sprintf("%q 必须以 / 开头", p))
		}
	}
	return nil
}

func isKnownQueue(name string) bool {
	for _, known := range knownQueues {
		if known == name {
			return true
		}
	}
	return false
}
