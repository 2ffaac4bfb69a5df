package cache

import (
	"net/http"
	"strings"
	"time"
)

// MaxAges 描述每个层级的最大存活时间。
type MaxAges struct {
	Static  time.Duration
	Dynamic time.Duration
	Images  time.Duration
	API     time.Duration
}

// DefaultMaxAges 返回内置默认值：static 7 天、dynamic 1 天、images 30 天、api 5 分钟。
func DefaultMaxAges() MaxAges {
	return MaxAges{
		Static:  7 * 24 * time.Hour,
		Dynamic: 24 * time.Hour,
		Images:  30 * 24 * time.Hour,
		API:     5 * time.Minute,
	}
}

// For 返回层级对应的最大存活时间，core 与未知层级返回 0（永不过期）。
func (m MaxAges) For(kind Kind) time.Duration {
	switch kind {
	case KindStatic:
		return m.Static
	case KindDynamic:
		return m.Dynamic
	case KindImages:
		return m.Images
	case KindAPI:
		return m.API
	default:
		return 0
	}
}

// MaxAgeFor 依据分区名中的层级子串推断最大存活时间，供周期清理使用。
// 无法识别的分区退回 dynamic。
func (m MaxAges) MaxAgeFor(name string) time.Duration {
	if _, kind, _, ok := ParsePartitionName(name); ok && kind != KindCore {
		return m.For(kind)
	}
	for _, kind := range Kinds {
		if strings.Contains(name, "-"+string(kind)+"-") {
			return m.For(kind)
		}
	}
	return m.Dynamic
}

// IsExpired 判断条目是否超过 maxAge。时间来源依次为 StoredAt、响应的 Date 头；
// 两者都缺失时视为未过期。maxAge <= 0 表示永不过期。
func IsExpired(entry *Entry, maxAge time.Duration, now time.Time) bool {
	if entry == nil || maxAge <= 0 {
		return false
	}
	stored := entry.StoredAt
	if stored.IsZero() {
		raw := entry.Header.Get("Date")
		if raw == "" {
			return false
		}
		parsed, err := http.ParseTime(raw)
		if err != nil {
			return false
		}
		stored = parsed
	}
	return now.Sub(stored) > maxAge
}
