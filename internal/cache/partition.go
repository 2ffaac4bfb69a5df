package cache

import (
	"fmt"
	"strings"
	"time"
)

// Kind 描述分区层级，每个层级对应一个最大存活时间。
type Kind string

const (
	KindCore    Kind = "core"
	KindStatic  Kind = "static"
	KindDynamic Kind = "dynamic"
	KindImages  Kind = "images"
	KindAPI     Kind = "api"
)

// Kinds 列出所有会写入条目的层级；core 仅保留命名，不存放条目。
var Kinds = []Kind{KindStatic, KindDynamic, KindImages, KindAPI}

// Partition 是一个具名、带版本的缓存分区。
type Partition struct {
	Name   string
	Kind   Kind
	MaxAge time.Duration
}

// PartitionName 生成 "<app>-<tier>-<release>" 形式的分区名。
func PartitionName(app string, kind Kind, release string) string {
	return fmt.Sprintf("%s-%s-%s", app, kind, release)
}

// ParsePartitionName 拆出分区名中的 app / tier / release，release 不含 '-'。
func ParsePartitionName(name string) (app string, kind Kind, release string, ok bool) {
	idx := strings.LastIndex(name, "-")
	if idx <= 0 || idx == len(name)-1 {
		return "", "", "", false
	}
	release = name[idx+1:]
	rest := name[:idx]
	idx = strings.LastIndex(rest, "-")
	if idx <= 0 {
		return "", "", "", false
	}
	kind = Kind(rest[idx+1:])
	if !knownKind(kind) {
		return "", "", "", false
	}
	return rest[:idx], kind, release, true
}

// BelongsTo 判断分区是否属于 app（以 "<app>-" 开头）。
func BelongsTo(name, app string) bool {
	return strings.HasPrefix(name, app+"-")
}

// ReleaseOf 判断分区名是否带有指定发布版本。
func ReleaseOf(name, release string) bool {
	return strings.HasSuffix(name, "-"+release)
}

func knownKind(kind Kind) bool {
	if kind == KindCore {
		return true
	}
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func tierLabel(partition string) string {
	if _, kind, _, ok := ParsePartitionName(partition); ok {
		return string(kind)
	}
	return "unknown"
}
