package cache

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Store 管理所有缓存分区。磁盘布局（同一个 LevelDB）：
//
//	p:<partition>              # 分区元数据
//	e:<partition>\x00<key>     # 响应条目（msgpack）
//	i:<key>\x00<release>        # 反向索引：key 在该发布版本内所在的分区
//
// 同一发布版本内，一个 key 至多存在于一个分区中，Put 会在同一个 batch 内移除旧分区的副本。
// 不同版本的分区互不影响，等待激活的版本可以和当前版本同时持有同一个 key。
type Store interface {
	// Open 创建分区（已存在时为空操作）。
	Open(ctx context.Context, partition string) error

	// Get 返回指定分区中的条目，不存在时返回 ErrNotFound。
	Get(ctx context.Context, partition string, key Key) (*Entry, error)

	// Match 在所有分区中查找 key，多个版本都有时返回最新写入的一份，供离线回退链使用。
	Match(ctx context.Context, key Key) (*Entry, error)

	// Put 写入条目，只接受 GET 请求的 key；分区不存在时自动创建。
	Put(ctx context.Context, partition string, key Key, entry *Entry) error

	// Delete 删除分区中的条目，条目不存在时返回 ErrNotFound。
	Delete(ctx context.Context, partition string, key Key) error

	// DeleteFunc 在 key 锁内读取条目，match 返回 true 时删除，返回是否删除。
	// 条目不存在时返回 false 且不报错。
	DeleteFunc(ctx context.Context, partition string, key Key, match func(*Entry) bool) (bool, error)

	// Keys 列出分区中的全部 key，按 LevelDB 字节序返回。
	Keys(ctx context.Context, partition string) ([]Key, error)

	// ListPartitions 列出全部分区名。
	ListPartitions(ctx context.Context) ([]string, error)

	// DeletePartition 删除整个分区及其条目，返回分区原先是否存在。
	DeletePartition(ctx context.Context, name string) (bool, error)

	Close() error
}

// Key 唯一定位一个缓存条目。
type Key struct {
	Method string `msgpack:"method"`
	URL    string `msgpack:"url"`
}

// GetKey 构造 GET 请求的 key。
func GetKey(url string) Key {
	return Key{Method: http.MethodGet, URL: url}
}

func (k Key) String() string {
	return strings.ToUpper(k.Method) + " " + k.URL
}

// ParseKey 是 String 的逆操作。
func ParseKey(raw string) (Key, bool) {
	method, url, ok := strings.Cut(raw, " ")
	if !ok || method == "" || url == "" {
		return Key{}, false
	}
	return Key{Method: method, URL: url}, true
}

// Entry 是一份完整的缓存响应。
type Entry struct {
	Key        Key         `msgpack:"key"`
	Partition  string      `msgpack:"partition"`
	StatusCode int         `msgpack:"status"`
	Header     http.Header `msgpack:"header"`
	Body       []byte      `msgpack:"body"`
	StoredAt   time.Time   `msgpack:"stored_at"`
}

// Clone 返回深拷贝，避免调用方修改 Header 影响已缓存内容。
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	out := *e
	out.Header = e.Header.Clone()
	if e.Body != nil {
		out.Body = append([]byte(nil), e.Body...)
	}
	return &out
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrNotCacheable 表示非 GET 请求或无效 key。
	ErrNotCacheable = errors.New("request is not cacheable")
	// ErrClosed 表示存储已关闭。
	ErrClosed = errors.New("cache store closed")
)
