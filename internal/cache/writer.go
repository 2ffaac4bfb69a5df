package cache

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable 表示当前策略未注入缓存存储实例。
var ErrStoreUnavailable = errors.New("cache store unavailable")

// PartitionWriter 将 Store 与单个分区及其过期策略绑定，提供策略层需要的读写封装。
type PartitionWriter struct {
	store     Store
	partition Partition
	now       func() time.Time
}

// NewPartitionWriter 构造分区感知的读写器，默认使用 time.Now 作为时钟。
func NewPartitionWriter(store Store, partition Partition) PartitionWriter {
	return PartitionWriter{
		store:     store,
		partition: partition,
		now:       time.Now,
	}
}

// WithClock 返回使用指定时钟的副本，便于测试过期逻辑。
func (w PartitionWriter) WithClock(now func() time.Time) PartitionWriter {
	w.now = now
	return w
}

// Enabled 返回当前是否具备缓存能力。
func (w PartitionWriter) Enabled() bool {
	return w.store != nil && w.partition.Name != ""
}

// Partition 返回绑定的分区描述。
func (w PartitionWriter) Partition() Partition {
	return w.partition
}

// Lookup 读取条目并按分区 MaxAge 判断是否仍然新鲜。分区内未命中时退回跨分区查找，
// 这样预缓存在 static 分区里的图标也能被 images 类请求命中。
func (w PartitionWriter) Lookup(ctx context.Context, key Key) (*Entry, bool, error) {
	if !w.Enabled() {
		return nil, false, ErrStoreUnavailable
	}
	entry, err := w.store.Get(ctx, w.partition.Name, key)
	if errors.Is(err, ErrNotFound) {
		entry, err = w.store.Match(ctx, key)
	}
	if err != nil {
		return nil, false, err
	}
	return entry, !IsExpired(entry, w.partition.MaxAge, w.now()), nil
}

// Put 写入条目，StoredAt 使用当前时钟。
func (w PartitionWriter) Put(ctx context.Context, key Key, entry *Entry) error {
	if !w.Enabled() {
		return ErrStoreUnavailable
	}
	stored := entry.Clone()
	stored.StoredAt = w.now().UTC()
	return w.store.Put(ctx, w.partition.Name, key, stored)
}

// Match 跨分区查找，供离线回退链使用。
func (w PartitionWriter) Match(ctx context.Context, key Key) (*Entry, error) {
	if w.store == nil {
		return nil, ErrStoreUnavailable
	}
	return w.store.Match(ctx, key)
}
