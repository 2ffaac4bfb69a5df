package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	partitionPrefix = "p:"
	entryPrefix     = "e:"
	indexPrefix     = "i:"
	keySeparator    = "\x00"
)

// partitionMeta 记录分区创建时间，便于诊断输出。
type partitionMeta struct {
	Name      string    `msgpack:"name"`
	CreatedAt time.Time `msgpack:"created_at"`
}

// NewStore 在 basePath 下打开（或创建）LevelDB 数据库，整个进程复用一份实例。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	return &levelStore{
		db:    db,
		locks: make(map[string]*entryLock),
	}, nil
}

// levelStore 通过 entryLock 串行化同一 key 的读-改-写（唯一性索引），不同 key 之间完全并发。
type levelStore struct {
	db *leveldb.DB

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *levelStore) Open(ctx context.Context, partition string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if partition == "" {
		return errors.New("partition name required")
	}
	batch := new(leveldb.Batch)
	if err := s.ensurePartition(batch, partition); err != nil {
		return s.fail("open", err)
	}
	if batch.Len() == 0 {
		return nil
	}
	return s.fail("open", s.db.Write(batch, nil))
}

func (s *levelStore) Get(ctx context.Context, partition string, key Key) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, err := s.readEntry(partition, key)
	if errors.Is(err, ErrNotFound) {
		CacheMisses.WithLabelValues(tierLabel(partition)).Inc()
		return nil, err
	}
	if err != nil {
		return nil, s.fail("get", err)
	}
	CacheHits.WithLabelValues(tierLabel(partition)).Inc()
	return entry, nil
}

func (s *levelStore) Match(ctx context.Context, key Key) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := indexPrefixFor(key)
	it := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	var owners []string
	for it.Next() {
		owners = append(owners, string(it.Value()))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return nil, s.fail("match", err)
	}

	// 同一 key 在不同版本各有一份时，返回最新写入的那份。
	var best *Entry
	for _, owner := range owners {
		entry, err := s.readEntry(owner, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, s.fail("match", err)
		}
		if best == nil || entry.StoredAt.After(best.StoredAt) {
			best = entry
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	CacheHits.WithLabelValues(tierLabel(best.Partition)).Inc()
	return best, nil
}

func (s *levelStore) Put(ctx context.Context, partition string, key Key, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if partition == "" {
		return errors.New("partition name required")
	}
	if key.Method != http.MethodGet || key.URL == "" {
		return ErrNotCacheable
	}
	if entry == nil {
		return errors.New("entry required")
	}

	unlock := s.lockEntry(key)
	defer unlock()

	stored := entry.Clone()
	stored.Key = key
	stored.Partition = partition
	if stored.StoredAt.IsZero() {
		stored.StoredAt = time.Now().UTC()
	}
	payload, err := msgpack.Marshal(stored)
	if err != nil {
		return s.fail("put", fmt.Errorf("encode entry: %w", err))
	}

	batch := new(leveldb.Batch)
	if err := s.ensurePartition(batch, partition); err != nil {
		return s.fail("put", err)
	}
	owner, err := s.db.Get(indexKey(partition, key), nil)
	switch {
	case err == nil:
		if prev := string(owner); prev != partition {
			batch.Delete(entryKey(prev, key))
		}
	case errors.Is(err, leveldb.ErrNotFound):
	default:
		return s.fail("put", err)
	}
	batch.Put(entryKey(partition, key), payload)
	batch.Put(indexKey(partition, key), []byte(partition))

	if err := s.db.Write(batch, nil); err != nil {
		return s.fail("put", err)
	}
	CacheBytes.WithLabelValues(tierLabel(partition)).Add(float64(len(stored.Body)))
	return nil
}

func (s *levelStore) Delete(ctx context.Context, partition string, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.lockEntry(key)
	defer unlock()

	ok, err := s.db.Has(entryKey(partition, key), nil)
	if err != nil {
		return s.fail("delete", err)
	}
	if !ok {
		return ErrNotFound
	}
	return s.fail("delete", s.db.Write(s.removal(partition, key), nil))
}

func (s *levelStore) DeleteFunc(ctx context.Context, partition string, key Key, match func(*Entry) bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	unlock := s.lockEntry(key)
	defer unlock()

	entry, err := s.readEntry(partition, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, s.fail("delete", err)
	}
	if match != nil && !match(entry) {
		return false, nil
	}
	if err := s.db.Write(s.removal(partition, key), nil); err != nil {
		return false, s.fail("delete", err)
	}
	return true, nil
}

// removal 构造删除条目的 batch；只有索引仍指向该分区时才一并删除索引。调用方需持有 key 锁。
func (s *levelStore) removal(partition string, key Key) *leveldb.Batch {
	batch := new(leveldb.Batch)
	batch.Delete(entryKey(partition, key))
	if owner, err := s.db.Get(indexKey(partition, key), nil); err == nil && string(owner) == partition {
		batch.Delete(indexKey(partition, key))
	}
	return batch
}

func (s *levelStore) Keys(ctx context.Context, partition string) ([]Key, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(entryPrefix + partition + keySeparator)
	it := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer it.Release()

	var keys []Key
	for it.Next() {
		if key, ok := ParseKey(string(bytes.TrimPrefix(it.Key(), prefix))); ok {
			keys = append(keys, key)
		}
	}
	if err := it.Error(); err != nil {
		return nil, s.fail("keys", err)
	}
	return keys, nil
}

func (s *levelStore) ListPartitions(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	it := s.db.NewIterator(util.BytesPrefix([]byte(partitionPrefix)), nil)
	defer it.Release()

	var names []string
	for it.Next() {
		names = append(names, strings.TrimPrefix(string(it.Key()), partitionPrefix))
	}
	if err := it.Error(); err != nil {
		return nil, s.fail("list", err)
	}
	sort.Strings(names)
	return names, nil
}

func (s *levelStore) DeletePartition(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	exists, err := s.db.Has([]byte(partitionPrefix+name), nil)
	if err != nil {
		return false, s.fail("delete_partition", err)
	}
	if !exists {
		return false, nil
	}

	keys, err := s.Keys(ctx, name)
	if err != nil {
		return false, s.fail("delete_partition", err)
	}
	// 逐 key 加锁删除：并发的 Put 可能正把 key 移到别的分区，索引必须在锁内重新确认。
	for _, key := range keys {
		unlock := s.lockEntry(key)
		err := s.db.Write(s.removal(name, key), nil)
		unlock()
		if err != nil {
			return false, s.fail("delete_partition", err)
		}
	}
	if err := s.db.Delete([]byte(partitionPrefix+name), nil); err != nil {
		return false, s.fail("delete_partition", err)
	}
	return true, nil
}

func (s *levelStore) Close() error {
	return s.db.Close()
}

func (s *levelStore) ensurePartition(batch *leveldb.Batch, partition string) error {
	ok, err := s.db.Has([]byte(partitionPrefix+partition), nil)
	if err != nil || ok {
		return err
	}
	meta, err := msgpack.Marshal(partitionMeta{Name: partition, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	batch.Put([]byte(partitionPrefix+partition), meta)
	return nil
}

func (s *levelStore) lockEntry(key Key) func() {
	id := key.String()
	s.mu.Lock()
	lock := s.locks[id]
	if lock == nil {
		lock = &entryLock{}
		s.locks[id] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

// fail 记录存储错误指标并原样返回。
func (s *levelStore) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, leveldb.ErrClosed) {
		err = ErrClosed
	}
	CacheErrors.WithLabelValues(op).Inc()
	return err
}

func entryKey(partition string, key Key) []byte {
	return []byte(entryPrefix + partition + keySeparator + key.String())
}

// indexKey 是 key 在某个发布版本内的归属记录：i:<key>\x00<scope>。
// 唯一性只在同一版本内成立，等待中的新版本不会被旧版本的写入挤掉。
func indexKey(partition string, key Key) []byte {
	return append(indexPrefixFor(key), indexScope(partition)...)
}

func indexPrefixFor(key Key) []byte {
	return []byte(indexPrefix + key.String() + keySeparator)
}

// indexScope 取分区名中的发布版本；不符合命名规则的分区自成一个范围。
func indexScope(partition string) string {
	if _, _, release, ok := ParsePartitionName(partition); ok {
		return release
	}
	return partition
}

func (s *levelStore) readEntry(partition string, key Key) (*Entry, error) {
	raw, err := s.db.Get(entryKey(partition, key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeEntry(raw)
}

func decodeEntry(raw []byte) (*Entry, error) {
	var entry Entry
	if err := msgpack.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &entry, nil
}
