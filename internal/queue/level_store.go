package queue

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/vmihailenco/msgpack/v5"
)

// levelStore 布局：
//
//	s:<queue>                 # 自增序列（uint64 大端）
//	q:<queue>:<%020d id>      # 条目（msgpack），零填充保证字节序即创建顺序
type levelStore struct {
	db *leveldb.DB
	mu sync.Mutex
}

// NewLevelStore 在 path 下打开队列数据库。
func NewLevelStore(path string) (Store, error) {
	if path == "" {
		return nil, errors.New("queue path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create queue dir: %w", err)
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	return &levelStore{db: db}, nil
}

func (s *levelStore) Enqueue(ctx context.Context, name Name, payload json.RawMessage) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := validate(name, payload); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seqKey := []byte("s:" + string(name))
	var next uint64 = 1
	raw, err := s.db.Get(seqKey, nil)
	switch {
	case err == nil && len(raw) == 8:
		next = binary.BigEndian.Uint64(raw) + 1
	case err == nil, errors.Is(err, leveldb.ErrNotFound):
	default:
		return 0, err
	}

	item, err := msgpack.Marshal(Mutation{
		ID:        next,
		Queue:     name,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("encode mutation: %w", err)
	}
	seq := make([]byte, 8)
	binary.BigEndian.PutUint64(seq, next)

	batch := new(leveldb.Batch)
	batch.Put(seqKey, seq)
	batch.Put(itemKey(name, next), item)
	if err := s.db.Write(batch, nil); err != nil {
		return 0, err
	}
	return next, nil
}

func (s *levelStore) ListPending(ctx context.Context, name Name) ([]Mutation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := ParseName(string(name)); err != nil {
		return nil, err
	}
	it := s.db.NewIterator(util.BytesPrefix([]byte("q:"+string(name)+":")), nil)
	defer it.Release()

	var items []Mutation
	for it.Next() {
		var m Mutation
		if err := msgpack.Unmarshal(it.Value(), &m); err != nil {
			return nil, fmt.Errorf("decode mutation %s: %w", it.Key(), err)
		}
		items = append(items, m)
	}
	return items, it.Error()
}

func (s *levelStore) Remove(ctx context.Context, name Name, id uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := itemKey(name, id)
	ok, err := s.db.Has(key, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return s.db.Delete(key, nil)
}

func (s *levelStore) Close() error {
	return s.db.Close()
}

func itemKey(name Name, id uint64) []byte {
	return []byte(fmt.Sprintf("q:%s:%020d", name, id))
}
