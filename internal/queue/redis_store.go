package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// RedisConfig 描述 Redis 队列的连接参数。
type RedisConfig struct {
	URL    string
	Prefix string
}

// redisStore 布局（每个队列）：
//
//	<prefix>:<queue>:seq     INCR 生成 ID
//	<prefix>:<queue>:order   ZSET，score 为 ID
//	<prefix>:<queue>:items   HASH，ID -> msgpack
type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore 创建 Redis 队列并检查连通性。
func NewRedisStore(ctx context.Context, cfg RedisConfig) (Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("Redis URL 不能为空")
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("解析 Redis URL 失败: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "offline-agent"
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &redisStore{client: client, prefix: prefix}, nil
}

func (s *redisStore) key(name Name, suffix string) string {
	return s.prefix + ":" + string(name) + ":" + suffix
}

func (s *redisStore) Enqueue(ctx context.Context, name Name, payload json.RawMessage) (uint64, error) {
	if err := validate(name, payload); err != nil {
		return 0, err
	}
	id, err := s.client.Incr(ctx, s.key(name, "seq")).Uint64()
	if err != nil {
		return 0, fmt.Errorf("Redis 生成 ID 失败: %w", err)
	}
	item, err := msgpack.Marshal(Mutation{
		ID:        id,
		Queue:     name,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("encode mutation: %w", err)
	}
	member := strconv.FormatUint(id, 10)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(name, "items"), member, item)
		pipe.ZAdd(ctx, s.key(name, "order"), redis.Z{Score: float64(id), Member: member})
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("Redis 写入队列失败: %w", err)
	}
	return id, nil
}

func (s *redisStore) ListPending(ctx context.Context, name Name) ([]Mutation, error) {
	if _, err := ParseName(string(name)); err != nil {
		return nil, err
	}
	ids, err := s.client.ZRange(ctx, s.key(name, "order"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("Redis 读取队列失败: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	values, err := s.client.HMGet(ctx, s.key(name, "items"), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("Redis 读取条目失败: %w", err)
	}
	items := make([]Mutation, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			// order 与 items 不一致时跳过，Remove 会在下次清理。
			continue
		}
		var m Mutation
		if err := msgpack.Unmarshal([]byte(raw), &m); err != nil {
			return nil, fmt.Errorf("decode mutation %s: %w", ids[i], err)
		}
		items = append(items, m)
	}
	return items, nil
}

func (s *redisStore) Remove(ctx context.Context, name Name, id uint64) error {
	member := strconv.FormatUint(id, 10)
	var deleted *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.HDel(ctx, s.key(name, "items"), member)
		pipe.ZRem(ctx, s.key(name, "order"), member)
		return nil
	})
	if err != nil {
		return fmt.Errorf("Redis 删除条目失败: %w", err)
	}
	if deleted.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *redisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
