// Package queue persists mutating requests made while offline and replays
// them once connectivity returns. Three named queues exist (contact forms,
// bookings, testimonials); items are replayed in creation order and removed
// only after the endpoint confirms with a 2xx status.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Name 是队列名称。
type Name string

const (
	ContactForms Name = "contact-forms"
	Bookings     Name = "bookings"
	Testimonials Name = "testimonials"
)

// Names 列出全部队列，顺序即 background-sync 的回放顺序。
var Names = []Name{ContactForms, Bookings, Testimonials}

var (
	// ErrUnknownQueue 表示队列名不存在。
	ErrUnknownQueue = errors.New("unknown queue")
	// ErrNotFound 表示条目不存在（可能已被回放删除）。
	ErrNotFound = errors.New("queued mutation not found")
	// ErrInvalidPayload 表示 payload 不是合法 JSON。
	ErrInvalidPayload = errors.New("payload must be valid JSON")
)

// ParseName 校验并返回队列名。
func ParseName(raw string) (Name, error) {
	name := Name(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Names {
		if known == name {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownQueue, raw)
}

// Mutation 是一条待回放的离线提交。
type Mutation struct {
	ID        uint64          `json:"id" msgpack:"id"`
	Queue     Name            `json:"queue" msgpack:"queue"`
	Payload   json.RawMessage `json:"data" msgpack:"payload"`
	CreatedAt time.Time       `json:"created_at" msgpack:"created_at"`
}

// Store 是持久化队列的契约。ID 在每个队列内单调递增。
type Store interface {
	Enqueue(ctx context.Context, name Name, payload json.RawMessage) (uint64, error)
	ListPending(ctx context.Context, name Name) ([]Mutation, error)
	Remove(ctx context.Context, name Name, id uint64) error
	Close() error
}

func validate(name Name, payload json.RawMessage) error {
	if _, err := ParseName(string(name)); err != nil {
		return err
	}
	if payload != nil && !json.Valid(payload) {
		return ErrInvalidPayload
	}
	return nil
}
