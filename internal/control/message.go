package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Type 是控制消息类型。
type Type string

const (
	TypeSkipWaiting       Type = "SkipWaiting"
	TypeRequestSync       Type = "RequestSync"
	TypeSyncStart         Type = "BackgroundSyncStart"
	TypeSyncSuccess       Type = "BackgroundSyncSuccess"
	TypeSyncFailed        Type = "BackgroundSyncFailed"
	TypeUpdateAvailable   Type = "UpdateAvailable"
	TypeControllerChange  Type = "ControllerChange"
	TypeShowNotification  Type = "ShowNotification"
	TypeCloseNotification Type = "CloseNotification"
	TypeFocus             Type = "Focus"
	TypeOpenWindow        Type = "OpenWindow"
)

// legacyTypes 兼容旧页面脚本使用的大写下划线写法。
var legacyTypes = map[string]Type{
	"SKIP_WAITING": TypeSkipWaiting,
	"REQUEST_SYNC": TypeRequestSync,
}

// inboundTypes 是页面可以发送给 agent 的消息类型。
var inboundTypes = map[Type]struct{}{
	TypeSkipWaiting: {},
	TypeRequestSync: {},
}

// Message 是 agent 与页面之间交换的控制消息。
type Message struct {
	Type  Type            `json:"type"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// SyncResult 是同步结果消息的 data 部分。
type SyncResult struct {
	Processed int `json:"processed"`
}

// ErrMalformed 表示页面发送的消息无法识别。
var ErrMalformed = errors.New("malformed control message")

// NewMessage 构造携带 data 的消息；data 为 nil 时省略。
func NewMessage(t Type, data any) Message {
	msg := Message{Type: t}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			msg.Data = raw
		}
	}
	return msg
}

// SyncStart / SyncSuccess / SyncFailed 构造后台同步进度消息。
func SyncStart() Message { return Message{Type: TypeSyncStart} }

func SyncSuccess(processed int) Message {
	return NewMessage(TypeSyncSuccess, SyncResult{Processed: processed})
}

func SyncFailed(err error, processed int) Message {
	msg := NewMessage(TypeSyncFailed, SyncResult{Processed: processed})
	if err != nil {
		msg.Error = err.Error()
	}
	return msg
}

// ParseInbound 解析页面发来的消息，兼容旧写法；未知类型返回 ErrMalformed。
func ParseInbound(raw []byte) (Message, error) {
	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data,omitempty"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	t := Type(strings.TrimSpace(envelope.Type))
	if legacy, ok := legacyTypes[string(t)]; ok {
		t = legacy
	}
	if _, ok := inboundTypes[t]; !ok {
		return Message{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, envelope.Type)
	}
	return Message{Type: t, Data: envelope.Data}, nil
}

// Encode 序列化消息，用于 SSE data 行。
func (m Message) Encode() []byte {
	raw, err := json.Marshal(m)
	if err != nil {
		return []byte(`{"type":"` + string(m.Type) + `"}`)
	}
	return raw
}
