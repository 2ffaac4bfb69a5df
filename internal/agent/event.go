package agent

import (
	"github.com/Ramsey-USA/mh-website-sub005/internal/control"
	"github.com/Ramsey-USA/mh-website-sub005/internal/fetch"
	"github.com/Ramsey-USA/mh-website-sub005/internal/lifecycle"
	"github.com/Ramsey-USA/mh-website-sub005/internal/notify"
	"github.com/Ramsey-USA/mh-website-sub005/internal/queue"
	"github.com/Ramsey-USA/mh-website-sub005/internal/router"
)

// Event 是 Dispatch 接受的离散事件。
type Event interface {
	Kind() string
}

// FetchEvent 是一次被拦截的请求。
type FetchEvent struct {
	Request *fetch.Request
}

// MessageEvent 是页面发来的控制消息。
type MessageEvent struct {
	Message control.Message
}

// SyncEvent 表示网络恢复后的后台同步，Tag 为空等同 background-sync。
type SyncEvent struct {
	Tag string
}

// PeriodicSyncEvent 是周期维护触发，目前只识别 cache-cleanup。
type PeriodicSyncEvent struct {
	Tag string
}

// PushEvent 携带服务器推送的原始内容。
type PushEvent struct {
	Payload []byte
}

// ClickEvent 是通知点击。
type ClickEvent struct {
	Click notify.ClickEvent
}

// ReleaseEvent 请求安装新的发布版本。
type ReleaseEvent struct {
	Release string
}

func (FetchEvent) Kind() string        { return "fetch" }
func (MessageEvent) Kind() string      { return "message" }
func (SyncEvent) Kind() string         { return "sync" }
func (PeriodicSyncEvent) Kind() string { return "periodicsync" }
func (PushEvent) Kind() string         { return "push" }
func (ClickEvent) Kind() string        { return "notificationclick" }
func (ReleaseEvent) Kind() string      { return "release" }

// Outcome 汇总事件处理结果，只有与事件类型对应的字段会被填充。
type Outcome struct {
	Response     *fetch.Response
	Decision     router.Decision
	Sync         *queue.Result
	Swept        int
	Notification *notify.Notification
	Click        *notify.ClickOutcome
	Manager      *lifecycle.Manager
}
