package notify

import (
	"context"

	"github.com/Ramsey-USA/mh-website-sub005/internal/control"
)

// Broadcaster 是 HubDisplayer 依赖的广播能力。
type Broadcaster interface {
	Broadcast(msg control.Message) int
}

// HubDisplayer 通过控制通道让前台页面渲染通知。没有页面连接时通知被丢弃。
type HubDisplayer struct {
	hub Broadcaster
}

func NewHubDisplayer(hub Broadcaster) *HubDisplayer {
	return &HubDisplayer{hub: hub}
}

func (d *HubDisplayer) Show(_ context.Context, n Notification) error {
	d.hub.Broadcast(control.NewMessage(control.TypeShowNotification, n))
	return nil
}

func (d *HubDisplayer) Close(_ context.Context, id string) error {
	d.hub.Broadcast(control.NewMessage(control.TypeCloseNotification, map[string]string{"id": id}))
	return nil
}
