package notify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Ramsey-USA/mh-website-sub005/internal/control"
)

// Notification actions with built-in routing.
const (
	ActionExplore = "explore"
	ActionClose   = "close"
)

// typeRoutes 将 data.type 映射到站点栏目。
var typeRoutes = map[string]string{
	"project":     "/projects",
	"appointment": "/contact",
	"message":     "/contact",
}

// Displayer 负责把通知呈现给用户。
type Displayer interface {
	Show(ctx context.Context, n Notification) error
	Close(ctx context.Context, id string) error
}

// Pages 是点击路由需要的页面能力，control.Hub 满足该接口。
type Pages interface {
	FindByURL(target string) (control.ClientInfo, bool)
	Focus(id string) error
	OpenWindow(target string) bool
}

// ClickEvent 描述一次通知点击。
type ClickEvent struct {
	NotificationID string `json:"id"`
	Action         string `json:"action"`
	Data           Data   `json:"data"`
}

// ClickOutcome 描述点击的处理结果。
type ClickOutcome struct {
	Result string `json:"result"` // "dismissed", "focused", "opened", "queued"
	URL    string `json:"url,omitempty"`
}

// Relay 处理推送与点击事件。
type Relay struct {
	displayer Displayer
	pages     Pages
	defaults  Defaults
	logger    *logrus.Logger
}

// NewRelay 构造通知中继。
func NewRelay(displayer Displayer, pages Pages, defaults Defaults, logger *logrus.Logger) *Relay {
	return &Relay{displayer: displayer, pages: pages, defaults: defaults, logger: logger}
}

// Push 解析推送并展示通知；格式错误的推送使用默认内容，仍然展示。
func (r *Relay) Push(ctx context.Context, raw []byte) (Notification, error) {
	n, ok := ParsePayload(raw, r.defaults)
	if !ok && r.logger != nil {
		r.logger.WithFields(logrus.Fields{
			"action": "push",
			"bytes":  len(raw),
		}).Warn("invalid_push_payload")
	}
	if err := r.displayer.Show(ctx, n); err != nil {
		return n, fmt.Errorf("show notification: %w", err)
	}
	return n, nil
}

// Click 关闭通知并把用户带到目标页面：已有页面展示该地址时聚焦，否则打开新页面。
func (r *Relay) Click(ctx context.Context, ev ClickEvent) (ClickOutcome, error) {
	if ev.NotificationID != "" {
		if err := r.displayer.Close(ctx, ev.NotificationID); err != nil && r.logger != nil {
			r.logger.WithError(err).WithField("action", "notification_click").Warn("close_notification_failed")
		}
	}

	target, ok := ResolveTarget(ev.Action, ev.Data)
	if !ok {
		return ClickOutcome{Result: "dismissed"}, nil
	}
	if info, found := r.pages.FindByURL(target); found {
		if err := r.pages.Focus(info.ID); err == nil {
			return ClickOutcome{Result: "focused", URL: target}, nil
		}
	}
	if queued := r.pages.OpenWindow(target); queued {
		return ClickOutcome{Result: "queued", URL: target}, nil
	}
	return ClickOutcome{Result: "opened", URL: target}, nil
}

// ResolveTarget 计算点击后的目标地址；close 动作返回 false。
func ResolveTarget(action string, data Data) (string, bool) {
	switch action {
	case ActionClose:
		return "", false
	case ActionExplore:
		return "/dashboard", true
	}
	if data.URL != "" {
		return data.URL, true
	}
	if route, ok := typeRoutes[data.Type]; ok {
		return route, true
	}
	return "/", true
}
