// Package notify turns server-pushed payloads into user-visible
// notifications and routes notification clicks back to an open page.
package notify

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/Ramsey-USA/mh-website-sub005/internal/config"
)

// Action 是通知上的按钮。
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Data 是通知携带的业务数据；url/type 用于点击路由，其余字段原样保留。
type Data struct {
	URL   string         `json:"url,omitempty"`
	Type  string         `json:"type,omitempty"`
	Extra map[string]any `json:"extra,omitempty"`
}

// Notification 是展示给用户的通知，不做持久化。
type Notification struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	Icon               string   `json:"icon,omitempty"`
	Badge              string   `json:"badge,omitempty"`
	Tag                string   `json:"tag,omitempty"`
	Data               Data     `json:"data"`
	RequireInteraction bool     `json:"requireInteraction"`
	Vibrate            []int    `json:"vibrate,omitempty"`
	Silent             bool     `json:"silent"`
	Actions            []Action `json:"actions,omitempty"`
}

// Defaults 是合并进每条通知的默认展示参数。
type Defaults struct {
	Title   string
	Body    string
	Icon    string
	Badge   string
	Vibrate []int
	Actions []Action
}

// DefaultsFromConfig 由 [Push] 配置构造默认值。
func DefaultsFromConfig(cfg config.PushConfig) Defaults {
	return Defaults{
		Title:   cfg.DefaultTitle,
		Body:    cfg.DefaultBody,
		Icon:    cfg.DefaultIcon,
		Badge:   cfg.DefaultBadge,
		Vibrate: []int{200, 100, 200},
		Actions: []Action{
			{Action: ActionExplore, Title: "View Details", Icon: "/icons/action-explore.png"},
			{Action: ActionClose, Title: "Close", Icon: "/icons/action-close.png"},
		},
	}
}

// payload 对应推送 JSON；指针字段用于区分“未提供”与零值。
type payload struct {
	Title              string          `json:"title"`
	Body               string          `json:"body"`
	Icon               string          `json:"icon"`
	Badge              string          `json:"badge"`
	Tag                string          `json:"tag"`
	Data               json.RawMessage `json:"data"`
	RequireInteraction *bool           `json:"requireInteraction"`
	Vibrate            []int           `json:"vibrate"`
	Silent             *bool           `json:"silent"`
	Actions            []Action        `json:"actions"`
}

// ParsePayload 解析推送内容并合并默认值。无法解析的内容不会报错，直接使用默认标题与正文。
func ParsePayload(raw []byte, d Defaults) (Notification, bool) {
	n := Notification{
		ID:      uuid.NewString(),
		Title:   d.Title,
		Body:    d.Body,
		Icon:    d.Icon,
		Badge:   d.Badge,
		Vibrate: append([]int(nil), d.Vibrate...),
		Actions: append([]Action(nil), d.Actions...),
	}

	var p payload
	if len(strings.TrimSpace(string(raw))) == 0 {
		return n, true
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return n, false
	}

	if p.Title != "" {
		n.Title = p.Title
	}
	if p.Body != "" {
		n.Body = p.Body
	}
	if p.Icon != "" {
		n.Icon = p.Icon
	}
	if p.Badge != "" {
		n.Badge = p.Badge
	}
	n.Tag = p.Tag
	if p.RequireInteraction != nil {
		n.RequireInteraction = *p.RequireInteraction
	}
	if p.Silent != nil {
		n.Silent = *p.Silent
	}
	if len(p.Vibrate) > 0 {
		n.Vibrate = p.Vibrate
	}
	if p.Actions != nil {
		n.Actions = p.Actions
	}
	n.Data = parseData(p.Data)
	return n, true
}

func parseData(raw json.RawMessage) Data {
	if len(raw) == 0 {
		return Data{}
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Data{}
	}
	var d Data
	if v, ok := fields["url"].(string); ok {
		d.URL = v
		delete(fields, "url")
	}
	if v, ok := fields["type"].(string); ok {
		d.Type = v
		delete(fields, "type")
	}
	if len(fields) > 0 {
		d.Extra = fields
	}
	return d
}
