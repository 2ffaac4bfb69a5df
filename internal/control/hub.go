// Package control tracks the foreground pages connected to the agent and
// carries the small message protocol exchanged with them. Delivery is best
// effort: every page has a bounded buffer and a full buffer drops the message.
package control

import (
	"errors"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

const defaultBuffer = 16

var (
	// ErrClientNotFound 表示页面已断开或不存在。
	ErrClientNotFound = errors.New("control client not found")
	// ErrBufferFull 表示页面消费过慢，消息被丢弃。
	ErrBufferFull = errors.New("control client buffer full")
)

var connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "offline_agent_control_clients",
	Help: "Number of foreground pages connected to the control channel",
})

// Client 是一个已连接的页面。
type Client struct {
	ID          string
	URL         string
	ConnectedAt time.Time

	ch chan Message
}

// Messages 返回发往该页面的消息流，断开后关闭。
func (c *Client) Messages() <-chan Message {
	return c.ch
}

// ClientInfo 是页面的只读快照。
type ClientInfo struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	ConnectedAt time.Time `json:"connected_at"`
	Controlled  bool      `json:"controlled"`
}

// Hub 管理所有已连接页面。
type Hub struct {
	logger *logrus.Logger
	buffer int

	mu         sync.RWMutex
	clients    map[string]*Client
	controlled map[string]string
	pending    []Message
}

// NewHub 创建控制通道；logger 可以为空。
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		logger:     logger,
		buffer:     defaultBuffer,
		clients:    make(map[string]*Client),
		controlled: make(map[string]string),
	}
}

// Connect 注册页面并把排队中的消息（如 OpenWindow）投递给它。
func (h *Hub) Connect(pageURL string) *Client {
	client := &Client{
		ID:          uuid.NewString(),
		URL:         pageURL,
		ConnectedAt: time.Now().UTC(),
		ch:          make(chan Message, h.buffer),
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	for _, msg := range h.pending {
		_ = h.deliver(client, msg)
	}
	h.pending = nil
	h.mu.Unlock()
	connectedClients.Inc()

	return client
}

// Disconnect 移除页面并关闭其消息流。
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	client, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		delete(h.controlled, id)
	}
	h.mu.Unlock()
	if ok {
		close(client.ch)
		connectedClients.Dec()
	}
}

// Broadcast 向所有页面投递消息，返回成功投递的数量。没有页面时消息直接丢弃。
func (h *Hub) Broadcast(msg Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, client := range h.clients {
		if h.deliver(client, msg) == nil {
			delivered++
		}
	}
	return delivered
}

// Send 向单个页面投递消息。
func (h *Hub) Send(id string, msg Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[id]
	if !ok {
		return ErrClientNotFound
	}
	return h.deliver(client, msg)
}

// Clients 返回按连接时间排序的页面快照。
func (h *Hub) Clients() []ClientInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	result := make([]ClientInfo, 0, len(h.clients))
	for _, client := range h.clients {
		_, controlled := h.controlled[client.ID]
		result = append(result, ClientInfo{
			ID:          client.ID,
			URL:         client.URL,
			ConnectedAt: client.ConnectedAt,
			Controlled:  controlled,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ConnectedAt.Before(result[j].ConnectedAt)
	})
	return result
}

// FindByURL 返回第一个正在展示 target 的页面；target 可以是完整 URL 或同源路径。
func (h *Hub) FindByURL(target string) (ClientInfo, bool) {
	for _, info := range h.Clients() {
		if info.URL == target || pathOf(info.URL) == target {
			return info, true
		}
	}
	return ClientInfo{}, false
}

func pathOf(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Path == "" {
		return raw
	}
	return parsed.Path
}

// Focus 请求页面获取焦点。
func (h *Hub) Focus(id string) error {
	return h.Send(id, Message{Type: TypeFocus})
}

// OpenWindow 请求最早连接的页面打开新窗口；没有页面时排队，等待下一个页面连接。
func (h *Hub) OpenWindow(target string) (queued bool) {
	msg := NewMessage(TypeOpenWindow, map[string]string{"url": target})
	clients := h.Clients()
	for _, info := range clients {
		if h.Send(info.ID, msg) == nil {
			return false
		}
	}
	h.mu.Lock()
	h.pending = append(h.pending, msg)
	h.mu.Unlock()
	return true
}

// Claim 将所有页面标记为受 release 控制并广播 ControllerChange。
func (h *Hub) Claim(release string) int {
	h.mu.Lock()
	for id := range h.clients {
		h.controlled[id] = release
	}
	h.mu.Unlock()
	return h.Broadcast(NewMessage(TypeControllerChange, map[string]string{"release": release}))
}

// deliver 非阻塞写入；缓冲区满时丢弃并记录告警。调用方需持有读锁或独占 client。
func (h *Hub) deliver(client *Client, msg Message) error {
	select {
	case client.ch <- msg:
		return nil
	default:
		if h.logger != nil {
			h.logger.WithFields(logrus.Fields{
				"action":    "control_send",
				"client_id": client.ID,
				"type":      msg.Type,
			}).Warn("control_buffer_full")
		}
		return ErrBufferFull
	}
}
