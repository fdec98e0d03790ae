package websocket

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Hub 管理在线用户的 WebSocket 连接, 按用户 ID 投递通知
type Hub struct {
	// 用户 ID -> 该用户的连接
	clients map[string]map[*Client]struct{}

	// Register 注册新客户端
	Register chan *Client

	// Unregister 注销客户端
	Unregister chan *Client

	mu sync.RWMutex
}

// NewHub 创建新的 Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Run 处理注册和注销, ctx 结束时关闭全部连接
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			conns, ok := h.clients[client.UserID]
			if !ok {
				conns = make(map[*Client]struct{})
				h.clients[client.UserID] = conns
			}
			conns[client] = struct{}{}
			h.mu.Unlock()
			logrus.WithFields(logrus.Fields{"client_id": client.ID, "user_id": client.UserID}).Debug("WebSocket client registered")

		case client := <-h.Unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for _, conns := range h.clients {
				for client := range conns {
					h.remove(client)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// remove 删除客户端并关闭发送通道, 调用方持有写锁
func (h *Hub) remove(client *Client) {
	conns, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}
	delete(conns, client)
	close(client.Send)
	if len(conns) == 0 {
		delete(h.clients, client.UserID)
	}
}

// SendToUser 向用户的全部连接推送消息, 返回送达的连接数.
// 发送缓冲已满的连接被视为失效并断开.
func (h *Hub) SendToUser(userID string, message []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for client := range h.clients[userID] {
		select {
		case client.Send <- message:
			delivered++
		default:
			logrus.WithField("client_id", client.ID).Warn("WebSocket client too slow, disconnecting")
			h.remove(client)
		}
	}
	return delivered
}

// IsOnline 检查用户是否有在线连接
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// GetClientCount 获取连接数量
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, conns := range h.clients {
		n += len(conns)
	}
	return n
}
