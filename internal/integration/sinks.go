package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/service"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/websocket"
	"github.com/sirupsen/logrus"
)

// WebhookSink 通过 HTTP 推送通知. 配置了 URL 时推送全部事件;
// 模板中 webhook 动作产生的事件推送到动作自己的 URL.
type WebhookSink struct {
	url        string
	httpClient *http.Client
	attempts   int
	backoff    time.Duration
}

// NewWebhookSink 创建 Webhook 通道, url 为空时只处理 webhook 动作
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSink{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		attempts:   3,
		backoff:    time.Second,
	}
}

// WithRetry 设置单次投递内的重试次数和初始退避时间
func (s *WebhookSink) WithRetry(attempts int, backoff time.Duration) *WebhookSink {
	if attempts > 0 {
		s.attempts = attempts
	}
	s.backoff = backoff
	return s
}

// Name 通道名称
func (s *WebhookSink) Name() string { return "webhook" }

// Deliver 推送通知
func (s *WebhookSink) Deliver(ctx context.Context, msg *Message) error {
	url, method := s.url, http.MethodPost
	var body interface{} = msg
	if msg.Event == service.EventActionWebhook {
		url, _ = msg.Payload["url"].(string)
		if m, ok := msg.Payload["method"].(string); ok && m != "" {
			method = strings.ToUpper(m)
		}
		body = map[string]interface{}{
			"event":      msg.Event,
			"documentId": msg.DocumentID,
			"stepKey":    msg.StepKey,
			"data":       msg.Payload["data"],
		}
		if url == "" {
			return fmt.Errorf("webhook action without url")
		}
	}
	if url == "" {
		return nil
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	// 指数退避重试
	backoff := s.backoff
	var lastErr error
	for i := 0; i < s.attempts; i++ {
		if lastErr = s.send(ctx, method, url, data, msg); lastErr == nil {
			return nil
		}
		if i < s.attempts-1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}
	return lastErr
}

func (s *WebhookSink) send(ctx context.Context, method, url string, data []byte, msg *Message) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event", msg.Event)
	req.Header.Set("X-Notification-ID", msg.ID)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status code: %d", resp.StatusCode)
	}
	return nil
}

// NATSSink 将通知发布到 NATS, 主题为 <subject>.<event>
type NATSSink struct {
	conn    *nats.Conn
	subject string
}

// ConnectNATS 连接 NATS 并创建通道
func ConnectNATS(url, subject string) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("e-prabandhan-approvals"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logrus.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logrus.WithField("url", c.ConnectedUrl()).Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewNATSSink(conn, subject), nil
}

// NewNATSSink 使用已有连接创建通道
func NewNATSSink(conn *nats.Conn, subject string) *NATSSink {
	if subject == "" {
		subject = "approvals.notifications"
	}
	return &NATSSink{conn: conn, subject: subject}
}

// Name 通道名称
func (s *NATSSink) Name() string { return "nats" }

// Deliver 发布通知
func (s *NATSSink) Deliver(_ context.Context, msg *Message) error {
	if msg.Event == service.EventActionWebhook {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := s.conn.Publish(s.subject+"."+msg.Event, data); err != nil {
		return fmt.Errorf("failed to publish to NATS: %w", err)
	}
	return nil
}

// Close 刷新并关闭连接
func (s *NATSSink) Close() {
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
	}
}

// CheckHealth 报告 NATS 连接状态
func (s *NATSSink) CheckHealth(context.Context) bool {
	return s.conn.IsConnected()
}

// HubSink 推送给在线用户的 WebSocket 连接. 接收人离线不算失败.
type HubSink struct {
	hub *websocket.Hub
}

// NewHubSink 创建 WebSocket 通道
func NewHubSink(hub *websocket.Hub) *HubSink {
	return &HubSink{hub: hub}
}

// Name 通道名称
func (s *HubSink) Name() string { return "websocket" }

// Deliver 推送给每个在线接收人
func (s *HubSink) Deliver(_ context.Context, msg *Message) error {
	if msg.Event == service.EventActionWebhook || len(msg.Recipients) == 0 {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	for _, userID := range msg.Recipients {
		s.hub.SendToUser(userID, data)
	}
	return nil
}
