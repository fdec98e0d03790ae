package websocket_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/auth"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*websocket.Hub, *httptest.Server) {
	gin.SetMode(gin.TestMode)
	hub := websocket.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/ws", websocket.WebSocketHandler(hub, nil, nil))
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, userID string) *gorillaWS.Conn {
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	header := http.Header{}
	header.Set(auth.HeaderUserID, userID)
	conn, _, err := gorillaWS.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// TestHub_SendToUser 测试通知只推送给目标用户
func TestHub_SendToUser(t *testing.T) {
	hub, server := startHub(t)
	alice := dial(t, server, "alice")
	bob := dial(t, server, "bob")

	require.Eventually(t, func() bool { return hub.GetClientCount() == 2 }, time.Second, 10*time.Millisecond)
	assert.True(t, hub.IsOnline("alice"))
	assert.False(t, hub.IsOnline("carol"))

	assert.Equal(t, 1, hub.SendToUser("alice", []byte(`{"event":"step.assigned"}`)))
	assert.Equal(t, 0, hub.SendToUser("carol", []byte(`{}`)))

	alice.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := alice.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"step.assigned"}`, string(msg))

	bob.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = bob.ReadMessage()
	assert.Error(t, err, "bob must not receive alice's notification")
}

// TestHub_Unregister 测试连接关闭后注销
func TestHub_Unregister(t *testing.T) {
	hub, server := startHub(t)
	conn := dial(t, server, "alice")
	require.Eventually(t, func() bool { return hub.IsOnline("alice") }, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, time.Second, 10*time.Millisecond)
}

// TestWebSocketHandler_RequiresUser 测试缺少用户身份时拒绝连接
func TestWebSocketHandler_RequiresUser(t *testing.T) {
	_, server := startHub(t)
	resp, err := http.Get(server.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
