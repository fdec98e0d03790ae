package websocket

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/auth"
)

// newUpgrader 按 CORS 配置检查来源, 未配置时接受任意来源
func newUpgrader(allowedOrigins []string) gorillaWS.Upgrader {
	return gorillaWS.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(allowedOrigins) == 0 {
				return true
			}
			for _, o := range allowedOrigins {
				if o == "*" || strings.EqualFold(o, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WebSocketHandler 通知推送端点. 浏览器无法设置请求头, 因此 token 通过 query 参数传递;
// validator 为 nil 时信任网关注入的 X-User-ID 请求头.
func WebSocketHandler(hub *Hub, validator *auth.KeycloakTokenValidator, allowedOrigins []string) gin.HandlerFunc {
	upgrader := newUpgrader(allowedOrigins)
	return func(c *gin.Context) {
		// 1. 识别用户
		var userID string
		if validator != nil {
			token := c.Query("token")
			if token == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "missing token"})
				return
			}
			claims, err := validator.ValidateToken(token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "invalid token"})
				return
			}
			userID = claims.Subject
		} else {
			userID = strings.TrimSpace(c.GetHeader(auth.HeaderUserID))
		}
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "unknown user"})
			return
		}

		// 2. 升级连接, 失败时 upgrader 已写入响应
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		// 3. 注册并启动读写协程
		client := NewClient(uuid.New().String(), userID, hub, conn)
		hub.Register <- client
		go client.ReadPump()
		go client.WritePump()
	}
}
