package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/auth"
	"github.com/saurav61091/e-Prabandhan-sub003/internal/metrics"
	"github.com/sirupsen/logrus"
)

// HeaderRequestID 请求 ID 请求头
const HeaderRequestID = "X-Request-ID"

// ContextKeyRequestID gin 上下文中的请求 ID 键
const ContextKeyRequestID = "request_id"

// RequestIDMiddleware 生成或沿用请求 ID, 并把请求来源写入请求 context 供审计日志使用
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, requestID)
		c.Header(HeaderRequestID, requestID)

		ctx := auth.WithRequestMeta(c.Request.Context(), auth.RequestMeta{
			RequestID: requestID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLogMiddleware 请求日志中间件
func RequestLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		// 使用路由模板作为指标标签, 避免路径参数导致标签爆炸
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordAPIRequest(method, route, status, latency.Seconds())

		entry := GetLogger().WithFields(logrus.Fields{
			"request_id": c.GetString(ContextKeyRequestID),
			"user_id":    c.GetString(auth.ContextKeyUserID),
			"method":     method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency":    latency.String(),
			"ip":         c.ClientIP(),
		})

		// 根据状态码选择日志级别
		switch {
		case status >= 500:
			entry.Error("API request")
		case status >= 400:
			entry.Warn("API request")
		default:
			entry.Info("API request")
		}
	}
}
