package auth

import (
	"context"
)

// SystemActor is recorded as the actor of background operations such as the SLA sweep.
const SystemActor = "system"

// gin 上下文中的用户信息键
const (
	ContextKeyUserID   = "user_id"
	ContextKeyUsername = "username"
	ContextKeyEmail    = "email"
	ContextKeyRoles    = "roles"
)

type contextKey int

const (
	actorKey contextKey = iota
	requestMetaKey
)

// RequestMeta 请求来源信息, 写入审计日志
type RequestMeta struct {
	RequestID string
	IP        string
	UserAgent string
}

// WithActor 在 context 中记录当前操作人
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey, userID)
}

// ActorFrom 返回 context 中的操作人, 未设置时返回空字符串
func ActorFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if id, ok := ctx.Value(actorKey).(string); ok {
		return id
	}
	return ""
}

// WithRequestMeta 在 context 中记录请求来源
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey, meta)
}

// RequestMetaFrom 返回 context 中的请求来源
func RequestMetaFrom(ctx context.Context) RequestMeta {
	if ctx == nil {
		return RequestMeta{}
	}
	meta, _ := ctx.Value(requestMetaKey).(RequestMeta)
	return meta
}
