package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// PermissionCache 权限检查结果缓存
type PermissionCache struct {
	cache *sync.Map
	ttl   time.Duration
	now   func() time.Time
}

// cacheEntry 缓存条目
type cacheEntry struct {
	value     bool
	expiresAt time.Time
}

// NewPermissionCache 创建权限缓存
func NewPermissionCache(ttl time.Duration) *PermissionCache {
	return &PermissionCache{
		cache: &sync.Map{},
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get 获取缓存
func (c *PermissionCache) Get(key string) (bool, bool) {
	val, found := c.cache.Load(key)
	if !found {
		return false, false
	}

	entry := val.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.cache.Delete(key)
		return false, false
	}
	return entry.value, true
}

// Set 设置缓存
func (c *PermissionCache) Set(key string, value bool) {
	c.cache.Store(key, &cacheEntry{value: value, expiresAt: c.now().Add(c.ttl)})
}

// Delete 删除单个缓存项
func (c *PermissionCache) Delete(key string) {
	c.cache.Delete(key)
}

// Clear 清空缓存
func (c *PermissionCache) Clear() {
	c.cache.Range(func(key, value interface{}) bool {
		c.cache.Delete(key)
		return true
	})
}

func permissionKey(userID, relation, objectType, objectID string) string {
	return fmt.Sprintf("user:%s:%s:%s:%s", userID, relation, objectType, objectID)
}

// CachedAuthorizer 带缓存的授权器. 写入或删除元组时失效对应的缓存项.
type CachedAuthorizer struct {
	inner Authorizer
	cache *PermissionCache
}

// NewCachedAuthorizer 创建带缓存的授权器
func NewCachedAuthorizer(inner Authorizer, cache *PermissionCache) *CachedAuthorizer {
	return &CachedAuthorizer{inner: inner, cache: cache}
}

// CheckPermission 检查权限(带缓存)
func (c *CachedAuthorizer) CheckPermission(ctx context.Context, userID, relation, objectType, objectID string) (bool, error) {
	key := permissionKey(userID, relation, objectType, objectID)
	if value, found := c.cache.Get(key); found {
		return value, nil
	}

	allowed, err := c.inner.CheckPermission(ctx, userID, relation, objectType, objectID)
	if err != nil {
		return false, err
	}
	c.cache.Set(key, allowed)
	return allowed, nil
}

// SetRelation 写入关系元组
func (c *CachedAuthorizer) SetRelation(ctx context.Context, userID, relation, objectType, objectID string) error {
	if err := c.inner.SetRelation(ctx, userID, relation, objectType, objectID); err != nil {
		return err
	}
	c.cache.Delete(permissionKey(userID, relation, objectType, objectID))
	return nil
}

// DeleteRelation 删除关系元组
func (c *CachedAuthorizer) DeleteRelation(ctx context.Context, userID, relation, objectType, objectID string) error {
	if err := c.inner.DeleteRelation(ctx, userID, relation, objectType, objectID); err != nil {
		return err
	}
	c.cache.Delete(permissionKey(userID, relation, objectType, objectID))
	return nil
}
