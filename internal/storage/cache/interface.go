package cache

import (
	"context"
	"time"
)

// Store 缓存存储接口；Get 未命中（或已过期）时返回 errors.ErrNotFound
type Store interface {
	// Set 设置缓存，expiration<=0 表示不过期
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	// Get 获取缓存并反序列化到 dest
	Get(ctx context.Context, key string, dest interface{}) error
	// Delete 删除缓存，key 不存在时不报错
	Delete(ctx context.Context, key string) error
	// Close 关闭缓存连接
	Close() error
}
