// Package redis 定义缓存服务接口
// 遵循依赖倒置原则，Service 层依赖此接口而非具体 Redis 实现
// 缓存整体是尽力而为的：所有调用方都必须有回源路径，缓存故障不得上升为用户可见错误
package redis

import (
	"context"
	"time"
)

// CacheService 缓存服务接口
// 抽象缓存操作，支持 Redis、本地内存等多种实现
type CacheService interface {
	// ==================== String 操作 ====================

	// Set 设置键值对并指定过期时间
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// Get 获取键对应的值（键不存在返回空字符串和 nil）
	Get(ctx context.Context, key string) (string, error)
	// GetOrError 获取键对应的值（键不存在返回错误）
	GetOrError(ctx context.Context, key string) (string, error)
	// MGet 批量获取多个键的值，键不存在时对应位置为空字符串
	// 在线状态的批量查询走这里，一次往返取回全部标记
	MGet(ctx context.Context, keys ...string) ([]string, error)

	// ==================== Key 操作 ====================

	// Delete 删除键（如果存在）
	Delete(ctx context.Context, key string) error
}

// AsyncCacheService 异步缓存服务接口
// 提供异步任务提交能力，用于非阻塞缓存更新
type AsyncCacheService interface {
	CacheService
	// SubmitTask 提交异步缓存任务
	SubmitTask(action func())
}
