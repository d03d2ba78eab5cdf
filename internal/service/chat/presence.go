package chat

import (
	"context"
	"encoding/json"
	"time"

	"nova_chat_server/internal/dao/mysql/repository"
	"nova_chat_server/internal/dao/redis"
	"nova_chat_server/internal/dto/respond"
	"nova_chat_server/pkg/constants"

	"go.uber.org/zap"
)

const presenceKeyPrefix = "presence:"

// presenceMark 在线状态标记，JSON 存入缓存并带 TTL
// 进程崩溃来不及清理时，标记到期自动呈现为离线
type presenceMark struct {
	Status   string `json:"status"` // online / offline
	LastSeen string `json:"last_seen,omitempty"`
	ConnID   string `json:"conn_id,omitempty"`
}

// PresenceService 在线状态发布器
type PresenceService struct {
	cache    redis.AsyncCacheService
	registry *Registry
	userRepo repository.UserRepository
	ttl      time.Duration
	now      func() time.Time
}

func NewPresenceService(cache redis.AsyncCacheService, registry *Registry, userRepo repository.UserRepository, ttlMinutes int) *PresenceService {
	ttl := constants.PRESENCE_TTL
	if ttlMinutes > 0 {
		ttl = time.Duration(ttlMinutes) * time.Minute
	}
	return &PresenceService{
		cache:    cache,
		registry: registry,
		userRepo: userRepo,
		ttl:      ttl,
		now:      time.Now,
	}
}

// PublishOnline 用户第一条连接建立时调用
func (p *PresenceService) PublishOnline(ctx context.Context, userUuid, connID string) {
	now := p.now()
	p.registry.BroadcastAll(userUuid, mustMarshalEvent(EventUserOnline, PresencePayload{
		UserUuid: userUuid,
		At:       now.Format(time.DateTime),
	}))
	p.setMark(ctx, userUuid, presenceMark{Status: "online", ConnID: connID})
	p.cache.SubmitTask(func() {
		if err := p.userRepo.UpdateLastOnline(userUuid, now); err != nil {
			zap.L().Warn("persist last_online failed", zap.String("user", userUuid), zap.Error(err))
		}
	})
}

// PublishOffline 用户最后一条连接断开时调用
// 先广播再持久化：广播必须发出，落库只是尽力而为
func (p *PresenceService) PublishOffline(ctx context.Context, userUuid string) {
	now := p.now()
	p.registry.BroadcastAll(userUuid, mustMarshalEvent(EventUserOffline, PresencePayload{
		UserUuid: userUuid,
		At:       now.Format(time.DateTime),
	}))
	p.setMark(ctx, userUuid, presenceMark{Status: "offline", LastSeen: now.Format(time.DateTime)})
	p.cache.SubmitTask(func() {
		if err := p.userRepo.UpdateLastOffline(userUuid, now); err != nil {
			zap.L().Warn("persist last_offline failed", zap.String("user", userUuid), zap.Error(err))
		}
	})
}

// QueryBatch 批量查询在线状态
// 一次 MGet 取回全部标记；缓存不可用时退化为只看本进程注册表
func (p *PresenceService) QueryBatch(ctx context.Context, userUuids []string) []respond.PresenceRespond {
	keys := make([]string, len(userUuids))
	for i, uid := range userUuids {
		keys[i] = presenceKeyPrefix + uid
	}

	values, err := p.cache.MGet(ctx, keys...)
	if err != nil {
		zap.L().Warn("presence mget failed, falling back to registry", zap.Error(err))
		values = nil
	}

	result := make([]respond.PresenceRespond, len(userUuids))
	for i, uid := range userUuids {
		item := respond.PresenceRespond{UserUuid: uid, Status: "offline"}
		if values != nil && values[i] != "" {
			var mark presenceMark
			if jsonErr := json.Unmarshal([]byte(values[i]), &mark); jsonErr == nil {
				item.Status = mark.Status
				item.LastSeen = mark.LastSeen
			}
		} else if p.registry.HasConnections(uid) {
			item.Status = "online"
		}
		result[i] = item
	}
	return result
}

func (p *PresenceService) setMark(ctx context.Context, userUuid string, mark presenceMark) {
	data, err := json.Marshal(mark)
	if err != nil {
		return
	}
	if err := p.cache.Set(ctx, presenceKeyPrefix+userUuid, string(data), p.ttl); err != nil {
		zap.L().Warn("presence mark write failed", zap.String("user", userUuid), zap.Error(err))
	}
}
