// Package gate 是所有入口共用的凭证校验闸门
// REST 中间件和 WebSocket 握手都走同一条 Validate 路径：
// 先验签名，再查缓存，缓存不可用或未命中时回源会话表
package gate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"nova_chat_server/internal/dao/mysql/repository"
	"nova_chat_server/internal/dao/redis"
	"nova_chat_server/pkg/constants"
	"nova_chat_server/pkg/errorx"
	"nova_chat_server/pkg/util/jwt"

	"go.uber.org/zap"
)

const (
	cacheKeyPrefix = "auth_token:"
	cacheValid     = "valid"
	cacheInvalid   = "invalid"
)

// Service 凭证闸门
type Service struct {
	sessionRepo repository.SessionRepository
	cache       redis.AsyncCacheService
	ttl         time.Duration
	now         func() time.Time // 可注入时钟，测试用
}

func NewService(sessionRepo repository.SessionRepository, cache redis.AsyncCacheService, ttlMinutes int) *Service {
	ttl := constants.SESSION_CACHE_TTL
	if ttlMinutes > 0 {
		ttl = time.Duration(ttlMinutes) * time.Minute
	}
	return &Service{
		sessionRepo: sessionRepo,
		cache:       cache,
		ttl:         ttl,
		now:         time.Now,
	}
}

// HashCredential 计算凭证的 sha256 十六进制摘要
// 缓存键和会话表里都只存摘要，原始凭证不落任何存储
func HashCredential(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// Validate 校验一个凭证，返回其绑定的用户和设备
//
// 分三层：
//  1. 签名/过期校验，失败直接拒绝，不碰缓存和数据库
//  2. 缓存命中 "valid" 快速放行，"invalid" 快速拒绝
//  3. 缓存未命中或缓存故障时回源会话表，并尽力回写缓存
func (s *Service) Validate(ctx context.Context, credential string) (userID, deviceID string, err error) {
	claims, parseErr := jwt.ParseToken(credential)
	if parseErr != nil {
		return "", "", errorx.ErrUnauthorized
	}

	hash := HashCredential(credential)
	key := cacheKeyPrefix + hash

	cached, cacheErr := s.cache.Get(ctx, key)
	if cacheErr == nil {
		switch cached {
		case cacheValid:
			// 异步刷新最近使用时间，不阻塞请求
			s.cache.SubmitTask(func() {
				if err := s.sessionRepo.TouchLastUsed(hash, s.now()); err != nil {
					zap.L().Warn("touch session last_used failed", zap.Error(err))
				}
			})
			return claims.UserID, claims.DeviceID, nil
		case cacheInvalid:
			return "", "", errorx.ErrUnauthorized
		}
		// 未命中，走回源
	} else {
		// 缓存故障降级为每次回源，只记日志
		zap.L().Warn("session cache unavailable, falling back to store", zap.Error(cacheErr))
	}

	session, storeErr := s.sessionRepo.FindActiveByAccessHash(hash, s.now())
	if storeErr != nil {
		if !errorx.IsNotFound(storeErr) {
			return "", "", storeErr
		}
		// 会话不存在或已过期：负缓存，避免被吊销的凭证反复打到数据库
		s.setCache(key, cacheInvalid)
		return "", "", errorx.ErrUnauthorized
	}

	// 会话行必须和凭证声明的主体一致
	if session.UserUuid != claims.UserID || session.DeviceUuid != claims.DeviceID {
		s.setCache(key, cacheInvalid)
		return "", "", errorx.ErrUnauthorized
	}

	s.setCache(key, cacheValid)
	s.cache.SubmitTask(func() {
		if err := s.sessionRepo.TouchLastUsed(hash, s.now()); err != nil {
			zap.L().Warn("touch session last_used failed", zap.Error(err))
		}
	})
	return claims.UserID, claims.DeviceID, nil
}

// Revoke 主动写入失效标记
// 注销/顶替/删设备之后调用，让在途凭证立刻失效而不用等缓存过期
func (s *Service) Revoke(ctx context.Context, hashes ...string) {
	for _, hash := range hashes {
		if err := s.cache.Set(ctx, cacheKeyPrefix+hash, cacheInvalid, s.ttl); err != nil {
			// 缓存写失败时会话行已删，最长一个 TTL 后自然失效
			zap.L().Warn("revoke cache mark failed", zap.String("hash", hash), zap.Error(err))
		}
	}
}

// setCache 尽力回写校验结果，失败只记日志
func (s *Service) setCache(key, value string) {
	s.cache.SubmitTask(func() {
		if err := s.cache.Set(context.Background(), key, value, s.ttl); err != nil {
			zap.L().Warn("session cache write failed", zap.String("key", key), zap.Error(err))
		}
	})
}
