// Package repository 提供数据访问层的具体实现
// 本文件实现 SessionRepository 接口，处理登录会话行的读写
// 它是凭证校验缓存未命中时的权威回源
package repository

import (
	"time"

	"nova_chat_server/internal/model"

	"gorm.io/gorm"
)

// sessionRepository SessionRepository 接口的实现
type sessionRepository struct {
	db *gorm.DB
}

func newSessionRepository(db *gorm.DB) *sessionRepository {
	return &sessionRepository{db: db}
}

// Create 写入新会话行
func (r *sessionRepository) Create(session *model.UserSession) error {
	if err := r.db.Create(session).Error; err != nil {
		return wrapDBError(err, "创建登录会话")
	}
	return nil
}

// FindActiveByAccessHash 按 access 摘要查找未过期的会话行
func (r *sessionRepository) FindActiveByAccessHash(hash string, now time.Time) (*model.UserSession, error) {
	var session model.UserSession
	if err := r.db.Where("access_hash = ? AND expires_at > ?", hash, now).First(&session).Error; err != nil {
		return nil, wrapDBError(err, "查询登录会话(access)")
	}
	return &session, nil
}

// FindActiveByRefreshHash 按 refresh 摘要查找未过期的会话行
func (r *sessionRepository) FindActiveByRefreshHash(hash string, now time.Time) (*model.UserSession, error) {
	var session model.UserSession
	if err := r.db.Where("refresh_hash = ? AND refresh_expires_at > ?", hash, now).First(&session).Error; err != nil {
		return nil, wrapDBError(err, "查询登录会话(refresh)")
	}
	return &session, nil
}

// FindByUser 查找用户的全部会话行
func (r *sessionRepository) FindByUser(userUuid string) ([]model.UserSession, error) {
	var sessions []model.UserSession
	if err := r.db.Where("user_uuid = ?", userUuid).Find(&sessions).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话列表 user_uuid=%s", userUuid)
	}
	return sessions, nil
}

// FindByUserAndDevice 查找某台设备的会话行
func (r *sessionRepository) FindByUserAndDevice(userUuid, deviceUuid string) ([]model.UserSession, error) {
	var sessions []model.UserSession
	if err := r.db.Where("user_uuid = ? AND device_uuid = ?", userUuid, deviceUuid).Find(&sessions).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询设备会话 user_uuid=%s device_uuid=%s", userUuid, deviceUuid)
	}
	return sessions, nil
}

// DeleteByUserAndDevice 删除某台设备的全部会话行
func (r *sessionRepository) DeleteByUserAndDevice(userUuid, deviceUuid string) error {
	if err := r.db.Unscoped().Where("user_uuid = ? AND device_uuid = ?", userUuid, deviceUuid).Delete(&model.UserSession{}).Error; err != nil {
		return wrapDBErrorf(err, "删除设备会话 user_uuid=%s device_uuid=%s", userUuid, deviceUuid)
	}
	return nil
}

// DeleteByUser 删除用户的全部会话行
func (r *sessionRepository) DeleteByUser(userUuid string) error {
	if err := r.db.Unscoped().Where("user_uuid = ?", userUuid).Delete(&model.UserSession{}).Error; err != nil {
		return wrapDBErrorf(err, "删除用户会话 user_uuid=%s", userUuid)
	}
	return nil
}

// TouchLastUsed 更新凭证最近使用时间
func (r *sessionRepository) TouchLastUsed(hash string, t time.Time) error {
	if err := r.db.Model(&model.UserSession{}).Where("access_hash = ?", hash).Update("last_used_at", t).Error; err != nil {
		return wrapDBError(err, "更新会话使用时间")
	}
	return nil
}
