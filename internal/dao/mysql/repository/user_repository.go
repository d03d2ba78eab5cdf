// Package repository 提供数据访问层的具体实现
// 本文件实现 UserRepository 接口
package repository

import (
	"time"

	"nova_chat_server/internal/model"

	"gorm.io/gorm"
)

// userRepository UserRepository 接口的实现
type userRepository struct {
	db *gorm.DB
}

func newUserRepository(db *gorm.DB) *userRepository {
	return &userRepository{db: db}
}

// Create 创建用户
func (r *userRepository) Create(user *model.UserInfo) error {
	if err := r.db.Create(user).Error; err != nil {
		return wrapDBError(err, "创建用户")
	}
	return nil
}

// FindByUuid 根据 UUID 查找用户
func (r *userRepository) FindByUuid(uuid string) (*model.UserInfo, error) {
	var user model.UserInfo
	if err := r.db.Where("uuid = ?", uuid).First(&user).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询用户 uuid=%s", uuid)
	}
	return &user, nil
}

// FindByTelephone 根据手机号查找用户
func (r *userRepository) FindByTelephone(telephone string) (*model.UserInfo, error) {
	var user model.UserInfo
	if err := r.db.Where("telephone = ?", telephone).First(&user).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询用户 telephone=%s", telephone)
	}
	return &user, nil
}

// ExistsByUuid 判断用户是否存在
func (r *userRepository) ExistsByUuid(uuid string) (bool, error) {
	var count int64
	if err := r.db.Model(&model.UserInfo{}).Where("uuid = ?", uuid).Count(&count).Error; err != nil {
		return false, wrapDBErrorf(err, "查询用户是否存在 uuid=%s", uuid)
	}
	return count > 0, nil
}

// UpdateLastOnline 更新上次上线时间
func (r *userRepository) UpdateLastOnline(uuid string, t time.Time) error {
	if err := r.db.Model(&model.UserInfo{}).Where("uuid = ?", uuid).Update("last_online_at", t).Error; err != nil {
		return wrapDBErrorf(err, "更新上线时间 uuid=%s", uuid)
	}
	return nil
}

// UpdateLastOffline 更新最近离线时间
func (r *userRepository) UpdateLastOffline(uuid string, t time.Time) error {
	if err := r.db.Model(&model.UserInfo{}).Where("uuid = ?", uuid).Update("last_offline_at", t).Error; err != nil {
		return wrapDBErrorf(err, "更新离线时间 uuid=%s", uuid)
	}
	return nil
}
