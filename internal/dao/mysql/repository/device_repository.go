// Package repository 提供数据访问层的具体实现
// 本文件实现 DeviceRepository 接口
package repository

import (
	"time"

	"nova_chat_server/internal/model"

	"gorm.io/gorm"
)

// deviceRepository DeviceRepository 接口的实现
type deviceRepository struct {
	db *gorm.DB
}

func newDeviceRepository(db *gorm.DB) *deviceRepository {
	return &deviceRepository{db: db}
}

// Create 创建设备
func (r *deviceRepository) Create(device *model.Device) error {
	if err := r.db.Create(device).Error; err != nil {
		return wrapDBError(err, "创建设备")
	}
	return nil
}

// FindByUuid 根据设备 UUID 查找
func (r *deviceRepository) FindByUuid(uuid string) (*model.Device, error) {
	var device model.Device
	if err := r.db.Where("uuid = ?", uuid).First(&device).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询设备 uuid=%s", uuid)
	}
	return &device, nil
}

// FindByUser 查找用户的所有设备
func (r *deviceRepository) FindByUser(userUuid string) ([]model.Device, error) {
	var devices []model.Device
	if err := r.db.Where("user_uuid = ?", userUuid).Find(&devices).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询设备列表 user_uuid=%s", userUuid)
	}
	return devices, nil
}

// TouchLastSeen 更新设备最近活跃时间
func (r *deviceRepository) TouchLastSeen(uuid string, t time.Time) error {
	if err := r.db.Model(&model.Device{}).Where("uuid = ?", uuid).Update("last_seen_at", t).Error; err != nil {
		return wrapDBErrorf(err, "更新设备活跃时间 uuid=%s", uuid)
	}
	return nil
}

// Delete 删除设备
func (r *deviceRepository) Delete(uuid string) error {
	if err := r.db.Where("uuid = ?", uuid).Delete(&model.Device{}).Error; err != nil {
		return wrapDBErrorf(err, "删除设备 uuid=%s", uuid)
	}
	return nil
}
