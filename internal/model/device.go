// Package model 定义数据库实体模型
// 本文件定义设备模型，一个用户可以同时持有多台登录设备
package model

import (
	"database/sql"

	"gorm.io/gorm"
)

// Device 设备模型
// 对应数据库 device 表
// 设备是凭证签发的单位：每台设备持有独立的会话凭证，可独立注销
type Device struct {
	gorm.Model

	// Uuid 设备唯一标识，格式：D + 13位时间戳随机字符串
	Uuid string `gorm:"column:uuid;uniqueIndex;type:char(20);comment:设备唯一id"`

	// UserUuid 所属用户 UUID
	UserUuid string `gorm:"column:user_uuid;index;type:char(20);not null;comment:所属用户uuid"`

	// Name 设备名称，如 "iPhone 15"、"Chrome on macOS"
	Name string `gorm:"column:name;type:varchar(50);comment:设备名称"`

	// Platform 平台标识，如 "ios"、"android"、"web"
	Platform string `gorm:"column:platform;type:char(20);comment:平台"`

	// LastSeenAt 最近活跃时间
	LastSeenAt sql.NullTime `gorm:"column:last_seen_at;type:datetime;comment:最近活跃时间"`
}

// TableName 指定表名
func (Device) TableName() string {
	return "device"
}
