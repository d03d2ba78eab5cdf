// Package model 定义数据库实体模型
// 本文件定义登录会话模型，是凭证校验的权威数据源
package model

import (
	"database/sql"
	"time"

	"gorm.io/gorm"
)

// UserSession 登录会话模型
// 对应数据库 user_session 表
// 同一 (用户, 设备) 只有最新一行有效：重新登录或刷新会先删除旧行再写新行
// 注意：只存凭证的 SHA-256 摘要，绝不存凭证原文
type UserSession struct {
	gorm.Model

	// UserUuid 所属用户 UUID
	UserUuid string `gorm:"column:user_uuid;index;type:char(20);not null;comment:所属用户uuid"`

	// DeviceUuid 签发给的设备 UUID
	DeviceUuid string `gorm:"column:device_uuid;index;type:char(20);not null;comment:设备uuid"`

	// AccessHash Access Token 的 SHA-256 摘要（hex）
	AccessHash string `gorm:"column:access_hash;uniqueIndex;type:char(64);not null;comment:access token摘要"`

	// RefreshHash Refresh Token 的 SHA-256 摘要（hex）
	RefreshHash string `gorm:"column:refresh_hash;index;type:char(64);not null;comment:refresh token摘要"`

	// ExpiresAt Access Token 过期时间
	ExpiresAt time.Time `gorm:"column:expires_at;not null;comment:access过期时间"`

	// RefreshExpiresAt Refresh Token 过期时间
	RefreshExpiresAt time.Time `gorm:"column:refresh_expires_at;not null;comment:refresh过期时间"`

	// LastUsedAt 凭证最近一次通过校验的时间
	LastUsedAt sql.NullTime `gorm:"column:last_used_at;type:datetime;comment:最近使用时间"`
}

// TableName 指定表名
func (UserSession) TableName() string {
	return "user_session"
}
