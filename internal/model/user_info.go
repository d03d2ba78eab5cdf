// Package model 定义数据库实体模型
// 本文件定义用户信息模型，包含用户基本资料和认证信息
package model

import (
	"database/sql"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserInfo 用户信息模型
// 对应数据库 user_info 表
type UserInfo struct {
	gorm.Model // 内嵌 GORM 模型，包含 ID、CreatedAt、UpdatedAt、DeletedAt

	// Uuid 用户唯一标识
	// 格式：U + 13位时间戳随机字符串，如 "U2024010412345678"
	Uuid string `gorm:"column:uuid;uniqueIndex;type:char(20);comment:用户唯一id"`

	// Nickname 用户昵称
	Nickname string `gorm:"column:nickname;type:varchar(20);not null;comment:昵称"`

	// Telephone 手机号码，用于登录验证
	Telephone string `gorm:"column:telephone;index;not null;type:char(11);comment:电话"`

	// Email 邮箱地址（可选）
	Email string `gorm:"column:email;type:char(30);comment:邮箱"`

	// Avatar 用户头像 URL
	Avatar string `gorm:"column:avatar;type:char(255);default:default_avatar.png;not null;comment:头像"`

	// Password 密码（已哈希）
	// 存储 bcrypt 哈希后的密码，不存储明文
	Password string `gorm:"column:password;type:varchar(100);not null;comment:密码"`

	// LastOnlineAt 上次上线时间
	LastOnlineAt sql.NullTime `gorm:"column:last_online_at;type:datetime;comment:上次上线时间"`

	// LastOfflineAt 最近离线时间
	// 由连接网关在最后一条连接断开时尽力写入
	LastOfflineAt sql.NullTime `gorm:"column:last_offline_at;type:datetime;comment:最近离线时间"`

	// IsAdmin 管理员标志，0=普通用户, 1=管理员
	IsAdmin int8 `gorm:"column:is_admin;not null;comment:是否是管理员，0.不是，1.是"`

	// Status 账号状态，0=正常, 1=禁用
	Status int8 `gorm:"column:status;index;not null;comment:状态，0.正常，1.禁用"`

	// RawPassword 明文密码（不存入数据库）
	// 用于接收前端传来的明文密码，在 BeforeSave 中加密
	RawPassword string `gorm:"-" json:"-"`
}

// TableName 指定表名
func (UserInfo) TableName() string {
	return "user_info"
}

// BeforeSave GORM Hook：在创建和更新前自动调用
// 将 RawPassword 明文密码加密后存入 Password 字段
func (u *UserInfo) BeforeSave(tx *gorm.DB) (err error) {
	if u.RawPassword != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.RawPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		u.Password = string(hash)
		u.RawPassword = "" // 清空明文，防止泄露
	}
	return nil
}

// CheckPassword 校验密码是否正确
// plaintext: 用户输入的明文密码
func (u *UserInfo) CheckPassword(plaintext string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(plaintext))
	return err == nil
}
