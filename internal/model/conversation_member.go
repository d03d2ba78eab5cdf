// Package model 定义数据库实体模型
// 本文件定义会话成员模型
package model

import (
	"database/sql"

	"gorm.io/gorm"
)

// ConversationMember 会话成员模型
// 对应数据库 conversation_member 表
// 已读进度是每个成员自己的状态，不是会话的共享字段
type ConversationMember struct {
	gorm.Model

	// ConversationUuid 会话 UUID
	ConversationUuid string `gorm:"column:conversation_uuid;index;uniqueIndex:idx_conv_user;type:char(20);not null;comment:会话uuid"`

	// UserUuid 成员用户 UUID
	UserUuid string `gorm:"column:user_uuid;index;uniqueIndex:idx_conv_user;type:char(20);not null;comment:成员uuid"`

	// Role 成员角色，0=普通成员, 1=创建者
	Role int8 `gorm:"column:role;not null;comment:角色，0.成员，1.创建者"`

	// LastReadAt 已读进度标记
	// 该成员最后一次确认已读的时间
	LastReadAt sql.NullTime `gorm:"column:last_read_at;type:datetime;comment:已读进度"`
}

// TableName 指定表名
func (ConversationMember) TableName() string {
	return "conversation_member"
}
