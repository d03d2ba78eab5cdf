// Package model 定义数据库实体模型
// 本文件定义会话模型，会话是消息归属的单位
package model

import (
	"database/sql"

	"gorm.io/gorm"
)

// 会话类型
const (
	ConversationDirect int8 = iota // 单聊
	ConversationGroup              // 群聊
)

// Conversation 会话模型
// 对应数据库 conversation 表
type Conversation struct {
	gorm.Model

	// Uuid 会话唯一标识，格式：C + 13位时间戳随机字符串
	Uuid string `gorm:"column:uuid;uniqueIndex;type:char(20);comment:会话uuid"`

	// Type 会话类型，0=单聊, 1=群聊
	Type int8 `gorm:"column:type;not null;comment:类型，0.单聊，1.群聊"`

	// PairKey 单聊去重键
	// 取两个成员 UUID 按字典序拼成 "小:大"，加唯一索引
	// 两个并发的首次发消息请求靠它收敛到同一个会话：后创建的一方撞唯一索引后回读赢家
	PairKey sql.NullString `gorm:"column:pair_key;uniqueIndex;type:char(41);comment:单聊去重键"`

	// Name 会话名称（群聊用，单聊留空由前端取对方昵称）
	Name string `gorm:"column:name;type:varchar(30);comment:会话名称"`

	// LastMessage 最新消息摘要（密文场景下仅存类型提示）
	LastMessage string `gorm:"column:last_message;type:varchar(100);comment:最新的消息"`

	// LastMessageAt 最后活动时间
	// 与消息落库处于同一事务，用于会话列表排序
	LastMessageAt sql.NullTime `gorm:"column:last_message_at;type:datetime;comment:最近活动时间"`
}

// TableName 指定表名
func (Conversation) TableName() string {
	return "conversation"
}

// DirectPairKey 计算两个用户之间单聊会话的去重键
func DirectPairKey(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + ":" + userB
}
