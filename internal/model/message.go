// Package model 定义数据库实体模型
// 本文件定义消息模型，用于存储聊天消息
package model

import (
	"database/sql"

	"gorm.io/gorm"
)

// Message 消息模型
// 对应数据库 message 表
// 服务端不解读 Content：端到端加密下它只是一段不透明密文，服务端只管投递元数据
type Message struct {
	gorm.Model

	// Uuid 消息唯一标识
	// 使用雪花算法生成的 int64 类型 ID
	Uuid int64 `gorm:"column:uuid;uniqueIndex;type:bigint;not null;comment:消息雪花ID"`

	// ConversationUuid 所属会话 UUID
	ConversationUuid string `gorm:"column:conversation_uuid;index;type:char(20);not null;comment:会话uuid"`

	// SendId 发送者 UUID
	SendId string `gorm:"column:send_id;index;type:char(20);not null;comment:发送者uuid"`

	// Type 消息类型
	// 0=文本，1=语音，2=文件，3=信令
	// 参见 pkg/enum/message/message_type_enum
	Type int8 `gorm:"column:type;not null;comment:消息类型，0.文本，1.语音，2.文件，3.信令"`

	// Content 消息内容（密文）
	Content string `gorm:"column:content;type:TEXT;comment:消息内容"`

	// ReplyTo 被回复消息的雪花 ID，0 表示非回复
	ReplyTo int64 `gorm:"column:reply_to;type:bigint;comment:回复的消息id"`

	// Status 投递状态
	// 0=已发送，1=已送达，2=已读，只允许单向推进
	// 参见 pkg/enum/message/message_status_enum
	Status int8 `gorm:"column:status;index;not null;comment:状态，0.已发送，1.已送达，2.已读"`

	// SendAt 实际发送时间
	SendAt sql.NullTime `gorm:"column:send_at;comment:发送时间"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "message"
}

// MessageHide 消息的"对我删除"状态
// 对应数据库 message_hide 表
// 按参与者记录：一个人隐藏消息不影响其他人的视图
type MessageHide struct {
	gorm.Model

	// MessageUuid 被隐藏消息的雪花 ID
	MessageUuid int64 `gorm:"column:message_uuid;index;uniqueIndex:idx_msg_user;type:bigint;not null;comment:消息雪花ID"`

	// UserUuid 执行隐藏的用户 UUID
	UserUuid string `gorm:"column:user_uuid;uniqueIndex:idx_msg_user;type:char(20);not null;comment:用户uuid"`
}

// TableName 指定表名
func (MessageHide) TableName() string {
	return "message_hide"
}
