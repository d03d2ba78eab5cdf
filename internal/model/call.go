// Package model 定义数据库实体模型
// 本文件定义通话模型，内存中的活跃通话追踪以这张表为持久化底座
package model

import (
	"database/sql"

	"gorm.io/gorm"
)

// Call 通话模型
// 对应数据库 call 表
// 状态机：ringing -> in_progress -> {ended | missed | declined}，终态粘滞
type Call struct {
	gorm.Model

	// Uuid 通话唯一标识，雪花 ID
	Uuid int64 `gorm:"column:uuid;uniqueIndex;type:bigint;not null;comment:通话雪花ID"`

	// InitiatorId 发起者 UUID
	InitiatorId string `gorm:"column:initiator_id;index;type:char(20);not null;comment:发起者uuid"`

	// CalleeId 被叫 UUID
	CalleeId string `gorm:"column:callee_id;index;type:char(20);not null;comment:被叫uuid"`

	// Kind 通话类型，0=语音, 1=视频
	// 参见 pkg/enum/call/call_kind_enum
	Kind int8 `gorm:"column:kind;not null;comment:类型，0.语音，1.视频"`

	// Status 通话状态
	// 0=响铃中，1=通话中，2=已结束，3=未接听，4=已拒绝
	// 参见 pkg/enum/call/call_status_enum
	Status int8 `gorm:"column:status;index;not null;comment:状态"`

	// ConversationUuid 关联的会话 UUID（可选）
	ConversationUuid string `gorm:"column:conversation_uuid;type:char(20);comment:关联会话uuid"`

	// StartedAt 接通时间（未接通则为空）
	StartedAt sql.NullTime `gorm:"column:started_at;type:datetime;comment:接通时间"`

	// EndedAt 结束时间
	EndedAt sql.NullTime `gorm:"column:ended_at;type:datetime;comment:结束时间"`

	// DurationSecs 通话时长（秒），未接通为 0
	DurationSecs int64 `gorm:"column:duration_secs;not null;comment:通话时长秒"`

	// EndedBy 结束者 UUID（超时结束时为空）
	EndedBy string `gorm:"column:ended_by;type:char(20);comment:结束者uuid"`
}

// TableName 指定表名
func (Call) TableName() string {
	return "call"
}

// CallParticipant 通话参与者模型
// 对应数据库 call_participant 表
type CallParticipant struct {
	gorm.Model

	// CallUuid 通话雪花 ID
	CallUuid int64 `gorm:"column:call_uuid;index;uniqueIndex:idx_call_user;type:bigint;not null;comment:通话雪花ID"`

	// UserUuid 参与者 UUID
	UserUuid string `gorm:"column:user_uuid;uniqueIndex:idx_call_user;type:char(20);not null;comment:参与者uuid"`

	// JoinedAt 加入时间（被叫在接听时才有）
	JoinedAt sql.NullTime `gorm:"column:joined_at;type:datetime;comment:加入时间"`

	// LeftAt 离开时间
	LeftAt sql.NullTime `gorm:"column:left_at;type:datetime;comment:离开时间"`
}

// TableName 指定表名
func (CallParticipant) TableName() string {
	return "call_participant"
}
