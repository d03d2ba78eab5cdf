// Package repository 提供数据访问层接口和实现
// 所有 Repository 接口在此文件定义，具体实现在各自的文件中
// Service 层只依赖接口，测试中可以注入内存实现
package repository

import (
	"time"

	"nova_chat_server/internal/model"
)

// UserRepository 用户数据访问接口
type UserRepository interface {
	// Create 创建用户
	Create(user *model.UserInfo) error
	// FindByUuid 根据 UUID 查找用户
	FindByUuid(uuid string) (*model.UserInfo, error)
	// FindByTelephone 根据手机号查找用户（登录用）
	FindByTelephone(telephone string) (*model.UserInfo, error)
	// ExistsByUuid 判断用户是否存在
	ExistsByUuid(uuid string) (bool, error)
	// UpdateLastOnline 更新上次上线时间
	UpdateLastOnline(uuid string, t time.Time) error
	// UpdateLastOffline 更新最近离线时间（断线路径的尽力写入）
	UpdateLastOffline(uuid string, t time.Time) error
}

// DeviceRepository 设备数据访问接口
type DeviceRepository interface {
	// Create 创建设备
	Create(device *model.Device) error
	// FindByUuid 根据设备 UUID 查找
	FindByUuid(uuid string) (*model.Device, error)
	// FindByUser 查找用户的所有设备
	FindByUser(userUuid string) ([]model.Device, error)
	// TouchLastSeen 更新设备最近活跃时间
	TouchLastSeen(uuid string, t time.Time) error
	// Delete 删除设备（随后其会话必须被吊销）
	Delete(uuid string) error
}

// SessionRepository 登录会话数据访问接口
// 凭证校验失败时的权威回源，以及注销时的吊销入口
type SessionRepository interface {
	// Create 写入新会话行
	Create(session *model.UserSession) error
	// FindActiveByAccessHash 按 access 摘要查找未过期的会话行
	FindActiveByAccessHash(hash string, now time.Time) (*model.UserSession, error)
	// FindActiveByRefreshHash 按 refresh 摘要查找未过期的会话行
	FindActiveByRefreshHash(hash string, now time.Time) (*model.UserSession, error)
	// FindByUser 查找用户的全部会话行（logout-all 用）
	FindByUser(userUuid string) ([]model.UserSession, error)
	// FindByUserAndDevice 查找某台设备的会话行
	FindByUserAndDevice(userUuid, deviceUuid string) ([]model.UserSession, error)
	// DeleteByUserAndDevice 删除某台设备的全部会话行（登录顶替/设备移除）
	DeleteByUserAndDevice(userUuid, deviceUuid string) error
	// DeleteByUser 删除用户的全部会话行（logout-all）
	DeleteByUser(userUuid string) error
	// TouchLastUsed 更新凭证最近使用时间
	TouchLastUsed(hash string, t time.Time) error
}

// ConversationRepository 会话数据访问接口
type ConversationRepository interface {
	// Create 创建会话
	Create(conv *model.Conversation) error
	// FindByUuid 根据 UUID 查找会话
	FindByUuid(uuid string) (*model.Conversation, error)
	// FindDirectByPairKey 按去重键查找单聊会话
	FindDirectByPairKey(pairKey string) (*model.Conversation, error)
	// TouchLastMessage 更新会话最后活动（必须和消息落库同事务，见 Repositories.Transaction）
	TouchLastMessage(uuid string, summary string, t time.Time) error
}

// MemberRepository 会话成员数据访问接口
type MemberRepository interface {
	// CreateBatch 批量写入成员
	CreateBatch(members []model.ConversationMember) error
	// FindByConversation 查找会话的全部成员
	FindByConversation(convUuid string) ([]model.ConversationMember, error)
	// FindConversationUuidsByUser 查找用户参与的所有会话 UUID（握手订阅用）
	FindConversationUuidsByUser(userUuid string) ([]string, error)
	// IsMember 判断用户是否是会话成员
	IsMember(convUuid, userUuid string) (bool, error)
	// UpdateLastRead 推进某成员的已读进度
	UpdateLastRead(convUuid, userUuid string, t time.Time) error
}

// MessageRepository 消息数据访问接口
type MessageRepository interface {
	// Create 写入消息
	Create(message *model.Message) error
	// FindByUuid 按雪花 ID 查找消息
	FindByUuid(uuid int64) (*model.Message, error)
	// FindByConversationForUser 查询会话历史，过滤该用户隐藏过的消息
	FindByConversationForUser(convUuid, userUuid string, limit int) ([]model.Message, error)
	// UpdateStatusForward 单向推进消息状态
	// 只更新 status < to 的行，天然保证已读的消息不会被 delivered 改回去
	UpdateStatusForward(uuids []int64, to int8) (int64, error)
	// AdvanceConversationStatus 把会话里他人发的、状态落后的消息推进到 to
	// 返回受影响行数
	AdvanceConversationStatus(convUuid, excludeSender string, to int8) (int64, error)
	// FindUndelivered 查找发给该用户、仍停留在已发送状态的消息
	// 限定时间窗口和批量上限，保证重连补投不拖慢握手
	FindUndelivered(userUuid string, since time.Time, limit int) ([]model.Message, error)
	// HideForUser 为某用户记录"对我删除"
	HideForUser(msgUuid int64, userUuid string) error
}

// CallRepository 通话数据访问接口
// 守卫式 UPDATE（WHERE status 限定）使终态在存储层也保持粘滞
type CallRepository interface {
	// CreateWithParticipants 创建通话及参与者（同一事务）
	CreateWithParticipants(call *model.Call, parts []model.CallParticipant) error
	// FindByUuid 按雪花 ID 查找通话
	FindByUuid(uuid int64) (*model.Call, error)
	// Answer 响铃 -> 通话中
	// 仅当当前状态为响铃时生效，返回是否真的发生了转移
	Answer(uuid int64, calleeUuid string, startedAt time.Time) (bool, error)
	// Terminate 进入终态（ended/missed/declined）
	// 仅当当前状态非终态时生效，同事务盖参与者离开时间戳
	Terminate(uuid int64, to int8, endedAt time.Time, durationSecs int64, endedBy string) (bool, error)
}

// 编译期断言：所有 gorm 实现满足各自接口
var (
	_ UserRepository         = (*userRepository)(nil)
	_ DeviceRepository       = (*deviceRepository)(nil)
	_ SessionRepository      = (*sessionRepository)(nil)
	_ ConversationRepository = (*conversationRepository)(nil)
	_ MemberRepository       = (*memberRepository)(nil)
	_ MessageRepository      = (*messageRepository)(nil)
	_ CallRepository         = (*callRepository)(nil)
)
