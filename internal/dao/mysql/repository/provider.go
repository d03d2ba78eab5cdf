// Package repository 提供 Repository 层聚合与构造
package repository

import (
	"gorm.io/gorm"
)

// Repositories 聚合所有 Repository 实例
// 作为依赖注入的入口，Service 层通过此结构访问数据层
type Repositories struct {
	db           *gorm.DB               // GORM 数据库实例
	User         UserRepository         // 用户 Repository
	Device       DeviceRepository       // 设备 Repository
	Session      SessionRepository      // 登录会话 Repository
	Conversation ConversationRepository // 会话 Repository
	Member       MemberRepository       // 会话成员 Repository
	Message      MessageRepository      // 消息 Repository
	Call         CallRepository         // 通话 Repository
}

// NewRepositories 创建所有 Repository 实例
// db: GORM 数据库实例
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:           db,
		User:         newUserRepository(db),
		Device:       newDeviceRepository(db),
		Session:      newSessionRepository(db),
		Conversation: newConversationRepository(db),
		Member:       newMemberRepository(db),
		Message:      newMessageRepository(db),
		Call:         newCallRepository(db),
	}
}

// NewTestRepositories 组装一个用于测试的聚合实例
// 各字段由调用方注入内存实现，Transaction 退化为直接执行
func NewTestRepositories(user UserRepository, device DeviceRepository, session SessionRepository,
	conv ConversationRepository, member MemberRepository, message MessageRepository, call CallRepository) *Repositories {
	return &Repositories{
		User:         user,
		Device:       device,
		Session:      session,
		Conversation: conv,
		Member:       member,
		Message:      message,
		Call:         call,
	}
}

// Transaction 在数据库事务中执行函数
// 事务内的所有操作要么全部成功，要么全部回滚
// fn: 事务执行函数，接收事务内的 Repositories 实例
func (r *Repositories) Transaction(fn func(txRepos *Repositories) error) error {
	if r.db == nil {
		// 测试场景：无真实数据库时退化为直接执行
		return fn(r)
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}
