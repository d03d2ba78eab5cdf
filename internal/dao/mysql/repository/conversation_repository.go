// Package repository 提供数据访问层的具体实现
// 本文件实现 ConversationRepository 和 MemberRepository 接口
package repository

import (
	"time"

	"nova_chat_server/internal/model"

	"gorm.io/gorm"
)

// conversationRepository ConversationRepository 接口的实现
type conversationRepository struct {
	db *gorm.DB
}

func newConversationRepository(db *gorm.DB) *conversationRepository {
	return &conversationRepository{db: db}
}

// Create 创建会话
// 单聊会话撞 pair_key 唯一索引时返回的错误可被 IsDuplicateKey 识别
func (r *conversationRepository) Create(conv *model.Conversation) error {
	if err := r.db.Create(conv).Error; err != nil {
		if IsDuplicateKey(err) {
			return err // 保留原错误，调用方要回读赢家
		}
		return wrapDBError(err, "创建会话")
	}
	return nil
}

// FindByUuid 根据 UUID 查找会话
func (r *conversationRepository) FindByUuid(uuid string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := r.db.Where("uuid = ?", uuid).First(&conv).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话 uuid=%s", uuid)
	}
	return &conv, nil
}

// FindDirectByPairKey 按去重键查找单聊会话
func (r *conversationRepository) FindDirectByPairKey(pairKey string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := r.db.Where("pair_key = ?", pairKey).First(&conv).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询单聊会话 pair_key=%s", pairKey)
	}
	return &conv, nil
}

// TouchLastMessage 更新会话最后活动
func (r *conversationRepository) TouchLastMessage(uuid string, summary string, t time.Time) error {
	updates := map[string]interface{}{
		"last_message":    summary,
		"last_message_at": t,
	}
	if err := r.db.Model(&model.Conversation{}).Where("uuid = ?", uuid).Updates(updates).Error; err != nil {
		return wrapDBErrorf(err, "更新会话活动时间 uuid=%s", uuid)
	}
	return nil
}

// memberRepository MemberRepository 接口的实现
type memberRepository struct {
	db *gorm.DB
}

func newMemberRepository(db *gorm.DB) *memberRepository {
	return &memberRepository{db: db}
}

// CreateBatch 批量写入成员
func (r *memberRepository) CreateBatch(members []model.ConversationMember) error {
	if len(members) == 0 {
		return nil
	}
	if err := r.db.Create(&members).Error; err != nil {
		return wrapDBError(err, "创建会话成员")
	}
	return nil
}

// FindByConversation 查找会话的全部成员
func (r *memberRepository) FindByConversation(convUuid string) ([]model.ConversationMember, error) {
	var members []model.ConversationMember
	if err := r.db.Where("conversation_uuid = ?", convUuid).Find(&members).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话成员 conversation_uuid=%s", convUuid)
	}
	return members, nil
}

// FindConversationUuidsByUser 查找用户参与的所有会话 UUID
func (r *memberRepository) FindConversationUuidsByUser(userUuid string) ([]string, error) {
	var uuids []string
	if err := r.db.Model(&model.ConversationMember{}).
		Where("user_uuid = ?", userUuid).
		Pluck("conversation_uuid", &uuids).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询用户会话列表 user_uuid=%s", userUuid)
	}
	return uuids, nil
}

// IsMember 判断用户是否是会话成员
func (r *memberRepository) IsMember(convUuid, userUuid string) (bool, error) {
	var count int64
	if err := r.db.Model(&model.ConversationMember{}).
		Where("conversation_uuid = ? AND user_uuid = ?", convUuid, userUuid).
		Count(&count).Error; err != nil {
		return false, wrapDBErrorf(err, "查询会话成员关系 conversation_uuid=%s user_uuid=%s", convUuid, userUuid)
	}
	return count > 0, nil
}

// UpdateLastRead 推进某成员的已读进度
func (r *memberRepository) UpdateLastRead(convUuid, userUuid string, t time.Time) error {
	if err := r.db.Model(&model.ConversationMember{}).
		Where("conversation_uuid = ? AND user_uuid = ?", convUuid, userUuid).
		Update("last_read_at", t).Error; err != nil {
		return wrapDBErrorf(err, "更新已读进度 conversation_uuid=%s user_uuid=%s", convUuid, userUuid)
	}
	return nil
}
