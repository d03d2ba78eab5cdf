// Package repository 提供数据访问层的具体实现
// 本文件实现 MessageRepository 接口
// 状态推进一律用守卫式 UPDATE（WHERE status < ?），状态机的单向性由存储层兜底
package repository

import (
	"time"

	"nova_chat_server/internal/model"
	"nova_chat_server/pkg/enum/message/message_status_enum"

	"gorm.io/gorm"
)

// messageRepository MessageRepository 接口的实现
type messageRepository struct {
	db *gorm.DB
}

func newMessageRepository(db *gorm.DB) *messageRepository {
	return &messageRepository{db: db}
}

// Create 写入消息
func (r *messageRepository) Create(message *model.Message) error {
	if err := r.db.Create(message).Error; err != nil {
		return wrapDBError(err, "创建消息")
	}
	return nil
}

// FindByUuid 按雪花 ID 查找消息
func (r *messageRepository) FindByUuid(uuid int64) (*model.Message, error) {
	var message model.Message
	if err := r.db.Where("uuid = ?", uuid).First(&message).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询消息 uuid=%d", uuid)
	}
	return &message, nil
}

// FindByConversationForUser 查询会话历史，过滤该用户隐藏过的消息
// "对我删除"是每个参与者自己的状态，用 NOT EXISTS 子查询按人过滤
func (r *messageRepository) FindByConversationForUser(convUuid, userUuid string, limit int) ([]model.Message, error) {
	var messages []model.Message
	sub := r.db.Model(&model.MessageHide{}).
		Select("1").
		Where("message_hide.message_uuid = message.uuid AND message_hide.user_uuid = ?", userUuid)
	if err := r.db.Where("conversation_uuid = ?", convUuid).
		Where("NOT EXISTS (?)", sub).
		Order("uuid DESC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询消息记录 conversation_uuid=%s", convUuid)
	}
	return messages, nil
}

// UpdateStatusForward 单向推进消息状态
// WHERE status < ? 保证已读的消息不会被迟到的 delivered 更新改回去
func (r *messageRepository) UpdateStatusForward(uuids []int64, to int8) (int64, error) {
	if len(uuids) == 0 {
		return 0, nil
	}
	res := r.db.Model(&model.Message{}).
		Where("uuid IN ? AND status < ?", uuids, to).
		Update("status", to)
	if res.Error != nil {
		return 0, wrapDBError(res.Error, "推进消息状态")
	}
	return res.RowsAffected, nil
}

// AdvanceConversationStatus 把会话里他人发的、状态落后的消息推进到 to
func (r *messageRepository) AdvanceConversationStatus(convUuid, excludeSender string, to int8) (int64, error) {
	res := r.db.Model(&model.Message{}).
		Where("conversation_uuid = ? AND send_id <> ? AND status < ?", convUuid, excludeSender, to).
		Update("status", to)
	if res.Error != nil {
		return 0, wrapDBErrorf(res.Error, "推进会话消息状态 conversation_uuid=%s", convUuid)
	}
	return res.RowsAffected, nil
}

// FindUndelivered 查找发给该用户、仍停留在已发送状态的消息
// 通过成员表联查覆盖该用户的全部会话，按时间窗口和条数截断
func (r *messageRepository) FindUndelivered(userUuid string, since time.Time, limit int) ([]model.Message, error) {
	var messages []model.Message
	if err := r.db.Model(&model.Message{}).
		Joins("JOIN conversation_member cm ON cm.conversation_uuid = message.conversation_uuid").
		Where("cm.user_uuid = ? AND cm.deleted_at IS NULL", userUuid).
		Where("message.send_id <> ?", userUuid).
		Where("message.status = ?", message_status_enum.Sent).
		Where("message.created_at > ?", since).
		Order("message.uuid ASC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询未送达消息 user_uuid=%s", userUuid)
	}
	return messages, nil
}

// HideForUser 为某用户记录"对我删除"
// 重复隐藏撞唯一索引视为成功
func (r *messageRepository) HideForUser(msgUuid int64, userUuid string) error {
	hide := model.MessageHide{MessageUuid: msgUuid, UserUuid: userUuid}
	if err := r.db.Create(&hide).Error; err != nil {
		if IsDuplicateKey(err) {
			return nil
		}
		return wrapDBErrorf(err, "隐藏消息 message_uuid=%d", msgUuid)
	}
	return nil
}
