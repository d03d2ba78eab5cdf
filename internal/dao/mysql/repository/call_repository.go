// Package repository 提供数据访问层的具体实现
// 本文件实现 CallRepository 接口
// 通话状态转移都是守卫式 UPDATE：终态一旦写入，后续转移在存储层就是 0 行受影响
package repository

import (
	"time"

	"nova_chat_server/internal/model"
	"nova_chat_server/pkg/enum/call/call_status_enum"

	"gorm.io/gorm"
)

// callRepository CallRepository 接口的实现
type callRepository struct {
	db *gorm.DB
}

func newCallRepository(db *gorm.DB) *callRepository {
	return &callRepository{db: db}
}

// CreateWithParticipants 创建通话及参与者（同一事务）
func (r *callRepository) CreateWithParticipants(call *model.Call, parts []model.CallParticipant) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(call).Error; err != nil {
			return err
		}
		if len(parts) > 0 {
			if err := tx.Create(&parts).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapDBError(err, "创建通话")
	}
	return nil
}

// FindByUuid 按雪花 ID 查找通话
func (r *callRepository) FindByUuid(uuid int64) (*model.Call, error) {
	var call model.Call
	if err := r.db.Where("uuid = ?", uuid).First(&call).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询通话 uuid=%d", uuid)
	}
	return &call, nil
}

// Answer 响铃 -> 通话中
// 仅当当前状态为响铃时生效；同事务盖被叫的加入时间
func (r *callRepository) Answer(uuid int64, calleeUuid string, startedAt time.Time) (bool, error) {
	var moved bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Call{}).
			Where("uuid = ? AND status = ?", uuid, call_status_enum.Ringing).
			Updates(map[string]interface{}{
				"status":     call_status_enum.InProgress,
				"started_at": startedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // 已被其他转移抢先，保持 moved=false
		}
		moved = true
		return tx.Model(&model.CallParticipant{}).
			Where("call_uuid = ? AND user_uuid = ?", uuid, calleeUuid).
			Update("joined_at", startedAt).Error
	})
	if err != nil {
		return false, wrapDBErrorf(err, "接听通话 uuid=%d", uuid)
	}
	return moved, nil
}

// Terminate 进入终态（ended/missed/declined）
// 仅当当前状态非终态时生效，同事务盖所有参与者的离开时间
func (r *callRepository) Terminate(uuid int64, to int8, endedAt time.Time, durationSecs int64, endedBy string) (bool, error) {
	var moved bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Call{}).
			Where("uuid = ? AND status IN ?", uuid, []int8{call_status_enum.Ringing, call_status_enum.InProgress}).
			Updates(map[string]interface{}{
				"status":        to,
				"ended_at":      endedAt,
				"duration_secs": durationSecs,
				"ended_by":      endedBy,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // 终态粘滞：重复终止是干净的 no-op
		}
		moved = true
		return tx.Model(&model.CallParticipant{}).
			Where("call_uuid = ? AND left_at IS NULL", uuid).
			Update("left_at", endedAt).Error
	})
	if err != nil {
		return false, wrapDBErrorf(err, "终止通话 uuid=%d", uuid)
	}
	return moved, nil
}
