package chat

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"nova_chat_server/internal/dao/mysql/repository"
	"nova_chat_server/internal/dto/respond"
	"nova_chat_server/internal/infrastructure/mq"
	"nova_chat_server/internal/model"
	"nova_chat_server/pkg/constants"
	"nova_chat_server/pkg/enum/message/message_status_enum"
	"nova_chat_server/pkg/enum/message/message_type_enum"
	"nova_chat_server/pkg/errorx"
	"nova_chat_server/pkg/util/random"
	"nova_chat_server/pkg/util/snowflake"

	"go.uber.org/zap"
)

// 密文场景下 last_message 只能存类型提示
var messageSummary = map[int8]string{
	message_type_enum.Text:   "[消息]",
	message_type_enum.Voice:  "[语音]",
	message_type_enum.File:   "[文件]",
	message_type_enum.Signal: "[加密信令]",
}

// handleSendMessage 发消息主流程
// 校验 -> 定位/创建会话 -> 事务落库 -> ack -> 扇出 -> 送达推进 -> 离线推送
func (s *ChatServer) handleSendMessage(uc *UserConn, raw json.RawMessage) {
	var payload SendMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.sendError(uc, errorx.CodeInvalidParam, "无法解析的消息载荷")
		return
	}
	if !message_type_enum.Valid(payload.Type) {
		s.sendError(uc, errorx.CodeInvalidParam, "不支持的消息类型")
		return
	}
	if payload.Content == "" || len(payload.Content) > s.maxContent {
		s.sendError(uc, errorx.CodeInvalidParam, "消息内容为空或超出长度限制")
		return
	}

	conv, err := s.resolveConversation(uc, &payload)
	if err != nil {
		s.sendError(uc, errorx.GetCode(err), err.Error())
		return
	}

	now := s.now()
	msg := &model.Message{
		Uuid:             snowflake.GenerateID(),
		ConversationUuid: conv.Uuid,
		SendId:           uc.UserID,
		Type:             payload.Type,
		Content:          payload.Content,
		Status:           message_status_enum.Sent,
		SendAt:           nullTime(now),
	}
	if payload.ReplyTo != "" {
		if replyTo, parseErr := strconv.ParseInt(payload.ReplyTo, 10, 64); parseErr == nil {
			msg.ReplyTo = replyTo
		}
	}

	// 消息落库和会话最后活动更新必须同事务
	err = s.repos.Transaction(func(tx *repository.Repositories) error {
		if err := tx.Message.Create(msg); err != nil {
			return err
		}
		return tx.Conversation.TouchLastMessage(conv.Uuid, messageSummary[payload.Type], now)
	})
	if err != nil {
		zap.L().Error("persist message failed",
			zap.String("conversation", conv.Uuid), zap.Error(err))
		s.sendError(uc, errorx.CodeDBError, "消息保存失败")
		return
	}

	msgUuidStr := strconv.FormatInt(msg.Uuid, 10)

	// 落库即确认，送达与否不影响 ack
	_ = uc.WriteEvent(mustMarshalEvent(EventMessageSent, MessageSentAck{
		MessageUuid:      msgUuidStr,
		ConversationUuid: conv.Uuid,
		ClientTag:        payload.ClientTag,
		SendAt:           now.Format(time.DateTime),
	}))

	// 扇出给订阅该会话的其他用户连接
	received := mustMarshalEvent(EventMessageReceived, messageToRespond(msg))
	s.registry.BroadcastToConversation(conv.Uuid, uc.UserID, received)

	s.advanceDelivered(uc, conv.Uuid, msg)
	s.invalidateHistoryCache(conv.Uuid)
}

// advanceDelivered 按成员在线情况推进送达状态并分发离线推送
func (s *ChatServer) advanceDelivered(uc *UserConn, convUuid string, msg *model.Message) {
	members, err := s.repos.Member.FindByConversation(convUuid)
	if err != nil {
		zap.L().Error("load members failed", zap.String("conversation", convUuid), zap.Error(err))
		return
	}

	anyOnline := false
	var offline []string
	for _, m := range members {
		if m.UserUuid == uc.UserID {
			continue
		}
		if s.registry.HasConnections(m.UserUuid) {
			anyOnline = true
		} else {
			offline = append(offline, m.UserUuid)
		}
	}

	if anyOnline {
		// 守卫式更新：已经被标为已读的行不会被退回
		rows, err := s.repos.Message.UpdateStatusForward([]int64{msg.Uuid}, message_status_enum.Delivered)
		if err != nil {
			zap.L().Error("advance delivered failed", zap.Int64("message", msg.Uuid), zap.Error(err))
		} else if rows > 0 {
			s.registry.SendToUser(uc.UserID, mustMarshalEvent(EventMessageStatus, MessageStatusPayload{
				ConversationUuid: convUuid,
				MessageUuids:     []string{strconv.FormatInt(msg.Uuid, 10)},
				Status:           message_status_enum.Delivered,
			}))
		}
	}

	// 离线成员走推送队列，失败只记日志，绝不反灌发送流程
	for _, userUuid := range offline {
		notice := mq.PushNotice{
			UserId: userUuid,
			Kind:   "message",
			Payload: map[string]string{
				"conversation_uuid": convUuid,
				"message_uuid":      strconv.FormatInt(msg.Uuid, 10),
			},
		}
		if err := s.dispatcher.Notify(context.Background(), notice); err != nil {
			zap.L().Warn("push dispatch failed",
				zap.String("user", userUuid), zap.Error(err))
		}
	}
}

// resolveConversation 定位消息目标会话
// 带会话号时校验成员资格；否则按目标用户查找或创建单聊会话
func (s *ChatServer) resolveConversation(uc *UserConn, payload *SendMessagePayload) (*model.Conversation, error) {
	if payload.ConversationUuid != "" {
		ok, err := s.repos.Member.IsMember(payload.ConversationUuid, uc.UserID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errorx.ErrNotParticipant
		}
		return s.repos.Conversation.FindByUuid(payload.ConversationUuid)
	}

	if payload.TargetUuid == "" || payload.TargetUuid == uc.UserID {
		return nil, errorx.ErrInvalidParam
	}
	exists, err := s.repos.User.ExistsByUuid(payload.TargetUuid)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errorx.New(errorx.CodeUserNotExist, "目标用户不存在")
	}
	return s.findOrCreateDirect(uc, payload.TargetUuid)
}

// findOrCreateDirect 查找或创建单聊会话
// 两端并发首次互发时靠 pair_key 唯一索引裁决：
// 输掉插入竞争的一方按唯一键冲突重查，总是落到同一个会话
func (s *ChatServer) findOrCreateDirect(uc *UserConn, targetUuid string) (*model.Conversation, error) {
	pairKey := model.DirectPairKey(uc.UserID, targetUuid)

	conv, err := s.repos.Conversation.FindDirectByPairKey(pairKey)
	if err == nil {
		return conv, nil
	}
	if !errorx.IsNotFound(err) {
		return nil, err
	}

	newConv := &model.Conversation{
		Uuid:    random.NewConversationUuid(),
		Type:    model.ConversationDirect,
		PairKey: nullString(pairKey),
	}
	createErr := s.repos.Transaction(func(tx *repository.Repositories) error {
		if err := tx.Conversation.Create(newConv); err != nil {
			return err
		}
		return tx.Member.CreateBatch([]model.ConversationMember{
			{ConversationUuid: newConv.Uuid, UserUuid: uc.UserID},
			{ConversationUuid: newConv.Uuid, UserUuid: targetUuid},
		})
	})
	if createErr != nil {
		if repository.IsDuplicateKey(createErr) {
			// 对端抢先创建了，重查赢家
			return s.repos.Conversation.FindDirectByPairKey(pairKey)
		}
		return nil, createErr
	}

	// 双方在线连接立即订阅新会话并收到创建通知
	created := mustMarshalEvent(EventConversationCreated, ConversationCreatedPayload{
		ConversationUuid: newConv.Uuid,
		Type:             model.ConversationDirect,
		MemberUuids:      []string{uc.UserID, targetUuid},
	})
	for _, userUuid := range []string{uc.UserID, targetUuid} {
		s.registry.SubscribeUser(userUuid, newConv.Uuid)
		s.registry.SendToUser(userUuid, created)
	}
	return newConv, nil
}

// handleReadConversation 会话整体已读
func (s *ChatServer) handleReadConversation(uc *UserConn, raw json.RawMessage) {
	var payload ReadConversationPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ConversationUuid == "" {
		s.sendError(uc, errorx.CodeInvalidParam, "无法解析的已读载荷")
		return
	}
	ok, err := s.repos.Member.IsMember(payload.ConversationUuid, uc.UserID)
	if err != nil {
		s.sendError(uc, errorx.GetCode(err), "已读标记失败")
		return
	}
	if !ok {
		s.sendError(uc, errorx.CodeNotParticipant, "您不是该会话的参与者")
		return
	}

	now := s.now()
	var rows int64
	err = s.repos.Transaction(func(tx *repository.Repositories) error {
		var txErr error
		rows, txErr = tx.Message.AdvanceConversationStatus(
			payload.ConversationUuid, uc.UserID, message_status_enum.Read)
		if txErr != nil {
			return txErr
		}
		return tx.Member.UpdateLastRead(payload.ConversationUuid, uc.UserID, now)
	})
	if err != nil {
		zap.L().Error("mark conversation read failed",
			zap.String("conversation", payload.ConversationUuid), zap.Error(err))
		s.sendError(uc, errorx.CodeDBError, "已读标记失败")
		return
	}

	if rows > 0 {
		s.registry.BroadcastToConversation(payload.ConversationUuid, uc.UserID,
			mustMarshalEvent(EventReadReceipt, ReadReceiptPayload{
				ConversationUuid: payload.ConversationUuid,
				ReaderUuid:       uc.UserID,
				ReadAt:           now.Format(time.DateTime),
			}))
		s.invalidateHistoryCache(payload.ConversationUuid)
	}
}

// handleReadMessage 单条消息已读（旧版客户端兼容路径）
func (s *ChatServer) handleReadMessage(uc *UserConn, raw json.RawMessage) {
	var payload ReadMessagePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.sendError(uc, errorx.CodeInvalidParam, "无法解析的已读载荷")
		return
	}
	msgUuid, err := strconv.ParseInt(payload.MessageUuid, 10, 64)
	if err != nil {
		s.sendError(uc, errorx.CodeInvalidParam, "非法的消息编号")
		return
	}

	msg, err := s.repos.Message.FindByUuid(msgUuid)
	if err != nil {
		s.sendError(uc, errorx.GetCode(err), "消息不存在")
		return
	}
	// 自己发的消息不能标已读
	if msg.SendId == uc.UserID {
		s.sendError(uc, errorx.CodeInvalidParam, "不能将自己的消息标记为已读")
		return
	}
	ok, err := s.repos.Member.IsMember(msg.ConversationUuid, uc.UserID)
	if err != nil || !ok {
		s.sendError(uc, errorx.CodeNotParticipant, "您不是该会话的参与者")
		return
	}

	rows, err := s.repos.Message.UpdateStatusForward([]int64{msgUuid}, message_status_enum.Read)
	if err != nil {
		s.sendError(uc, errorx.CodeDBError, "已读标记失败")
		return
	}
	if rows > 0 {
		s.registry.SendToUser(msg.SendId, mustMarshalEvent(EventReadReceipt, ReadReceiptPayload{
			ConversationUuid: msg.ConversationUuid,
			MessageUuid:      payload.MessageUuid,
			ReaderUuid:       uc.UserID,
			ReadAt:           s.now().Format(time.DateTime),
		}))
		s.invalidateHistoryCache(msg.ConversationUuid)
	}
}

// catchUp 重连补投
// 把窗口内仍停留在已发送状态的消息送到当前连接，
// 批量推进为已送达，并给每个 (会话, 发送者) 发一条状态通知
func (s *ChatServer) catchUp(uc *UserConn) {
	since := s.now().Add(-s.catchupWindow)
	msgs, err := s.repos.Message.FindUndelivered(uc.UserID, since, s.catchupLimit)
	if err != nil {
		zap.L().Error("catch-up query failed", zap.String("user", uc.UserID), zap.Error(err))
		return
	}
	if len(msgs) == 0 {
		return
	}

	uuids := make([]int64, 0, len(msgs))
	// 按 (会话, 发送者) 聚合，每组只通知一次
	type notifyKey struct{ conv, sender string }
	grouped := make(map[notifyKey][]string)
	for i := range msgs {
		msg := &msgs[i]
		_ = uc.WriteEvent(mustMarshalEvent(EventMessageReceived, messageToRespond(msg)))
		uuids = append(uuids, msg.Uuid)
		key := notifyKey{conv: msg.ConversationUuid, sender: msg.SendId}
		grouped[key] = append(grouped[key], strconv.FormatInt(msg.Uuid, 10))
	}

	if _, err := s.repos.Message.UpdateStatusForward(uuids, message_status_enum.Delivered); err != nil {
		zap.L().Error("catch-up status update failed", zap.String("user", uc.UserID), zap.Error(err))
		return
	}

	for key, msgUuids := range grouped {
		s.registry.SendToUser(key.sender, mustMarshalEvent(EventMessageStatus, MessageStatusPayload{
			ConversationUuid: key.conv,
			MessageUuids:     msgUuids,
			Status:           message_status_enum.Delivered,
		}))
	}
}

// handleTypingStart / handleTypingStop 输入状态中继，不落库不出错
func (s *ChatServer) handleTypingStart(uc *UserConn, raw json.RawMessage) {
	s.relayTyping(uc, raw, EventTypingStart)
}

func (s *ChatServer) handleTypingStop(uc *UserConn, raw json.RawMessage) {
	s.relayTyping(uc, raw, EventTypingStop)
}

func (s *ChatServer) relayTyping(uc *UserConn, raw json.RawMessage, event string) {
	var payload TypingPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ConversationUuid == "" {
		return
	}
	ok, err := s.repos.Member.IsMember(payload.ConversationUuid, uc.UserID)
	if err != nil || !ok {
		return
	}
	s.registry.BroadcastToConversation(payload.ConversationUuid, uc.UserID,
		mustMarshalEvent(event, TypingNotifyPayload{
			ConversationUuid: payload.ConversationUuid,
			UserUuid:         uc.UserID,
		}))
}

// handleConversationJoin 订阅一个新会话
func (s *ChatServer) handleConversationJoin(uc *UserConn, raw json.RawMessage) {
	var payload ConversationJoinPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.ConversationUuid == "" {
		s.sendError(uc, errorx.CodeInvalidParam, "无法解析的订阅载荷")
		return
	}
	ok, err := s.repos.Member.IsMember(payload.ConversationUuid, uc.UserID)
	if err != nil {
		s.sendError(uc, errorx.GetCode(err), "订阅失败")
		return
	}
	if !ok {
		s.sendError(uc, errorx.CodeNotParticipant, "您不是该会话的参与者")
		return
	}
	s.registry.Subscribe(uc.ConnID, payload.ConversationUuid)
}

// ==================== 历史查询（REST 侧复用） ====================

// History 查询会话历史
// 短 TTL 缓存一份序列化结果，过滤掉该用户"对我删除"过的消息
func (s *ChatServer) History(ctx context.Context, convUuid, userUuid string, limit int) ([]respond.MessageRespond, error) {
	ok, err := s.repos.Member.IsMember(convUuid, userUuid)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errorx.ErrNotParticipant
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	cacheKey := historyCacheKey(convUuid, userUuid)
	if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != "" {
		var rsp []respond.MessageRespond
		if json.Unmarshal([]byte(cached), &rsp) == nil {
			return rsp, nil
		}
	}

	msgs, err := s.repos.Message.FindByConversationForUser(convUuid, userUuid, limit)
	if err != nil {
		return nil, err
	}
	rsp := make([]respond.MessageRespond, 0, len(msgs))
	for i := range msgs {
		rsp = append(rsp, *messageToRespond(&msgs[i]))
	}

	if data, err := json.Marshal(rsp); err == nil {
		s.cache.SubmitTask(func() {
			if err := s.cache.Set(context.Background(), cacheKey, string(data), constants.HISTORY_CACHE_TTL); err != nil {
				zap.L().Warn("history cache write failed", zap.Error(err))
			}
		})
	}
	return rsp, nil
}

// HideMessage 对我删除：消息只从当前用户的历史里消失
func (s *ChatServer) HideMessage(ctx context.Context, msgUuid int64, userUuid string) error {
	msg, err := s.repos.Message.FindByUuid(msgUuid)
	if err != nil {
		return err
	}
	ok, err := s.repos.Member.IsMember(msg.ConversationUuid, userUuid)
	if err != nil {
		return err
	}
	if !ok {
		return errorx.ErrNotParticipant
	}
	if err := s.repos.Message.HideForUser(msgUuid, userUuid); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, historyCacheKey(msg.ConversationUuid, userUuid)); err != nil {
		zap.L().Warn("history cache invalidate failed", zap.Error(err))
	}
	return nil
}

// invalidateHistoryCache 新消息或状态变化后让会话成员的历史缓存失效
// 键按 (会话, 用户) 切分，这里只能逐成员删，放到异步任务里做
func (s *ChatServer) invalidateHistoryCache(convUuid string) {
	s.cache.SubmitTask(func() {
		members, err := s.repos.Member.FindByConversation(convUuid)
		if err != nil {
			return
		}
		for _, m := range members {
			_ = s.cache.Delete(context.Background(), historyCacheKey(convUuid, m.UserUuid))
		}
	})
}

func historyCacheKey(convUuid, userUuid string) string {
	return "history:" + convUuid + ":" + userUuid
}

func messageToRespond(msg *model.Message) *respond.MessageRespond {
	rsp := &respond.MessageRespond{
		Uuid:             strconv.FormatInt(msg.Uuid, 10),
		ConversationUuid: msg.ConversationUuid,
		SendId:           msg.SendId,
		Type:             msg.Type,
		Content:          msg.Content,
		Status:           msg.Status,
	}
	if msg.ReplyTo != 0 {
		rsp.ReplyTo = strconv.FormatInt(msg.ReplyTo, 10)
	}
	if msg.SendAt.Valid {
		rsp.SendAt = msg.SendAt.Time.Format(time.DateTime)
	}
	return rsp
}
