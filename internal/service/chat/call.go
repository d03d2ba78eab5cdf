package chat

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"nova_chat_server/internal/infrastructure/mq"
	"nova_chat_server/internal/model"
	"nova_chat_server/pkg/enum/call/call_kind_enum"
	"nova_chat_server/pkg/enum/call/call_status_enum"
	"nova_chat_server/pkg/errorx"
	"nova_chat_server/pkg/util/snowflake"

	"go.uber.org/zap"
)

// callState 一通活动通话的内存跟踪
// 权威状态在数据库（守卫式 UPDATE 保证终态粘滞），
// 内存态只为快速裁决"谁在通话中"和持有定时器句柄
type callState struct {
	uuid      int64
	initiator string
	callee    string
	kind      int8
	answered  bool
	startedAt time.Time
	ringTimer TimerHandle
}

// callTracker 通话跟踪器
// 所有字段都在同一把互斥锁下修改；锁内不做 IO
type callTracker struct {
	mu          sync.Mutex
	byUser      map[string]int64      // userUuid -> 活动通话
	calls       map[int64]*callState  // callUuid -> 状态
	graceTimers map[string]TimerHandle // userUuid -> 断线宽限定时器
}

func newCallTracker() *callTracker {
	return &callTracker{
		byUser:      make(map[string]int64),
		calls:       make(map[int64]*callState),
		graceTimers: make(map[string]TimerHandle),
	}
}

// remove 清除一通通话的全部跟踪，调用方持锁
func (t *callTracker) remove(state *callState) {
	delete(t.calls, state.uuid)
	if t.byUser[state.initiator] == state.uuid {
		delete(t.byUser, state.initiator)
	}
	if t.byUser[state.callee] == state.uuid {
		delete(t.byUser, state.callee)
	}
}

// sendCallError 给单条连接发 call.error
func (s *ChatServer) sendCallError(uc *UserConn, err error) {
	_ = uc.WriteEvent(mustMarshalEvent(EventCallError, ErrorPayload{
		Code:    errorx.GetCode(err),
		Message: err.Error(),
	}))
}

// handleCallInitiate 发起呼叫
//
// 锁内完成忙碌裁决并预占双方，锁外做落库；
// 落库失败回滚预占，这样并发的第二路呼叫不会穿过检查
func (s *ChatServer) handleCallInitiate(uc *UserConn, raw json.RawMessage) {
	var payload CallInitiatePayload
	if err := json.Unmarshal(raw, &payload); err != nil ||
		payload.CalleeUuid == "" || payload.CalleeUuid == uc.UserID {
		s.sendError(uc, errorx.CodeInvalidParam, "无法解析的呼叫载荷")
		return
	}
	if !call_kind_enum.Valid(payload.Kind) {
		s.sendError(uc, errorx.CodeInvalidParam, "不支持的通话类型")
		return
	}
	exists, err := s.repos.User.ExistsByUuid(payload.CalleeUuid)
	if err != nil || !exists {
		s.sendError(uc, errorx.CodeUserNotExist, "被叫用户不存在")
		return
	}

	callUuid := snowflake.GenerateID()
	state := &callState{
		uuid:      callUuid,
		initiator: uc.UserID,
		callee:    payload.CalleeUuid,
		kind:      payload.Kind,
	}

	s.tracker.mu.Lock()
	if _, busy := s.tracker.byUser[uc.UserID]; busy {
		s.tracker.mu.Unlock()
		s.sendCallError(uc, errorx.ErrAlreadyInCall)
		return
	}
	if _, busy := s.tracker.byUser[payload.CalleeUuid]; busy {
		s.tracker.mu.Unlock()
		s.sendCallError(uc, errorx.ErrCalleeBusy)
		return
	}
	s.tracker.byUser[uc.UserID] = callUuid
	s.tracker.byUser[payload.CalleeUuid] = callUuid
	s.tracker.calls[callUuid] = state
	s.tracker.mu.Unlock()

	now := s.now()
	call := &model.Call{
		Uuid:             callUuid,
		InitiatorId:      uc.UserID,
		CalleeId:         payload.CalleeUuid,
		Kind:             payload.Kind,
		Status:           call_status_enum.Ringing,
		ConversationUuid: payload.ConversationUuid,
	}
	parts := []model.CallParticipant{
		{CallUuid: callUuid, UserUuid: uc.UserID, JoinedAt: nullTime(now)},
		{CallUuid: callUuid, UserUuid: payload.CalleeUuid},
	}
	if err := s.repos.Call.CreateWithParticipants(call, parts); err != nil {
		// 落库失败，回滚预占
		s.tracker.mu.Lock()
		s.tracker.remove(state)
		s.tracker.mu.Unlock()
		zap.L().Error("persist call failed", zap.Int64("call", callUuid), zap.Error(err))
		s.sendCallError(uc, errorx.Wrap(err, errorx.CodeDBError, "呼叫创建失败"))
		return
	}

	// 响铃超时定时器
	s.tracker.mu.Lock()
	if cur, ok := s.tracker.calls[callUuid]; ok {
		cur.ringTimer = s.scheduler.AfterFunc(s.ringTimeout, func() {
			s.onRingTimeout(callUuid)
		})
	}
	s.tracker.mu.Unlock()

	callUuidStr := strconv.FormatInt(callUuid, 10)
	calleeOnline := s.registry.SendToUser(payload.CalleeUuid,
		mustMarshalEvent(EventCallIncoming, CallIncomingPayload{
			CallUuid:         callUuidStr,
			InitiatorUuid:    uc.UserID,
			Kind:             payload.Kind,
			ConversationUuid: payload.ConversationUuid,
			Sdp:              payload.Sdp,
		}))
	if !calleeOnline {
		s.pushCallNotice(payload.CalleeUuid, "incoming_call", callUuidStr, uc.UserID)
	}

	_ = uc.WriteEvent(mustMarshalEvent(EventCallInitiated, CallInitiatedPayload{
		CallUuid:     callUuidStr,
		CalleeOnline: calleeOnline,
	}))
}

// onRingTimeout 响铃超时：转未接并清理跟踪
func (s *ChatServer) onRingTimeout(callUuid int64) {
	s.tracker.mu.Lock()
	state, ok := s.tracker.calls[callUuid]
	if !ok || state.answered {
		// 已接听或已清理，接听方赢得竞争
		s.tracker.mu.Unlock()
		return
	}
	s.tracker.remove(state)
	s.tracker.mu.Unlock()

	moved, err := s.repos.Call.Terminate(callUuid, call_status_enum.Missed, s.now(), 0, "")
	if err != nil {
		zap.L().Error("mark call missed failed", zap.Int64("call", callUuid), zap.Error(err))
		return
	}
	if !moved {
		// 数据库侧已是终态，无需再广播
		return
	}

	callUuidStr := strconv.FormatInt(callUuid, 10)
	ended := mustMarshalEvent(EventCallEnded, CallEndedPayload{
		CallUuid: callUuidStr,
		Reason:   "missed",
	})
	s.registry.SendToUser(state.initiator, ended)
	if !s.registry.SendToUser(state.callee, ended) {
		// 被叫离线，推一条未接来电
		s.pushCallNotice(state.callee, "missed_call", callUuidStr, state.initiator)
	}
}

// handleCallAnswer 接听
// 只有响铃中的通话可以接听；先停表后转移，超时回调靠 answered 标记让路
func (s *ChatServer) handleCallAnswer(uc *UserConn, raw json.RawMessage) {
	var payload CallAnswerPayload
	callUuid, ok := s.parseCallUuid(uc, raw, &payload)
	if !ok {
		return
	}

	now := s.now()
	s.tracker.mu.Lock()
	state, exists := s.tracker.calls[callUuid]
	if !exists || state.callee != uc.UserID || state.answered {
		s.tracker.mu.Unlock()
		s.sendCallError(uc, errorx.ErrCallUnavailable)
		return
	}
	if state.ringTimer != nil {
		state.ringTimer.Stop()
		state.ringTimer = nil
	}
	state.answered = true
	state.startedAt = now
	s.tracker.mu.Unlock()

	moved, err := s.repos.Call.Answer(callUuid, uc.UserID, now)
	if err != nil || !moved {
		// 数据库侧没走成响铃->通话中的转移（并发终止或写失败），回滚内存态
		s.tracker.mu.Lock()
		if cur, ok := s.tracker.calls[callUuid]; ok {
			s.tracker.remove(cur)
		}
		s.tracker.mu.Unlock()
		if err != nil {
			zap.L().Error("persist call answer failed", zap.Int64("call", callUuid), zap.Error(err))
		}
		s.sendCallError(uc, errorx.ErrCallUnavailable)
		return
	}

	s.registry.SendToUser(state.initiator, mustMarshalEvent(EventCallAnswered, CallAnsweredPayload{
		CallUuid: payload.CallUuid,
		Sdp:      payload.Sdp,
	}))
}

// relaySignal 纯中继事件（ICE 候选 / 重协商 / 媒体状态）的 handler 工厂
// 缺字段或非参与者时静默丢弃，不回错误
func (s *ChatServer) relaySignal(event string) func(*UserConn, json.RawMessage) {
	return func(uc *UserConn, raw json.RawMessage) {
		var payload CallSignalPayload
		if err := json.Unmarshal(raw, &payload); err != nil || payload.CallUuid == "" {
			return
		}
		callUuid, err := strconv.ParseInt(payload.CallUuid, 10, 64)
		if err != nil {
			return
		}

		s.tracker.mu.Lock()
		state, ok := s.tracker.calls[callUuid]
		var peer string
		if ok {
			switch uc.UserID {
			case state.initiator:
				peer = state.callee
			case state.callee:
				peer = state.initiator
			}
		}
		s.tracker.mu.Unlock()
		if peer == "" {
			return
		}

		s.registry.SendToUser(peer, mustMarshalEvent(event, CallSignalNotifyPayload{
			CallUuid: payload.CallUuid,
			FromUuid: uc.UserID,
			Payload:  payload.Payload,
		}))
	}
}

// handleCallEnd 挂断
// 幂等：对已结束/不在跟踪的通话重复挂断是无声的成功
func (s *ChatServer) handleCallEnd(uc *UserConn, raw json.RawMessage) {
	var payload CallEndPayload
	callUuid, ok := s.parseCallUuid(uc, raw, &payload)
	if !ok {
		return
	}

	s.tracker.mu.Lock()
	state, exists := s.tracker.calls[callUuid]
	if !exists {
		s.tracker.mu.Unlock()
		return
	}
	if uc.UserID != state.initiator && uc.UserID != state.callee {
		s.tracker.mu.Unlock()
		s.sendCallError(uc, errorx.ErrNotParticipant)
		return
	}
	if state.ringTimer != nil {
		state.ringTimer.Stop()
		state.ringTimer = nil
	}
	s.tracker.remove(state)
	s.tracker.mu.Unlock()

	s.finishCall(state, uc.UserID, "ended")
}

// handleCallDecline 拒接，只有被叫在响铃期可以拒接
func (s *ChatServer) handleCallDecline(uc *UserConn, raw json.RawMessage) {
	var payload CallDeclinePayload
	callUuid, ok := s.parseCallUuid(uc, raw, &payload)
	if !ok {
		return
	}

	s.tracker.mu.Lock()
	state, exists := s.tracker.calls[callUuid]
	if !exists || state.callee != uc.UserID || state.answered {
		s.tracker.mu.Unlock()
		s.sendCallError(uc, errorx.ErrCallUnavailable)
		return
	}
	if state.ringTimer != nil {
		state.ringTimer.Stop()
		state.ringTimer = nil
	}
	s.tracker.remove(state)
	s.tracker.mu.Unlock()

	now := s.now()
	moved, err := s.repos.Call.Terminate(callUuid, call_status_enum.Declined, now, 0, uc.UserID)
	if err != nil {
		zap.L().Error("persist call decline failed", zap.Int64("call", callUuid), zap.Error(err))
		return
	}
	if moved {
		s.registry.SendToUser(state.initiator, mustMarshalEvent(EventCallDeclined, CallDeclinedPayload{
			CallUuid: strconv.FormatInt(callUuid, 10),
		}))
	}
}

// finishCall 把一通通话推进到结束终态并通知双方
// 调用前跟踪已清除；时长从接通时刻起算，未接通为 0
func (s *ChatServer) finishCall(state *callState, endedBy, reason string) {
	now := s.now()
	var duration int64
	if state.answered && !state.startedAt.IsZero() {
		duration = int64(now.Sub(state.startedAt).Seconds())
	}

	moved, err := s.repos.Call.Terminate(state.uuid, call_status_enum.Ended, now, duration, endedBy)
	if err != nil {
		zap.L().Error("persist call end failed", zap.Int64("call", state.uuid), zap.Error(err))
		return
	}
	if !moved {
		return
	}

	ended := mustMarshalEvent(EventCallEnded, CallEndedPayload{
		CallUuid:     strconv.FormatInt(state.uuid, 10),
		Reason:       reason,
		EndedBy:      endedBy,
		DurationSecs: duration,
	})
	s.registry.SendToUser(state.initiator, ended)
	s.registry.SendToUser(state.callee, ended)
}

// ==================== 断线宽限期 ====================

// startGrace 用户最后一条连接断开后调用
// 只有当用户确实处于活动通话中才注册宽限定时器
func (s *ChatServer) startGrace(userUuid string) {
	s.tracker.mu.Lock()
	defer s.tracker.mu.Unlock()
	if _, inCall := s.tracker.byUser[userUuid]; !inCall {
		return
	}
	if old, ok := s.tracker.graceTimers[userUuid]; ok {
		old.Stop()
	}
	s.tracker.graceTimers[userUuid] = s.scheduler.AfterFunc(s.callGrace, func() {
		s.onGraceExpired(userUuid)
	})
}

// cancelGrace 用户重连时取消宽限定时器
func (s *ChatServer) cancelGrace(userUuid string) {
	s.tracker.mu.Lock()
	defer s.tracker.mu.Unlock()
	if timer, ok := s.tracker.graceTimers[userUuid]; ok {
		timer.Stop()
		delete(s.tracker.graceTimers, userUuid)
	}
}

// onGraceExpired 宽限期结束用户仍未回来，代其退出通话
// 已接通的按正常挂断结算；还在响铃的被叫掉线按未接处理
func (s *ChatServer) onGraceExpired(userUuid string) {
	s.tracker.mu.Lock()
	delete(s.tracker.graceTimers, userUuid)
	callUuid, inCall := s.tracker.byUser[userUuid]
	if !inCall {
		s.tracker.mu.Unlock()
		return
	}
	state, ok := s.tracker.calls[callUuid]
	if !ok {
		delete(s.tracker.byUser, userUuid)
		s.tracker.mu.Unlock()
		return
	}
	if state.ringTimer != nil {
		state.ringTimer.Stop()
		state.ringTimer = nil
	}
	s.tracker.remove(state)
	s.tracker.mu.Unlock()

	if !state.answered && userUuid == state.callee {
		moved, err := s.repos.Call.Terminate(callUuid, call_status_enum.Missed, s.now(), 0, "")
		if err != nil {
			zap.L().Error("mark call missed failed", zap.Int64("call", callUuid), zap.Error(err))
			return
		}
		if moved {
			s.registry.SendToUser(state.initiator, mustMarshalEvent(EventCallEnded, CallEndedPayload{
				CallUuid: strconv.FormatInt(callUuid, 10),
				Reason:   "missed",
			}))
		}
		return
	}
	s.finishCall(state, userUuid, "ended")
}

// parseCallUuid 解析带 call_uuid 字段的载荷，失败回 error 事件
func (s *ChatServer) parseCallUuid(uc *UserConn, raw json.RawMessage, payload any) (int64, bool) {
	if err := json.Unmarshal(raw, payload); err != nil {
		s.sendError(uc, errorx.CodeInvalidParam, "无法解析的通话载荷")
		return 0, false
	}
	var uuidStr string
	switch p := payload.(type) {
	case *CallAnswerPayload:
		uuidStr = p.CallUuid
	case *CallEndPayload:
		uuidStr = p.CallUuid
	case *CallDeclinePayload:
		uuidStr = p.CallUuid
	}
	callUuid, err := strconv.ParseInt(uuidStr, 10, 64)
	if err != nil {
		s.sendError(uc, errorx.CodeInvalidParam, "非法的通话编号")
		return 0, false
	}
	return callUuid, true
}

// pushCallNotice 给离线用户投一条通话相关推送
func (s *ChatServer) pushCallNotice(userUuid, kind, callUuid, fromUuid string) {
	notice := mq.PushNotice{
		UserId: userUuid,
		Kind:   "call",
		Payload: map[string]string{
			"type":      kind,
			"call_uuid": callUuid,
			"from_uuid": fromUuid,
		},
	}
	if err := s.dispatcher.Notify(context.Background(), notice); err != nil {
		zap.L().Warn("call push dispatch failed", zap.String("user", userUuid), zap.Error(err))
	}
}
