package chat

import (
	"encoding/json"

	"go.uber.org/zap"
)

// Envelope 网关事件信封
// 所有进出帧统一为 {"event": "...", "data": {...}}
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// 入站事件名
const (
	EventConnect               = "connect"
	EventMessageSend           = "message.send"
	EventConversationRead      = "conversation.read"
	EventMessageRead           = "message.read"
	EventTypingStart           = "typing.start"
	EventTypingStop            = "typing.stop"
	EventConversationJoin      = "conversation.join"
	EventCallInitiate          = "call.initiate"
	EventCallAnswer            = "call.answer"
	EventCallIceCandidate      = "call.ice-candidate"
	EventCallRenegotiate       = "call.renegotiate"
	EventCallRenegotiateAnswer = "call.renegotiate-answer"
	EventCallMediaState        = "call.media-state"
	EventCallEnd               = "call.end"
	EventCallDecline           = "call.decline"
	EventPing                  = "ping"
)

// 出站事件名
const (
	EventConnectOK           = "connect.ok"
	EventMessageReceived     = "message.received"
	EventMessageSent         = "message.sent"
	EventMessageStatus       = "message.status"
	EventReadReceipt         = "conversation.read_receipt"
	EventConversationCreated = "conversation.created"
	EventUserOnline          = "user.online"
	EventUserOffline         = "user.offline"
	EventCallIncoming        = "call.incoming"
	EventCallInitiated       = "call.initiated"
	EventCallAnswered        = "call.answered"
	EventCallEnded           = "call.ended"
	EventCallDeclined        = "call.declined"
	EventCallError           = "call.error"
	EventError               = "error"
	EventPong                = "pong"
)

// ==================== 入站载荷 ====================

// ConnectPayload 握手帧，升级后的第一帧必须是它
type ConnectPayload struct {
	Token string `json:"token"`
}

// SendMessagePayload 发消息
// ConversationUuid 和 TargetUuid 二选一：
// 前者发往已有会话，后者用于首次私聊（服务端查找或创建会话）
type SendMessagePayload struct {
	ConversationUuid string `json:"conversation_uuid,omitempty"`
	TargetUuid       string `json:"target_uuid,omitempty"`
	Type             int8   `json:"type"`
	Content          string `json:"content"`
	ReplyTo          string `json:"reply_to,omitempty"`
	ClientTag        string `json:"client_tag,omitempty"` // 客户端幂等标记，原样带回 ack
}

// ReadConversationPayload 会话整体已读
type ReadConversationPayload struct {
	ConversationUuid string `json:"conversation_uuid"`
}

// ReadMessagePayload 单条消息已读（旧版客户端兼容）
type ReadMessagePayload struct {
	MessageUuid string `json:"message_uuid"`
}

// TypingPayload 输入状态
type TypingPayload struct {
	ConversationUuid string `json:"conversation_uuid"`
}

// ConversationJoinPayload 订阅一个新会话（被拉入在线创建的会话时用）
type ConversationJoinPayload struct {
	ConversationUuid string `json:"conversation_uuid"`
}

// CallInitiatePayload 发起呼叫
type CallInitiatePayload struct {
	CalleeUuid       string          `json:"callee_uuid"`
	Kind             int8            `json:"kind"`
	ConversationUuid string          `json:"conversation_uuid,omitempty"`
	Sdp              json.RawMessage `json:"sdp,omitempty"`
}

// CallAnswerPayload 接听呼叫
type CallAnswerPayload struct {
	CallUuid string          `json:"call_uuid"`
	Sdp      json.RawMessage `json:"sdp,omitempty"`
}

// CallSignalPayload 通话内中继帧（ICE 候选 / 重协商 / 媒体状态共用）
// 网关不解释 Payload，原样转给对端
type CallSignalPayload struct {
	CallUuid string          `json:"call_uuid"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// CallEndPayload 挂断
type CallEndPayload struct {
	CallUuid string `json:"call_uuid"`
}

// CallDeclinePayload 拒接
type CallDeclinePayload struct {
	CallUuid string `json:"call_uuid"`
}

// ==================== 出站载荷 ====================

// ConnectOKPayload 握手成功
type ConnectOKPayload struct {
	ConnID   string `json:"conn_id"`
	UserUuid string `json:"user_uuid"`
}

// MessageSentAck 发送方收到的落库确认
type MessageSentAck struct {
	MessageUuid      string `json:"message_uuid"`
	ConversationUuid string `json:"conversation_uuid"`
	ClientTag        string `json:"client_tag,omitempty"`
	SendAt           string `json:"send_at"`
}

// MessageStatusPayload 状态推进通知（delivered/read）
type MessageStatusPayload struct {
	ConversationUuid string   `json:"conversation_uuid"`
	MessageUuids     []string `json:"message_uuids,omitempty"`
	Status           int8     `json:"status"`
}

// ReadReceiptPayload 已读回执
// MessageUuid 为空表示整个会话已读
type ReadReceiptPayload struct {
	ConversationUuid string `json:"conversation_uuid"`
	MessageUuid      string `json:"message_uuid,omitempty"`
	ReaderUuid       string `json:"reader_uuid"`
	ReadAt           string `json:"read_at"`
}

// ConversationCreatedPayload 新会话广播
type ConversationCreatedPayload struct {
	ConversationUuid string   `json:"conversation_uuid"`
	Type             int8     `json:"type"`
	MemberUuids      []string `json:"member_uuids"`
}

// TypingNotifyPayload 输入状态转发
type TypingNotifyPayload struct {
	ConversationUuid string `json:"conversation_uuid"`
	UserUuid         string `json:"user_uuid"`
}

// PresencePayload 上下线广播
type PresencePayload struct {
	UserUuid string `json:"user_uuid"`
	At       string `json:"at"`
}

// CallIncomingPayload 来电通知
type CallIncomingPayload struct {
	CallUuid         string          `json:"call_uuid"`
	InitiatorUuid    string          `json:"initiator_uuid"`
	Kind             int8            `json:"kind"`
	ConversationUuid string          `json:"conversation_uuid,omitempty"`
	Sdp              json.RawMessage `json:"sdp,omitempty"`
}

// CallInitiatedPayload 呼叫方收到的发起确认
type CallInitiatedPayload struct {
	CallUuid     string `json:"call_uuid"`
	CalleeOnline bool   `json:"callee_online"`
}

// CallAnsweredPayload 接听通知
type CallAnsweredPayload struct {
	CallUuid string          `json:"call_uuid"`
	Sdp      json.RawMessage `json:"sdp,omitempty"`
}

// CallSignalNotifyPayload 中继帧转发（带来源）
type CallSignalNotifyPayload struct {
	CallUuid string          `json:"call_uuid"`
	FromUuid string          `json:"from_uuid"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// CallEndedPayload 通话结束通知
// Reason: ended（正常挂断/宽限期超时）或 missed（响铃超时）
type CallEndedPayload struct {
	CallUuid     string `json:"call_uuid"`
	Reason       string `json:"reason"`
	EndedBy      string `json:"ended_by,omitempty"`
	DurationSecs int64  `json:"duration_secs"`
}

// CallDeclinedPayload 拒接通知
type CallDeclinedPayload struct {
	CallUuid string `json:"call_uuid"`
}

// ErrorPayload 错误事件载荷（error 和 call.error 共用）
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// mustMarshalEvent 组装事件帧
// 载荷都是服务端自己的结构体，序列化失败属于编程错误，记日志后返回空帧
func mustMarshalEvent(event string, data any) []byte {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			zap.L().Error("marshal event payload failed",
				zap.String("event", event), zap.Error(err))
			return nil
		}
		raw = b
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		zap.L().Error("marshal event envelope failed",
			zap.String("event", event), zap.Error(err))
		return nil
	}
	return frame
}
