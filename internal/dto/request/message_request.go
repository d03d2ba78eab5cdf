package request

// HistoryRequest 拉取会话历史请求
type HistoryRequest struct {
	ConversationUuid string `json:"conversation_uuid" binding:"required,max=20"`
	Limit            int    `json:"limit" binding:"min=0,max=200"`
}

// HideMessageRequest 对我删除请求
// 消息雪花 ID 超出 JS 安全整数范围，统一用字符串传输
type HideMessageRequest struct {
	MessageUuid string `json:"message_uuid" binding:"required"`
}

// PresenceQueryRequest 批量在线状态查询请求
type PresenceQueryRequest struct {
	UserUuids []string `json:"user_uuids" binding:"required,min=1,max=100"`
}
