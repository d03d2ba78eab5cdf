package respond

// MessageRespond 消息条目
// Uuid 是雪花 ID 的十进制字符串形式
type MessageRespond struct {
	Uuid             string `json:"uuid"`
	ConversationUuid string `json:"conversation_uuid"`
	SendId           string `json:"send_id"`
	Type             int8   `json:"type"`
	Content          string `json:"content"`
	ReplyTo          string `json:"reply_to,omitempty"`
	Status           int8   `json:"status"`
	SendAt           string `json:"send_at"`
}

// PresenceRespond 在线状态条目
type PresenceRespond struct {
	UserUuid string `json:"user_uuid"`
	Status   string `json:"status"` // online / offline
	LastSeen string `json:"last_seen,omitempty"`
}
