package handler

import (
	"nova_chat_server/internal/service/auth"
	"nova_chat_server/internal/service/chat"
)

// Handlers 聚合所有 Handler 实例，供路由层装配
type Handlers struct {
	Auth     *AuthHandler
	User     *UserHandler
	Message  *MessageHandler
	Presence *PresenceHandler
	Ws       *WsHandler
}

// NewHandlers 创建所有 Handler 实例
func NewHandlers(authService *auth.Service, chatServer *chat.ChatServer, presence *chat.PresenceService) *Handlers {
	return &Handlers{
		Auth:     NewAuthHandler(authService),
		User:     NewUserHandler(authService),
		Message:  NewMessageHandler(chatServer),
		Presence: NewPresenceHandler(presence),
		Ws:       NewWsHandler(chatServer),
	}
}
