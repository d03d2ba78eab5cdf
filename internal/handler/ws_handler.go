package handler

import (
	"net/http"

	"nova_chat_server/internal/service/chat"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// upgrader WebSocket 升级器
// 认证在升级后的第一帧做，这里不检查来源（客户端是原生 App）
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WsHandler WebSocket 接入口
type WsHandler struct {
	chatServer *chat.ChatServer
}

func NewWsHandler(chatServer *chat.ChatServer) *WsHandler {
	return &WsHandler{chatServer: chatServer}
}

// Connect 升级连接并移交给网关
// GET /ws，升级前不做认证，凭证随第一帧 connect 事件提交
func (h *WsHandler) Connect(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.L().Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	go h.chatServer.Serve(wsConn)
}
