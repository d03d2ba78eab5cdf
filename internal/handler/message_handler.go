package handler

import (
	"strconv"

	"nova_chat_server/internal/dto/request"
	"nova_chat_server/internal/infrastructure/middleware"
	"nova_chat_server/internal/service/chat"
	"nova_chat_server/pkg/errorx"

	"github.com/gin-gonic/gin"
)

// MessageHandler 消息历史接口
type MessageHandler struct {
	chatServer *chat.ChatServer
}

func NewMessageHandler(chatServer *chat.ChatServer) *MessageHandler {
	return &MessageHandler{chatServer: chatServer}
}

// History 拉取会话历史
// GET /messages/:conversation_uuid?limit=50
func (h *MessageHandler) History(c *gin.Context) {
	convUuid := c.Param("conversation_uuid")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	userID := c.GetString(middleware.ContextUserIDKey)

	rsp, err := h.chatServer.History(c.Request.Context(), convUuid, userID, limit)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, rsp)
}

// Hide 对我删除一条消息
// POST /messages/hide
func (h *MessageHandler) Hide(c *gin.Context) {
	var req request.HideMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	msgUuid, err := strconv.ParseInt(req.MessageUuid, 10, 64)
	if err != nil {
		HandleError(c, errorx.ErrInvalidParam)
		return
	}
	userID := c.GetString(middleware.ContextUserIDKey)
	if err := h.chatServer.HideMessage(c.Request.Context(), msgUuid, userID); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}
