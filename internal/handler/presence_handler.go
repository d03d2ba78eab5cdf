package handler

import (
	"nova_chat_server/internal/dto/request"
	"nova_chat_server/internal/service/chat"

	"github.com/gin-gonic/gin"
)

// PresenceHandler 在线状态查询接口
type PresenceHandler struct {
	presence *chat.PresenceService
}

func NewPresenceHandler(presence *chat.PresenceService) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// Query 批量查询在线状态
// POST /presence/query
func (h *PresenceHandler) Query(c *gin.Context) {
	var req request.PresenceQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	HandleSuccess(c, h.presence.QueryBatch(c.Request.Context(), req.UserUuids))
}
