package handler

import (
	"nova_chat_server/internal/dto/request"
	"nova_chat_server/internal/infrastructure/middleware"
	"nova_chat_server/internal/service/auth"

	"github.com/gin-gonic/gin"
)

// UserHandler 用户资料与设备管理接口
type UserHandler struct {
	authService *auth.Service
}

func NewUserHandler(authService *auth.Service) *UserHandler {
	return &UserHandler{authService: authService}
}

// Me 当前用户资料
// GET /users/me
func (h *UserHandler) Me(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserIDKey)
	rsp, err := h.authService.Me(userID)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, rsp)
}

// Devices 登录设备列表
// GET /users/me/devices
func (h *UserHandler) Devices(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserIDKey)
	deviceID := c.GetString(middleware.ContextDeviceIDKey)
	rsp, err := h.authService.Devices(userID, deviceID)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, rsp)
}

// RemoveDevice 移除设备并吊销其凭证
// POST /users/me/devices/remove
func (h *UserHandler) RemoveDevice(c *gin.Context) {
	var req request.RemoveDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	userID := c.GetString(middleware.ContextUserIDKey)
	if err := h.authService.RemoveDevice(c.Request.Context(), userID, req.DeviceUuid); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}
