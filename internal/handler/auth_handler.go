package handler

import (
	"nova_chat_server/internal/dto/request"
	"nova_chat_server/internal/infrastructure/middleware"
	"nova_chat_server/internal/service/auth"

	"github.com/gin-gonic/gin"
)

// AuthHandler 认证接口
type AuthHandler struct {
	authService *auth.Service
}

func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Register 注册
// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req request.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	rsp, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, rsp)
}

// Login 登录
// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req request.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	rsp, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, rsp)
}

// Refresh 刷新凭证对
// POST /auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req request.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	rsp, err := h.authService.Refresh(c.Request.Context(), req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, rsp)
}

// Logout 注销当前设备
// POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserIDKey)
	deviceID := c.GetString(middleware.ContextDeviceIDKey)
	if err := h.authService.Logout(c.Request.Context(), userID, deviceID); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// LogoutAll 注销全部设备
// POST /auth/logout-all
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserIDKey)
	if err := h.authService.LogoutAll(c.Request.Context(), userID); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}
