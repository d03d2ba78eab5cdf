package middleware

import (
	"context"
	"net/http"
	"strings"

	"nova_chat_server/pkg/errorx"

	"github.com/gin-gonic/gin"
)

// ContextUserIDKey 存放在 gin.Context 中的用户标识 key
const ContextUserIDKey = "user_id"

// ContextDeviceIDKey 存放在 gin.Context 中的设备标识 key
const ContextDeviceIDKey = "device_id"

// CredentialValidator 凭证校验接口
// 由 gate 服务实现，中间件只关心校验结果
type CredentialValidator interface {
	Validate(ctx context.Context, credential string) (userID, deviceID string, err error)
}

// JWTAuth 基于 Token 的认证中间件
// 客户端携带 Authorization: Bearer <token>，校验通过后将
// user_id / device_id 写入上下文供后续 handler 使用
func JWTAuth(gate CredentialValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.Request.Header.Get("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    errorx.CodeUnauthorized,
				"message": "请求未携带Token",
			})
			c.Abort()
			return
		}

		// 按空格分割，格式必须为 Bearer <token>
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    errorx.CodeUnauthorized,
				"message": "Token格式不正确",
			})
			c.Abort()
			return
		}

		userID, deviceID, err := gate.Validate(c.Request.Context(), parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"code":    errorx.CodeUnauthorized,
				"message": "无效的Token",
			})
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Set(ContextDeviceIDKey, deviceID)
		c.Next()
	}
}
