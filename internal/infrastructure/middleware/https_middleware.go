package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

// TlsHandler 强制 HTTPS 中间件
// 当配置了 TlsHost 时启用，将 http 请求重定向到 https
func TlsHandler(host string) gin.HandlerFunc {
	return func(c *gin.Context) {
		secureMiddleware := secure.New(secure.Options{
			SSLRedirect: true,
			SSLHost:     host,
		})
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			zap.L().Error("tls redirect failed", zap.Error(err))
			c.Abort()
			return
		}
		c.Next()
	}
}
